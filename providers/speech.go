package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"shortform-pipeline/logger"
)

// SpeechResult is one synthesized narration file.
type SpeechResult struct {
	FileRef         string
	DurationSeconds float64
}

// SpeechSynthesizer turns narration text into an audio file. Text may
// carry pause/emphasis markup; a provider that cannot parse it returns
// a ValidationError.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string, speakingRate float64) (SpeechResult, error)
}

// HTTPSpeechSynthesizer calls a TTS endpoint that answers with base64
// audio plus its measured duration.
type HTTPSpeechSynthesizer struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	outDir     string
	httpClient *http.Client
}

func NewHTTPSpeechSynthesizer(log *logger.Logger, outDir string) (*HTTPSpeechSynthesizer, error) {
	baseURL := os.Getenv("TTS_API_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("TTS_API_URL not set")
	}
	return &HTTPSpeechSynthesizer{
		log:        log.With("provider", "tts"),
		baseURL:    baseURL,
		apiKey:     os.Getenv("TTS_API_KEY"),
		outDir:     outDir,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type speechRequest struct {
	Text         string  `json:"text"`
	VoiceID      string  `json:"voice_id"`
	SpeakingRate float64 `json:"speaking_rate"`
	Format       string  `json:"format"`
}

type speechResponse struct {
	AudioBase64     string  `json:"audio_base64"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error"`
}

func (s *HTTPSpeechSynthesizer) Synthesize(ctx context.Context, text, voiceID string, speakingRate float64) (SpeechResult, error) {
	reqBody := speechRequest{
		Text:         text,
		VoiceID:      voiceID,
		SpeakingRate: speakingRate,
		Format:       "mp3",
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return SpeechResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/v1/synthesize", bytes.NewReader(bodyBytes))
	if err != nil {
		return SpeechResult{}, err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SpeechResult{}, wrapTransport("speech", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SpeechResult{}, wrapTransport("speech", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SpeechResult{}, classifyHTTP("speech", resp.StatusCode, string(raw))
	}

	var sr speechResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return SpeechResult{}, &SchemaViolation{Op: "speech", Reason: "unparseable response body", Raw: truncate(string(raw), 200)}
	}
	if sr.Error != "" {
		return SpeechResult{}, &ValidationError{Op: "speech", Reason: sr.Error}
	}
	audio, err := base64.StdEncoding.DecodeString(sr.AudioBase64)
	if err != nil || len(audio) == 0 {
		return SpeechResult{}, &SchemaViolation{Op: "speech", Reason: "response has no decodable audio"}
	}

	if err := os.MkdirAll(s.outDir, 0755); err != nil {
		return SpeechResult{}, fmt.Errorf("audio output dir: %w", err)
	}
	outFile := filepath.Join(s.outDir, fmt.Sprintf("narration_%s.mp3", uuid.NewString()[:8]))
	if err := os.WriteFile(outFile, audio, 0644); err != nil {
		return SpeechResult{}, fmt.Errorf("write audio file: %w", err)
	}

	duration := sr.DurationSeconds
	if duration <= 0 {
		// 128 kbit/s mp3 when the provider omits a measurement
		duration = float64(len(audio)) / 16000.0
	}
	s.log.Debug("narration synthesized", "file", outFile, "seconds", duration)
	return SpeechResult{FileRef: outFile, DurationSeconds: duration}, nil
}
