package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"shortform-pipeline/logger"
)

// TextGenerator produces structured text from a prompt pair. Responses
// are expected to be JSON; parsing into the target shape is the
// caller's job so parse failures share the retry path with transport
// failures.
type TextGenerator interface {
	GenerateStructured(ctx context.Context, system, user string) (string, error)
}

// GroqTextGenerator calls an OpenAI-compatible chat-completions API.
type GroqTextGenerator struct {
	log         *logger.Logger
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

func NewGroqTextGenerator(log *logger.Logger, model string, temperature float64) (*GroqTextGenerator, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY not set")
	}
	baseURL := os.Getenv("GROQ_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai"
	}
	return &GroqTextGenerator{
		log:         log.With("provider", "groq"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *GroqTextGenerator) GenerateStructured(ctx context.Context, system, user string) (string, error) {
	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: g.temperature,
		MaxTokens:   4096,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", wrapTransport("textgen", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapTransport("textgen", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyHTTP("textgen", resp.StatusCode, string(raw))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", &SchemaViolation{Op: "textgen", Reason: "unparseable response body", Raw: truncate(string(raw), 200)}
	}
	if cr.Error != nil {
		return "", &ValidationError{Op: "textgen", Reason: cr.Error.Message}
	}
	if len(cr.Choices) == 0 {
		return "", &SchemaViolation{Op: "textgen", Reason: "response has no choices", Raw: truncate(string(raw), 200)}
	}
	return cr.Choices[0].Message.Content, nil
}

// CleanJSON strips the markdown fences models sometimes wrap around
// JSON output.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
