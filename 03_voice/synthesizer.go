package voice

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/providers"
	"shortform-pipeline/retry"
	"shortform-pipeline/types"
)

// intensifiers get mild emphasis even in lowercase
var intensifiers = map[string]bool{
	"never": true, "always": true, "nobody": true, "nothing": true,
	"everything": true, "every": true, "only": true, "secretly": true,
}

// Synthesizer turns the script narration into one audio track.
type Synthesizer struct {
	cfg   *config.Config
	tts   providers.SpeechSynthesizer
	retry retry.Policy
	log   *logger.Logger
}

func New(cfg *config.Config, tts providers.SpeechSynthesizer, policy retry.Policy, log *logger.Logger) *Synthesizer {
	return &Synthesizer{
		cfg:   cfg,
		tts:   tts,
		retry: policy,
		log:   log.With("stage", "voice"),
	}
}

// Synthesize speaks the narration. With markup enabled the text is
// enriched with pause and emphasis tags first; if the provider rejects
// that markup, one plain-text attempt follows before giving up.
func (s *Synthesizer) Synthesize(ctx context.Context, narration string) (*types.AudioTrack, error) {
	if strings.TrimSpace(narration) == "" {
		return nil, &providers.ValidationError{Op: "voice", Reason: "narration is empty"}
	}

	vc := s.cfg.Voice
	markup := !vc.DisableMarkup
	text := narration
	if markup {
		text = buildMarkup(narration)
	}
	s.log.Info("synthesizing narration", "voice", vc.VoiceID, "rate", vc.SpeakingRate, "markup", markup)

	result, err := s.callTTS(ctx, text, vc)
	if err != nil && markup && isValidation(err) {
		s.log.Warn("markup rejected, retrying with plain text", "error", err)
		markup = false
		result, err = s.callTTS(ctx, narration, vc)
	}
	if err != nil {
		return nil, err
	}

	track := &types.AudioTrack{
		FileRef:         result.FileRef,
		DurationSeconds: result.DurationSeconds,
		MarkupUsed:      markup,
	}
	s.log.Info("narration ready", "file", track.FileRef, "seconds", track.DurationSeconds, "markup", markup)
	return track, nil
}

func (s *Synthesizer) callTTS(ctx context.Context, text string, vc config.VoiceConfig) (providers.SpeechResult, error) {
	var result providers.SpeechResult
	err := s.retry.Do(ctx, s.log, "voice-synthesize", func(ctx context.Context) error {
		r, err := s.tts.Synthesize(ctx, text, vc.VoiceID, vc.SpeakingRate)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func isValidation(err error) bool {
	var ve *providers.ValidationError
	return errors.As(err, &ve)
}

// buildMarkup inserts a short pause after each sentence, a longer pause
// between paragraphs, and emphasis around ALL-CAPS words and known
// intensifiers. Pure text transform.
func buildMarkup(text string) string {
	var sb strings.Builder
	sb.WriteString("<speak>")
	for pi, para := range splitParagraphs(text) {
		if pi > 0 {
			sb.WriteString(`<break time="800ms"/>`)
		}
		words := strings.Fields(para)
		for wi, word := range words {
			if wi > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(emphasizeWord(word))
			if endsSentence(word) && wi < len(words)-1 {
				sb.WriteString(`<break time="400ms"/>`)
			}
		}
	}
	sb.WriteString("</speak>")
	return sb.String()
}

func splitParagraphs(text string) []string {
	var out []string
	for _, para := range strings.Split(strings.TrimSpace(text), "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			out = append(out, para)
		}
	}
	return out
}

func emphasizeWord(word string) string {
	trimmed := strings.TrimRight(word, ".,!?;:")
	if trimmed == "" {
		return word
	}
	punct := word[len(trimmed):]
	if isAllCaps(trimmed) {
		return `<emphasis level="strong">` + trimmed + `</emphasis>` + punct
	}
	if intensifiers[strings.ToLower(trimmed)] {
		return "<emphasis>" + trimmed + "</emphasis>" + punct
	}
	return word
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters >= 2
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}
