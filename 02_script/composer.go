package script

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/providers"
	"shortform-pipeline/retry"
	"shortform-pipeline/types"
)

const systemPrompt = `You are a scriptwriter for short-form vertical video (YouTube Shorts, Reels, TikTok). You write tight, punchy scripts that hold attention from the first frame.

Your scripts MUST follow this structure:
1. HOOK (first 3 seconds) - the single most surprising fact or question. No greeting, no setup.
2. BODY - short paragraphs, escalating, concrete. One idea per sentence.
3. PAYOFF - resolve the hook with the detail that makes viewers comment.

You MUST respond with ONLY valid JSON — no preamble, no markdown, no explanation.

The JSON must have exactly these fields:
- "hook": string, the first line spoken (max 2 sentences)
- "narration": string, the full spoken text including the hook, in short paragraphs separated by blank lines
- "visual_cues": array of 4-8 short keywords for background footage search, ordered to follow the narration
- "seo": {"title": string (max 60 chars), "description": string (2-3 sentences), "tags": array of 15-20 lowercase strings}
- "engagement_cta": string, one closing line that invites comments about the topic. Never a plain "like and subscribe".`

// fillTags pad the tag set when the model returns too few
var fillTags = []string{
	"shorts", "short video", "explained", "facts", "did you know",
	"learn", "viral", "trending", "interesting", "education",
	"science", "technology", "story", "daily facts", "quick facts",
}

// Composer turns a topic into a full script with one structured
// generation call plus local post-processing.
type Composer struct {
	cfg   *config.Config
	gen   providers.TextGenerator
	retry retry.Policy
	log   *logger.Logger
}

func New(cfg *config.Config, gen providers.TextGenerator, policy retry.Policy, log *logger.Logger) *Composer {
	return &Composer{
		cfg:   cfg,
		gen:   gen,
		retry: policy,
		log:   log.With("stage", "script"),
	}
}

// Compose requests the script and normalizes it. A response that cannot
// be parsed into the script shape counts against the retry budget like
// any transient failure.
func (c *Composer) Compose(ctx context.Context, topic types.Topic) (*types.Script, error) {
	if strings.TrimSpace(topic.Title) == "" {
		return nil, &providers.ValidationError{Op: "script", Reason: "topic title is empty"}
	}
	c.log.Info("composing script", "topic", topic.Title)

	user := buildUserPrompt(topic, c.cfg)
	var script *types.Script
	err := c.retry.Do(ctx, c.log, "script-generate", func(ctx context.Context) error {
		raw, err := c.gen.GenerateStructured(ctx, systemPrompt, user)
		if err != nil {
			return err
		}
		parsed, err := parseScript(raw)
		if err != nil {
			return err
		}
		script = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.finalize(script, topic)
	c.log.Info("script ready",
		"title", script.SEO.Title,
		"cues", len(script.VisualCues),
		"chapters", len(script.SEO.Chapters),
		"tags", len(script.SEO.Tags),
	)
	return script, nil
}

func buildUserPrompt(topic types.Topic, cfg *config.Config) string {
	words := int(float64(cfg.Script.TargetSeconds) * cfg.Script.WordsPerSecond)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Write a ~%d second short-form video script (about %d words spoken).\n\n", cfg.Script.TargetSeconds, words))
	sb.WriteString(fmt.Sprintf("TOPIC: %s\n", topic.Title))
	if topic.Angle != "" {
		sb.WriteString(fmt.Sprintf("ANGLE: %s\n", topic.Angle))
	}
	if len(topic.Keywords) > 0 {
		sb.WriteString(fmt.Sprintf("KEYWORDS: %s\n", strings.Join(topic.Keywords, ", ")))
	}
	sb.WriteString("\nRespond ONLY with valid JSON. No markdown. No explanation.")
	return sb.String()
}

func parseScript(raw string) (*types.Script, error) {
	cleaned := providers.CleanJSON(raw)
	var s types.Script
	if err := json.Unmarshal([]byte(cleaned), &s); err != nil {
		return nil, &providers.SchemaViolation{
			Op:     "script",
			Reason: fmt.Sprintf("unparseable script: %v", err),
			Raw:    preview(cleaned),
		}
	}
	if strings.TrimSpace(s.Narration) == "" {
		return nil, &providers.SchemaViolation{Op: "script", Reason: "narration is empty", Raw: preview(cleaned)}
	}
	return &s, nil
}

// finalize is pure local cleanup. Safe to run more than once.
func (c *Composer) finalize(s *types.Script, topic types.Topic) {
	applyCTA(s, topic)
	if s.SEO.Title == "" {
		s.SEO.Title = topic.Title
	}
	s.SEO.Title = truncateAtWord(s.SEO.Title, c.cfg.Script.TitleMaxChars)
	s.VisualCues = dedupeCues(s.VisualCues, c.cfg.Script.MaxVisualCues)
	s.SEO.Chapters = buildChapters(s.Narration, c.cfg.Script.WordsPerSecond)
	s.SEO.Tags = normalizeTags(s.SEO.Tags, topic, s.VisualCues, c.cfg.Script.MinTags, c.cfg.Script.MaxTags)
}

// applyCTA makes sure the narration ends with a topic-specific call to
// action, appending one only when it is not already there.
func applyCTA(s *types.Script, topic types.Topic) {
	cta := strings.TrimSpace(s.EngagementCTA)
	if cta == "" || strings.Contains(strings.ToLower(cta), "subscribe") {
		cta = buildCTA(topic)
	}
	if !strings.Contains(strings.ToLower(s.Narration), strings.ToLower(cta)) {
		s.Narration = strings.TrimRight(s.Narration, " \n") + "\n\n" + cta
	}
	s.EngagementCTA = cta
}

func buildCTA(topic types.Topic) string {
	subject := topic.Title
	if len(topic.Keywords) > 0 {
		subject = topic.Keywords[0]
	}
	return fmt.Sprintf("What's your take on %s? Drop it in the comments.", subject)
}

// truncateAtWord cuts s to at most max characters, never mid-word.
func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:.-")
}

// dedupeCues keeps the first occurrence of each cue, capped at max.
func dedupeCues(cues []string, max int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(cues))
	for _, cue := range cues {
		cue = strings.TrimSpace(cue)
		key := strings.ToLower(cue)
		if cue == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, cue)
		if len(out) == max {
			break
		}
	}
	return out
}

// buildChapters estimates chapter offsets from a fixed words-per-second
// rate. Offsets are heuristic, not measured from the synthesized audio,
// so they drift on unusually fast or slow narration.
func buildChapters(narration string, wps float64) []types.Chapter {
	sentences := splitSentences(narration)
	if len(sentences) == 0 {
		return nil
	}
	const sentencesPerChapter = 2

	var chapters []types.Chapter
	elapsed := 0.0
	for i := 0; i < len(sentences); i += sentencesPerChapter {
		end := i + sentencesPerChapter
		if end > len(sentences) {
			end = len(sentences)
		}
		offset := int(elapsed)
		if len(chapters) > 0 && offset <= chapters[len(chapters)-1].OffsetSeconds {
			offset = chapters[len(chapters)-1].OffsetSeconds + 1
		}
		chapters = append(chapters, types.Chapter{
			OffsetSeconds: offset,
			Label:         truncateAtWord(sentences[i], 40),
		})
		for _, sentence := range sentences[i:end] {
			elapsed += float64(len(strings.Fields(sentence))) / wps
		}
	}
	return chapters
}

func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		cur.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n') {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// normalizeTags lowercases and dedupes the model's tags, then tops the
// set up from topic keywords, cues, and a fixed filler list until it
// lands in the configured range.
func normalizeTags(raw []string, topic types.Topic, cues []string, minTags, maxTags int) []string {
	seen := make(map[string]bool)
	tags := make([]string, 0, maxTags)
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] || len(tags) >= maxTags {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}

	for _, t := range raw {
		add(t)
	}
	if len(tags) < minTags {
		for _, k := range topic.Keywords {
			add(k)
		}
		for _, cue := range cues {
			add(cue)
		}
		for _, t := range fillTags {
			if len(tags) >= minTags {
				break
			}
			add(t)
		}
	}
	return tags
}

func preview(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200]
}
