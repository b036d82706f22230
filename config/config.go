package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"shortform-pipeline/types"
)

type Config struct {
	Topics     TopicsConfig     `yaml:"topics"`
	Script     ScriptConfig     `yaml:"script"`
	Voice      VoiceConfig      `yaml:"voice"`
	Visuals    VisualsConfig    `yaml:"visuals"`
	Render     RenderConfig     `yaml:"render"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Publish    PublishConfig    `yaml:"publish"`
	Retry      RetryConfig      `yaml:"retry"`
	Paths      PathsConfig      `yaml:"paths"`
	LogMode    string           `yaml:"log_mode"`
}

type TopicsConfig struct {
	Subreddits []string `yaml:"subreddits"`
	MaxTopics  int      `yaml:"max_topics"`
	MinScore   int      `yaml:"min_score"`
	TimeWindow string   `yaml:"time_window"`
	UserAgent  string   `yaml:"user_agent"`
}

type ScriptConfig struct {
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TargetSeconds  int     `yaml:"target_seconds"`
	WordsPerSecond float64 `yaml:"words_per_second"`
	MaxVisualCues  int     `yaml:"max_visual_cues"`
	TitleMaxChars  int     `yaml:"title_max_chars"`
	MinTags        int     `yaml:"min_tags"`
	MaxTags        int     `yaml:"max_tags"`
}

type VoiceConfig struct {
	VoiceID      string  `yaml:"voice_id"`
	SpeakingRate float64 `yaml:"speaking_rate"`
	// markup is on unless explicitly disabled
	DisableMarkup bool `yaml:"disable_markup"`
}

type VisualsConfig struct {
	DisableStockFootage bool `yaml:"disable_stock_footage"`
	MaxConcurrent       int  `yaml:"max_concurrent"`
	MinClipWidth        int  `yaml:"min_clip_width"`
	MinClipHeight       int  `yaml:"min_clip_height"`
	MinClipSeconds      int  `yaml:"min_clip_seconds"`
	QueryTimeoutSec     int  `yaml:"query_timeout_sec"`
}

type RenderConfig struct {
	AspectRatios    []string `yaml:"aspect_ratios"`
	PollIntervalSec float64  `yaml:"poll_interval_sec"`
	PollTimeoutSec  float64  `yaml:"poll_timeout_sec"`
	JobTimeoutSec   float64  `yaml:"job_timeout_sec"`
}

type ThumbnailsConfig struct {
	VariantCount int    `yaml:"variant_count"`
	FontPath     string `yaml:"font_path"`
}

type PublishConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	CategoryID        string `yaml:"category_id"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
}

type RetryConfig struct {
	MaxRetries   int `yaml:"max_retries"`
	BaseDelaySec int `yaml:"base_delay_sec"`
	MaxDelaySec  int `yaml:"max_delay_sec"`
}

type PathsConfig struct {
	Output string `yaml:"output"`
}

// Load reads the yaml config, fills defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a ready-to-run config without a yaml file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if len(c.Topics.Subreddits) == 0 {
		c.Topics.Subreddits = []string{"technology", "Futurology"}
	}
	if c.Topics.MaxTopics == 0 {
		c.Topics.MaxTopics = 5
	}
	if c.Topics.TimeWindow == "" {
		c.Topics.TimeWindow = "week"
	}
	if c.Topics.UserAgent == "" {
		c.Topics.UserAgent = "shortform-pipeline/1.0"
	}
	if c.Script.Model == "" {
		c.Script.Model = "llama-3.3-70b-versatile"
	}
	if c.Script.Temperature == 0 {
		c.Script.Temperature = 0.7
	}
	if c.Script.TargetSeconds == 0 {
		c.Script.TargetSeconds = 55
	}
	if c.Script.WordsPerSecond == 0 {
		c.Script.WordsPerSecond = 2.5
	}
	if c.Script.MaxVisualCues == 0 {
		c.Script.MaxVisualCues = 8
	}
	if c.Script.TitleMaxChars == 0 {
		c.Script.TitleMaxChars = 60
	}
	if c.Script.MinTags == 0 {
		c.Script.MinTags = 15
	}
	if c.Script.MaxTags == 0 {
		c.Script.MaxTags = 20
	}
	if c.Voice.VoiceID == "" {
		c.Voice.VoiceID = "en-US-narrator-1"
	}
	if c.Voice.SpeakingRate == 0 {
		c.Voice.SpeakingRate = 1.0
	}
	if c.Visuals.MaxConcurrent == 0 {
		c.Visuals.MaxConcurrent = 4
	}
	if c.Visuals.MinClipWidth == 0 {
		c.Visuals.MinClipWidth = 720
	}
	if c.Visuals.MinClipHeight == 0 {
		c.Visuals.MinClipHeight = 720
	}
	if c.Visuals.MinClipSeconds == 0 {
		c.Visuals.MinClipSeconds = 5
	}
	if c.Visuals.QueryTimeoutSec == 0 {
		c.Visuals.QueryTimeoutSec = 15
	}
	if len(c.Render.AspectRatios) == 0 {
		c.Render.AspectRatios = []string{string(types.FormatVertical), string(types.FormatWide)}
	}
	if c.Render.PollIntervalSec == 0 {
		c.Render.PollIntervalSec = 3
	}
	if c.Render.PollTimeoutSec == 0 {
		c.Render.PollTimeoutSec = 10
	}
	if c.Render.JobTimeoutSec == 0 {
		c.Render.JobTimeoutSec = 600
	}
	if c.Thumbnails.VariantCount == 0 {
		c.Thumbnails.VariantCount = 3
	}
	if c.Publish.Visibility == "" {
		c.Publish.Visibility = "private"
	}
	if c.Publish.CategoryID == "" {
		c.Publish.CategoryID = "28"
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BaseDelaySec == 0 {
		c.Retry.BaseDelaySec = 2
	}
	if c.Retry.MaxDelaySec == 0 {
		c.Retry.MaxDelaySec = 30
	}
	if c.Paths.Output == "" {
		c.Paths.Output = "output"
	}
	if c.LogMode == "" {
		c.LogMode = "dev"
	}
}

func (c *Config) Validate() error {
	if c.Voice.SpeakingRate < 0.25 || c.Voice.SpeakingRate > 4.0 {
		return fmt.Errorf("voice.speaking_rate %.2f out of range [0.25, 4.0]", c.Voice.SpeakingRate)
	}
	if c.Thumbnails.VariantCount < 1 {
		return fmt.Errorf("thumbnails.variant_count must be at least 1")
	}
	if len(c.Render.AspectRatios) == 0 {
		return fmt.Errorf("render.aspect_ratios must not be empty")
	}
	for _, r := range c.Render.AspectRatios {
		if !types.RenderFormat(r).Valid() {
			return fmt.Errorf("render.aspect_ratios has unknown format %q", r)
		}
	}
	if c.Script.MinTags > c.Script.MaxTags {
		return fmt.Errorf("script.min_tags %d exceeds script.max_tags %d", c.Script.MinTags, c.Script.MaxTags)
	}
	return nil
}

// Formats converts the configured aspect ratio names to typed formats.
func (c *Config) Formats() []types.RenderFormat {
	out := make([]types.RenderFormat, 0, len(c.Render.AspectRatios))
	for _, r := range c.Render.AspectRatios {
		out = append(out, types.RenderFormat(r))
	}
	return out
}

// PollInterval is the gap between render status checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Render.PollIntervalSec * float64(time.Second))
}

// PollTimeout bounds a single status check.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Render.PollTimeoutSec * float64(time.Second))
}

// JobTimeout bounds one render job from submit to terminal state.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Render.JobTimeoutSec * float64(time.Second))
}

// QueryTimeout bounds one stock footage search.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Visuals.QueryTimeoutSec) * time.Second
}
