package types

import "time"

// Topic is the pipeline input: what the video is about.
type Topic struct {
	Title    string   `json:"title"`
	Angle    string   `json:"angle"`
	Keywords []string `json:"keywords"`
}

// Chapter is one chapter marker in the video description.
type Chapter struct {
	OffsetSeconds int    `json:"offset_seconds"`
	Label         string `json:"label"`
}

// SEO holds publish metadata produced alongside the script.
type SEO struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Chapters    []Chapter `json:"chapters"`
}

// Script is the full structured script for one video. Immutable once
// produced; everything downstream reads from it.
type Script struct {
	Hook          string   `json:"hook"`
	Narration     string   `json:"narration"`
	VisualCues    []string `json:"visual_cues"`
	SEO           SEO      `json:"seo"`
	EngagementCTA string   `json:"engagement_cta"`
}

// AudioTrack is the synthesized narration.
type AudioTrack struct {
	FileRef         string  `json:"file_ref"`
	DurationSeconds float64 `json:"duration_seconds"`
	MarkupUsed      bool    `json:"markup_used"`
}

// VisualAsset pairs a visual cue with the clip chosen for it. An empty
// ClipRef means no clip was found and the renderer uses its fallback
// background.
type VisualAsset struct {
	Keyword string `json:"keyword"`
	ClipRef string `json:"clip_ref,omitempty"`
}

func (v VisualAsset) HasClip() bool { return v.ClipRef != "" }

// RenderFormat is a target aspect ratio.
type RenderFormat string

const (
	FormatVertical RenderFormat = "VERTICAL"
	FormatWide     RenderFormat = "WIDE"
)

// Resolution returns the output dimensions for the format.
func (f RenderFormat) Resolution() (w, h int) {
	switch f {
	case FormatWide:
		return 1920, 1080
	default:
		return 1080, 1920
	}
}

func (f RenderFormat) Valid() bool {
	return f == FormatVertical || f == FormatWide
}

// RenderState is the lifecycle of one remote render job.
type RenderState string

const (
	RenderSubmitted RenderState = "SUBMITTED"
	RenderRunning   RenderState = "RENDERING"
	RenderDone      RenderState = "DONE"
	RenderFailed    RenderState = "FAILED"
)

func (s RenderState) IsTerminal() bool {
	return s == RenderDone || s == RenderFailed
}

// CanTransition reports whether a job may move from one state to another.
func CanTransition(from, to RenderState) bool {
	switch from {
	case RenderSubmitted:
		return to == RenderRunning || to == RenderDone || to == RenderFailed
	case RenderRunning:
		return to == RenderDone || to == RenderFailed
	default:
		return false
	}
}

// RenderJob tracks one format's render from submission to terminal state.
type RenderJob struct {
	Format      RenderFormat `json:"format"`
	RemoteJobID string       `json:"remote_job_id"`
	State       RenderState  `json:"state"`
	OutputRef   string       `json:"output_ref,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ThumbnailVariant is one generated thumbnail image.
type ThumbnailVariant struct {
	VariantIndex int    `json:"variant_index"`
	ImageRef     string `json:"image_ref"`
	ColorScheme  string `json:"color_scheme"`
}

// PipelineManifest is the single object a run returns: the script, the
// audio metadata, every render result, and the thumbnail set. Persisting
// it is the caller's job.
type PipelineManifest struct {
	RunID                string             `json:"run_id"`
	Topic                Topic              `json:"topic"`
	Script               Script             `json:"script"`
	Audio                AudioTrack         `json:"audio"`
	Visuals              []VisualAsset      `json:"visuals"`
	Renders              []RenderJob        `json:"renders"`
	Thumbnails           []ThumbnailVariant `json:"thumbnails"`
	PartialRenderFailure bool               `json:"partial_render_failure"`
	Notes                []string           `json:"notes,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

// DoneRender returns the first successful render, if any.
func (m *PipelineManifest) DoneRender() (RenderJob, bool) {
	for _, r := range m.Renders {
		if r.State == RenderDone {
			return r, true
		}
	}
	return RenderJob{}, false
}

// RunState labels where a run currently is; written to the state file
// at each transition.
type RunState string

const (
	RunStarted   RunState = "STARTED"
	RunScripting RunState = "SCRIPTING"
	RunEnriching RunState = "ENRICHING"
	RunRendering RunState = "RENDERING"
	RunDone      RunState = "DONE"
	RunFailed    RunState = "FAILED"
)
