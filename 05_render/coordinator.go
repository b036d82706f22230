package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/providers"
	"shortform-pipeline/retry"
	"shortform-pipeline/types"
)

// Coordinator turns one finished script, audio track, and clip set into
// a rendered video per configured aspect ratio. Jobs are submitted and
// polled concurrently; a job that fails or times out is reported on the
// returned slice rather than as an error.
type Coordinator struct {
	cfg   *config.Config
	svc   providers.RenderService
	retry retry.Policy
	log   *logger.Logger
}

func New(cfg *config.Config, svc providers.RenderService, policy retry.Policy, log *logger.Logger) *Coordinator {
	return &Coordinator{cfg: cfg, svc: svc, retry: policy, log: log.With("stage", "render")}
}

// Render runs every configured format to a terminal state and returns
// all jobs in config order. The error return is reserved for unusable
// input; per-job failures live on the jobs themselves.
func (c *Coordinator) Render(ctx context.Context, script *types.Script, audio *types.AudioTrack, visuals []types.VisualAsset) ([]types.RenderJob, error) {
	formats := c.cfg.Formats()
	if len(formats) == 0 {
		return nil, &providers.ValidationError{Op: "render", Reason: "no aspect ratios configured"}
	}
	if audio == nil || audio.FileRef == "" {
		return nil, &providers.ValidationError{Op: "render", Reason: "missing audio track"}
	}

	captions := buildCaptions(script.Narration, audio.DurationSeconds)
	clips := clipRefs(visuals)
	c.log.Info("starting renders",
		"formats", len(formats), "clips", len(clips), "captions", len(captions))

	jobs := make([]types.RenderJob, len(formats))
	g, gctx := errgroup.WithContext(ctx)
	for i, format := range formats {
		i, format := i, format
		g.Go(func() error {
			desc := buildDescription(format, audio, clips, captions)
			jobs[i] = c.renderFormat(gctx, desc)
			return nil
		})
	}
	_ = g.Wait()

	done, failed := 0, 0
	for _, job := range jobs {
		if job.State == types.RenderDone {
			done++
		} else {
			failed++
		}
	}
	c.log.Info("rendering finished", "done", done, "failed", failed)
	return jobs, nil
}

// renderFormat drives a single job from submission to a terminal state.
func (c *Coordinator) renderFormat(ctx context.Context, desc providers.RenderDescription) types.RenderJob {
	job := types.RenderJob{Format: desc.Format, State: types.RenderSubmitted}

	var jobID string
	err := c.retry.Do(ctx, c.log, "render-submit-"+strings.ToLower(string(desc.Format)), func(ctx context.Context) error {
		id, err := c.svc.Submit(ctx, desc)
		if err != nil {
			return err
		}
		jobID = id
		return nil
	})
	if err != nil {
		c.log.Warn("render submission failed", "format", desc.Format, "error", err)
		job.State = types.RenderFailed
		job.Error = fmt.Sprintf("submit: %v", err)
		return job
	}
	job.RemoteJobID = jobID
	c.log.Info("render job submitted", "format", desc.Format, "job", jobID)

	return c.pollUntilTerminal(ctx, job)
}

// pollUntilTerminal checks the job on every tick until the service
// reports a terminal state, the per-job deadline passes, or the run is
// aborted. Transient poll failures wait for the next tick.
func (c *Coordinator) pollUntilTerminal(ctx context.Context, job types.RenderJob) types.RenderJob {
	deadline := time.Now().Add(c.cfg.JobTimeout())
	ticker := time.NewTicker(c.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			job.State = types.RenderFailed
			job.Error = fmt.Sprintf("render aborted: %v", ctx.Err())
			return job
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			c.log.Warn("render job timed out", "format", job.Format, "job", job.RemoteJobID)
			job.State = types.RenderFailed
			job.Error = fmt.Sprintf("render timed out after %s", c.cfg.JobTimeout())
			return job
		}

		res, err := c.pollOnce(ctx, job.RemoteJobID)
		if err != nil {
			var ve *providers.ValidationError
			if errors.As(err, &ve) {
				job.State = types.RenderFailed
				job.Error = err.Error()
				return job
			}
			c.log.Warn("render poll failed", "format", job.Format, "job", job.RemoteJobID, "error", err)
			continue
		}

		job = c.applyPoll(job, res)
		if job.State.IsTerminal() {
			return job
		}
	}
}

func (c *Coordinator) pollOnce(ctx context.Context, jobID string) (providers.PollResult, error) {
	pctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout())
	defer cancel()
	return c.svc.Poll(pctx, jobID)
}

// applyPoll folds one status report into the job, dropping transitions
// the state machine does not allow.
func (c *Coordinator) applyPoll(job types.RenderJob, res providers.PollResult) types.RenderJob {
	if res.State == job.State {
		return job
	}
	if !types.CanTransition(job.State, res.State) {
		c.log.Warn("ignoring render state report",
			"job", job.RemoteJobID, "from", job.State, "to", res.State)
		return job
	}
	job.State = res.State
	switch res.State {
	case types.RenderDone:
		job.OutputRef = res.OutputRef
		c.log.Info("render job done", "format", job.Format, "job", job.RemoteJobID, "output", res.OutputRef)
	case types.RenderFailed:
		job.Error = res.Error
		if job.Error == "" {
			job.Error = "render failed"
		}
		c.log.Warn("render job failed", "format", job.Format, "job", job.RemoteJobID, "error", job.Error)
	}
	return job
}

func buildDescription(format types.RenderFormat, audio *types.AudioTrack, clips []string, captions []providers.Caption) providers.RenderDescription {
	w, h := format.Resolution()
	return providers.RenderDescription{
		ID:           uuid.NewString(),
		Format:       format,
		Width:        w,
		Height:       h,
		AudioRef:     audio.FileRef,
		AudioSeconds: audio.DurationSeconds,
		Clips:        clips,
		Captions:     captions,
	}
}

func clipRefs(visuals []types.VisualAsset) []string {
	var refs []string
	for _, v := range visuals {
		if v.HasClip() {
			refs = append(refs, v.ClipRef)
		}
	}
	return refs
}

// buildCaptions times one caption per narration sentence, each lasting
// its share of the audio by word count.
func buildCaptions(narration string, totalSeconds float64) []providers.Caption {
	sentences := splitSentences(narration)
	if len(sentences) == 0 || totalSeconds <= 0 {
		return nil
	}
	totalWords := 0
	for _, s := range sentences {
		totalWords += len(strings.Fields(s))
	}
	if totalWords == 0 {
		return nil
	}

	captions := make([]providers.Caption, 0, len(sentences))
	elapsed := 0.0
	for _, s := range sentences {
		dur := float64(len(strings.Fields(s))) / float64(totalWords) * totalSeconds
		captions = append(captions, providers.Caption{
			Text:         s,
			StartSeconds: elapsed,
			EndSeconds:   elapsed + dur,
		})
		elapsed += dur
	}
	// absorb float drift so the last caption ends with the audio
	captions[len(captions)-1].EndSeconds = totalSeconds
	return captions
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
