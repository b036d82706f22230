package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"shortform-pipeline/logger"
	"shortform-pipeline/types"
)

// Stage names the pipeline step a fatal error came from.
type Stage string

const (
	StageScripting Stage = "SCRIPTING"
	StageVoice     Stage = "VOICE"
)

// Error is the only error a run returns: scripting and voice are the
// two stages a run cannot continue without. Everything downstream
// degrades into manifest data instead.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type ScriptComposer interface {
	Compose(ctx context.Context, topic types.Topic) (*types.Script, error)
}

type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, narration string) (*types.AudioTrack, error)
}

type VisualMatcher interface {
	Match(ctx context.Context, cues []string) []types.VisualAsset
}

type ThumbnailGenerator interface {
	Generate(ctx context.Context, script *types.Script) ([]types.ThumbnailVariant, error)
}

type RenderCoordinator interface {
	Render(ctx context.Context, script *types.Script, audio *types.AudioTrack, visuals []types.VisualAsset) ([]types.RenderJob, error)
}

// Orchestrator runs one topic through scripting, enrichment, and
// rendering, and assembles the manifest. OnState, when set, observes
// every run state transition.
type Orchestrator struct {
	composer ScriptComposer
	voice    VoiceSynthesizer
	visuals  VisualMatcher
	thumbs   ThumbnailGenerator
	render   RenderCoordinator
	log      *logger.Logger

	OnState func(types.RunState)
}

func New(composer ScriptComposer, voice VoiceSynthesizer, visuals VisualMatcher, thumbs ThumbnailGenerator, render RenderCoordinator, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		composer: composer,
		voice:    voice,
		visuals:  visuals,
		thumbs:   thumbs,
		render:   render,
		log:      log,
	}
}

// Run produces the manifest for one topic. Voice, visuals, and
// thumbnails run concurrently once the script exists; only a scripting
// or voice failure ends the run.
func (o *Orchestrator) Run(ctx context.Context, runID string, topic types.Topic) (*types.PipelineManifest, error) {
	manifest := &types.PipelineManifest{
		RunID:     runID,
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
	}
	o.setState(types.RunStarted)
	o.log.Info("run started", "run", runID, "topic", topic.Title)

	o.setState(types.RunScripting)
	script, err := o.composer.Compose(ctx, topic)
	if err != nil {
		o.log.Error("scripting failed", "run", runID, "error", err)
		o.setState(types.RunFailed)
		return nil, &Error{Stage: StageScripting, Err: err}
	}
	manifest.Script = *script

	o.setState(types.RunEnriching)
	var (
		audio    *types.AudioTrack
		assets   []types.VisualAsset
		variants []types.ThumbnailVariant
		thumbErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := o.voice.Synthesize(gctx, script.Narration)
		if err != nil {
			return err
		}
		audio = a
		return nil
	})
	g.Go(func() error {
		assets = o.visuals.Match(gctx, script.VisualCues)
		return nil
	})
	g.Go(func() error {
		v, err := o.thumbs.Generate(gctx, script)
		if err != nil {
			thumbErr = err
			return nil
		}
		variants = v
		return nil
	})
	if err := g.Wait(); err != nil {
		o.log.Error("voice synthesis failed", "run", runID, "error", err)
		o.setState(types.RunFailed)
		return nil, &Error{Stage: StageVoice, Err: err}
	}
	manifest.Audio = *audio
	manifest.Visuals = assets
	manifest.Thumbnails = variants
	if thumbErr != nil {
		o.log.Warn("thumbnails failed, continuing without them", "error", thumbErr)
		manifest.Notes = append(manifest.Notes, fmt.Sprintf("thumbnails skipped: %v", thumbErr))
	}

	o.setState(types.RunRendering)
	jobs, err := o.render.Render(ctx, script, audio, assets)
	if err != nil {
		o.log.Warn("rendering aborted", "error", err)
		manifest.Notes = append(manifest.Notes, fmt.Sprintf("rendering aborted: %v", err))
	}
	manifest.Renders = jobs

	done, failed := 0, 0
	for _, job := range jobs {
		switch job.State {
		case types.RenderDone:
			done++
		case types.RenderFailed:
			failed++
			manifest.Notes = append(manifest.Notes, fmt.Sprintf("%s render failed: %s", job.Format, job.Error))
		}
	}
	manifest.PartialRenderFailure = done > 0 && failed > 0
	if len(jobs) > 0 && done == 0 {
		o.log.Warn("no render format finished", "run", runID)
	}

	o.setState(types.RunDone)
	o.log.Info("run finished", "run", runID,
		"renders_done", done, "renders_failed", failed, "thumbnails", len(variants))
	return manifest, nil
}

func (o *Orchestrator) setState(state types.RunState) {
	if o.OnState != nil {
		o.OnState(state)
	}
}
