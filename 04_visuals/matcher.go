package visuals

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/providers"
	"shortform-pipeline/retry"
	"shortform-pipeline/types"
)

// Matcher resolves each visual cue to one stock clip. A cue that finds
// nothing keeps an empty clip ref; the whole match never fails.
type Matcher struct {
	cfg     *config.Config
	footage providers.StockFootageProvider
	retry   retry.Policy
	log     *logger.Logger
}

func New(cfg *config.Config, footage providers.StockFootageProvider, policy retry.Policy, log *logger.Logger) *Matcher {
	return &Matcher{
		cfg:     cfg,
		footage: footage,
		retry:   policy,
		log:     log.With("stage", "visuals"),
	}
}

// Match queries the provider for every cue concurrently. Output order
// always equals cue order regardless of which query finishes first.
// With footage disabled or unconfigured it returns immediately without
// any network calls.
func (m *Matcher) Match(ctx context.Context, cues []string) []types.VisualAsset {
	assets := make([]types.VisualAsset, len(cues))
	for i, cue := range cues {
		assets[i] = types.VisualAsset{Keyword: cue}
	}
	if len(cues) == 0 {
		return assets
	}
	if m.cfg.Visuals.DisableStockFootage || m.footage == nil {
		m.log.Info("stock footage disabled, using fallback backgrounds", "cues", len(cues))
		return assets
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Visuals.MaxConcurrent)
	for i, cue := range cues {
		i, cue := i, cue
		g.Go(func() error {
			clipRef, err := m.matchOne(gctx, cue)
			if err != nil {
				m.log.Warn("no clip for cue, using fallback background", "cue", cue, "error", err)
				return nil
			}
			assets[i].ClipRef = clipRef
			return nil
		})
	}
	_ = g.Wait()

	matched := 0
	for _, a := range assets {
		if a.HasClip() {
			matched++
		}
	}
	m.log.Info("visual matching done", "cues", len(cues), "matched", matched)
	return assets
}

func (m *Matcher) matchOne(ctx context.Context, cue string) (string, error) {
	var clips []providers.Clip
	err := m.retry.Do(ctx, m.log, "footage-search", func(ctx context.Context) error {
		qctx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout())
		defer cancel()
		found, err := m.footage.SearchClips(qctx, cue)
		if err != nil {
			return err
		}
		clips = found
		return nil
	})
	if err != nil {
		return "", err
	}
	clipRef := pickClip(clips, m.cfg.Visuals)
	if clipRef == "" {
		return "", errors.New("no usable clip in results")
	}
	return clipRef, nil
}

// pickClip takes the first candidate meeting the size and length
// thresholds, or the first candidate at all when none qualifies.
func pickClip(clips []providers.Clip, v config.VisualsConfig) string {
	for _, c := range clips {
		if c.Width >= v.MinClipWidth && c.Height >= v.MinClipHeight && c.DurationSec >= v.MinClipSeconds {
			return c.URL
		}
	}
	if len(clips) > 0 {
		return clips[0].URL
	}
	return ""
}
