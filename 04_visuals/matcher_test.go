package visuals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/providers"
	"shortform-pipeline/retry"
)

type fakeFootage struct {
	mu    sync.Mutex
	calls int
	fn    func(keyword string) ([]providers.Clip, error)
	delay func(keyword string) time.Duration
}

func (f *fakeFootage) SearchClips(ctx context.Context, keyword string) ([]providers.Clip, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay != nil {
		select {
		case <-time.After(f.delay(keyword)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.fn(keyword)
}

func (f *fakeFootage) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func goodClip(keyword string) providers.Clip {
	return providers.Clip{ID: keyword, URL: "clip-" + keyword, Width: 1920, Height: 1080, DurationSec: 12}
}

func testMatcher(footage providers.StockFootageProvider, enabled bool) *Matcher {
	cfg := config.Default()
	cfg.Visuals.DisableStockFootage = !enabled
	policy := retry.Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Retryable:  providers.IsRetryable,
	}
	return New(cfg, footage, policy, logger.Nop())
}

func TestMatchAllTransientDegradesToAllEmpty(t *testing.T) {
	footage := &fakeFootage{fn: func(string) ([]providers.Clip, error) {
		return nil, &providers.TransientError{Op: "footage", Err: errors.New("503")}
	}}
	m := testMatcher(footage, true)

	cues := []string{"city", "ocean", "forest"}
	assets := m.Match(context.Background(), cues)

	if len(assets) != len(cues) {
		t.Fatalf("assets = %d, want %d", len(assets), len(cues))
	}
	for i, a := range assets {
		if a.Keyword != cues[i] {
			t.Errorf("asset %d keyword = %q, want %q", i, a.Keyword, cues[i])
		}
		if a.HasClip() {
			t.Errorf("asset %d has clip %q, want empty", i, a.ClipRef)
		}
	}
	if want := len(cues) * m.retry.Attempts(); footage.callCount() != want {
		t.Errorf("calls = %d, want %d", footage.callCount(), want)
	}
}

func TestMatchPreservesOrderUnderShuffledLatency(t *testing.T) {
	cues := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	latency := map[string]time.Duration{
		"alpha":   50 * time.Millisecond,
		"bravo":   5 * time.Millisecond,
		"charlie": 30 * time.Millisecond,
		"delta":   time.Millisecond,
		"echo":    20 * time.Millisecond,
	}
	footage := &fakeFootage{
		fn:    func(kw string) ([]providers.Clip, error) { return []providers.Clip{goodClip(kw)}, nil },
		delay: func(kw string) time.Duration { return latency[kw] },
	}
	m := testMatcher(footage, true)

	assets := m.Match(context.Background(), cues)
	for i, a := range assets {
		if a.Keyword != cues[i] {
			t.Fatalf("asset %d keyword = %q, want %q", i, a.Keyword, cues[i])
		}
		if a.ClipRef != "clip-"+cues[i] {
			t.Fatalf("asset %d clip = %q, want %q", i, a.ClipRef, "clip-"+cues[i])
		}
	}
}

func TestMatchDisabledMakesNoCalls(t *testing.T) {
	footage := &fakeFootage{fn: func(kw string) ([]providers.Clip, error) {
		return []providers.Clip{goodClip(kw)}, nil
	}}
	m := testMatcher(footage, false)

	assets := m.Match(context.Background(), []string{"city", "ocean"})
	if footage.callCount() != 0 {
		t.Fatalf("calls = %d, want 0", footage.callCount())
	}
	for _, a := range assets {
		if a.HasClip() {
			t.Errorf("asset %q has clip with footage disabled", a.Keyword)
		}
	}
}

func TestMatchNoFootageNotRetried(t *testing.T) {
	footage := &fakeFootage{fn: func(kw string) ([]providers.Clip, error) {
		if kw == "obscure" {
			return nil, providers.ErrNoFootage
		}
		return []providers.Clip{goodClip(kw)}, nil
	}}
	m := testMatcher(footage, true)

	assets := m.Match(context.Background(), []string{"city", "obscure"})
	if !assets[0].HasClip() {
		t.Error("city cue lost its clip")
	}
	if assets[1].HasClip() {
		t.Error("obscure cue unexpectedly matched")
	}
	if footage.callCount() != 2 {
		t.Fatalf("calls = %d, want 2 (empty result must not retry)", footage.callCount())
	}
}

func TestMatchEmptyCues(t *testing.T) {
	footage := &fakeFootage{fn: func(string) ([]providers.Clip, error) { return nil, nil }}
	m := testMatcher(footage, true)

	assets := m.Match(context.Background(), nil)
	if len(assets) != 0 {
		t.Fatalf("assets = %d, want 0", len(assets))
	}
	if footage.callCount() != 0 {
		t.Fatalf("calls = %d, want 0", footage.callCount())
	}
}

func TestPickClipPrefersThresholdMatch(t *testing.T) {
	v := config.Default().Visuals
	clips := []providers.Clip{
		{URL: "tiny", Width: 320, Height: 240, DurationSec: 3},
		{URL: "good", Width: 1920, Height: 1080, DurationSec: 10},
	}
	if got := pickClip(clips, v); got != "good" {
		t.Errorf("pickClip = %q, want %q", got, "good")
	}

	onlySmall := []providers.Clip{{URL: "small", Width: 320, Height: 240, DurationSec: 3}}
	if got := pickClip(onlySmall, v); got != "small" {
		t.Errorf("pickClip = %q, want fallback to first", got)
	}

	if got := pickClip(nil, v); got != "" {
		t.Errorf("pickClip(nil) = %q, want empty", got)
	}
}
