package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/providers"
	"shortform-pipeline/retry"
	"shortform-pipeline/types"
)

// fakeRender reports RUNNING until a per-format duration has passed,
// then DONE, or FAILED when a failure message is configured.
type fakeRender struct {
	mu          sync.Mutex
	submits     int
	polls       int
	started     map[string]time.Time
	byJob       map[string]types.RenderFormat
	duration    map[types.RenderFormat]time.Duration
	failWith    map[types.RenderFormat]string
	failSubmits map[types.RenderFormat]int
	submitErr   map[types.RenderFormat]error
}

func newFakeRender() *fakeRender {
	return &fakeRender{
		started:     map[string]time.Time{},
		byJob:       map[string]types.RenderFormat{},
		duration:    map[types.RenderFormat]time.Duration{},
		failWith:    map[types.RenderFormat]string{},
		failSubmits: map[types.RenderFormat]int{},
		submitErr:   map[types.RenderFormat]error{},
	}
}

func (f *fakeRender) Submit(ctx context.Context, desc providers.RenderDescription) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if err := f.submitErr[desc.Format]; err != nil {
		return "", err
	}
	if n := f.failSubmits[desc.Format]; n > 0 {
		f.failSubmits[desc.Format] = n - 1
		return "", &providers.TransientError{Op: "submit", Err: errors.New("http 503")}
	}
	id := fmt.Sprintf("job-%d", f.submits)
	f.started[id] = time.Now()
	f.byJob[id] = desc.Format
	return id, nil
}

func (f *fakeRender) Poll(ctx context.Context, jobID string) (providers.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	format, ok := f.byJob[jobID]
	if !ok {
		return providers.PollResult{}, &providers.ValidationError{Op: "poll", Reason: "unknown job " + jobID}
	}
	if time.Since(f.started[jobID]) < f.duration[format] {
		return providers.PollResult{State: types.RenderRunning}, nil
	}
	if msg := f.failWith[format]; msg != "" {
		return providers.PollResult{State: types.RenderFailed, Error: msg}, nil
	}
	out := "out-" + strings.ToLower(string(format)) + ".mp4"
	return providers.PollResult{State: types.RenderDone, OutputRef: out}, nil
}

func testCoordinator(svc providers.RenderService) *Coordinator {
	cfg := config.Default()
	cfg.Render.PollIntervalSec = 0.005
	cfg.Render.PollTimeoutSec = 0.5
	cfg.Render.JobTimeoutSec = 5
	policy := retry.Policy{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Retryable:  providers.IsRetryable,
	}
	return New(cfg, svc, policy, logger.Nop())
}

func testScript() *types.Script {
	return &types.Script{
		Hook:      "Your phone already talks back.",
		Narration: "Your phone already talks back. Most people never noticed. That changes everything.",
	}
}

func testAudio() *types.AudioTrack {
	return &types.AudioTrack{FileRef: "narration.mp3", DurationSeconds: 48}
}

func TestRenderBothFormatsConcurrently(t *testing.T) {
	f := newFakeRender()
	f.duration[types.FormatVertical] = 150 * time.Millisecond
	f.duration[types.FormatWide] = 200 * time.Millisecond
	c := testCoordinator(f)

	start := time.Now()
	jobs, err := c.Render(context.Background(), testScript(), testAudio(), nil)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	for i, job := range jobs {
		if job.State != types.RenderDone {
			t.Errorf("job %d state = %s, want %s (%s)", i, job.State, types.RenderDone, job.Error)
		}
		if job.OutputRef == "" {
			t.Errorf("job %d has no output", i)
		}
	}
	if jobs[0].Format != types.FormatVertical || jobs[1].Format != types.FormatWide {
		t.Errorf("formats = %s,%s, want config order", jobs[0].Format, jobs[1].Format)
	}
	if serial := 350 * time.Millisecond; elapsed >= serial {
		t.Errorf("elapsed = %s, want < %s (jobs should overlap)", elapsed, serial)
	}
}

func TestRenderPartialFailureIsDataNotError(t *testing.T) {
	f := newFakeRender()
	f.duration[types.FormatVertical] = 20 * time.Millisecond
	f.duration[types.FormatWide] = 20 * time.Millisecond
	f.failWith[types.FormatWide] = "gpu pool exhausted"
	c := testCoordinator(f)

	jobs, err := c.Render(context.Background(), testScript(), testAudio(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	if jobs[0].State != types.RenderDone {
		t.Errorf("vertical state = %s, want %s", jobs[0].State, types.RenderDone)
	}
	if jobs[1].State != types.RenderFailed {
		t.Errorf("wide state = %s, want %s", jobs[1].State, types.RenderFailed)
	}
	if !strings.Contains(jobs[1].Error, "gpu pool exhausted") {
		t.Errorf("wide error = %q, want service failure message", jobs[1].Error)
	}
}

func TestRenderSubmitFailureMarksJobFailed(t *testing.T) {
	f := newFakeRender()
	f.duration[types.FormatVertical] = 10 * time.Millisecond
	f.submitErr[types.FormatWide] = &providers.ValidationError{Op: "submit", Reason: "bad description"}
	c := testCoordinator(f)

	jobs, err := c.Render(context.Background(), testScript(), testAudio(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if jobs[0].State != types.RenderDone {
		t.Errorf("vertical state = %s, want %s", jobs[0].State, types.RenderDone)
	}
	if jobs[1].State != types.RenderFailed {
		t.Errorf("wide state = %s, want %s", jobs[1].State, types.RenderFailed)
	}
	if !strings.HasPrefix(jobs[1].Error, "submit:") {
		t.Errorf("wide error = %q, want submit failure", jobs[1].Error)
	}
	if f.submits != 2 {
		t.Errorf("submits = %d, want 2 (validation errors are not retried)", f.submits)
	}
}

func TestRenderSubmitRetriesTransientFailures(t *testing.T) {
	f := newFakeRender()
	f.duration[types.FormatVertical] = 10 * time.Millisecond
	f.duration[types.FormatWide] = 10 * time.Millisecond
	f.failSubmits[types.FormatVertical] = 1
	c := testCoordinator(f)

	jobs, err := c.Render(context.Background(), testScript(), testAudio(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if jobs[0].State != types.RenderDone {
		t.Errorf("vertical state = %s, want %s (%s)", jobs[0].State, types.RenderDone, jobs[0].Error)
	}
	if f.submits != 3 {
		t.Errorf("submits = %d, want 3 (one transient retry plus wide)", f.submits)
	}
}

func TestRenderJobTimeout(t *testing.T) {
	f := newFakeRender()
	f.duration[types.FormatVertical] = time.Hour
	c := testCoordinator(f)
	c.cfg.Render.AspectRatios = []string{string(types.FormatVertical)}
	c.cfg.Render.JobTimeoutSec = 0.05

	jobs, err := c.Render(context.Background(), testScript(), testAudio(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if jobs[0].State != types.RenderFailed {
		t.Fatalf("state = %s, want %s", jobs[0].State, types.RenderFailed)
	}
	if !strings.Contains(jobs[0].Error, "timed out") {
		t.Errorf("error = %q, want timeout message", jobs[0].Error)
	}
}

func TestRenderHonorsConfiguredFormats(t *testing.T) {
	f := newFakeRender()
	f.duration[types.FormatWide] = 10 * time.Millisecond
	c := testCoordinator(f)
	c.cfg.Render.AspectRatios = []string{string(types.FormatWide)}

	jobs, err := c.Render(context.Background(), testScript(), testAudio(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Format != types.FormatWide {
		t.Errorf("format = %s, want %s", jobs[0].Format, types.FormatWide)
	}
}

func TestRenderRejectsEmptyFormatList(t *testing.T) {
	c := testCoordinator(newFakeRender())
	c.cfg.Render.AspectRatios = nil

	_, err := c.Render(context.Background(), testScript(), testAudio(), nil)
	var ve *providers.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestRenderRejectsMissingAudio(t *testing.T) {
	c := testCoordinator(newFakeRender())

	_, err := c.Render(context.Background(), testScript(), &types.AudioTrack{}, nil)
	var ve *providers.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestBuildCaptionsProportional(t *testing.T) {
	captions := buildCaptions("One two three. Four five six seven eight nine.", 30)
	if len(captions) != 2 {
		t.Fatalf("captions = %d, want 2", len(captions))
	}
	if captions[0].StartSeconds != 0 {
		t.Errorf("first start = %f, want 0", captions[0].StartSeconds)
	}
	if math.Abs(captions[0].EndSeconds-10) > 0.001 {
		t.Errorf("first end = %f, want 10 (3 of 9 words)", captions[0].EndSeconds)
	}
	if math.Abs(captions[1].StartSeconds-10) > 0.001 {
		t.Errorf("second start = %f, want 10", captions[1].StartSeconds)
	}
	if captions[1].EndSeconds != 30 {
		t.Errorf("second end = %f, want full audio length", captions[1].EndSeconds)
	}
}

func TestBuildCaptionsEmptyInputs(t *testing.T) {
	if got := buildCaptions("", 30); got != nil {
		t.Errorf("empty narration: captions = %v, want nil", got)
	}
	if got := buildCaptions("Hello there.", 0); got != nil {
		t.Errorf("zero duration: captions = %v, want nil", got)
	}
}

func TestApplyPollIgnoresBackwardTransition(t *testing.T) {
	c := testCoordinator(newFakeRender())
	job := types.RenderJob{Format: types.FormatVertical, RemoteJobID: "job-1", State: types.RenderRunning}

	job = c.applyPoll(job, providers.PollResult{State: types.RenderSubmitted})
	if job.State != types.RenderRunning {
		t.Errorf("state = %s, want %s", job.State, types.RenderRunning)
	}
}

func TestClipRefsKeepsOrderAndSkipsEmpty(t *testing.T) {
	visuals := []types.VisualAsset{
		{Keyword: "a", ClipRef: "clip-a"},
		{Keyword: "b"},
		{Keyword: "c", ClipRef: "clip-c"},
	}
	refs := clipRefs(visuals)
	if len(refs) != 2 || refs[0] != "clip-a" || refs[1] != "clip-c" {
		t.Errorf("refs = %v, want [clip-a clip-c]", refs)
	}
}
