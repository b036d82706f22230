package providers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shortform-pipeline/logger"
	"shortform-pipeline/types"
)

func testDescription() RenderDescription {
	return RenderDescription{
		ID:           "desc-1",
		Format:       types.FormatVertical,
		Width:        1080,
		Height:       1920,
		AudioRef:     "narration.mp3",
		AudioSeconds: 48,
	}
}

func TestLocalSubmitRejectsMissingAudio(t *testing.T) {
	s := NewLocalRenderService(logger.Nop(), t.TempDir())
	desc := testDescription()
	desc.AudioRef = ""

	_, err := s.Submit(context.Background(), desc)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestLocalSubmitRejectsMissingSize(t *testing.T) {
	s := NewLocalRenderService(logger.Nop(), t.TempDir())
	desc := testDescription()
	desc.Width = 0

	_, err := s.Submit(context.Background(), desc)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestLocalPollUnknownJob(t *testing.T) {
	s := NewLocalRenderService(logger.Nop(), t.TempDir())

	_, err := s.Poll(context.Background(), "no-such-job")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestLocalJobTableGuardsTransitions(t *testing.T) {
	s := NewLocalRenderService(logger.Nop(), t.TempDir())
	s.jobs["job-1"] = &localJob{state: types.RenderSubmitted}

	s.setState("job-1", types.RenderRunning, "", "")
	res, err := s.Poll(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.State != types.RenderRunning {
		t.Fatalf("state = %s, want %s", res.State, types.RenderRunning)
	}

	s.setState("job-1", types.RenderFailed, "", "ffmpeg exited 1")
	s.setState("job-1", types.RenderDone, "out.mp4", "")

	res, err = s.Poll(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.State != types.RenderFailed {
		t.Errorf("state = %s, want terminal %s kept", res.State, types.RenderFailed)
	}
	if res.OutputRef != "" {
		t.Errorf("output = %q, want none after failure", res.OutputRef)
	}
	if res.Error != "ffmpeg exited 1" {
		t.Errorf("error = %q, want original failure kept", res.Error)
	}
}

func TestSRTTimestamp(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{75.5, "00:01:15,500"},
		{3661.25, "01:01:01,250"},
	}
	for _, tc := range cases {
		if got := srtTimestamp(tc.in); got != tc.want {
			t.Errorf("srtTimestamp(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captions.srt")
	captions := []Caption{
		{Text: "Your phone already talks back.", StartSeconds: 0, EndSeconds: 10},
		{Text: "Nobody noticed when it started.", StartSeconds: 10, EndSeconds: 25.5},
	}
	if err := writeSRT(captions, path); err != nil {
		t.Fatalf("write srt: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	got := string(raw)
	if !strings.Contains(got, "1\n00:00:00,000 --> 00:00:10,000\nYour phone already talks back.") {
		t.Errorf("first cue malformed:\n%s", got)
	}
	if !strings.Contains(got, "2\n00:00:10,000 --> 00:00:25,500\nNobody noticed when it started.") {
		t.Errorf("second cue malformed:\n%s", got)
	}
}

func TestSubtitleFilterEscapesColons(t *testing.T) {
	got := subtitleFilter("C:/videos/captions.srt")
	if !strings.Contains(got, `subtitles='C\:/videos/captions.srt'`) {
		t.Errorf("colon not escaped: %q", got)
	}
	if !strings.Contains(got, "force_style='") {
		t.Errorf("style block missing: %q", got)
	}
}
