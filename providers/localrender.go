package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"shortform-pipeline/logger"
	"shortform-pipeline/types"
)

// LocalRenderService renders on the host with ffmpeg while keeping the
// async Submit/Poll surface of the remote API. Used when no render API
// is configured. The local backend layers only the first clip; full
// per-cue sequencing is the remote renderer's job.
type LocalRenderService struct {
	log    *logger.Logger
	outDir string
	fps    int

	mu   sync.Mutex
	jobs map[string]*localJob
}

type localJob struct {
	state     types.RenderState
	outputRef string
	errMsg    string
}

func NewLocalRenderService(log *logger.Logger, outDir string) *LocalRenderService {
	return &LocalRenderService{
		log:    log.With("provider", "local-render"),
		outDir: outDir,
		fps:    30,
		jobs:   make(map[string]*localJob),
	}
}

func (s *LocalRenderService) Submit(_ context.Context, desc RenderDescription) (string, error) {
	if desc.AudioRef == "" {
		return "", &ValidationError{Op: "render-submit", Reason: "description has no audio track"}
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return "", &ValidationError{Op: "render-submit", Reason: "description has no target size"}
	}
	jobID := "local-" + uuid.NewString()[:8]
	s.mu.Lock()
	s.jobs[jobID] = &localJob{state: types.RenderSubmitted}
	s.mu.Unlock()

	go s.renderJob(jobID, desc)
	return jobID, nil
}

func (s *LocalRenderService) Poll(_ context.Context, jobID string) (PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return PollResult{}, &ValidationError{Op: "render-poll", Reason: fmt.Sprintf("unknown job %q", jobID)}
	}
	return PollResult{State: job.state, OutputRef: job.outputRef, Error: job.errMsg}, nil
}

func (s *LocalRenderService) setState(jobID string, state types.RenderState, outputRef, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || !types.CanTransition(job.state, state) {
		return
	}
	job.state = state
	job.outputRef = outputRef
	job.errMsg = errMsg
}

func (s *LocalRenderService) renderJob(jobID string, desc RenderDescription) {
	s.setState(jobID, types.RenderRunning, "", "")

	outFile := filepath.Join(s.outDir, fmt.Sprintf("video_%s_%s.mp4", strings.ToLower(string(desc.Format)), jobID))
	if err := s.renderOnce(desc, outFile); err != nil {
		s.log.Error("local render failed", "job", jobID, "error", err)
		s.setState(jobID, types.RenderFailed, "", err.Error())
		return
	}
	s.log.Info("local render finished", "job", jobID, "output", outFile)
	s.setState(jobID, types.RenderDone, outFile, "")
}

func (s *LocalRenderService) renderOnce(desc RenderDescription, outFile string) error {
	if err := os.MkdirAll(s.outDir, 0755); err != nil {
		return fmt.Errorf("render output dir: %w", err)
	}
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1",
		desc.Width, desc.Height, desc.Width, desc.Height)

	if len(desc.Captions) > 0 {
		srtPath := strings.TrimSuffix(outFile, ".mp4") + ".srt"
		if err := writeSRT(desc.Captions, srtPath); err != nil {
			s.log.Warn("caption track failed, rendering without captions", "error", err)
		} else {
			vf += "," + subtitleFilter(srtPath)
		}
	}

	bg := s.backgroundInput(desc)
	audio := ffmpeg.Input(desc.AudioRef).Audio()

	err := ffmpeg.Output([]*ffmpeg.Stream{bg, audio}, outFile, ffmpeg.KwArgs{
		"t":        fmt.Sprintf("%.2f", desc.AudioSeconds),
		"vf":       vf,
		"r":        fmt.Sprintf("%d", s.fps),
		"c:v":      "libx264",
		"preset":   "fast",
		"crf":      "22",
		"c:a":      "aac",
		"b:a":      "192k",
		"pix_fmt":  "yuv420p",
		"movflags": "+faststart",
	}).OverWriteOutput().Run()
	if err != nil {
		return fmt.Errorf("ffmpeg render: %w", err)
	}
	return nil
}

func (s *LocalRenderService) backgroundInput(desc RenderDescription) *ffmpeg.Stream {
	if len(desc.Clips) > 0 {
		return ffmpeg.Input(desc.Clips[0], ffmpeg.KwArgs{"stream_loop": "-1"}).Video()
	}
	src := fmt.Sprintf("color=c=0x10131a:size=%dx%d:rate=%d", desc.Width, desc.Height, s.fps)
	return ffmpeg.Input(src, ffmpeg.KwArgs{"f": "lavfi"}).Video()
}

func writeSRT(captions []Caption, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i, c := range captions {
		fmt.Fprintf(f, "%d\n", i+1)
		fmt.Fprintf(f, "%s --> %s\n", srtTimestamp(c.StartSeconds), srtTimestamp(c.EndSeconds))
		fmt.Fprintf(f, "%s\n\n", c.Text)
	}
	return nil
}

func srtTimestamp(seconds float64) string {
	hours := int(seconds / 3600)
	minutes := int(seconds/60) % 60
	secs := int(seconds) % 60
	millis := int((seconds - float64(int(seconds))) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

func subtitleFilter(srtPath string) string {
	// the subtitles filter treats bare colons as option separators
	path := strings.ReplaceAll(filepath.ToSlash(srtPath), ":", "\\:")
	style := "FontName=Arial," +
		"FontSize=18," +
		"PrimaryColour=&HFFFFFF," +
		"OutlineColour=&H000000," +
		"BorderStyle=3," +
		"Outline=2," +
		"Alignment=2"
	return fmt.Sprintf("subtitles='%s':force_style='%s'", path, style)
}
