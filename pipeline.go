package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"shortform-pipeline/01_topics"
	"shortform-pipeline/02_script"
	"shortform-pipeline/03_voice"
	"shortform-pipeline/04_visuals"
	"shortform-pipeline/05_render"
	"shortform-pipeline/06_thumbs"
	"shortform-pipeline/07_publish"
	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/pipeline"
	"shortform-pipeline/providers"
	"shortform-pipeline/retry"
	"shortform-pipeline/types"
)

// runState is the small progress file written on every transition so a
// crashed or aborted run still leaves a record behind.
type runState struct {
	RunID       string         `json:"run_id"`
	State       types.RunState `json:"state"`
	StartedAt   string         `json:"started_at"`
	CompletedAt string         `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	VideoID     string         `json:"video_id,omitempty"`
	VideoURL    string         `json:"video_url,omitempty"`
}

func main() {
	// .env is local dev convenience; CI injects real env vars
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	runID := uuid.NewString()[:8]
	runDir := filepath.Join(cfg.Paths.Output, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		log.Fatal("create run dir", "dir", runDir, "error", err)
	}
	log.Info("pipeline starting", "run", runID, "dir", runDir)

	state := &runState{
		RunID:     runID,
		State:     types.RunStarted,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	statePath := filepath.Join(runDir, "state.json")
	saveJSON(log, statePath, state)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	topic := pickTopic(ctx, cfg, log)
	log.Info("topic selected", "title", topic.Title)

	orch, err := buildOrchestrator(cfg, log, runDir)
	if err != nil {
		state.Error = err.Error()
		state.State = types.RunFailed
		state.CompletedAt = time.Now().UTC().Format(time.RFC3339)
		saveJSON(log, statePath, state)
		log.Fatal("pipeline setup failed", "error", err)
	}
	orch.OnState = func(s types.RunState) {
		state.State = s
		saveJSON(log, statePath, state)
	}

	manifest, err := orch.Run(ctx, runID, topic)
	state.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		state.Error = err.Error()
		saveJSON(log, statePath, state)
		log.Fatal("pipeline failed", "error", err)
	}
	saveJSON(log, filepath.Join(runDir, "manifest.json"), manifest)

	if cfg.Publish.Enabled {
		publishBest(ctx, cfg, log, manifest, state)
	}
	saveJSON(log, statePath, state)

	done := 0
	for _, r := range manifest.Renders {
		if r.State == types.RenderDone {
			done++
		}
	}
	log.Info("pipeline complete", "run", runID, "renders_done", done,
		"partial_failure", manifest.PartialRenderFailure)
}

// pickTopic uses the CLI argument when given, otherwise asks Reddit for
// trending material and falls back to the built-in default topic.
func pickTopic(ctx context.Context, cfg *config.Config, log *logger.Logger) types.Topic {
	if args := os.Args[1:]; len(args) > 0 {
		return types.Topic{Title: strings.Join(args, " ")}
	}

	source, err := topics.NewRedditSource(cfg, log)
	if err != nil {
		log.Warn("topic source unavailable, using default topic", "error", err)
		return topics.DefaultTopic()
	}
	found, err := source.Trending(ctx, cfg.Topics.MaxTopics)
	if err != nil {
		log.Warn("trending lookup failed, using default topic", "error", err)
		return topics.DefaultTopic()
	}
	if len(found) == 0 {
		log.Warn("no trending topics, using default topic")
		return topics.DefaultTopic()
	}
	return found[0]
}

// buildOrchestrator wires providers into stages. Text and speech
// backends are required; footage is optional and rendering falls back
// to the local ffmpeg service when no remote renderer is configured.
func buildOrchestrator(cfg *config.Config, log *logger.Logger, runDir string) (*pipeline.Orchestrator, error) {
	policy := retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  time.Duration(cfg.Retry.BaseDelaySec) * time.Second,
		MaxDelay:   time.Duration(cfg.Retry.MaxDelaySec) * time.Second,
		Retryable:  providers.IsRetryable,
	}

	textgen, err := providers.NewGroqTextGenerator(log, cfg.Script.Model, cfg.Script.Temperature)
	if err != nil {
		return nil, err
	}
	speech, err := providers.NewHTTPSpeechSynthesizer(log, filepath.Join(runDir, "audio"))
	if err != nil {
		return nil, err
	}

	var footage providers.StockFootageProvider
	if !cfg.Visuals.DisableStockFootage {
		pexels, err := providers.NewPexelsFootageProvider(log)
		if err != nil {
			log.Warn("stock footage unavailable, clips will be empty", "error", err)
		} else {
			footage = pexels
		}
	}

	var renderSvc providers.RenderService
	if os.Getenv("RENDER_API_URL") != "" {
		remote, err := providers.NewRemoteRenderService(log)
		if err != nil {
			return nil, err
		}
		renderSvc = remote
	} else {
		renderSvc = providers.NewLocalRenderService(log, filepath.Join(runDir, "renders"))
	}

	return pipeline.New(
		script.New(cfg, textgen, policy, log),
		voice.New(cfg, speech, policy, log),
		visuals.New(cfg, footage, policy, log),
		thumbs.New(cfg, log, filepath.Join(runDir, "thumbs")),
		render.New(cfg, renderSvc, policy, log),
		log,
	), nil
}

// publishBest uploads the first finished render; any failure here is
// logged and the run still counts as complete.
func publishBest(ctx context.Context, cfg *config.Config, log *logger.Logger, manifest *types.PipelineManifest, state *runState) {
	best, ok := manifest.DoneRender()
	if !ok {
		log.Warn("publish enabled but no render finished")
		return
	}
	if !publish.HasCredentials() {
		log.Warn("publish enabled but YouTube credentials missing, skipping upload")
		return
	}
	id, url, err := publish.New(cfg, log).Publish(ctx, best.OutputRef, &manifest.Script)
	if err != nil {
		log.Warn("upload failed", "error", err)
		return
	}
	state.VideoID = id
	state.VideoURL = url
}

func saveJSON(log *logger.Logger, path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn("could not marshal json", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Warn("could not save file", "path", path, "error", err)
	}
}
