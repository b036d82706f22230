package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"shortform-pipeline/logger"
	"shortform-pipeline/types"
)

// Caption is one timed subtitle line burned into the render.
type Caption struct {
	Text         string  `json:"text"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// RenderDescription declares everything one render job needs: the
// narration track, the background clips in cue order, the captions, and
// the target geometry.
type RenderDescription struct {
	ID           string             `json:"id"`
	Format       types.RenderFormat `json:"format"`
	Width        int                `json:"width"`
	Height       int                `json:"height"`
	AudioRef     string             `json:"audio_ref"`
	AudioSeconds float64            `json:"audio_seconds"`
	Clips        []string           `json:"clips"`
	Captions     []Caption          `json:"captions"`
}

// PollResult is one status check of a submitted job.
type PollResult struct {
	State     types.RenderState
	OutputRef string
	Error     string
}

// RenderService runs render jobs asynchronously: Submit returns a job
// id immediately, Poll reports progress until the state is terminal.
type RenderService interface {
	Submit(ctx context.Context, desc RenderDescription) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (PollResult, error)
}

// RemoteRenderService talks to an HTTP rendering API.
type RemoteRenderService struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRemoteRenderService(log *logger.Logger) (*RemoteRenderService, error) {
	baseURL := os.Getenv("RENDER_API_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("RENDER_API_URL not set")
	}
	return &RemoteRenderService{
		log:        log.With("provider", "render-api"),
		baseURL:    baseURL,
		apiKey:     os.Getenv("RENDER_API_KEY"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type submitResponse struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

type pollResponse struct {
	Status    string `json:"status"`
	OutputURL string `json:"output_url"`
	Error     string `json:"error"`
}

func (r *RemoteRenderService) Submit(ctx context.Context, desc RenderDescription) (string, error) {
	bodyBytes, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("marshal render description: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/v1/renders", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", wrapTransport("render-submit", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapTransport("render-submit", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyHTTP("render-submit", resp.StatusCode, string(raw))
	}

	var sr submitResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return "", &SchemaViolation{Op: "render-submit", Reason: "unparseable response body", Raw: truncate(string(raw), 200)}
	}
	if sr.Error != "" {
		return "", &ValidationError{Op: "render-submit", Reason: sr.Error}
	}
	if sr.JobID == "" {
		return "", &SchemaViolation{Op: "render-submit", Reason: "response has no job id"}
	}
	return sr.JobID, nil
}

func (r *RemoteRenderService) Poll(ctx context.Context, jobID string) (PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", r.baseURL+"/v1/renders/"+jobID, nil)
	if err != nil {
		return PollResult{}, err
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return PollResult{}, wrapTransport("render-poll", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return PollResult{}, wrapTransport("render-poll", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PollResult{}, classifyHTTP("render-poll", resp.StatusCode, string(raw))
	}

	var pr pollResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return PollResult{}, &SchemaViolation{Op: "render-poll", Reason: "unparseable response body", Raw: truncate(string(raw), 200)}
	}

	out := PollResult{OutputRef: pr.OutputURL, Error: pr.Error}
	switch pr.Status {
	case "queued", "pending":
		out.State = types.RenderSubmitted
	case "processing", "rendering", "running":
		out.State = types.RenderRunning
	case "done", "completed":
		out.State = types.RenderDone
	case "failed", "error", "cancelled":
		out.State = types.RenderFailed
	default:
		return PollResult{}, &SchemaViolation{Op: "render-poll", Reason: fmt.Sprintf("unknown status %q", pr.Status)}
	}
	return out, nil
}
