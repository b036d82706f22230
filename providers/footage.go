package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"shortform-pipeline/logger"
)

// ErrNoFootage is returned when a search comes back empty. Callers
// treat it as "use the fallback background", not as a failure.
var ErrNoFootage = errors.New("no matching footage")

// Clip is one candidate stock clip.
type Clip struct {
	ID          string
	URL         string
	Width       int
	Height      int
	DurationSec int
}

// StockFootageProvider finds background clips for a keyword.
type StockFootageProvider interface {
	SearchClips(ctx context.Context, keyword string) ([]Clip, error)
}

// PexelsFootageProvider queries the Pexels videos API.
type PexelsFootageProvider struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	perPage    int
	httpClient *http.Client
}

func NewPexelsFootageProvider(log *logger.Logger) (*PexelsFootageProvider, error) {
	apiKey := os.Getenv("PEXELS_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("PEXELS_API_KEY not set")
	}
	baseURL := os.Getenv("PEXELS_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.pexels.com"
	}
	return &PexelsFootageProvider{
		log:        log.With("provider", "pexels"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		perPage:    5,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type pexelsResponse struct {
	Videos []struct {
		ID         int `json:"id"`
		Width      int `json:"width"`
		Height     int `json:"height"`
		Duration   int `json:"duration"`
		VideoFiles []struct {
			Link   string `json:"link"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"video_files"`
	} `json:"videos"`
}

func (p *PexelsFootageProvider) SearchClips(ctx context.Context, keyword string) ([]Clip, error) {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("per_page", fmt.Sprintf("%d", p.perPage))

	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/videos/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport("footage", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport("footage", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyHTTP("footage", resp.StatusCode, string(raw))
	}

	var pr pexelsResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, &SchemaViolation{Op: "footage", Reason: "unparseable response body", Raw: truncate(string(raw), 200)}
	}
	if len(pr.Videos) == 0 {
		return nil, ErrNoFootage
	}

	clips := make([]Clip, 0, len(pr.Videos))
	for _, v := range pr.Videos {
		link := ""
		bestArea := 0
		for _, f := range v.VideoFiles {
			if area := f.Width * f.Height; area > bestArea {
				bestArea = area
				link = f.Link
			}
		}
		if link == "" {
			continue
		}
		clips = append(clips, Clip{
			ID:          fmt.Sprintf("pexels-%d", v.ID),
			URL:         link,
			Width:       v.Width,
			Height:      v.Height,
			DurationSec: v.Duration,
		})
	}
	if len(clips) == 0 {
		return nil, ErrNoFootage
	}
	return clips, nil
}
