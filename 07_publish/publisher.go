package publish

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/types"
)

// Publisher uploads a finished render to YouTube with the script's SEO
// package. It is invoked by the runner only when publishing is enabled
// and a render actually succeeded.
type Publisher struct {
	cfg *config.Config
	log *logger.Logger
}

func New(cfg *config.Config, log *logger.Logger) *Publisher {
	return &Publisher{cfg: cfg, log: log.With("stage", "publish")}
}

// HasCredentials reports whether the env carries the full OAuth set
// needed to upload.
func HasCredentials() bool {
	return os.Getenv("YOUTUBE_CLIENT_ID") != "" &&
		os.Getenv("YOUTUBE_CLIENT_SECRET") != "" &&
		os.Getenv("YOUTUBE_REFRESH_TOKEN") != ""
}

// Publish uploads videoFile and returns the new video's ID and URL.
func (p *Publisher) Publish(ctx context.Context, videoFile string, script *types.Script) (string, string, error) {
	client, err := p.oauthClient(ctx)
	if err != nil {
		return "", "", fmt.Errorf("youtube auth: %w", err)
	}
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       script.SEO.Title,
			Description: buildDescription(script),
			Tags:        script.SEO.Tags,
			CategoryId:  p.cfg.Publish.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: p.cfg.Publish.Visibility,
		},
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	p.log.Info("uploading video", "title", script.SEO.Title, "file", videoFile)
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(p.cfg.Publish.NotifySubscribers).
		Media(f).Do()
	if err != nil {
		return "", "", fmt.Errorf("youtube upload: %w", err)
	}

	url := "https://www.youtube.com/watch?v=" + uploaded.Id
	p.log.Info("upload complete", "id", uploaded.Id, "url", url)
	return uploaded.Id, url, nil
}

// oauthClient builds an HTTP client that refreshes the access token
// from the env refresh token on demand.
func (p *Publisher) oauthClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}

// buildDescription appends the chapter list so YouTube picks up the
// markers from the description.
func buildDescription(script *types.Script) string {
	desc := script.SEO.Description
	if len(script.SEO.Chapters) == 0 {
		return desc
	}
	desc += "\n\n"
	for _, ch := range script.SEO.Chapters {
		desc += fmt.Sprintf("%d:%02d %s\n", ch.OffsetSeconds/60, ch.OffsetSeconds%60, ch.Label)
	}
	return desc
}
