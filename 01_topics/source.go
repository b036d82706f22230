package topics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"shortform-pipeline/config"
	"shortform-pipeline/logger"
	"shortform-pipeline/types"
)

// fillerWords never become topic keywords
var fillerWords = map[string]bool{
	"about": true, "after": true, "again": true, "their": true,
	"there": true, "these": true, "thing": true, "things": true,
	"would": true, "could": true, "should": true, "where": true,
	"which": true, "while": true, "being": true, "every": true,
	"because": true, "people": true, "really": true, "still": true,
}

// Source finds candidate topics for the pipeline to work on.
type Source interface {
	Trending(ctx context.Context, n int) ([]types.Topic, error)
}

// RedditSource ranks recent top posts from the configured subreddits.
type RedditSource struct {
	cfg    *config.Config
	log    *logger.Logger
	client *reddit.Client
}

func NewRedditSource(cfg *config.Config, log *logger.Logger) (*RedditSource, error) {
	client, err := reddit.NewReadonlyClient(reddit.WithUserAgent(cfg.Topics.UserAgent))
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &RedditSource{
		cfg:    cfg,
		log:    log.With("stage", "topics"),
		client: client,
	}, nil
}

// Trending returns up to n topics, best first. Subreddits that fail to
// fetch are skipped; only an empty overall result is an error.
func (s *RedditSource) Trending(ctx context.Context, n int) ([]types.Topic, error) {
	type scoredTopic struct {
		topic types.Topic
		score int
	}
	var candidates []scoredTopic

	for _, sub := range s.cfg.Topics.Subreddits {
		posts, _, err := s.client.Subreddit.TopPosts(ctx, sub, &reddit.ListPostOptions{
			ListOptions: reddit.ListOptions{Limit: 25},
			Time:        s.cfg.Topics.TimeWindow,
		})
		if err != nil {
			s.log.Warn("subreddit fetch failed", "subreddit", sub, "error", err)
			continue
		}
		for _, post := range posts {
			if post.Stickied || post.NSFW {
				continue
			}
			if post.Score < s.cfg.Topics.MinScore {
				continue
			}
			candidates = append(candidates, scoredTopic{
				topic: types.Topic{
					Title:    post.Title,
					Angle:    firstSentence(post.Body),
					Keywords: titleKeywords(post.Title),
				},
				score: scorePost(post),
			})
		}
		s.log.Debug("subreddit scanned", "subreddit", sub, "candidates", len(candidates))
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no trending topics found in %v", s.cfg.Topics.Subreddits)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]types.Topic, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, c.topic)
	}
	s.log.Info("trending topics selected", "count", len(out), "top", out[0].Title)
	return out, nil
}

func scorePost(post *reddit.Post) int {
	score := post.Score
	score += post.NumberOfComments * 2
	if post.Body != "" {
		score += 50
	}
	return score
}

// firstSentence gives the post body's opening line as the topic angle.
func firstSentence(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	for _, sep := range []string{". ", "? ", "! ", "\n"} {
		if idx := strings.Index(body, sep); idx > 0 {
			body = body[:idx+1]
			break
		}
	}
	body = strings.TrimSpace(body)
	if len(body) > 160 {
		body = body[:160]
	}
	return body
}

func titleKeywords(title string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(strings.ToLower(title)) {
		word = strings.Trim(word, ".,!?:;\"'()[]")
		if len(word) < 5 || fillerWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) == 6 {
			break
		}
	}
	return out
}

// DefaultTopic is the fallback when no topic is given and discovery is
// unavailable.
func DefaultTopic() types.Topic {
	return types.Topic{
		Title:    "AI in 2025",
		Angle:    "How everyday software quietly became conversational",
		Keywords: []string{"technology", "future"},
	}
}
