package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"podcast_ingest/internal/domain"
)

// Config holds feed reader configuration.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Reader parses podcast RSS/Atom feeds and extracts episodes that carry a
// resolvable audio URL.
type Reader struct {
	parser     *gofeed.Parser
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

func NewReader(cfg Config, logger *slog.Logger) *Reader {
	return &Reader{
		parser: gofeed.NewParser(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		logger:    logger.With("component", "feed"),
	}
}

// Fetch downloads and parses the feed, returning up to maxEpisodes episodes
// in feed order. Entries without a usable audio URL are dropped, not errored.
func (r *Reader) Fetch(ctx context.Context, feedURL string, maxEpisodes int) ([]domain.Episode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// Some podcast hosts reject requests without a browser User-Agent.
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	parsed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	r.logger.Debug("parsed feed", "url", feedURL, "entries", len(parsed.Items))

	episodes := make([]domain.Episode, 0, maxEpisodes)
	for _, item := range parsed.Items {
		if len(episodes) >= maxEpisodes {
			break
		}

		audioURL := resolveAudioURL(item)
		if audioURL == "" {
			r.logger.Debug("no audio found for entry", "title", item.Title)
			continue
		}

		ep := domain.Episode{
			Title:     item.Title,
			AudioURL:  audioURL,
			Published: item.PublishedParsed,
		}
		if ep.Title == "" {
			ep.Title = "Untitled Episode"
		}

		episodes = append(episodes, ep)
	}

	r.logger.Info("resolved episodes", "url", feedURL, "count", len(episodes))

	return episodes, nil
}

var audioExtensions = []string{".mp3", ".m4a", ".ogg", ".wav", ".aac", ".flac"}

// resolveAudioURL prefers an enclosure with an explicit audio MIME type,
// then an enclosure that looks like an audio file, then the entry link when
// it points at an audio file directly.
func resolveAudioURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "audio/") && strings.TrimSpace(enc.URL) != "" {
			return strings.TrimSpace(enc.URL)
		}
	}

	for _, enc := range item.Enclosures {
		if looksLikeAudio(enc.URL) {
			return strings.TrimSpace(enc.URL)
		}
	}

	if looksLikeAudio(item.Link) {
		return strings.TrimSpace(item.Link)
	}

	return ""
}

func looksLikeAudio(rawURL string) bool {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	if u == "" {
		return false
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	for _, ext := range audioExtensions {
		if strings.HasSuffix(u, ext) {
			return true
		}
	}
	return false
}
