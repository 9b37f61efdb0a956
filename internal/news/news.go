// Package news collects recent headlines from RSS and Atom feeds.
package news

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/nugget/daybreak/internal/httpkit"
)

// DefaultMaxArticles caps a digest when no limit is configured.
const DefaultMaxArticles = 5

// maxFeedBytes bounds how much of a single feed is read.
const maxFeedBytes = 1 << 20

// Article is one headline.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	Link        string    `json:"link"`
	PubDate     time.Time `json:"pubDate"`
	Description string    `json:"description"`
}

// Digest is the merged, newest-first set of headlines.
type Digest struct {
	Articles []Article `json:"articles"`
}

// Feed is a configured news source.
type Feed struct {
	Name string
	URL  string
}

// Client reads a fixed list of feeds.
type Client struct {
	feeds       []Feed
	maxArticles int
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a news client. A non-positive maxArticles selects
// DefaultMaxArticles.
func NewClient(feeds []Feed, maxArticles int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if maxArticles <= 0 {
		maxArticles = DefaultMaxArticles
	}
	return &Client{
		feeds:       feeds,
		maxArticles: maxArticles,
		httpClient:  httpkit.NewClient(),
		logger:      logger.With("component", "news"),
	}
}

// Fetch reads every feed and returns the newest articles. A feed that
// fails is logged and skipped; Fetch fails only when no feed could be
// read at all.
func (c *Client) Fetch(ctx context.Context) (*Digest, error) {
	if len(c.feeds) == 0 {
		return nil, fmt.Errorf("no news feeds configured")
	}

	var (
		articles []Article
		seen     = make(map[string]bool)
		lastErr  error
		ok       int
	)
	for _, feed := range c.feeds {
		parsed, err := c.fetchFeed(ctx, feed.URL)
		if err != nil {
			c.logger.Warn("feed fetch failed", "feed", feed.Name, "url", feed.URL, "error", err)
			lastErr = err
			continue
		}
		ok++

		source := feed.Name
		if source == "" {
			source = parsed.Title
		}
		for _, a := range parsed.Articles {
			if a.Title == "" {
				continue
			}
			key := a.ID
			if key == "" {
				key = a.Title
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			a.Source = source
			articles = append(articles, a)
		}
	}

	if ok == 0 {
		return nil, fmt.Errorf("all %d feeds failed: %w", len(c.feeds), lastErr)
	}

	slices.SortStableFunc(articles, func(x, y Article) int {
		return y.PubDate.Compare(x.PubDate)
	})
	if len(articles) > c.maxArticles {
		articles = articles[:c.maxArticles]
	}
	if articles == nil {
		articles = []Article{}
	}
	return &Digest{Articles: articles}, nil
}

func (c *Client) fetchFeed(ctx context.Context, feedURL string) (*parsedFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxFeedBytes)

	if err := httpkit.CheckStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	return parseFeed(body)
}
