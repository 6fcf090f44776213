// Package feed fetches RSSHub feeds and hands their items over as
// models.FeedEntry values.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/feed-relay/internal/models"
)

const (
	fetchTimeout     = 40 * time.Second
	maxParallelFeeds = 4
	userAgent        = "Mozilla/5.0"
)

type Fetcher struct {
	httpClient *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch parses one feed. Items keep feed order.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]models.FeedEntry, error) {
	fp := gofeed.NewParser()
	fp.Client = f.httpClient
	fp.UserAgent = userAgent

	parsed, err := fp.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", url, err)
	}

	entries := make([]models.FeedEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}
		entries = append(entries, toEntry(item, parsed, url))
	}
	return entries, nil
}

// FetchAll fetches every feed concurrently and concatenates the results in
// the order of urls. A feed that fails is logged and contributes nothing.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []models.FeedEntry {
	results := make([][]models.FeedEntry, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFeeds)
	for i, url := range urls {
		g.Go(func() error {
			entries, err := f.Fetch(gctx, url)
			if err != nil {
				slog.Error("Feed fetch failed", "url", url, "error", err)
				return nil
			}
			slog.Info("Fetched feed", "url", url, "items", len(entries))
			results[i] = entries
			return nil
		})
	}
	_ = g.Wait()

	var all []models.FeedEntry
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func toEntry(item *gofeed.Item, parsed *gofeed.Feed, url string) models.FeedEntry {
	return models.FeedEntry{
		Link:        strings.TrimSpace(item.Link),
		Title:       item.Title,
		Description: item.Description,
		Author:      authorName(item, parsed),
		PubDate:     item.Published,
		Categories:  item.Categories,
		FeedURL:     url,
	}
}

// authorName prefers the item author and falls back to the feed author.
func authorName(item *gofeed.Item, parsed *gofeed.Feed) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if parsed.Author != nil {
		return parsed.Author.Name
	}
	return ""
}
