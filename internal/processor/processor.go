package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pauljones0/feed-relay/internal/models"
	"github.com/pauljones0/feed-relay/internal/storage"
)

// ErrPassInProgress is returned when a pass is requested while another one
// is still running.
var ErrPassInProgress = errors.New("a processing pass is already running")

type Processor interface {
	ProcessFeeds(ctx context.Context) error
}

// Dependencies are the collaborators of a FeedProcessor.
type Dependencies struct {
	Fetcher    FeedFetcher
	Normalizer PostNormalizer
	Clock      TimeNormalizer
	Media      MediaResolver
	Translator Translator
	Renderer   CardRenderer
	Transport  Transport
	Store      StateStore
	Validator  StructValidator
}

// FeedProcessor runs the per-entry pipeline: normalize, resolve media,
// translate, render, deliver, then mark the entry processed. Entries are
// handled strictly one after another.
type FeedProcessor struct {
	deps     Dependencies
	feedURLs []string
	channels []string

	mu    sync.Mutex
	state *storage.State
}

func New(deps Dependencies, feedURLs, channels []string) *FeedProcessor {
	return &FeedProcessor{
		deps:     deps,
		feedURLs: feedURLs,
		channels: channels,
	}
}

// ProcessFeeds runs one pass over every configured feed. Only one pass runs
// at a time; a concurrent request returns ErrPassInProgress.
func (p *FeedProcessor) ProcessFeeds(ctx context.Context) error {
	if !p.mu.TryLock() {
		slog.Info("Processing pass already running, skipping")
		return ErrPassInProgress
	}
	defer p.mu.Unlock()

	if p.state == nil {
		state, err := p.deps.Store.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load delivery state: %w", err)
		}
		p.state = state
	}

	if err := p.deps.Transport.Open(ctx); err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}

	entries := p.deps.Fetcher.FetchAll(ctx, p.feedURLs)
	slog.Info("Fetched feed entries", "count", len(entries))

	var delivered, skipped int
	var errorMessages []string
	for _, entry := range entries {
		if ctx.Err() != nil {
			errorMessages = append(errorMessages, ctx.Err().Error())
			break
		}
		if p.state.IsLinkProcessed(entry.Link) {
			skipped++
			continue
		}
		if err := p.processEntry(ctx, entry); err != nil {
			slog.Error("Failed to process entry", "link", entry.Link, "error", err)
			errorMessages = append(errorMessages, err.Error())
			continue
		}
		delivered++
	}

	slog.Info("Finished processing", "delivered", delivered, "skipped", skipped, "failed", len(errorMessages))
	if len(errorMessages) > 0 {
		return fmt.Errorf("processed with errors: %s", strings.Join(errorMessages, "; "))
	}
	return nil
}

func (p *FeedProcessor) processEntry(ctx context.Context, entry models.FeedEntry) error {
	post := p.deps.Normalizer.Normalize(entry)
	if err := p.deps.Validator.ValidateStruct(post); err != nil {
		return fmt.Errorf("invalid post %s: %w", entry.Link, err)
	}

	published, err := p.deps.Clock.Normalize(entry.PubDate)
	if err != nil {
		return fmt.Errorf("entry %s: %w", entry.Link, err)
	}
	post.PublishedAt = published.Instant
	post.PublishedDisplay = published.Display
	slog.Info("Processing entry", "link", post.Link, "author", post.Author.Name, "kind", post.Kind)

	p.deps.Media.Resolve(ctx, entry.Description, &post)

	post.MainText.Translated = p.deps.Translator.Translate(ctx, post.MainText.Plain)
	if post.Quoted != nil {
		post.Quoted.Text.Translated = p.deps.Translator.Translate(ctx, post.Quoted.Text.Plain)
	}

	cardPath, err := p.deps.Renderer.Render(ctx, &post)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", post.Link, err)
	}

	if err := p.deliver(ctx, &post, cardPath); err != nil {
		return err
	}

	p.state.MarkLinkProcessed(post.Link)
	if err := p.deps.Store.Flush(ctx, p.state); err != nil {
		slog.Error("Failed to persist processed link", "link", post.Link, "error", err)
	}
	slog.Info("Entry processed", "link", post.Link)
	return nil
}

// deliver sends the card and then each not yet delivered media file to every
// channel. A failing channel is logged and the next one tried; the entry
// fails only when the card reached no channel at all.
func (p *FeedProcessor) deliver(ctx context.Context, post *models.Post, cardPath string) error {
	var pending []models.MediaRef
	for _, m := range post.Media {
		if m.LocalPath == "" {
			continue
		}
		if p.state.IsMediaDelivered(filepath.Base(m.LocalPath)) {
			slog.Info("Media already delivered, skipping", "file", filepath.Base(m.LocalPath))
			continue
		}
		pending = append(pending, m)
	}

	cardSent := 0
	for _, channel := range p.channels {
		if err := p.deps.Transport.SendCard(ctx, channel, cardPath, post.Link); err != nil {
			slog.Error("Failed to send card", "channel", channel, "link", post.Link, "error", err)
		} else {
			cardSent++
		}

		for _, m := range pending {
			name := filepath.Base(m.LocalPath)
			if err := p.deps.Transport.SendMedia(ctx, channel, m); err != nil {
				slog.Warn("Failed to send media", "channel", channel, "file", name, "error", err)
				continue
			}
			p.state.MarkMediaDelivered(name)
			if err := p.deps.Store.Flush(ctx, p.state); err != nil {
				slog.Warn("Failed to persist delivered media", "file", name, "error", err)
			}
		}
	}

	if cardSent == 0 {
		return fmt.Errorf("card for %s was not delivered to any channel", post.Link)
	}
	return nil
}
