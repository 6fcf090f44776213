package processor

import (
	"context"

	"github.com/pauljones0/feed-relay/internal/models"
	"github.com/pauljones0/feed-relay/internal/storage"
	"github.com/pauljones0/feed-relay/internal/timefmt"
)

// FeedFetcher abstracts fetching every configured feed.
type FeedFetcher interface {
	FetchAll(ctx context.Context, urls []string) []models.FeedEntry
}

// PostNormalizer parses a feed entry into a Post.
type PostNormalizer interface {
	Normalize(entry models.FeedEntry) models.Post
}

// TimeNormalizer converts the raw publish timestamp for display.
type TimeNormalizer interface {
	Normalize(raw string) (timefmt.Result, error)
}

// MediaResolver fills in Post.Media and the avatar references.
type MediaResolver interface {
	Resolve(ctx context.Context, body string, post *models.Post)
}

// Translator is best effort and returns its input on failure.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// CardRenderer renders a post to an image file and returns its path.
type CardRenderer interface {
	Render(ctx context.Context, post *models.Post) (string, error)
}

// Transport abstracts the chat platform a card is delivered to.
type Transport interface {
	Open(ctx context.Context) error
	SendCard(ctx context.Context, channel, imagePath, link string) error
	SendMedia(ctx context.Context, channel string, ref models.MediaRef) error
}

// StateStore abstracts the persistence of delivery state.
type StateStore interface {
	Load(ctx context.Context) (*storage.State, error)
	Flush(ctx context.Context, state *storage.State) error
}

// StructValidator checks struct tags.
type StructValidator interface {
	ValidateStruct(s interface{}) error
}
