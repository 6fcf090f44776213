package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	processedLinksCollection = "processed_links"
	deliveredMediaCollection = "delivered_media"
)

type stateDoc struct {
	Value      string    `firestore:"value"`
	RecordedAt time.Time `firestore:"recordedAt"`
}

// FirestoreStore keeps one document per set member. Document IDs are the
// SHA-256 of the value since links contain slashes.
type FirestoreStore struct {
	client    *firestore.Client
	persisted map[string]persistedSet
}

func NewFirestoreStore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &FirestoreStore{
		client: client,
		persisted: map[string]persistedSet{
			processedLinksCollection: make(persistedSet),
			deliveredMediaCollection: make(persistedSet),
		},
	}, nil
}

func (c *FirestoreStore) Close() error {
	return c.client.Close()
}

func docID(value string) string {
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:])
}

func (c *FirestoreStore) Load(ctx context.Context) (*State, error) {
	state := NewState()
	links, err := c.readCollection(ctx, processedLinksCollection)
	if err != nil {
		slog.Warn("Failed to read processed links, starting empty", "error", err)
	}
	media, err := c.readCollection(ctx, deliveredMediaCollection)
	if err != nil {
		slog.Warn("Failed to read delivered media, starting empty", "error", err)
	}
	for _, l := range links {
		state.MarkLinkProcessed(l)
	}
	for _, m := range media {
		state.MarkMediaDelivered(m)
	}
	slog.Info("Loaded delivery state", "backend", "firestore", "links", len(links), "media", len(media))
	return state, nil
}

func (c *FirestoreStore) readCollection(ctx context.Context, collection string) ([]string, error) {
	iter := c.client.Collection(collection).Documents(ctx)
	defer iter.Stop()

	var values []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s: %w", collection, err)
		}
		var d stateDoc
		if err := doc.DataTo(&d); err != nil {
			slog.Warn("Skipping malformed state document", "collection", collection, "id", doc.Ref.ID, "error", err)
			continue
		}
		values = append(values, d.Value)
		c.persisted[collection][d.Value] = struct{}{}
	}
	return values, nil
}

// Flush creates documents for members not written before. A document that
// already exists counts as written.
func (c *FirestoreStore) Flush(ctx context.Context, state *State) error {
	if err := c.writeCollection(ctx, processedLinksCollection, state.ProcessedLinks()); err != nil {
		return err
	}
	return c.writeCollection(ctx, deliveredMediaCollection, state.DeliveredMedia())
}

func (c *FirestoreStore) writeCollection(ctx context.Context, collection string, values []string) error {
	pending := c.persisted[collection].pending(values)
	if len(pending) == 0 {
		return nil
	}

	bulkWriter := c.client.BulkWriter(ctx)
	collectionRef := c.client.Collection(collection)
	jobs := make(map[string]*firestore.BulkWriterJob, len(pending))
	now := time.Now()
	for _, v := range pending {
		job, err := bulkWriter.Create(collectionRef.Doc(docID(v)), stateDoc{Value: v, RecordedAt: now})
		if err != nil {
			bulkWriter.End()
			return fmt.Errorf("failed to queue %s write: %w", collection, err)
		}
		jobs[v] = job
	}
	bulkWriter.End()

	var failed int
	var lastErr error
	for v, job := range jobs {
		_, err := job.Results()
		if err != nil && status.Code(err) != codes.AlreadyExists {
			failed++
			lastErr = err
			continue
		}
		c.persisted[collection][v] = struct{}{}
	}
	if failed > 0 {
		return fmt.Errorf("failed to write %d %s documents: %w", failed, collection, lastErr)
	}
	return nil
}
