package storage

import (
	"context"
	"fmt"
)

// Open builds the Store for the named backend: "json", "badger" or "firestore".
func Open(ctx context.Context, backend, dir, projectID string) (Store, error) {
	switch backend {
	case "", "json":
		return NewJSONStore(dir)
	case "badger":
		return NewBadgerStore(dir)
	case "firestore":
		return NewFirestoreStore(ctx, projectID)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
