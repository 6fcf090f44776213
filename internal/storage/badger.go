package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	linkKeyPrefix  = "link:"
	mediaKeyPrefix = "media:"
)

// BadgerStore keeps one key per set member in an embedded Badger database.
type BadgerStore struct {
	db        *badger.DB
	persisted persistedSet
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dir, err)
	}
	slog.Info("BadgerDB opened", "path", dir)
	return &BadgerStore{db: db, persisted: make(persistedSet)}, nil
}

func (s *BadgerStore) Load(_ context.Context) (*State, error) {
	state := NewState()
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			switch {
			case strings.HasPrefix(key, linkKeyPrefix):
				state.MarkLinkProcessed(strings.TrimPrefix(key, linkKeyPrefix))
			case strings.HasPrefix(key, mediaKeyPrefix):
				state.MarkMediaDelivered(strings.TrimPrefix(key, mediaKeyPrefix))
			default:
				continue
			}
			s.persisted[key] = struct{}{}
		}
		return nil
	})
	if err != nil {
		slog.Warn("Failed to read badger state, starting empty", "error", err)
		return NewState(), nil
	}
	slog.Info("Loaded delivery state", "backend", "badger", "links", len(state.processedLinks), "media", len(state.deliveredMedia))
	return state, nil
}

// Flush writes the members not yet in the database in one batch.
func (s *BadgerStore) Flush(_ context.Context, state *State) error {
	keys := append(prefixed(linkKeyPrefix, state.ProcessedLinks()), prefixed(mediaKeyPrefix, state.DeliveredMedia())...)
	pending := s.persisted.pending(keys)
	if len(pending) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range pending {
		if err := wb.Set([]byte(key), []byte{1}); err != nil {
			return fmt.Errorf("failed to queue %s: %w", key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush badger batch: %w", err)
	}
	for _, key := range pending {
		s.persisted[key] = struct{}{}
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func prefixed(prefix string, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = prefix + v
	}
	return out
}

// badgerLogger routes Badger's internal logging through slog.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{}) {
	slog.Error(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badgerdb")
}

func (badgerLogger) Warningf(f string, v ...interface{}) {
	slog.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badgerdb")
}

func (badgerLogger) Infof(f string, v ...interface{}) {
	slog.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badgerdb")
}

func (badgerLogger) Debugf(f string, v ...interface{}) {
	slog.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)), "component", "badgerdb")
}
