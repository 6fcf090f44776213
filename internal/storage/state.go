package storage

import (
	"context"
	"sort"
)

// Store persists delivery state. Flush writes a full snapshot; a crash in the
// middle of Flush must leave the previous snapshot intact.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Flush(ctx context.Context, state *State) error
	Close() error
}

// State is the in-memory dedup state: links whose entry went through the
// whole pipeline, and media file names already delivered.
type State struct {
	processedLinks map[string]struct{}
	deliveredMedia map[string]struct{}
}

func NewState() *State {
	return &State{
		processedLinks: make(map[string]struct{}),
		deliveredMedia: make(map[string]struct{}),
	}
}

func (s *State) IsLinkProcessed(link string) bool {
	_, ok := s.processedLinks[link]
	return ok
}

func (s *State) MarkLinkProcessed(link string) {
	s.processedLinks[link] = struct{}{}
}

func (s *State) IsMediaDelivered(name string) bool {
	_, ok := s.deliveredMedia[name]
	return ok
}

func (s *State) MarkMediaDelivered(name string) {
	s.deliveredMedia[name] = struct{}{}
}

// ProcessedLinks returns the processed links in sorted order.
func (s *State) ProcessedLinks() []string {
	return sortedKeys(s.processedLinks)
}

// DeliveredMedia returns the delivered media names in sorted order.
func (s *State) DeliveredMedia() []string {
	return sortedKeys(s.deliveredMedia)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// persistedSet tracks which values an incremental backend already wrote, so
// a flush only sends what is new.
type persistedSet map[string]struct{}

func (p persistedSet) pending(values []string) []string {
	var out []string
	for _, v := range values {
		if _, ok := p[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
