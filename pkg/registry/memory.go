package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geofora/forumlink/pkg/content"
)

// MemoryStore is a thread-safe in-memory Link Registry implementation.
//
// Use Cases:
//   - Unit testing (no disk I/O, fast cleanup)
//   - Preview/analysis pipelines that never persist
//   - Development and prototyping
//
// Features:
//   - Thread-safe: all operations use RWMutex for concurrent access
//   - Indexed: maintains source and target indexes for fast lookups
//   - Copies: returns copies to prevent external mutation
//
// Performance Characteristics:
//   - Lookup by ID: O(1)
//   - ListBySource/ListByTarget: O(degree)
//   - Exists: O(out-degree of source)
//
// Example:
//
//	store := registry.NewMemoryStore()
//	defer store.Close()
//
//	link, _ := store.Create(ctx, &registry.Interlink{
//		SourceType: content.TypeQuestion, SourceID: 1,
//		TargetType: content.TypeMainPage, TargetID: 5,
//		AnchorText: "SEO Guide", RelevanceScore: 0.9,
//	})
//	fmt.Printf("created link %d\n", link.ID)
type MemoryStore struct {
	mu    sync.RWMutex
	links map[int64]*Interlink

	// Indexes for efficient lookups, keyed by Ref canonical string.
	bySource map[string]map[int64]struct{}
	byTarget map[string]map[int64]struct{}

	nextID int64
	closed bool

	// failNext, when > 0, makes that many subsequent Create calls fail with
	// ErrWriteFailed. failAfter delays the failures by that many successful
	// creates. Test hooks for partial-failure paths.
	failNext  int
	failAfter int
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:    make(map[int64]*Interlink),
		bySource: make(map[string]map[int64]struct{}),
		byTarget: make(map[string]map[int64]struct{}),
	}
}

// FailNextCreates makes the next n Create calls fail with ErrWriteFailed.
// Only useful in tests.
func (s *MemoryStore) FailNextCreates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failAfter = 0
}

// FailCreateAfter lets the next successes Create calls through, then fails
// the following failures calls with ErrWriteFailed. Only useful in tests.
func (s *MemoryStore) FailCreateAfter(successes, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = successes
	s.failNext = failures
}

// Create persists a new interlink and assigns its ID and CreatedAt.
func (s *MemoryStore) Create(_ context.Context, link *Interlink) (*Interlink, error) {
	if err := link.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.failAfter > 0 {
		s.failAfter--
	} else if s.failNext > 0 {
		s.failNext--
		return nil, ErrWriteFailed
	}

	s.nextID++
	stored := *link
	stored.ID = s.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.links[stored.ID] = &stored

	srcKey := stored.Source().String()
	if s.bySource[srcKey] == nil {
		s.bySource[srcKey] = make(map[int64]struct{})
	}
	s.bySource[srcKey][stored.ID] = struct{}{}

	tgtKey := stored.Target().String()
	if s.byTarget[tgtKey] == nil {
		s.byTarget[tgtKey] = make(map[int64]struct{})
	}
	s.byTarget[tgtKey][stored.ID] = struct{}{}

	out := stored
	return &out, nil
}

// Get returns the interlink with the given ID.
func (s *MemoryStore) Get(_ context.Context, id int64) (*Interlink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	link, ok := s.links[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *link
	return &out, nil
}

// ListBySource returns all links placed on (sourceType, sourceID),
// ordered by ascending ID.
func (s *MemoryStore) ListBySource(_ context.Context, sourceType content.ContentType, sourceID int64) ([]*Interlink, error) {
	ref := content.Ref{Type: sourceType, ID: sourceID}
	return s.listIndexed(s.bySource, ref.String())
}

// ListByTarget returns all links pointing at (targetType, targetID),
// ordered by ascending ID.
func (s *MemoryStore) ListByTarget(_ context.Context, targetType content.ContentType, targetID int64) ([]*Interlink, error) {
	ref := content.Ref{Type: targetType, ID: targetID}
	return s.listIndexed(s.byTarget, ref.String())
}

func (s *MemoryStore) listIndexed(index map[string]map[int64]struct{}, key string) ([]*Interlink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	ids := index[key]
	out := make([]*Interlink, 0, len(ids))
	for id := range ids {
		link := *s.links[id]
		out = append(out, &link)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Exists reports whether a link from source to target already exists.
func (s *MemoryStore) Exists(_ context.Context, source, target content.Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	for id := range s.bySource[source.String()] {
		if s.links[id].Target().Equal(target) {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes a link by ID.
func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	link, ok := s.links[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.links, id)
	delete(s.bySource[link.Source().String()], id)
	delete(s.byTarget[link.Target().String()], id)
	return nil
}

// Count returns the number of stored links.
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(s.links)), nil
}

// Close marks the store closed. Subsequent operations fail with
// ErrStoreClosed. Close is idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
