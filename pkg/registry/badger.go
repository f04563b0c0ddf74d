package registry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/geofora/forumlink/pkg/content"
)

// Key prefixes for the badger keyspace.
//
// Layout:
//   - Links:        0x01 + linkID(8, big-endian) -> JSON(Interlink)
//   - Source Index: 0x02 + "type:id" + 0x00 + linkID(8) -> empty
//   - Target Index: 0x03 + "type:id" + 0x00 + linkID(8) -> empty
const (
	prefixLink        byte = 0x01
	prefixSourceIndex byte = 0x02
	prefixTargetIndex byte = 0x03
)

// idSequenceKey names the badger sequence used for link ID assignment.
const idSequenceKey = "forumlink/interlink-id"

// BadgerStore is a persistent Link Registry on BadgerDB.
//
// Writes are transactional per link: the row and both index entries commit
// together or not at all. Secondary indexes keep ListBySource/ListByTarget
// at O(degree) without scanning the full keyspace.
//
// Example:
//
//	store, err := registry.NewBadgerStore("./data/links")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	link, err := store.Create(ctx, &registry.Interlink{...})
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence

	mu     sync.RWMutex
	closed bool
}

// BadgerOptions configures the badger-backed registry.
type BadgerOptions struct {
	// DataDir is the directory for data files. Required unless InMemory.
	DataDir string

	// InMemory runs badger in memory-only mode. Useful for testing;
	// data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool
}

// NewBadgerStore creates a persistent registry with default settings.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreInMemory creates an in-memory badger registry for tests
// that need persistent-store semantics without disk I/O.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerStoreWithOptions creates a registry with custom configuration.
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// Quiet logger and reduced buffers; the registry workload is small rows.
	badgerOpts = badgerOpts.
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(idSequenceKey), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open ID sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq}, nil
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func encodeID(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func linkKey(id int64) []byte {
	return append([]byte{prefixLink}, encodeID(id)...)
}

// refIndexKey builds an index entry key: prefix + "type:id" + 0x00 + linkID.
func refIndexKey(prefix byte, ref content.Ref, linkID int64) []byte {
	refStr := ref.String()
	key := make([]byte, 0, 1+len(refStr)+1+8)
	key = append(key, prefix)
	key = append(key, []byte(refStr)...)
	key = append(key, 0x00)
	key = append(key, encodeID(linkID)...)
	return key
}

// refIndexPrefix returns the scan prefix for all index entries of a ref.
func refIndexPrefix(prefix byte, ref content.Ref) []byte {
	refStr := ref.String()
	key := make([]byte, 0, 1+len(refStr)+1)
	key = append(key, prefix)
	key = append(key, []byte(refStr)...)
	key = append(key, 0x00)
	return key
}

// ============================================================================
// Store implementation
// ============================================================================

// Create persists a new interlink with its source and target index entries.
func (s *BadgerStore) Create(_ context.Context, link *Interlink) (*Interlink, error) {
	if err := link.validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	next, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: id assignment: %v", ErrWriteFailed, err)
	}

	stored := *link
	stored.ID = int64(next) + 1 // Sequences start at 0; IDs start at 1.
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode interlink: %v", ErrWriteFailed, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(linkKey(stored.ID), data); err != nil {
			return err
		}
		if err := txn.Set(refIndexKey(prefixSourceIndex, stored.Source(), stored.ID), nil); err != nil {
			return err
		}
		return txn.Set(refIndexKey(prefixTargetIndex, stored.Target(), stored.ID), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	out := stored
	return &out, nil
}

// Get returns the interlink with the given ID.
func (s *BadgerStore) Get(_ context.Context, id int64) (*Interlink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var link *Interlink
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(linkKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			link = &Interlink{}
			return json.Unmarshal(val, link)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read interlink %d: %w", id, err)
	}
	return link, nil
}

// ListBySource returns all links placed on (sourceType, sourceID),
// ordered by ascending ID.
func (s *BadgerStore) ListBySource(ctx context.Context, sourceType content.ContentType, sourceID int64) ([]*Interlink, error) {
	ref := content.Ref{Type: sourceType, ID: sourceID}
	return s.listIndexed(ctx, prefixSourceIndex, ref)
}

// ListByTarget returns all links pointing at (targetType, targetID),
// ordered by ascending ID.
func (s *BadgerStore) ListByTarget(ctx context.Context, targetType content.ContentType, targetID int64) ([]*Interlink, error) {
	ref := content.Ref{Type: targetType, ID: targetID}
	return s.listIndexed(ctx, prefixTargetIndex, ref)
}

func (s *BadgerStore) listIndexed(_ context.Context, prefix byte, ref content.Ref) ([]*Interlink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var ids []int64
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         refIndexPrefix(prefix, ref),
			PrefetchValues: false,
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) < 8 {
				continue
			}
			ids = append(ids, int64(binary.BigEndian.Uint64(key[len(key)-8:])))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan index for %s: %w", ref, err)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	links := make([]*Interlink, 0, len(ids))
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(linkKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue // Index entry without a row: skip, don't fail the read.
			}
			if err != nil {
				return err
			}
			link := &Interlink{}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, link)
			}); err != nil {
				return err
			}
			links = append(links, link)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read interlinks for %s: %w", ref, err)
	}
	return links, nil
}

// Exists reports whether a link from source to target already exists.
func (s *BadgerStore) Exists(ctx context.Context, source, target content.Ref) (bool, error) {
	links, err := s.ListBySource(ctx, source.Type, source.ID)
	if err != nil {
		return false, err
	}
	for _, link := range links {
		if link.Target().Equal(target) {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes a link and its index entries.
func (s *BadgerStore) Delete(_ context.Context, id int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(linkKey(id))
		if err != nil {
			return err
		}
		link := &Interlink{}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, link)
		}); err != nil {
			return err
		}

		if err := txn.Delete(linkKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(refIndexKey(prefixSourceIndex, link.Source(), id)); err != nil {
			return err
		}
		return txn.Delete(refIndexKey(prefixTargetIndex, link.Target(), id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete interlink %d: %w", id, err)
	}
	return nil
}

// Count returns the number of stored links by scanning the row prefix.
func (s *BadgerStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix:         []byte{prefixLink},
			PrefetchValues: false,
		})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count interlinks: %w", err)
	}
	return count, nil
}

// Close releases the ID sequence and closes the database. Idempotent.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to release ID sequence: %w", err)
	}
	return s.db.Close()
}
