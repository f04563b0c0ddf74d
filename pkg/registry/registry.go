// Package registry provides the durable Link Registry for the interlinking core.
//
// The registry exclusively owns Interlink rows: directional content-to-content
// links with anchor text, a relevance score, and an automatic/manual flag.
// Rows are created once and never mutated; re-scoring a pair produces a new
// row, and deletion happens only through an administrative path.
//
// Design Principles:
//   - Store interface for dependency injection and testability
//   - Thread-safe implementations
//   - Write-once rows (no in-place updates)
//   - Self-links rejected at the store boundary
//
// Example Usage:
//
//	store := registry.NewMemoryStore()
//	defer store.Close()
//
//	link, err := store.Create(ctx, &registry.Interlink{
//		SourceType:     content.TypeQuestion,
//		SourceID:       1,
//		TargetType:     content.TypeMainPage,
//		TargetID:       5,
//		AnchorText:     "SEO Guide",
//		RelevanceScore: 0.9,
//		Automatic:      true,
//	})
//	if err != nil {
//		return err
//	}
//
//	outgoing, _ := store.ListBySource(ctx, content.TypeQuestion, 1)
//	fmt.Printf("question 1 links out to %d targets\n", len(outgoing))
//
// Duplicate (source, target) tuples are deliberately NOT constrained here.
// Concurrent strategy runs against the same forum can race to create
// overlapping links; duplicate prevention is an application-level existence
// check (see Exists), not a storage constraint.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/geofora/forumlink/pkg/content"
)

// Common errors
var (
	ErrNotFound    = errors.New("interlink not found")
	ErrInvalidLink = errors.New("invalid interlink")
	ErrSelfLink    = errors.New("content item must not link to itself")
	ErrStoreClosed = errors.New("registry store closed")
	ErrWriteFailed = errors.New("registry write failed")
)

// Interlink is a persisted directional link between two content items.
//
// Fields:
//   - ID: Assigned by the store on creation, immutable
//   - SourceType/SourceID: Where the link is placed
//   - TargetType/TargetID: Where the link points
//   - AnchorText: Visible link text
//   - RelevanceScore: Semantic relevance in [0,1], set once at creation
//   - Automatic: True when created by a strategy run, false for direct
//     user actions
//   - CreatedAt: Creation timestamp, set by the store
type Interlink struct {
	ID             int64               `json:"id"`
	SourceType     content.ContentType `json:"source_type"`
	SourceID       int64               `json:"source_id"`
	TargetType     content.ContentType `json:"target_type"`
	TargetID       int64               `json:"target_id"`
	AnchorText     string              `json:"anchor_text"`
	RelevanceScore float64             `json:"relevance_score"`
	Automatic      bool                `json:"automatic"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Source returns the link's source as a content.Ref.
func (l *Interlink) Source() content.Ref {
	return content.Ref{Type: l.SourceType, ID: l.SourceID}
}

// Target returns the link's target as a content.Ref.
func (l *Interlink) Target() content.Ref {
	return content.Ref{Type: l.TargetType, ID: l.TargetID}
}

// validate checks structural invariants shared by all store implementations.
func (l *Interlink) validate() error {
	if l == nil {
		return ErrInvalidLink
	}
	if !l.SourceType.Valid() || !l.TargetType.Valid() {
		return ErrInvalidLink
	}
	if l.SourceID <= 0 || l.TargetID <= 0 {
		return ErrInvalidLink
	}
	if l.SourceType == l.TargetType && l.SourceID == l.TargetID {
		return ErrSelfLink
	}
	return nil
}

// Store is the Link Registry persistence contract.
//
// All Store implementations MUST be:
//   - Thread-safe: safe for concurrent access from multiple goroutines
//   - Write-once: Create assigns the ID and CreatedAt; rows never mutate
//
// Implementations:
//   - MemoryStore: in-memory storage for testing and small datasets
//   - BadgerStore: persistent disk storage on BadgerDB
type Store interface {
	// Create persists a new interlink. The store assigns ID and CreatedAt
	// and returns the stored row. The input is not modified.
	Create(ctx context.Context, link *Interlink) (*Interlink, error)

	// Get returns the interlink with the given ID, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Interlink, error)

	// ListBySource returns all links whose source is (sourceType, sourceID).
	ListBySource(ctx context.Context, sourceType content.ContentType, sourceID int64) ([]*Interlink, error)

	// ListByTarget returns all links whose target is (targetType, targetID).
	ListByTarget(ctx context.Context, targetType content.ContentType, targetID int64) ([]*Interlink, error)

	// Exists reports whether any link already connects source to target in
	// that direction. This is the application-level duplicate check; it is
	// advisory only and racy across concurrent writers.
	Exists(ctx context.Context, source, target content.Ref) (bool, error)

	// Delete removes a link by ID (administrative path only).
	Delete(ctx context.Context, id int64) error

	// Count returns the number of stored links.
	Count(ctx context.Context) (int64, error)

	// Close releases store resources.
	Close() error
}
