// Package content defines content identity for the interlinking core.
//
// The interlinking engine never owns content. Forum questions/answers and
// main-site pages live in their own stores; this package defines the
// references the engine passes around and the Provider contract it uses to
// pull interlinkable content sets from those owning collaborators.
//
// Example Usage:
//
//	ref := content.Ref{Type: content.TypeQuestion, ID: 42}
//
//	items, err := provider.ListInterlinkable(ctx, content.SourceForum, 20)
//	if err != nil {
//		return err
//	}
//	for _, item := range items {
//		fmt.Printf("%s %d: %s\n", item.Type, item.ID, item.Title)
//	}
package content

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrContentUnavailable indicates an owning content collaborator could
	// not be reached or returned an unusable response. Fatal to the current
	// run; callers do not retry automatically.
	ErrContentUnavailable = errors.New("content unavailable")

	// ErrInvalidArgument indicates bad caller input, rejected before any I/O.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ContentType identifies what kind of content a Ref points at.
//
// Using a custom string type provides:
//   - Type safety (can't accidentally pass a Source where a ContentType goes)
//   - Clear API semantics
//   - Stable wire encoding
type ContentType string

// Known content types.
const (
	TypeQuestion ContentType = "question"
	TypeAnswer   ContentType = "answer"
	TypeMainPage ContentType = "main_page"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case TypeQuestion, TypeAnswer, TypeMainPage:
		return true
	}
	return false
}

// Source identifies which owning collaborator holds a content pool.
type Source string

// Known content sources.
const (
	SourceForum    Source = "forum"
	SourceMainSite Source = "main_site"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceForum || s == SourceMainSite
}

// DefaultListLimit bounds ListInterlinkable when the caller passes limit <= 0.
const DefaultListLimit = 20

// Ref identifies a piece of content by type and numeric ID.
//
// Identity is immutable. Existence is validated by the owning collaborator
// (forum store or main-site store), never by the interlinking core.
type Ref struct {
	Type ContentType `json:"type"`
	ID   int64       `json:"id"`
}

// String returns a canonical "type:id" form, used in cache keys and logs.
func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// Equal reports whether two refs identify the same content item.
func (r Ref) Equal(other Ref) bool {
	return r.Type == other.Type && r.ID == other.ID
}

// Item is a Ref plus the title the scoring collaborator ranks against.
type Item struct {
	Ref
	Title string `json:"title"`
}

// Provider lists interlinkable content from an owning collaborator.
//
// Implementations must be safe for concurrent use. A provider that cannot
// reach its backend returns an error wrapping ErrContentUnavailable.
type Provider interface {
	// ListInterlinkable returns up to limit interlinkable items from the
	// given source. limit <= 0 applies DefaultListLimit.
	ListInterlinkable(ctx context.Context, source Source, limit int) ([]Item, error)
}

// ForumProvider lists interlinkable content scoped to one forum.
//
// The generic Provider contract covers a whole source; multi-forum
// deployments additionally need per-forum scoping for strategy runs.
type ForumProvider interface {
	// ListForumInterlinkable returns up to limit interlinkable items
	// belonging to the given forum. limit <= 0 applies DefaultListLimit.
	ListForumInterlinkable(ctx context.Context, forumID int64, limit int) ([]Item, error)
}

// StaticProvider serves fixed content pools from memory.
//
// Use Cases:
//   - Unit testing (deterministic pools, no network)
//   - CLI demo mode
//
// Example:
//
//	provider := content.NewStaticProvider(map[content.Source][]content.Item{
//		content.SourceForum: {
//			{Ref: content.Ref{Type: content.TypeQuestion, ID: 1}, Title: "How to SEO"},
//		},
//	})
type StaticProvider struct {
	pools  map[Source][]Item
	forums map[int64][]Item
}

// NewStaticProvider creates a provider over fixed pools.
func NewStaticProvider(pools map[Source][]Item) *StaticProvider {
	if pools == nil {
		pools = make(map[Source][]Item)
	}
	return &StaticProvider{pools: pools}
}

// SetForumPool registers a per-forum content pool. Forums without a
// registered pool fall back to the SourceForum pool.
func (p *StaticProvider) SetForumPool(forumID int64, items []Item) {
	if p.forums == nil {
		p.forums = make(map[int64][]Item)
	}
	p.forums[forumID] = items
}

// ListForumInterlinkable returns the pool registered for forumID, or the
// SourceForum pool when none is registered.
func (p *StaticProvider) ListForumInterlinkable(ctx context.Context, forumID int64, limit int) ([]Item, error) {
	if pool, ok := p.forums[forumID]; ok {
		if limit <= 0 {
			limit = DefaultListLimit
		}
		if len(pool) > limit {
			pool = pool[:limit]
		}
		out := make([]Item, len(pool))
		copy(out, pool)
		return out, nil
	}
	return p.ListInterlinkable(ctx, SourceForum, limit)
}

// ListInterlinkable returns the configured pool for source, bounded by limit.
func (p *StaticProvider) ListInterlinkable(_ context.Context, source Source, limit int) ([]Item, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidArgument, source)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	pool := p.pools[source]
	if len(pool) > limit {
		pool = pool[:limit]
	}

	// Copy so callers can't mutate the backing pool.
	out := make([]Item, len(pool))
	copy(out, pool)
	return out, nil
}
