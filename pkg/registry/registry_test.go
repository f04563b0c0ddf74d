package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/geofora/forumlink/pkg/content"
)

// storeFactory builds a fresh Store for each subtest. Both implementations
// run the same contract suite.
type storeFactory func(t *testing.T) Store

func memoryFactory(t *testing.T) Store {
	t.Helper()
	return NewMemoryStore()
}

func badgerFactory(t *testing.T) Store {
	t.Helper()
	store, err := NewBadgerStoreWithOptions(BadgerOptions{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("opening badger store: %v", err)
	}
	return store
}

func TestStoreContract(t *testing.T) {
	factories := map[string]storeFactory{
		"memory": memoryFactory,
		"badger": badgerFactory,
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			t.Run("CreateAssignsIdentity", func(t *testing.T) { testCreateAssignsIdentity(t, factory(t)) })
			t.Run("CreateDoesNotMutateInput", func(t *testing.T) { testCreateDoesNotMutateInput(t, factory(t)) })
			t.Run("Validation", func(t *testing.T) { testValidation(t, factory(t)) })
			t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, factory(t)) })
			t.Run("ListBySource", func(t *testing.T) { testListBySource(t, factory(t)) })
			t.Run("ListByTarget", func(t *testing.T) { testListByTarget(t, factory(t)) })
			t.Run("Exists", func(t *testing.T) { testExists(t, factory(t)) })
			t.Run("DuplicatesAllowed", func(t *testing.T) { testDuplicatesAllowed(t, factory(t)) })
			t.Run("Delete", func(t *testing.T) { testDelete(t, factory(t)) })
			t.Run("Count", func(t *testing.T) { testCount(t, factory(t)) })
			t.Run("Closed", func(t *testing.T) { testClosed(t, factory(t)) })
		})
	}
}

func mustCreate(t *testing.T, store Store, sourceID, targetID int64) *Interlink {
	t.Helper()
	link, err := store.Create(context.Background(), &Interlink{
		SourceType:     content.TypeQuestion,
		SourceID:       sourceID,
		TargetType:     content.TypeMainPage,
		TargetID:       targetID,
		AnchorText:     "anchor",
		RelevanceScore: 0.8,
		Automatic:      true,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return link
}

func testCreateAssignsIdentity(t *testing.T, store Store) {
	defer store.Close()

	first := mustCreate(t, store, 1, 5)
	second := mustCreate(t, store, 2, 5)

	if first.ID <= 0 {
		t.Errorf("expected positive ID, got %d", first.ID)
	}
	if second.ID <= first.ID {
		t.Errorf("IDs should increase: %d then %d", first.ID, second.ID)
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got, err := store.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SourceID != 1 || got.TargetID != 5 || got.AnchorText != "anchor" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if !got.Automatic {
		t.Error("automatic flag lost")
	}
}

func testCreateDoesNotMutateInput(t *testing.T, store Store) {
	defer store.Close()

	input := &Interlink{
		SourceType: content.TypeQuestion, SourceID: 1,
		TargetType: content.TypeMainPage, TargetID: 5,
		AnchorText: "anchor", RelevanceScore: 0.5,
	}
	if _, err := store.Create(context.Background(), input); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if input.ID != 0 {
		t.Errorf("input mutated: ID=%d", input.ID)
	}
}

func testValidation(t *testing.T, store Store) {
	defer store.Close()
	ctx := context.Background()

	cases := []struct {
		name string
		link *Interlink
		want error
	}{
		{
			name: "self link",
			link: &Interlink{
				SourceType: content.TypeQuestion, SourceID: 1,
				TargetType: content.TypeQuestion, TargetID: 1,
				AnchorText: "a",
			},
			want: ErrSelfLink,
		},
		{
			name: "bad source type",
			link: &Interlink{
				SourceType: "blog", SourceID: 1,
				TargetType: content.TypeMainPage, TargetID: 5,
				AnchorText: "a",
			},
			want: ErrInvalidLink,
		},
		{
			name: "zero source id",
			link: &Interlink{
				SourceType: content.TypeQuestion, SourceID: 0,
				TargetType: content.TypeMainPage, TargetID: 5,
				AnchorText: "a",
			},
			want: ErrInvalidLink,
		},
		{
			name: "negative target id",
			link: &Interlink{
				SourceType: content.TypeQuestion, SourceID: 1,
				TargetType: content.TypeMainPage, TargetID: -5,
				AnchorText: "a",
			},
			want: ErrInvalidLink,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.Create(ctx, tc.link); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// Same ID with different types is NOT a self-link.
	_, err := store.Create(ctx, &Interlink{
		SourceType: content.TypeQuestion, SourceID: 1,
		TargetType: content.TypeMainPage, TargetID: 1,
		AnchorText: "a",
	})
	if err != nil {
		t.Errorf("same ID across types should be allowed: %v", err)
	}
}

func testGetNotFound(t *testing.T, store Store) {
	defer store.Close()

	if _, err := store.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testListBySource(t *testing.T, store Store) {
	defer store.Close()
	ctx := context.Background()

	mustCreate(t, store, 1, 5)
	mustCreate(t, store, 1, 6)
	mustCreate(t, store, 2, 5)

	links, err := store.ListBySource(ctx, content.TypeQuestion, 1)
	if err != nil {
		t.Fatalf("ListBySource failed: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	// Ordered by ascending ID.
	if links[0].ID >= links[1].ID {
		t.Errorf("links not ordered by ID: %d, %d", links[0].ID, links[1].ID)
	}

	links, err = store.ListBySource(ctx, content.TypeQuestion, 42)
	if err != nil {
		t.Fatalf("ListBySource on absent source failed: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected no links, got %d", len(links))
	}
}

func testListByTarget(t *testing.T, store Store) {
	defer store.Close()
	ctx := context.Background()

	mustCreate(t, store, 1, 5)
	mustCreate(t, store, 2, 5)
	mustCreate(t, store, 3, 6)

	links, err := store.ListByTarget(ctx, content.TypeMainPage, 5)
	if err != nil {
		t.Fatalf("ListByTarget failed: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	for _, link := range links {
		if link.TargetID != 5 {
			t.Errorf("wrong target in result: %+v", link)
		}
	}
}

func testExists(t *testing.T, store Store) {
	defer store.Close()
	ctx := context.Background()

	mustCreate(t, store, 1, 5)

	source := content.Ref{Type: content.TypeQuestion, ID: 1}
	target := content.Ref{Type: content.TypeMainPage, ID: 5}

	exists, err := store.Exists(ctx, source, target)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected link to exist")
	}

	// Directional: the reverse pair does not exist.
	exists, err = store.Exists(ctx, target, source)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("reverse direction should not exist")
	}
}

func testDuplicatesAllowed(t *testing.T, store Store) {
	defer store.Close()

	// No uniqueness constraint: two rows for the same pair are both stored.
	first := mustCreate(t, store, 1, 5)
	second := mustCreate(t, store, 1, 5)
	if first.ID == second.ID {
		t.Error("duplicate pair should produce distinct rows")
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

func testDelete(t *testing.T, store Store) {
	defer store.Close()
	ctx := context.Background()

	link := mustCreate(t, store, 1, 5)

	if err := store.Delete(ctx, link.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, link.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Indexes are cleaned up too.
	links, err := store.ListBySource(ctx, content.TypeQuestion, 1)
	if err != nil {
		t.Fatalf("ListBySource failed: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected empty source index after delete, got %d", len(links))
	}

	if err := store.Delete(ctx, link.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func testCount(t *testing.T, store Store) {
	defer store.Close()
	ctx := context.Background()

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}

	mustCreate(t, store, 1, 5)
	mustCreate(t, store, 2, 5)

	count, err = store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func testClosed(t *testing.T, store Store) {
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Idempotent.
	if err := store.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, err := store.Create(context.Background(), &Interlink{
		SourceType: content.TypeQuestion, SourceID: 1,
		TargetType: content.TypeMainPage, TargetID: 5,
		AnchorText: "a",
	}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}

func TestMemoryStoreFailNextCreates(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	store.FailNextCreates(1)

	_, err := store.Create(ctx, &Interlink{
		SourceType: content.TypeQuestion, SourceID: 1,
		TargetType: content.TypeMainPage, TargetID: 5,
		AnchorText: "a",
	})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}

	// Recovers after the programmed failures.
	if _, err := store.Create(ctx, &Interlink{
		SourceType: content.TypeQuestion, SourceID: 1,
		TargetType: content.TypeMainPage, TargetID: 5,
		AnchorText: "a",
	}); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
}
