package forumlink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofora/forumlink/pkg/apply"
	"github.com/geofora/forumlink/pkg/config"
	"github.com/geofora/forumlink/pkg/content"
	"github.com/geofora/forumlink/pkg/registry"
	"github.com/geofora/forumlink/pkg/relevance"
	"github.com/geofora/forumlink/pkg/strategy"
)

func testService(t *testing.T, ranked []relevance.Candidate) (*Service, *registry.MemoryStore) {
	t.Helper()

	provider := content.NewStaticProvider(map[content.Source][]content.Item{
		content.SourceMainSite: {
			{Ref: content.Ref{Type: content.TypeMainPage, ID: 10}, Title: "Keyword Guide"},
			{Ref: content.Ref{Type: content.TypeMainPage, ID: 11}, Title: "Link Building"},
		},
	})
	provider.SetForumPool(7, []content.Item{
		{Ref: content.Ref{Type: content.TypeQuestion, ID: 1}, Title: "How do I pick keywords"},
		{Ref: content.Ref{Type: content.TypeQuestion, ID: 2}, Title: "Anchor text advice"},
	})

	store := registry.NewMemoryStore()
	svc := New(store, provider, &relevance.StaticRanker{Candidates: ranked}, config.Default())
	t.Cleanup(func() { svc.Close() })
	return svc, store
}

func cand(sourceID, targetID int64, score float64, bidirectional bool) relevance.Candidate {
	return relevance.Candidate{
		Source:         content.Ref{Type: content.TypeQuestion, ID: sourceID},
		SourceTitle:    "How do I pick keywords",
		Target:         content.Ref{Type: content.TypeMainPage, ID: targetID},
		TargetTitle:    "Keyword Guide",
		AnchorText:     "keyword guide",
		RelevanceScore: score,
		Bidirectional:  bidirectional,
	}
}

func TestGetForumSuggestions(t *testing.T) {
	svc, store := testService(t, []relevance.Candidate{
		cand(1, 10, 0.9, true),
		cand(2, 11, 0.7, false),
	})

	candidates, err := svc.GetForumSuggestions(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// Ranked best first.
	assert.Equal(t, 0.9, candidates[0].RelevanceScore)

	// Suggestions never write.
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetForumSuggestionsNegativeCap(t *testing.T) {
	svc, _ := testService(t, nil)

	_, err := svc.GetForumSuggestions(context.Background(), 7, -1)
	assert.ErrorIs(t, err, content.ErrInvalidArgument)
}

func TestGetBidirectionalSuggestionsExplicitPools(t *testing.T) {
	svc, store := testService(t, []relevance.Candidate{
		cand(1, 10, 0.9, true),
		cand(2, 11, 0.7, false),
	})

	// Caller supplies both pools; the content provider is not consulted, so
	// a source item outside any provider pool still gets scored.
	sources := []content.Item{
		{Ref: content.Ref{Type: content.TypeQuestion, ID: 1}, Title: "How do I pick keywords"},
	}
	targets := []content.Item{
		{Ref: content.Ref{Type: content.TypeMainPage, ID: 10}, Title: "Keyword Guide"},
	}

	candidates, err := svc.GetBidirectionalSuggestions(context.Background(), sources, targets, 0)
	require.NoError(t, err)
	// The stub only serves candidates whose source is in the request pool.
	require.Len(t, candidates, 1)
	assert.EqualValues(t, 1, candidates[0].Source.ID)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetBidirectionalSuggestionsNegativeCap(t *testing.T) {
	svc, _ := testService(t, nil)

	pool := []content.Item{{Ref: content.Ref{Type: content.TypeQuestion, ID: 1}, Title: "q"}}
	_, err := svc.GetBidirectionalSuggestions(context.Background(), pool, pool, -1)
	assert.ErrorIs(t, err, content.ErrInvalidArgument)
}

func TestCreateBidirectionalInterlinks(t *testing.T) {
	svc, store := testService(t, nil)

	result, err := svc.CreateBidirectionalInterlinks(context.Background(), []relevance.Candidate{
		cand(1, 10, 0.9, true),  // forward + reverse
		cand(2, 11, 0.7, false), // forward only
	})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, apply.OutcomeBoth, result.Outcomes[0].Outcome)
	assert.Equal(t, apply.OutcomeForwardOnly, result.Outcomes[1].Outcome)
	assert.Len(t, result.Created, 3)

	// Manual creation leaves automatic unset on every row.
	for _, link := range result.Created {
		assert.False(t, link.Automatic)
	}

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestCreateBidirectionalInterlinksEmpty(t *testing.T) {
	svc, _ := testService(t, nil)

	_, err := svc.CreateBidirectionalInterlinks(context.Background(), nil)
	assert.ErrorIs(t, err, content.ErrInvalidArgument)
}

func TestCreateBidirectionalInterlinksSkipsExisting(t *testing.T) {
	svc, store := testService(t, nil)

	_, err := store.Create(context.Background(), &registry.Interlink{
		SourceType: content.TypeQuestion, SourceID: 1,
		TargetType: content.TypeMainPage, TargetID: 10,
		AnchorText: "already linked",
	})
	require.NoError(t, err)

	result, err := svc.CreateBidirectionalInterlinks(context.Background(), []relevance.Candidate{
		cand(1, 10, 0.9, false),
	})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Skipped)
	assert.Empty(t, result.Created)
}

func TestCreateBidirectionalInterlinksIsolatesFailures(t *testing.T) {
	svc, store := testService(t, nil)
	store.FailNextCreates(1)

	result, err := svc.CreateBidirectionalInterlinks(context.Background(), []relevance.Candidate{
		cand(1, 10, 0.9, false),
		cand(2, 11, 0.7, false),
	})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.NotEmpty(t, result.Outcomes[0].Error)
	assert.Equal(t, apply.OutcomeForwardOnly, result.Outcomes[1].Outcome)
	assert.Len(t, result.Created, 1)
}

func TestGenerateInterlinkingStrategy(t *testing.T) {
	svc, store := testService(t, []relevance.Candidate{
		cand(1, 10, 0.9, true),
	})

	result, err := svc.GenerateInterlinkingStrategy(context.Background(), 7, strategy.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, strategy.PhaseDoneCommitted, result.Phase)
	assert.Equal(t, 1, result.Summary.Succeeded)
	assert.Equal(t, 2, result.Summary.CreatedLinks)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestListLinksViewsInvalidatedAfterWrites(t *testing.T) {
	svc, _ := testService(t, nil)
	ctx := context.Background()

	sourceRef := content.Ref{Type: content.TypeQuestion, ID: 1}
	targetRef := content.Ref{Type: content.TypeMainPage, ID: 10}

	// Prime both views while the registry is empty.
	links, err := svc.ListLinksBySource(ctx, sourceRef)
	require.NoError(t, err)
	assert.Empty(t, links)
	links, err = svc.ListLinksByTarget(ctx, targetRef)
	require.NoError(t, err)
	assert.Empty(t, links)

	// A write through the service invalidates the stale views.
	_, err = svc.CreateBidirectionalInterlinks(ctx, []relevance.Candidate{
		cand(1, 10, 0.9, false),
	})
	require.NoError(t, err)

	links, err = svc.ListLinksBySource(ctx, sourceRef)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.EqualValues(t, 10, links[0].TargetID)

	links, err = svc.ListLinksByTarget(ctx, targetRef)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.EqualValues(t, 1, links[0].SourceID)
}

func TestGetInterlinkableContent(t *testing.T) {
	svc, _ := testService(t, nil)

	items, err := svc.GetInterlinkableContent(context.Background(), content.SourceMainSite, 20)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = svc.GetInterlinkableContent(context.Background(), content.Source("wiki"), 20)
	assert.ErrorIs(t, err, content.ErrInvalidArgument)
}

func TestGetStats(t *testing.T) {
	svc, _ := testService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateBidirectionalInterlinks(ctx, []relevance.Candidate{
		cand(1, 10, 0.9, false),
	})
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Links)
	assert.Equal(t, 1000, stats.Cache.MaxSize)
}
