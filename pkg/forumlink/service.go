// Package forumlink provides the main API for embedded ForumLink usage.
//
// ForumLink is the bidirectional content-interlinking core for a forum plus
// main-site deployment. It suggests, applies, and registers links between
// forum content (questions, answers) and main-site pages, keeping read views
// of the link registry fresh after every write.
//
// Key Features:
//   - Ranked bidirectional link suggestions with a per-item cap
//   - Write-once link registry (badger-backed or in-memory)
//   - Forward + derived reverse link application with partial-failure
//     reporting
//   - Full strategy runs over a forum: collect, score, apply, invalidate
//   - Cached by-source / by-target link views with batched invalidation
//
// Architecture:
//   - Content: owning collaborators serve interlinkable content over HTTP
//   - Relevance: a scoring collaborator ranks source/target pairs
//   - Registry: append-only interlink rows with secondary indexes
//   - Apply: forward and reverse link materialization
//   - Strategy: the collect/score/apply/invalidate state machine
//   - Viewcache: LRU+TTL view cache behind an invalidation coordinator
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	svc, err := forumlink.Open(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	// Preview suggestions for forum 7.
//	candidates, err := svc.GetForumSuggestions(ctx, 7, 3)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, c := range candidates {
//		fmt.Printf("%s -> %s (%.2f)\n", c.Source, c.Target, c.RelevanceScore)
//	}
//
//	// Run the full strategy and commit.
//	result, err := svc.GenerateInterlinkingStrategy(ctx, 7, strategy.RunOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("created %d links\n", result.Summary.CreatedLinks)
package forumlink

import (
	"context"
	"fmt"

	"github.com/geofora/forumlink/pkg/apply"
	"github.com/geofora/forumlink/pkg/config"
	"github.com/geofora/forumlink/pkg/content"
	"github.com/geofora/forumlink/pkg/registry"
	"github.com/geofora/forumlink/pkg/relevance"
	"github.com/geofora/forumlink/pkg/scorer"
	"github.com/geofora/forumlink/pkg/strategy"
	"github.com/geofora/forumlink/pkg/viewcache"
)

// ContentSource combines the whole-source and per-forum content contracts
// the service needs from one provider.
type ContentSource interface {
	content.Provider
	content.ForumProvider
}

// Service is the embedded ForumLink API.
//
// Construct with Open (production wiring from a Config) or New (explicit
// collaborators, used by tests and embedders). All methods are safe for
// concurrent use.
type Service struct {
	cfg *config.Config

	store       registry.Store
	provider    ContentSource
	scorer      *scorer.Scorer
	applier     *apply.Applier
	cache       *viewcache.Cache
	coordinator *viewcache.Coordinator
	runner      *strategy.Orchestrator
}

// New assembles a Service from explicit collaborators.
//
// cfg may be nil, in which case defaults apply. The caller keeps ownership
// of store lifetime only until Close, which closes it.
func New(store registry.Store, provider ContentSource, ranker relevance.Ranker, cfg *config.Config) *Service {
	if cfg == nil {
		cfg = config.Default()
	}

	sc := scorer.New(ranker)
	ap := apply.New(store)
	cache := viewcache.NewCache(cfg.Cache.Size, cfg.Cache.TTL)
	coord := viewcache.NewCoordinator(cache)

	return &Service{
		cfg:         cfg,
		store:       store,
		provider:    provider,
		scorer:      sc,
		applier:     ap,
		cache:       cache,
		coordinator: coord,
		runner:      strategy.New(provider, provider, sc, ap, store, coord),
	}
}

// Open wires a Service from configuration: a badger-backed (or in-memory)
// registry, HTTP content provider, and HTTP relevance ranker.
//
// The caller must Close the returned Service.
func Open(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var store registry.Store
	var err error
	if cfg.Registry.InMemory {
		store, err = registry.NewBadgerStoreInMemory()
	} else {
		store, err = registry.NewBadgerStore(cfg.Registry.DataDir)
	}
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}

	provider := content.NewHTTPProvider(&content.HTTPConfig{
		BaseURL: cfg.Content.BaseURL,
		APIKey:  cfg.Content.APIKey,
		Timeout: cfg.Content.Timeout,
	})

	ranker := relevance.NewHTTPRanker(&relevance.HTTPConfig{
		BaseURL: cfg.Relevance.BaseURL,
		APIKey:  cfg.Relevance.APIKey,
		Timeout: cfg.Relevance.Timeout,
	})

	return New(store, provider, ranker, cfg), nil
}

// Close releases the underlying registry store.
func (s *Service) Close() error {
	return s.store.Close()
}

// Store exposes the underlying registry store for read-side integrations.
func (s *Service) Store() registry.Store {
	return s.store
}

// GetBidirectionalSuggestions ranks link candidates between two explicit
// content pools without writing anything.
//
// maxPerItem bounds suggestions per content item; 0 applies the configured
// default and negative values fail with content.ErrInvalidArgument. Callers
// that want the pools collected for them use GetForumSuggestions instead.
func (s *Service) GetBidirectionalSuggestions(ctx context.Context, sources, targets []content.Item, maxPerItem int) ([]relevance.Candidate, error) {
	if maxPerItem == 0 {
		maxPerItem = s.cfg.Strategy.PerItemCap
	}
	return s.scorer.Score(ctx, sources, targets, maxPerItem)
}

// GetForumSuggestions computes ranked link candidates for a forum against
// the main site, collecting both pools from the content provider, without
// writing anything.
//
// maxPerItem bounds suggestions per content item; 0 applies the configured
// default and negative values fail with content.ErrInvalidArgument.
func (s *Service) GetForumSuggestions(ctx context.Context, forumID int64, maxPerItem int) ([]relevance.Candidate, error) {
	if maxPerItem == 0 {
		maxPerItem = s.cfg.Strategy.PerItemCap
	}

	result, err := s.runner.Run(ctx, forumID, strategy.RunOptions{
		PreviewOnly:  true,
		PerItemCap:   maxPerItem,
		ContentLimit: s.cfg.Strategy.ContentLimit,
	})
	if err != nil {
		return nil, err
	}
	return result.Candidates, nil
}

// CreateOutcome reports what happened to one accepted candidate.
type CreateOutcome struct {
	Candidate relevance.Candidate `json:"candidate"`
	// Outcome is empty when the candidate was skipped or failed.
	Outcome apply.Outcome `json:"outcome,omitempty"`
	Skipped bool          `json:"skipped,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// CreateResult reports the links a CreateBidirectionalInterlinks call made.
type CreateResult struct {
	Created  []*registry.Interlink `json:"created"`
	Outcomes []CreateOutcome       `json:"outcomes"`
}

// CreateBidirectionalInterlinks applies user-accepted candidates as manual
// links (automatic=false).
//
// Candidates are applied independently: one failing does not stop the
// rest, and each candidate's outcome is reported. Candidates whose
// source/target pair already has a link are skipped. One batched
// invalidation covers everything created.
func (s *Service) CreateBidirectionalInterlinks(ctx context.Context, candidates []relevance.Candidate) (*CreateResult, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates provided", content.ErrInvalidArgument)
	}

	result := &CreateResult{}
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		exists, err := s.store.Exists(ctx, cand.Source, cand.Target)
		if err != nil {
			result.Outcomes = append(result.Outcomes, CreateOutcome{
				Candidate: cand, Error: err.Error(),
			})
			continue
		}
		if exists {
			result.Outcomes = append(result.Outcomes, CreateOutcome{
				Candidate: cand, Skipped: true,
			})
			continue
		}

		res, err := s.applier.Apply(ctx, cand, apply.Manual)
		if err != nil {
			result.Outcomes = append(result.Outcomes, CreateOutcome{
				Candidate: cand, Error: err.Error(),
			})
			continue
		}

		outcome := CreateOutcome{Candidate: cand, Outcome: res.Outcome}
		if res.Outcome == apply.OutcomeReverseFailed {
			outcome.Error = res.ReverseErr.Error()
		}
		result.Outcomes = append(result.Outcomes, outcome)
		result.Created = append(result.Created, res.Links()...)
	}

	if len(result.Created) > 0 {
		s.coordinator.InvalidateLinks(result.Created)
	}
	return result, nil
}

// GenerateInterlinkingStrategy runs the full interlinking pipeline for a
// forum. See the strategy package for run semantics.
func (s *Service) GenerateInterlinkingStrategy(ctx context.Context, forumID int64, opts strategy.RunOptions) (*strategy.RunResult, error) {
	if opts.PerItemCap == 0 {
		opts.PerItemCap = s.cfg.Strategy.PerItemCap
	}
	if opts.ContentLimit <= 0 {
		opts.ContentLimit = s.cfg.Strategy.ContentLimit
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = s.cfg.Strategy.ApplyConcurrency
	}
	return s.runner.Run(ctx, forumID, opts)
}

// GetInterlinkableContent lists interlinkable items from an owning
// collaborator.
func (s *Service) GetInterlinkableContent(ctx context.Context, source content.Source, limit int) ([]content.Item, error) {
	return s.provider.ListInterlinkable(ctx, source, limit)
}

// ListLinksBySource returns every link originating at ref, newest view
// served from cache when fresh.
func (s *Service) ListLinksBySource(ctx context.Context, ref content.Ref) ([]*registry.Interlink, error) {
	key := viewcache.SourceKey(ref)
	if links, ok := s.cache.Get(key); ok {
		return links, nil
	}

	links, err := s.store.ListBySource(ctx, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, links)
	return links, nil
}

// ListLinksByTarget returns every link pointing at ref, newest view served
// from cache when fresh.
func (s *Service) ListLinksByTarget(ctx context.Context, ref content.Ref) ([]*registry.Interlink, error) {
	key := viewcache.TargetKey(ref)
	if links, ok := s.cache.Get(key); ok {
		return links, nil
	}

	links, err := s.store.ListByTarget(ctx, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, links)
	return links, nil
}

// Stats reports registry and cache statistics.
type Stats struct {
	Links int64           `json:"links"`
	Cache viewcache.Stats `json:"cache"`
}

// GetStats returns current registry and cache statistics.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Links: count, Cache: s.cache.Stats()}, nil
}
