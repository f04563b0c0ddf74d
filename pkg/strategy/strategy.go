// Package strategy runs the full interlinking pipeline over a forum.
//
// A strategy run walks a fixed state machine:
//
//	Collecting -> Scoring -> DonePreview            (preview mode)
//	Collecting -> Scoring -> Applying -> Invalidating -> DoneCommitted
//
// Collecting pulls the forum's and the main site's interlinkable content
// sets. Scoring delegates to the Candidate Scorer with the per-item cap.
// In preview mode the ranked candidates are returned untouched, with no
// writes and no invalidation. In commit mode each candidate is applied independently;
// a failed candidate is recorded and the run continues. After the last
// apply, one batched invalidation covers exactly the links that were
// created.
//
// Failure semantics:
//   - Collecting or Scoring failure is fatal to the run (no partial result).
//   - An Applying failure is isolated to its candidate.
//   - Cancellation stops the run at the next boundary but never rolls back
//     links already committed (writes are not transactional across
//     candidates).
package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/geofora/forumlink/pkg/apply"
	"github.com/geofora/forumlink/pkg/content"
	"github.com/geofora/forumlink/pkg/registry"
	"github.com/geofora/forumlink/pkg/relevance"
	"github.com/geofora/forumlink/pkg/scorer"
	"github.com/geofora/forumlink/pkg/viewcache"
)

// Phase names one state of the strategy run state machine.
type Phase string

// Run phases, in execution order.
const (
	PhaseCollecting    Phase = "collecting"
	PhaseScoring       Phase = "scoring"
	PhaseApplying      Phase = "applying"
	PhaseInvalidating  Phase = "invalidating"
	PhaseDonePreview   Phase = "done_preview"
	PhaseDoneCommitted Phase = "done_committed"
)

// Defaults for RunOptions zero values.
const (
	DefaultPerItemCap   = scorer.DefaultMaxPerItem
	DefaultContentLimit = content.DefaultListLimit
	DefaultConcurrency  = 4
)

// ForumContent lists a forum's interlinkable content.
type ForumContent interface {
	ListForumInterlinkable(ctx context.Context, forumID int64, limit int) ([]content.Item, error)
}

// SiteContent lists the main site's interlinkable pages.
type SiteContent interface {
	ListInterlinkable(ctx context.Context, source content.Source, limit int) ([]content.Item, error)
}

// RunOptions tunes one strategy run. The zero value applies all defaults.
type RunOptions struct {
	// PreviewOnly computes and returns candidates without writing.
	PreviewOnly bool
	// PerItemCap bounds suggestions per content item (default 3).
	PerItemCap int
	// ContentLimit bounds each collected pool (default 20).
	ContentLimit int
	// Concurrency bounds parallel candidate applies (default 4).
	Concurrency int
}

func (o RunOptions) withDefaults() RunOptions {
	if o.PerItemCap == 0 {
		o.PerItemCap = DefaultPerItemCap
	}
	if o.ContentLimit <= 0 {
		o.ContentLimit = DefaultContentLimit
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// CandidateFailure records one candidate that could not be applied.
type CandidateFailure struct {
	Candidate relevance.Candidate `json:"candidate"`
	Reason    string              `json:"reason"`
}

// Summary counts per-candidate outcomes of the Applying phase.
type Summary struct {
	// CandidatesScored is how many candidates the scorer produced.
	CandidatesScored int `json:"candidates_scored"`
	// Succeeded candidates created every link they asked for.
	Succeeded int `json:"succeeded"`
	// Partial candidates created the forward link but the reverse failed.
	Partial int `json:"partial"`
	// Failed candidates created nothing.
	Failed int `json:"failed"`
	// SkippedDuplicates were dropped by the pre-write existence check.
	SkippedDuplicates int `json:"skipped_duplicates"`
	// CreatedLinks is the total number of interlink rows written.
	CreatedLinks int `json:"created_links"`
}

// RunResult is the outcome of one strategy run.
type RunResult struct {
	ForumID     int64 `json:"forum_id"`
	PreviewOnly bool  `json:"preview_only"`
	Phase       Phase `json:"phase"`

	// Candidates is the ranked suggestion list (always populated; in
	// preview mode it is the entire result).
	Candidates []relevance.Candidate `json:"candidates"`

	// Commit-mode results.
	Created  []*registry.Interlink `json:"created,omitempty"`
	Failures []CandidateFailure    `json:"failures,omitempty"`

	Summary Summary `json:"summary"`
}

// Orchestrator coordinates collecting, scoring, applying, and invalidation.
type Orchestrator struct {
	forum       ForumContent
	site        SiteContent
	scorer      *scorer.Scorer
	applier     *apply.Applier
	store       registry.Store
	coordinator *viewcache.Coordinator
}

// New creates an Orchestrator.
//
// store is used only for the pre-write duplicate existence check; all
// writes go through the applier. coordinator may be nil, in which case
// commit-mode runs skip invalidation (useful for tests without a cache).
func New(forum ForumContent, site SiteContent, sc *scorer.Scorer, ap *apply.Applier, store registry.Store, coord *viewcache.Coordinator) *Orchestrator {
	return &Orchestrator{
		forum:       forum,
		site:        site,
		scorer:      sc,
		applier:     ap,
		store:       store,
		coordinator: coord,
	}
}

// Run executes one strategy run for the given forum.
//
// Preview runs return the ranked candidates and never touch the registry.
// Commit runs apply each candidate independently, surface per-candidate
// failures in the result, and fire one batched invalidation covering the
// links that were actually created.
//
// Cancellation is honored at phase boundaries and between applies; a
// cancelled commit run returns the partial result together with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, forumID int64, opts RunOptions) (*RunResult, error) {
	opts = opts.withDefaults()

	result := &RunResult{
		ForumID:     forumID,
		PreviewOnly: opts.PreviewOnly,
		Phase:       PhaseCollecting,
	}

	// Collecting. Either pool failing is fatal, no partial runs.
	forumItems, err := o.forum.ListForumInterlinkable(ctx, forumID, opts.ContentLimit)
	if err != nil {
		return result, fmt.Errorf("collecting forum %d content: %w", forumID, err)
	}
	siteItems, err := o.site.ListInterlinkable(ctx, content.SourceMainSite, opts.ContentLimit)
	if err != nil {
		return result, fmt.Errorf("collecting main site content: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Scoring.
	result.Phase = PhaseScoring
	candidates, err := o.scorer.Score(ctx, forumItems, siteItems, opts.PerItemCap)
	if err != nil {
		return result, fmt.Errorf("scoring forum %d: %w", forumID, err)
	}
	result.Candidates = candidates
	result.Summary.CandidatesScored = len(candidates)

	if opts.PreviewOnly {
		result.Phase = PhaseDonePreview
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Applying. Candidates are independent and order-insensitive, so they
	// fan out across workers; accumulation is indexed by candidate so the
	// result stays deterministic regardless of completion order.
	result.Phase = PhaseApplying
	outcomes := o.applyAll(ctx, candidates, opts.Concurrency)

	for _, oc := range outcomes {
		switch {
		case oc.skipped:
			result.Summary.SkippedDuplicates++
		case oc.err != nil:
			result.Summary.Failed++
			result.Failures = append(result.Failures, CandidateFailure{
				Candidate: oc.candidate,
				Reason:    oc.err.Error(),
			})
		case oc.result.Outcome == apply.OutcomeReverseFailed:
			result.Summary.Partial++
			result.Created = append(result.Created, oc.result.Forward)
			result.Failures = append(result.Failures, CandidateFailure{
				Candidate: oc.candidate,
				Reason:    oc.result.ReverseErr.Error(),
			})
		default:
			result.Summary.Succeeded++
			result.Created = append(result.Created, oc.result.Links()...)
		}
	}
	result.Summary.CreatedLinks = len(result.Created)

	// Invalidating. One batched call for the whole run, covering only the
	// links that were created.
	if len(result.Created) > 0 && o.coordinator != nil {
		result.Phase = PhaseInvalidating
		o.coordinator.InvalidateLinks(result.Created)
	}

	result.Phase = PhaseDoneCommitted
	if err := ctx.Err(); err != nil {
		// Cancelled mid-apply: committed links stand, caller sees both.
		return result, err
	}
	return result, nil
}

// applyOutcome is the per-candidate record accumulated by applyAll.
type applyOutcome struct {
	candidate relevance.Candidate
	result    *apply.Result
	err       error
	skipped   bool
}

// applyAll applies candidates with bounded concurrency. Each worker checks
// for an existing identical link first, then applies; a cancelled context
// stops workers from picking up further candidates.
func (o *Orchestrator) applyAll(ctx context.Context, candidates []relevance.Candidate, concurrency int) []applyOutcome {
	outcomes := make([]applyOutcome, len(candidates))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = o.applyOne(ctx, candidates[idx])
			}
		}()
	}

feed:
	for idx := range candidates {
		select {
		case <-ctx.Done():
			// Mark everything not yet fed as failed-by-cancellation.
			for rest := idx; rest < len(candidates); rest++ {
				outcomes[rest] = applyOutcome{candidate: candidates[rest], err: ctx.Err()}
			}
			break feed
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func (o *Orchestrator) applyOne(ctx context.Context, cand relevance.Candidate) applyOutcome {
	if err := ctx.Err(); err != nil {
		return applyOutcome{candidate: cand, err: err}
	}

	// Duplicate prevention is advisory: this check races with concurrent
	// runs, which the design accepts in lieu of a registry constraint.
	exists, err := o.store.Exists(ctx, cand.Source, cand.Target)
	if err != nil {
		return applyOutcome{candidate: cand, err: err}
	}
	if exists {
		return applyOutcome{candidate: cand, skipped: true}
	}

	res, err := o.applier.Apply(ctx, cand, apply.Automatic)
	if err != nil {
		return applyOutcome{candidate: cand, err: err}
	}
	return applyOutcome{candidate: cand, result: res}
}
