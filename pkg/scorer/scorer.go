// Package scorer produces ranked link candidates from two content pools.
//
// The scorer delegates the semantic judgment to the relevance collaborator
// and owns everything around it: input validation, the per-item suggestion
// cap, and deterministic ordering. Given identical pools and an identical
// collaborator response, the output ordering is fully reproducible, which is
// what makes strategy runs testable against a stubbed ranker.
//
// Ranking rules, applied per source item:
//   - Descending relevance score
//   - Ties: shorter target title first
//   - Still tied: ascending target ID
//
// Example Usage:
//
//	s := scorer.New(ranker)
//
//	candidates, err := s.Score(ctx, forumItems, siteItems, 3)
//	if err != nil {
//		return err
//	}
//	for _, c := range candidates {
//		fmt.Printf("%s -> %s (%.2f) %q\n", c.Source, c.Target, c.RelevanceScore, c.AnchorText)
//	}
package scorer

import (
	"context"
	"fmt"
	"sort"

	"github.com/geofora/forumlink/pkg/content"
	"github.com/geofora/forumlink/pkg/relevance"
)

// DefaultMaxPerItem is the per-source suggestion cap when callers pass 0.
const DefaultMaxPerItem = 3

// Scorer ranks link candidates between two content pools.
//
// The scorer is pure with respect to the Link Registry: it never reads or
// writes links. Its only side effect is the network call to the relevance
// collaborator, bounded by that client's timeout.
type Scorer struct {
	ranker relevance.Ranker
}

// New creates a Scorer over the given relevance collaborator.
func New(ranker relevance.Ranker) *Scorer {
	return &Scorer{ranker: ranker}
}

// Score returns at most maxPerItem candidates per item in poolA, targeting
// items in poolB, in deterministic rank order.
//
// maxPerItem must be >= 1; anything lower fails with
// content.ErrInvalidArgument before any I/O. Callers wanting the default cap
// pass DefaultMaxPerItem explicitly. A collaborator failure is surfaced as
// relevance.ErrScoringUnavailable.
func (s *Scorer) Score(ctx context.Context, poolA, poolB []content.Item, maxPerItem int) ([]relevance.Candidate, error) {
	if maxPerItem < 1 {
		return nil, fmt.Errorf("%w: maxPerItem must be >= 1, got %d",
			content.ErrInvalidArgument, maxPerItem)
	}
	if len(poolA) == 0 || len(poolB) == 0 {
		return nil, nil
	}

	ranked, err := s.ranker.Rank(ctx, poolA, poolB, maxPerItem)
	if err != nil {
		return nil, err
	}

	return CapAndOrder(ranked, maxPerItem), nil
}

// CapAndOrder applies the per-source cap and deterministic ordering to a raw
// collaborator response.
//
// Exposed separately so callers holding pre-ranked candidates (e.g. replayed
// fixtures) get the same bounding and ordering as a live scoring call.
func CapAndOrder(candidates []relevance.Candidate, maxPerItem int) []relevance.Candidate {
	bySource := make(map[content.Ref][]relevance.Candidate)
	var sourceOrder []content.Ref
	for _, cand := range candidates {
		if _, seen := bySource[cand.Source]; !seen {
			sourceOrder = append(sourceOrder, cand.Source)
		}
		bySource[cand.Source] = append(bySource[cand.Source], cand)
	}

	out := make([]relevance.Candidate, 0, len(candidates))
	for _, source := range sourceOrder {
		group := bySource[source]
		sort.SliceStable(group, func(i, j int) bool {
			return candidateLess(group[i], group[j])
		})
		if len(group) > maxPerItem {
			group = group[:maxPerItem]
		}
		out = append(out, group...)
	}

	// Global ordering across sources follows the same rules so the full
	// sequence reads best-first regardless of which source produced it.
	sort.SliceStable(out, func(i, j int) bool {
		return candidateLess(out[i], out[j])
	})
	return out
}

// candidateLess is the canonical candidate ordering: descending score,
// shorter target title, ascending target ID, then source identity as the
// final arbiter so equal candidates from different sources stay stable.
func candidateLess(a, b relevance.Candidate) bool {
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	if len(a.TargetTitle) != len(b.TargetTitle) {
		return len(a.TargetTitle) < len(b.TargetTitle)
	}
	if a.Target.ID != b.Target.ID {
		return a.Target.ID < b.Target.ID
	}
	if a.Source.ID != b.Source.ID {
		return a.Source.ID < b.Source.ID
	}
	return a.Source.Type < b.Source.Type
}
