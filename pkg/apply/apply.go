// Package apply materializes accepted link candidates into registry rows.
//
// A candidate yields one or two Interlinks: the forward link always, and a
// derived reverse link when the candidate is flagged bidirectional. The
// reverse direction is NOT re-scored by the relevance collaborator, since
// the forward candidate already captured the semantic judgment; its anchor
// text is derived locally from the source title.
//
// Failure semantics are asymmetric:
//   - Forward write fails: nothing is created, the apply fails whole.
//   - Reverse write fails: the forward link stands, and the result reports
//     the partial outcome so callers can distinguish "both created",
//     "forward only as requested", and "forward created, reverse failed".
//
// Example Usage:
//
//	applier := apply.New(store)
//
//	result, err := applier.Apply(ctx, cand, apply.Automatic)
//	if err != nil {
//		return err // forward write failed, nothing persisted
//	}
//	switch result.Outcome {
//	case apply.OutcomeBoth:
//		fmt.Printf("created %d and %d\n", result.Forward.ID, result.Reverse.ID)
//	case apply.OutcomeForwardOnly:
//		fmt.Printf("created %d\n", result.Forward.ID)
//	case apply.OutcomeReverseFailed:
//		fmt.Printf("created %d, reverse failed: %v\n", result.Forward.ID, result.ReverseErr)
//	}
package apply

import (
	"context"
	"fmt"

	"github.com/geofora/forumlink/pkg/registry"
	"github.com/geofora/forumlink/pkg/relevance"
)

// ReverseAnchorLimit caps the derived reverse anchor text. The reverse
// anchor is the exact prefix of the source title: no ellipsis, no trimming
// beyond the cut.
const ReverseAnchorLimit = 40

// Mode records who asked for the apply, carried onto the created rows.
type Mode bool

const (
	// Automatic marks links created by a strategy run.
	Automatic Mode = true
	// Manual marks links created by a direct user action.
	Manual Mode = false
)

// Outcome classifies what an Apply call created.
type Outcome string

const (
	// OutcomeBoth: forward and reverse links both created.
	OutcomeBoth Outcome = "both"
	// OutcomeForwardOnly: candidate was not bidirectional; forward created.
	OutcomeForwardOnly Outcome = "forward_only"
	// OutcomeReverseFailed: forward created, reverse write failed.
	OutcomeReverseFailed Outcome = "reverse_failed"
)

// Result reports the links an Apply call created.
type Result struct {
	Forward *registry.Interlink
	Reverse *registry.Interlink // nil unless Outcome is OutcomeBoth
	Outcome Outcome
	// ReverseErr holds the reverse write error when Outcome is
	// OutcomeReverseFailed.
	ReverseErr error
}

// Links returns the created interlinks, forward first.
func (r *Result) Links() []*registry.Interlink {
	if r.Reverse != nil {
		return []*registry.Interlink{r.Forward, r.Reverse}
	}
	return []*registry.Interlink{r.Forward}
}

// Applier writes accepted candidates into the Link Registry.
type Applier struct {
	store registry.Store
}

// New creates an Applier over the given registry store.
func New(store registry.Store) *Applier {
	return &Applier{store: store}
}

// Apply creates the forward Interlink for cand, and the reverse Interlink
// too when cand.Bidirectional is set.
//
// Both rows share the candidate's relevance score and carry automatic=true
// for strategy-run applies, automatic=false for direct user actions.
//
// Returns registry.ErrWriteFailed (wrapped) when the forward write fails;
// nothing is persisted in that case. A reverse failure does not return an
// error; it is reported through Result.Outcome and Result.ReverseErr.
func (a *Applier) Apply(ctx context.Context, cand relevance.Candidate, mode Mode) (*Result, error) {
	forward := &registry.Interlink{
		SourceType:     cand.Source.Type,
		SourceID:       cand.Source.ID,
		TargetType:     cand.Target.Type,
		TargetID:       cand.Target.ID,
		AnchorText:     cand.AnchorText,
		RelevanceScore: cand.RelevanceScore,
		Automatic:      bool(mode),
	}

	created, err := a.store.Create(ctx, forward)
	if err != nil {
		return nil, fmt.Errorf("forward link %s -> %s: %w", cand.Source, cand.Target, err)
	}

	result := &Result{Forward: created, Outcome: OutcomeForwardOnly}
	if !cand.Bidirectional {
		return result, nil
	}

	reverse := &registry.Interlink{
		SourceType:     cand.Target.Type,
		SourceID:       cand.Target.ID,
		TargetType:     cand.Source.Type,
		TargetID:       cand.Source.ID,
		AnchorText:     ReverseAnchor(cand.SourceTitle),
		RelevanceScore: cand.RelevanceScore,
		Automatic:      bool(mode),
	}

	createdReverse, err := a.store.Create(ctx, reverse)
	if err != nil {
		result.Outcome = OutcomeReverseFailed
		result.ReverseErr = fmt.Errorf("reverse link %s -> %s: %w", cand.Target, cand.Source, err)
		return result, nil
	}

	result.Reverse = createdReverse
	result.Outcome = OutcomeBoth
	return result, nil
}

// ReverseAnchor derives the reverse link's anchor text from the source
// title: the exact first ReverseAnchorLimit runes, no ellipsis.
func ReverseAnchor(sourceTitle string) string {
	runes := []rune(sourceTitle)
	if len(runes) <= ReverseAnchorLimit {
		return sourceTitle
	}
	return string(runes[:ReverseAnchorLimit])
}
