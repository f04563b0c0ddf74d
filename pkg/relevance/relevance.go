// Package relevance defines the boundary to the external semantic-relevance
// collaborator.
//
// The interlinking core does no semantic reasoning of its own: an externally
// hosted service (LLM or embedding backed) judges which targets each source
// should link to and with what anchor text. This package owns that contract:
// the Ranker interface, a typed HTTP client, and the failure mapping.
//
// The wire contract is strongly typed on purpose. Responses are strictly
// decoded and validated; anything malformed fails the scoring call with
// ErrScoringUnavailable instead of letting undefined fields leak into the
// candidate pipeline.
//
// Example Usage:
//
//	ranker := relevance.NewHTTPRanker(relevance.DefaultHTTPConfig("http://localhost:9090"))
//
//	candidates, err := ranker.Rank(ctx, forumItems, siteItems, 3)
//	if err != nil {
//		if errors.Is(err, relevance.ErrScoringUnavailable) {
//			// Scorer down or slow; caller may retry the whole run.
//		}
//		return err
//	}
package relevance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/geofora/forumlink/pkg/content"
)

// ErrScoringUnavailable indicates the relevance collaborator timed out,
// errored, or returned a malformed response. Fatal to the current scoring
// call; the caller may retry the whole run.
var ErrScoringUnavailable = errors.New("relevance scoring unavailable")

// Candidate is a scored, unpersisted link suggestion.
//
// A candidate has no identity beyond its (source, target) pair within a
// single scoring run. It is either applied (becoming one or two registry
// rows) or returned to a caller in preview mode and discarded.
type Candidate struct {
	Source           content.Ref `json:"source"`
	SourceTitle      string      `json:"source_title"`
	Target           content.Ref `json:"target"`
	TargetTitle      string      `json:"target_title"`
	AnchorText       string      `json:"anchor_text"`
	RelevanceScore   float64     `json:"relevance_score"`
	ContextRelevance string      `json:"context_relevance"`
	Bidirectional    bool        `json:"bidirectional"`
}

// Ranker asks the external collaborator to rank candidate targets for each
// source item.
//
// Implementations must be safe for concurrent use. Network-bound
// implementations must enforce a timeout and map failures to
// ErrScoringUnavailable.
type Ranker interface {
	// Rank returns scored candidates connecting sources to targets, at most
	// maxPerItem per source item. Order within the result is the
	// collaborator's; the Candidate Scorer re-sorts deterministically.
	Rank(ctx context.Context, sources, targets []content.Item, maxPerItem int) ([]Candidate, error)
}

// HTTPConfig holds relevance service configuration.
type HTTPConfig struct {
	// BaseURL of the relevance service (e.g., http://localhost:9090)
	BaseURL string
	// Path is the rank endpoint (default /v1/rank)
	Path string
	// APIKey is an optional bearer token
	APIKey string
	// Timeout bounds each rank request
	Timeout time.Duration
}

// DefaultHTTPConfig returns configuration for a relevance service at baseURL.
//
// Default settings:
//   - Path: /v1/rank
//   - Timeout: 30 seconds
func DefaultHTTPConfig(baseURL string) *HTTPConfig {
	return &HTTPConfig{
		BaseURL: baseURL,
		Path:    "/v1/rank",
		Timeout: 30 * time.Second,
	}
}

// HTTPRanker implements Ranker against the hosted relevance service.
//
// Thread-safe: can be used concurrently from multiple goroutines.
type HTTPRanker struct {
	config *HTTPConfig
	client *http.Client
}

// NewHTTPRanker creates a ranker for the configured relevance service.
//
// If config is nil, DefaultHTTPConfig("http://localhost:9090") is used.
func NewHTTPRanker(config *HTTPConfig) *HTTPRanker {
	if config == nil {
		config = DefaultHTTPConfig("http://localhost:9090")
	}
	if config.Path == "" {
		config.Path = "/v1/rank"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &HTTPRanker{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// rankRequest is the request format for the relevance service.
type rankRequest struct {
	Sources    []content.Item `json:"sources"`
	Targets    []content.Item `json:"targets"`
	MaxPerItem int            `json:"max_per_item"`
}

// rankCandidate is the wire format of one scored suggestion.
type rankCandidate struct {
	SourceType       string  `json:"source_type"`
	SourceID         int64   `json:"source_id"`
	TargetType       string  `json:"target_type"`
	TargetID         int64   `json:"target_id"`
	AnchorText       string  `json:"anchor_text"`
	RelevanceScore   float64 `json:"relevance_score"`
	ContextRelevance string  `json:"context_relevance"`
	Bidirectional    bool    `json:"bidirectional"`
}

// rankResponse is the response format from the relevance service.
type rankResponse struct {
	Candidates []rankCandidate `json:"candidates"`
}

// Rank sends the two pools to the relevance service and decodes its answer.
func (r *HTTPRanker) Rank(ctx context.Context, sources, targets []content.Item, maxPerItem int) ([]Candidate, error) {
	req := rankRequest{
		Sources:    sources,
		Targets:    targets,
		MaxPerItem: maxPerItem,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rank request: %w", err)
	}

	url := r.config.BaseURL + r.config.Path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rank request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: relevance service returned %d: %s",
			ErrScoringUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var rankResp rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rankResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrScoringUnavailable, err)
	}

	titles := titleIndex(sources, targets)

	candidates := make([]Candidate, 0, len(rankResp.Candidates))
	for i, rc := range rankResp.Candidates {
		cand, err := rc.toCandidate(titles)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate %d: %v", ErrScoringUnavailable, i, err)
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// titleIndex maps refs back to the titles the caller supplied, so wire
// responses don't need to echo titles and can't rewrite them.
func titleIndex(pools ...[]content.Item) map[content.Ref]string {
	idx := make(map[content.Ref]string)
	for _, pool := range pools {
		for _, item := range pool {
			idx[item.Ref] = item.Title
		}
	}
	return idx
}

// toCandidate validates one wire candidate into the typed form.
func (rc rankCandidate) toCandidate(titles map[content.Ref]string) (Candidate, error) {
	sourceType := content.ContentType(rc.SourceType)
	targetType := content.ContentType(rc.TargetType)
	if !sourceType.Valid() {
		return Candidate{}, fmt.Errorf("unknown source type %q", rc.SourceType)
	}
	if !targetType.Valid() {
		return Candidate{}, fmt.Errorf("unknown target type %q", rc.TargetType)
	}
	if rc.AnchorText == "" {
		return Candidate{}, errors.New("missing anchor text")
	}

	source := content.Ref{Type: sourceType, ID: rc.SourceID}
	target := content.Ref{Type: targetType, ID: rc.TargetID}

	sourceTitle, ok := titles[source]
	if !ok {
		return Candidate{}, fmt.Errorf("source %s not in request pools", source)
	}
	targetTitle, ok := titles[target]
	if !ok {
		return Candidate{}, fmt.Errorf("target %s not in request pools", target)
	}

	return Candidate{
		Source:           source,
		SourceTitle:      sourceTitle,
		Target:           target,
		TargetTitle:      targetTitle,
		AnchorText:       rc.AnchorText,
		RelevanceScore:   clampScore(rc.RelevanceScore),
		ContextRelevance: rc.ContextRelevance,
		Bidirectional:    rc.Bidirectional,
	}, nil
}

// clampScore bounds a relevance score to [0, 1].
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// StaticRanker returns canned candidates, for tests and the CLI demo mode.
//
// The configured candidates are filtered to those whose source appears in
// the request's source pool, mimicking how the real service only scores
// what it was asked about.
type StaticRanker struct {
	// Candidates to serve, in configured order.
	Candidates []Candidate
	// Err, when set, is returned from every Rank call.
	Err error
}

// Rank returns the configured candidates for sources present in the request.
func (s *StaticRanker) Rank(_ context.Context, sources, _ []content.Item, _ int) ([]Candidate, error) {
	if s.Err != nil {
		return nil, s.Err
	}

	inPool := make(map[content.Ref]struct{}, len(sources))
	for _, item := range sources {
		inPool[item.Ref] = struct{}{}
	}

	var out []Candidate
	for _, cand := range s.Candidates {
		if _, ok := inPool[cand.Source]; ok {
			out = append(out, cand)
		}
	}
	return out, nil
}
