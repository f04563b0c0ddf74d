package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPConfig holds HTTP provider configuration.
//
// Fields:
//   - BaseURL: Base URL of the content service (e.g., http://localhost:8081)
//   - Path: Endpoint path (default /content/interlinkable)
//   - APIKey: Optional bearer token
//   - Timeout: HTTP request timeout
type HTTPConfig struct {
	BaseURL string
	Path    string
	APIKey  string
	Timeout time.Duration
}

// DefaultHTTPConfig returns configuration for a local content service.
func DefaultHTTPConfig(baseURL string) *HTTPConfig {
	return &HTTPConfig{
		BaseURL: baseURL,
		Path:    "/content/interlinkable",
		Timeout: 15 * time.Second,
	}
}

// HTTPProvider pulls interlinkable content over HTTP.
//
// The provider expects a JSON array of items:
//
//	[{"type": "question", "id": 1, "title": "How to SEO"}, ...]
//
// Any transport failure, non-200 status, or malformed payload is surfaced
// as ErrContentUnavailable: the run treats the pool as unreachable rather
// than proceeding on partial data.
//
// Thread-safe: can be used concurrently from multiple goroutines.
type HTTPProvider struct {
	config *HTTPConfig
	client *http.Client
}

// NewHTTPProvider creates an HTTP-backed content provider.
//
// If config is nil the caller must have a local content service on the
// default URL; prefer passing an explicit config.
func NewHTTPProvider(config *HTTPConfig) *HTTPProvider {
	if config == nil {
		config = DefaultHTTPConfig("http://localhost:8081")
	}
	if config.Path == "" {
		config.Path = "/content/interlinkable"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &HTTPProvider{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// itemPayload is the wire format for a single interlinkable item.
type itemPayload struct {
	Type  string `json:"type"`
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// ListInterlinkable fetches up to limit items for the given source.
func (p *HTTPProvider) ListInterlinkable(ctx context.Context, source Source, limit int) ([]Item, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidArgument, source)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := url.Values{}
	q.Set("source", string(source))
	q.Set("limit", strconv.Itoa(limit))
	return p.fetch(ctx, q, limit)
}

// fetch performs the interlinkable content request and decodes the result.
func (p *HTTPProvider) fetch(ctx context.Context, q url.Values, limit int) ([]Item, error) {
	reqURL := p.config.BaseURL + p.config.Path + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: content service returned %d: %s",
			ErrContentUnavailable, resp.StatusCode, string(body))
	}

	var payload []itemPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrContentUnavailable, err)
	}

	items := make([]Item, 0, len(payload))
	for _, it := range payload {
		ct := ContentType(it.Type)
		if !ct.Valid() {
			return nil, fmt.Errorf("%w: unknown content type %q in response",
				ErrContentUnavailable, it.Type)
		}
		items = append(items, Item{
			Ref:   Ref{Type: ct, ID: it.ID},
			Title: it.Title,
		})
	}

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ListForumInterlinkable fetches up to limit items for one forum by adding
// a forum_id parameter to the interlinkable content query.
func (p *HTTPProvider) ListForumInterlinkable(ctx context.Context, forumID int64, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := url.Values{}
	q.Set("source", string(SourceForum))
	q.Set("forum_id", strconv.FormatInt(forumID, 10))
	q.Set("limit", strconv.Itoa(limit))
	return p.fetch(ctx, q, limit)
}
