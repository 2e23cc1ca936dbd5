// Package meili wraps the Meilisearch HTTP API for index configuration,
// document sync, and filtered search.
package meili

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "http://127.0.0.1:7700"

// Client defines the Meilisearch operations used by this application.
type Client interface {
	Health(ctx context.Context) error
	Search(ctx context.Context, index string, req SearchRequest) (*SearchResponse, error)
	AddDocuments(ctx context.Context, index string, docs any) (*TaskInfo, error)
	UpdateSettings(ctx context.Context, index string, settings Settings) (*TaskInfo, error)
	Stats(ctx context.Context, index string) (*IndexStats, error)
}

// SearchRequest is the body for POST /indexes/{index}/search.
type SearchRequest struct {
	Query  string   `json:"q"`
	Filter string   `json:"filter,omitempty"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset,omitempty"`
	Sort   []string `json:"sort,omitempty"`
}

// SearchResponse is the engine's search result page.
type SearchResponse struct {
	Hits               []json.RawMessage `json:"hits"`
	EstimatedTotalHits int               `json:"estimatedTotalHits"`
	ProcessingTimeMs   int               `json:"processingTimeMs"`
}

// Settings is the subset of index settings this application manages. The
// distinct attribute carries the canonical-key deduplication contract.
type Settings struct {
	SearchableAttributes []string `json:"searchableAttributes,omitempty"`
	FilterableAttributes []string `json:"filterableAttributes,omitempty"`
	SortableAttributes   []string `json:"sortableAttributes,omitempty"`
	DistinctAttribute    *string  `json:"distinctAttribute,omitempty"`
}

// TaskInfo is the async task handle returned by write operations.
type TaskInfo struct {
	TaskUID int64  `json:"taskUid"`
	Status  string `json:"status"`
}

// IndexStats is the response from GET /indexes/{index}/stats.
type IndexStats struct {
	NumberOfDocuments int64 `json:"numberOfDocuments"`
	IsIndexing        bool  `json:"isIndexing"`
}

// APIError is returned when the engine responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meili: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds each engine call. Search latency must stay interactive;
// the orchestrator falls back instead of retrying.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit throttles engine calls client-side. Zero disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Meilisearch client. apiKey may be empty for an
// unsecured instance.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "meili: rate limit")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "meili: marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrapf(err, "meili: build request %s", path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "meili: %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "meili: read response %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return eris.Wrapf(err, "meili: decode response %s", path)
		}
	}
	return nil
}

// Health checks engine availability.
func (c *httpClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Search runs a filtered query against one index.
func (c *httpClient) Search(ctx context.Context, index string, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/indexes/"+index+"/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddDocuments adds or replaces documents in one index.
func (c *httpClient) AddDocuments(ctx context.Context, index string, docs any) (*TaskInfo, error) {
	var task TaskInfo
	if err := c.do(ctx, http.MethodPost, "/indexes/"+index+"/documents", docs, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateSettings pushes searchable/filterable/sortable/distinct settings.
func (c *httpClient) UpdateSettings(ctx context.Context, index string, settings Settings) (*TaskInfo, error) {
	var task TaskInfo
	if err := c.do(ctx, http.MethodPatch, "/indexes/"+index+"/settings", settings, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Stats returns document counts for one index.
func (c *httpClient) Stats(ctx context.Context, index string) (*IndexStats, error) {
	var stats IndexStats
	if err := c.do(ctx, http.MethodGet, "/indexes/"+index+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
