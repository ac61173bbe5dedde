// Package remote is a catalog backend that talks to the listings HTTP API.
// It is what the terminal browser runs against.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ffimoveis/imoveis/internal/bounds"
	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/domain"
	"github.com/ffimoveis/imoveis/internal/urlsync"
	"github.com/ffimoveis/imoveis/pkg/httpclient"
)

const peer = "listings api"

// SearchResult is the payload of GET /api/v1/properties.
type SearchResult struct {
	Properties []domain.PropertyRecord `json:"properties"`
	Total      int                     `json:"total"`
	Filters    domain.SearchFilters    `json:"filters"`
	Bounds     domain.Bounds           `json:"bounds"`
	Query      string                  `json:"query"`
}

// envelope decodes the data member straight into the caller's value.
type envelope struct {
	Data any `json:"data"`
}

// Catalog implements catalog.Catalog, catalog.Searcher, catalog.Writer and
// catalog.NeighborhoodLister over HTTP.
type Catalog struct {
	baseURL string
	client  httpclient.Doer
	logger  *slog.Logger
	// known holds the last bounds the server reported. Search leaves out
	// price edges sitting on them.
	known atomic.Pointer[domain.Bounds]
}

// New creates a remote catalog rooted at baseURL, e.g. http://localhost:8001.
func New(baseURL string, client httpclient.Doer, logger *slog.Logger) *Catalog {
	c := &Catalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
	c.remember(bounds.Placeholder())
	return c
}

// NewDefault wires an httpclient behind a circuit breaker. Transport retries
// are left to the breaker's caller: a failed search is reported, never
// replayed.
func NewDefault(baseURL string, cfg httpclient.Config, logger *slog.Logger) *Catalog {
	cfg.MaxRetries = 0
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg),
		httpclient.DefaultCircuitBreakerConfig("listings-api"),
		logger,
	)
	return New(baseURL, cb, logger)
}

// FetchAllProperties returns every listing.
func (c *Catalog) FetchAllProperties(ctx context.Context) ([]domain.PropertyRecord, error) {
	var res SearchResult
	if err := c.get(ctx, "/api/v1/properties", nil, &res); err != nil {
		return nil, err
	}
	return res.Properties, nil
}

// Search sends the filters the way they appear in a shared URL. A price edge
// on the known bounds is left out and the server applies its own, so a
// search issued before the real bounds arrive is not capped by the
// placeholder.
func (c *Catalog) Search(ctx context.Context, f domain.SearchFilters) ([]domain.PropertyRecord, error) {
	res, err := c.SearchDetailed(ctx, f)
	if err != nil {
		return nil, err
	}
	return res.Properties, nil
}

// SearchDetailed returns the full search payload, including the server's
// canonical query string.
func (c *Catalog) SearchDetailed(ctx context.Context, f domain.SearchFilters) (*SearchResult, error) {
	q := urlsync.Serialize(f, c.KnownBounds())

	var res SearchResult
	if err := c.get(ctx, "/api/v1/properties", q, &res); err != nil {
		return nil, err
	}
	c.remember(res.Bounds)
	return &res, nil
}

// FetchPriceBounds returns the server's price bounds.
func (c *Catalog) FetchPriceBounds(ctx context.Context) (domain.Bounds, error) {
	var b domain.Bounds
	if err := c.get(ctx, "/api/v1/properties/bounds", nil, &b); err != nil {
		return domain.Bounds{}, err
	}
	c.remember(b)
	return b, nil
}

// KnownBounds returns the last bounds the server reported, or the
// placeholder before any arrived.
func (c *Catalog) KnownBounds() domain.Bounds {
	return *c.known.Load()
}

func (c *Catalog) remember(b domain.Bounds) {
	if b.Max <= b.Min {
		return
	}
	c.known.Store(&b)
}

// FetchLocations returns the location selector entries.
func (c *Catalog) FetchLocations(ctx context.Context) ([]domain.Location, error) {
	var locs []domain.Location
	if err := c.get(ctx, "/api/v1/locations", nil, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}

// FetchNeighborhoods returns the neighborhoods of a location.
func (c *Catalog) FetchNeighborhoods(ctx context.Context, locationID string) ([]domain.Neighborhood, error) {
	var ns []domain.Neighborhood
	path := "/api/v1/locations/" + url.PathEscape(locationID) + "/neighborhoods"
	if err := c.get(ctx, path, nil, &ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// GetProperty retrieves a single listing.
func (c *Catalog) GetProperty(ctx context.Context, id string) (*domain.PropertyRecord, error) {
	var r domain.PropertyRecord
	if err := c.get(ctx, "/api/v1/properties/"+url.PathEscape(id), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// writeBody is a listing without its server-assigned timestamps.
type writeBody struct {
	*domain.PropertyRecord
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// UpsertProperty creates or replaces a listing. record is replaced by the
// stored version.
func (c *Catalog) UpsertProperty(ctx context.Context, record *domain.PropertyRecord) error {
	body, err := json.Marshal(writeBody{PropertyRecord: record})
	if err != nil {
		return fmt.Errorf("marshal property: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/api/v1/properties/"+url.PathEscape(record.ID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create PUT request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var saved domain.PropertyRecord
	if err := c.do(ctx, req, &saved); err != nil {
		return err
	}
	*record = saved
	return nil
}

// DeleteProperty removes a listing.
func (c *Catalog) DeleteProperty(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/v1/properties/"+url.PathEscape(id), http.NoBody)
	if err != nil {
		return fmt.Errorf("create DELETE request: %w", err)
	}
	return c.do(ctx, req, nil)
}

func (c *Catalog) get(ctx context.Context, path string, query url.Values, dst any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("create GET request: %w", err)
	}
	return c.do(ctx, req, dst)
}

// do executes req and decodes the data member of the envelope into dst.
// Transport and 5xx failures come back from the breaker wrapping
// ErrServiceUnavail.
func (c *Catalog) do(ctx context.Context, req *http.Request, dst any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		c.logger.WarnContext(ctx, "listings api request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return catalog.FetchFailure(strings.TrimPrefix(req.URL.Path, "/api/v1/"), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, peer)
	}
	defer func() { _ = resp.Body.Close() }()

	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	env := envelope{Data: dst}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
