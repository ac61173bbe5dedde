// Package elasticsearch is the Elasticsearch catalog backend. Filters are
// translated into a bool query whose hits equal in-process evaluation over
// FetchAllProperties.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/domain"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
)

// maxResults is the index.max_result_window default. Listings are not
// paginated.
const maxResults = 10000

// Catalog is an Elasticsearch-backed catalog.
type Catalog struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
	now       func() time.Time
}

type esHit struct {
	Source domain.PropertyRecord `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
	Aggregations json.RawMessage `json:"aggregations"`
}

type esGetResponse struct {
	Found  bool                  `json:"found"`
	Source domain.PropertyRecord `json:"_source"`
}

type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a catalog connected to esURL and makes sure the index
// exists. If indexName is empty, DefaultIndexName is used.
func New(ctx context.Context, esURL, indexName string, logger *slog.Logger) (*Catalog, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	c := &Catalog{
		client:    client,
		indexName: indexName,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if _, err := c.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index: %w", err)
	}
	return c, nil
}

// Ping checks whether the cluster is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	res, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the index with its mapping when missing. created
// reports whether it had to.
func (c *Catalog) EnsureIndex(ctx context.Context) (created bool, err error) {
	res, err := c.client.Indices.Exists([]string{c.indexName}, c.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		c.logger.Debug("elasticsearch index already exists", slog.String("index", c.indexName))
		return false, nil
	}

	res, err = c.client.Indices.Create(
		c.indexName,
		c.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		c.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return false, responseError("create index", res)
	}

	c.logger.Info("elasticsearch index created", slog.String("index", c.indexName))
	return true, nil
}

// FetchAllProperties returns every listing.
func (c *Catalog) FetchAllProperties(ctx context.Context) ([]domain.PropertyRecord, error) {
	resp, err := c.search(ctx, "fetch all properties", listingQuery(map[string]any{"match_all": map[string]any{}}))
	if err != nil {
		return nil, err
	}
	return resp.records(), nil
}

// Search returns the listings matching f.
func (c *Catalog) Search(ctx context.Context, f domain.SearchFilters) ([]domain.PropertyRecord, error) {
	resp, err := c.search(ctx, "search properties", listingQuery(buildFilterQuery(f)))
	if err != nil {
		return nil, err
	}
	return resp.records(), nil
}

// FetchPriceBounds returns the min/max price aggregate.
func (c *Catalog) FetchPriceBounds(ctx context.Context) (domain.Bounds, error) {
	body := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"min_price": map[string]any{"min": map[string]any{"field": "price"}},
			"max_price": map[string]any{"max": map[string]any{"field": "price"}},
		},
	}
	resp, err := c.search(ctx, "fetch price bounds", body)
	if err != nil {
		return domain.Bounds{}, err
	}

	var aggs struct {
		Min struct {
			Value *float64 `json:"value"`
		} `json:"min_price"`
		Max struct {
			Value *float64 `json:"value"`
		} `json:"max_price"`
	}
	if err := json.Unmarshal(resp.Aggregations, &aggs); err != nil {
		return domain.Bounds{}, fmt.Errorf("elasticsearch fetch price bounds: decode aggregations: %w", err)
	}
	if aggs.Min.Value == nil || aggs.Max.Value == nil {
		return domain.Bounds{}, catalog.ErrNoPrices
	}
	return domain.Bounds{Min: *aggs.Min.Value, Max: *aggs.Max.Value}, nil
}

// FetchLocations returns the locations referenced by at least one listing.
func (c *Catalog) FetchLocations(ctx context.Context) ([]domain.Location, error) {
	body := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"locations": map[string]any{
				"terms": map[string]any{"field": "location_id", "size": 1000},
				"aggs": map[string]any{
					"city": map[string]any{"terms": map[string]any{"field": "city.raw", "size": 1}},
				},
			},
		},
	}
	resp, err := c.search(ctx, "fetch locations", body)
	if err != nil {
		return nil, err
	}

	var aggs struct {
		Locations struct {
			Buckets []struct {
				Key  string `json:"key"`
				City struct {
					Buckets []struct {
						Key string `json:"key"`
					} `json:"buckets"`
				} `json:"city"`
			} `json:"buckets"`
		} `json:"locations"`
	}
	if err := json.Unmarshal(resp.Aggregations, &aggs); err != nil {
		return nil, fmt.Errorf("elasticsearch fetch locations: decode aggregations: %w", err)
	}

	locs := make([]domain.Location, 0, len(aggs.Locations.Buckets))
	for _, b := range aggs.Locations.Buckets {
		name := b.Key
		if len(b.City.Buckets) > 0 {
			name = b.City.Buckets[0].Key
		}
		locs = append(locs, domain.Location{ID: b.Key, DisplayName: name})
	}
	catalog.SortLocations(locs)
	return locs, nil
}

// GetProperty retrieves a listing by id.
func (c *Catalog) GetProperty(ctx context.Context, id string) (*domain.PropertyRecord, error) {
	res, err := c.client.Get(c.indexName, id, c.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("property", id)
	}
	if res.IsError() {
		return nil, responseError("elasticsearch get", res)
	}

	var doc esGetResponse
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("elasticsearch get: decode response: %w", err)
	}
	if !doc.Found {
		return nil, apperrors.NotFound("property", id)
	}
	return &doc.Source, nil
}

// UpsertProperty indexes a listing, keeping the creation time of an
// existing document.
func (c *Catalog) UpsertProperty(ctx context.Context, record *domain.PropertyRecord) error {
	existing, err := c.GetProperty(ctx, record.ID)
	switch {
	case err == nil:
		record.CreatedAt = existing.CreatedAt
	case !errors.Is(err, apperrors.ErrNotFound):
		return fmt.Errorf("elasticsearch upsert: %w", err)
	}
	catalog.PrepareForWrite(record, c.now())

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: marshal property: %w", err)
	}

	res, err := c.client.Index(
		c.indexName,
		bytes.NewReader(data),
		c.client.Index.WithDocumentID(record.ID),
		c.client.Index.WithRefresh("true"),
		c.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch upsert", res)
	}

	c.logger.Debug("indexed property", slog.String("property_id", record.ID))
	return nil
}

// DeleteProperty removes a listing from the index.
func (c *Catalog) DeleteProperty(ctx context.Context, id string) error {
	res, err := c.client.Delete(
		c.indexName,
		id,
		c.client.Delete.WithRefresh("true"),
		c.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return apperrors.NotFound("property", id)
	}
	if res.IsError() {
		return responseError("elasticsearch delete", res)
	}

	c.logger.Debug("deleted property", slog.String("property_id", id))
	return nil
}

// BulkIndex indexes records using the bulk NDJSON API.
func (c *Catalog) BulkIndex(ctx context.Context, records []domain.PropertyRecord) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		action := map[string]any{
			"index": map[string]any{"_index": c.indexName, "_id": records[i].ID},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := c.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.client.Bulk.WithIndex(c.indexName),
		c.client.Bulk.WithRefresh("true"),
		c.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch bulk index", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}
	if bulkResp.Errors {
		var msgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				msgs = append(msgs, fmt.Sprintf("id=%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch bulk index: partial errors: %s", strings.Join(msgs, "; "))
	}

	c.logger.Info("bulk indexed properties", slog.Int("count", len(records)))
	return nil
}

func (c *Catalog) search(ctx context.Context, op string, body map[string]any) (*esSearchResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s: marshal query: %w", op, err)
	}

	res, err := c.client.Search(
		c.client.Search.WithIndex(c.indexName),
		c.client.Search.WithBody(bytes.NewReader(data)),
		c.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("elasticsearch "+op, res)
	}

	var resp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("elasticsearch %s: decode response: %w", op, err)
	}
	return &resp, nil
}

func (r *esSearchResponse) records() []domain.PropertyRecord {
	out := make([]domain.PropertyRecord, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		out = append(out, h.Source)
	}
	return out
}

// listingQuery wraps query with the shared size and ordering.
func listingQuery(query map[string]any) map[string]any {
	return map[string]any{
		"query": query,
		"size":  maxResults,
		"sort": []any{
			map[string]any{"created_at": "asc"},
			map[string]any{"id": "asc"},
		},
	}
}

// buildFilterQuery translates filters into a bool query.
func buildFilterQuery(f domain.SearchFilters) map[string]any {
	filters := []any{
		map[string]any{
			"range": map[string]any{
				"price": map[string]any{"gte": f.PriceRange.Low, "lte": f.PriceRange.High},
			},
		},
	}

	if f.PropertyType != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"property_type": string(f.PropertyType)},
		})
	}

	if f.LocationID != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"location_id": f.LocationID},
		})
	}

	if f.Query != "" {
		pattern := "*" + escapeWildcard(strings.ToLower(f.Query)) + "*"
		should := make([]any, 0, 3)
		for _, field := range []string{"title", "neighborhood_name", "city"} {
			should = append(should, map[string]any{
				"wildcard": map[string]any{
					field: map[string]any{"value": pattern, "case_insensitive": true},
				},
			})
		}
		filters = append(filters, map[string]any{
			"bool": map[string]any{"should": should, "minimum_should_match": 1},
		})
	}

	return map[string]any{"bool": map[string]any{"filter": filters}}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(res.Body)
	var errResp esErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}
