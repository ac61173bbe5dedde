package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/domain"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
)

// ---------------------------------------------------------------------------
// fake cluster
// ---------------------------------------------------------------------------

type fakeCluster struct {
	mu          sync.Mutex
	indexExists bool
	created     bool
	docs        map[string]json.RawMessage
	lastSearch  map[string]any
	searchReply string
	bulkBody    string
	failStatus  int
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	fc := &fakeCluster{docs: make(map[string]json.RawMessage)}
	srv := httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(srv.Close)
	return fc, srv
}

func (fc *fakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	body, _ := io.ReadAll(r.Body)

	path := strings.TrimPrefix(r.URL.Path, "/"+DefaultIndexName)
	switch {
	case fc.failStatus != 0 && strings.HasSuffix(path, "/_search"):
		w.WriteHeader(fc.failStatus)
		_, _ = io.WriteString(w, `{"error":{"type":"search_phase_execution_exception","reason":"all shards failed"},"status":500}`)
	case r.Method == http.MethodHead && r.URL.Path == "/":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead && path == "":
		if fc.indexExists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && path == "":
		fc.indexExists, fc.created = true, true
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case strings.HasSuffix(path, "/_search"):
		fc.lastSearch = map[string]any{}
		_ = json.Unmarshal(body, &fc.lastSearch)
		_, _ = io.WriteString(w, fc.searchReply)
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		fc.bulkBody = string(body)
		_, _ = io.WriteString(w, `{"errors":false,"items":[]}`)
	case strings.HasPrefix(path, "/_doc/"):
		id := strings.TrimPrefix(path, "/_doc/")
		fc.serveDoc(w, r.Method, id, body)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (fc *fakeCluster) serveDoc(w http.ResponseWriter, method, id string, body []byte) {
	switch method {
	case http.MethodGet:
		doc, ok := fc.docs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"found":false}`)
			return
		}
		_, _ = w.Write([]byte(`{"found":true,"_source":` + string(doc) + `}`))
	case http.MethodPut, http.MethodPost:
		fc.docs[id] = body
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	case http.MethodDelete:
		if _, ok := fc.docs[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"result":"not_found"}`)
			return
		}
		delete(fc.docs, id)
		_, _ = io.WriteString(w, `{"result":"deleted"}`)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCatalog(t *testing.T) (*Catalog, *fakeCluster) {
	t.Helper()
	fc, srv := newFakeCluster(t)
	c, err := New(context.Background(), srv.URL, "", quietLogger())
	require.NoError(t, err)
	return c, fc
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestNew_CreatesMissingIndex(t *testing.T) {
	_, fc := newCatalog(t)
	assert.True(t, fc.created)
}

func TestCatalog_EnsureIndex_Existing(t *testing.T) {
	c, fc := newCatalog(t)
	fc.created = false

	created, err := c.EnsureIndex(context.Background())
	require.NoError(t, err)
	assert.False(t, created)
	assert.False(t, fc.created)
}

func TestCatalog_Ping(t *testing.T) {
	c, _ := newCatalog(t)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestCatalog_Search_BuildsFilterQuery(t *testing.T) {
	c, fc := newCatalog(t)
	fc.searchReply = `{"hits":{"total":{"value":1},"hits":[{"_source":{"id":"1","title":"Apartamento no Tatuapé","price":741000,"property_type":"apartamento","location_id":"sao-paulo"}}]}}`

	got, err := c.Search(context.Background(), domain.SearchFilters{
		Query:        "Tatuapé",
		PropertyType: domain.PropertyTypeApartment,
		LocationID:   "sao-paulo",
		PriceRange:   domain.PriceRange{Low: 700000, High: 1000000},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, domain.PropertyTypeApartment, got[0].PropertyType)

	assert.EqualValues(t, maxResults, fc.lastSearch["size"])
	filters := fc.lastSearch["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	require.Len(t, filters, 4)
	assert.Equal(t, map[string]any{"gte": float64(700000), "lte": float64(1000000)},
		filters[0].(map[string]any)["range"].(map[string]any)["price"])
	assert.Equal(t, map[string]any{"property_type": "apartamento"}, filters[1].(map[string]any)["term"])
	assert.Equal(t, map[string]any{"location_id": "sao-paulo"}, filters[2].(map[string]any)["term"])

	should := filters[3].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	require.Len(t, should, 3)
	title := should[0].(map[string]any)["wildcard"].(map[string]any)["title"].(map[string]any)
	assert.Equal(t, "*tatuapé*", title["value"])
	assert.Equal(t, true, title["case_insensitive"])
}

func TestBuildFilterQuery_PriceOnly(t *testing.T) {
	q := buildFilterQuery(domain.DefaultFilters(domain.DefaultBounds))
	filters := q["bool"].(map[string]any)["filter"].([]any)
	assert.Len(t, filters, 1)
}

func TestEscapeWildcard(t *testing.T) {
	assert.Equal(t, `casa\*\?\\`, escapeWildcard(`casa*?\`))
}

func TestCatalog_FetchAllProperties(t *testing.T) {
	c, fc := newCatalog(t)
	fc.searchReply = `{"hits":{"total":{"value":2},"hits":[{"_source":{"id":"1"}},{"_source":{"id":"2"}}]}}`

	got, err := c.FetchAllProperties(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[1].ID)
	assert.Contains(t, fc.lastSearch["query"], "match_all")
}

func TestCatalog_FetchPriceBounds(t *testing.T) {
	c, fc := newCatalog(t)
	fc.searchReply = `{"hits":{"total":{"value":3},"hits":[]},"aggregations":{"min_price":{"value":741000},"max_price":{"value":1200000}}}`

	b, err := c.FetchPriceBounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Bounds{Min: 741000, Max: 1200000}, b)
	assert.EqualValues(t, 0, fc.lastSearch["size"])
}

func TestCatalog_FetchPriceBounds_EmptyIndex(t *testing.T) {
	c, fc := newCatalog(t)
	fc.searchReply = `{"hits":{"total":{"value":0},"hits":[]},"aggregations":{"min_price":{"value":null},"max_price":{"value":null}}}`

	_, err := c.FetchPriceBounds(context.Background())
	assert.ErrorIs(t, err, catalog.ErrNoPrices)
}

func TestCatalog_FetchLocations(t *testing.T) {
	c, fc := newCatalog(t)
	fc.searchReply = `{"hits":{"hits":[]},"aggregations":{"locations":{"buckets":[
		{"key":"sao-paulo","city":{"buckets":[{"key":"São Paulo"}]}},
		{"key":"campinas","city":{"buckets":[{"key":"Campinas"}]}},
		{"key":"orphan","city":{"buckets":[]}}
	]}}}`

	locs, err := c.FetchLocations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Location{
		{ID: "campinas", DisplayName: "Campinas"},
		{ID: "orphan", DisplayName: "orphan"},
		{ID: "sao-paulo", DisplayName: "São Paulo"},
	}, locs)
}

func TestCatalog_SearchError(t *testing.T) {
	c, fc := newCatalog(t)
	fc.failStatus = http.StatusInternalServerError

	_, err := c.Search(context.Background(), domain.DefaultFilters(domain.DefaultBounds))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search_phase_execution_exception")
}

func TestCatalog_UpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return created }

	r := &domain.PropertyRecord{ID: "9", Title: "Casa térrea", City: "São José dos Campos", Price: 640000, PropertyType: domain.PropertyTypeHouse}
	require.NoError(t, c.UpsertProperty(ctx, r))
	assert.Equal(t, "sao-jose-dos-campos", r.LocationID)

	later := created.Add(24 * time.Hour)
	c.now = func() time.Time { return later }
	update := &domain.PropertyRecord{ID: "9", Title: "Casa térrea reformada", City: "São José dos Campos", Price: 690000, PropertyType: domain.PropertyTypeHouse}
	require.NoError(t, c.UpsertProperty(ctx, update))

	got, err := c.GetProperty(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, "Casa térrea reformada", got.Title)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(later))

	require.NoError(t, c.DeleteProperty(ctx, "9"))
	_, err = c.GetProperty(ctx, "9")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, c.DeleteProperty(ctx, "9"), apperrors.ErrNotFound)
}

func TestCatalog_BulkIndex(t *testing.T) {
	c, fc := newCatalog(t)

	err := c.BulkIndex(context.Background(), []domain.PropertyRecord{{ID: "1", Title: "A"}, {ID: "2", Title: "B"}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(fc.bulkBody), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"_id":"1"`)
	assert.Contains(t, lines[3], `"title":"B"`)
}

func TestCatalog_BulkIndex_Empty(t *testing.T) {
	c, fc := newCatalog(t)
	require.NoError(t, c.BulkIndex(context.Background(), nil))
	assert.Empty(t, fc.bulkBody)
}

func TestCatalog_ImplementsInterfaces(t *testing.T) {
	var _ catalog.Catalog = (*Catalog)(nil)
	var _ catalog.Searcher = (*Catalog)(nil)
	var _ catalog.Writer = (*Catalog)(nil)
}
