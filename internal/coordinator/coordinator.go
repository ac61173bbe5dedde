// Package coordinator decides when filter changes issue a search and makes
// sure only the most recently issued search is ever applied.
//
// Continuous input (typing, dragging the price slider) only updates the
// filter state. Commit events (confirm, selector change, slider release,
// the search button, clearing) issue a Request carrying a new generation.
// An Outcome is applied by Resolve only when its generation is still the
// current one.
package coordinator

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ffimoveis/imoveis/internal/bounds"
	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/domain"
	"github.com/ffimoveis/imoveis/internal/filterstate"
	"github.com/ffimoveis/imoveis/internal/urlsync"
	"github.com/ffimoveis/imoveis/pkg/logger"
	"github.com/ffimoveis/imoveis/pkg/tracing"
)

// Request is an issued search.
type Request struct {
	Generation uint64
	Control    domain.Control
	Filters    domain.SearchFilters
}

// Outcome is the result of executing a Request.
type Outcome struct {
	Generation uint64
	Filters    domain.SearchFilters
	Results    []domain.PropertyRecord
	Err        error
}

// Setup is the data needed before the first search.
type Setup struct {
	Bounds       domain.Bounds
	BoundsOrigin bounds.Origin
	Locations    []domain.Location
	// LocationsLoaded is false when the location fetch failed, in which
	// case location ids are not checked against a known set.
	LocationsLoaded bool
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithSearcher overrides the fetch port. By default the source's own
// Searcher is used, or in-process filtering when it has none.
func WithSearcher(s catalog.Searcher) Option {
	return func(c *Coordinator) { c.searcher = s }
}

// OnResolved registers a callback run after Dispatch applies an outcome.
func OnResolved(fn func(Outcome)) Option {
	return func(c *Coordinator) { c.onResolved = fn }
}

// Coordinator owns the search request state machine.
type Coordinator struct {
	store      *filterstate.Store
	source     catalog.Source
	searcher   catalog.Searcher
	resolver   *bounds.Resolver
	logger     *slog.Logger
	tracer     trace.Tracer
	onResolved func(Outcome)

	mu              sync.Mutex
	state           domain.SearchRequestState
	results         []domain.PropertyRecord
	shown           bool
	firstLoadFailed bool
	url             string
	locations       []domain.Location
	// sharedQuery is a URL loaded before the real bounds were known. Its
	// prices are re-read against them unless the slider moved meanwhile.
	sharedQuery string
	reconciled  bool
}

// New creates a Coordinator over source, starting from placeholder bounds.
func New(source catalog.Source, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    filterstate.New(bounds.Placeholder()),
		source:   source,
		searcher: catalog.SearcherFor(source),
		resolver: bounds.NewResolver(source, logger),
		logger:   logger,
		tracer:   tracing.Tracer("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- Non-commit events ---

// TypeQuery records query text without searching.
func (c *Coordinator) TypeQuery(text string) domain.SearchFilters {
	f := c.store.Current()
	f.Query = text
	return c.store.Replace(f)
}

// DragPrice records an intermediate slider position without searching.
func (c *Coordinator) DragPrice(low, high float64) domain.SearchFilters {
	f := c.store.Current()
	f.PriceRange = domain.PriceRange{Low: low, High: high}
	c.forgetSharedPrices()
	return c.store.Replace(f)
}

// LoadURL replaces the filters with those encoded in rawQuery without
// searching. Before the real bounds arrive the prices are held against the
// placeholder and read again by ReconcileBounds.
func (c *Coordinator) LoadURL(rawQuery string) domain.SearchFilters {
	c.mu.Lock()
	if !c.reconciled {
		c.sharedQuery = rawQuery
	}
	c.mu.Unlock()
	return c.store.Replace(urlsync.ParseQuery(rawQuery, c.store.Bounds()))
}

func (c *Coordinator) forgetSharedPrices() {
	c.mu.Lock()
	c.sharedQuery = ""
	c.mu.Unlock()
}

// --- Commit events ---

// ConfirmQuery searches with the typed query text.
func (c *Coordinator) ConfirmQuery() Request {
	return c.trigger(domain.ControlQuery)
}

// SelectType sets the property type and searches. ok is false when the
// selection did not change anything, in which case no search is issued.
func (c *Coordinator) SelectType(t domain.PropertyType) (req Request, ok bool) {
	f := c.store.Current()
	prev := f.PropertyType
	f.PropertyType = t
	if c.store.Replace(f).PropertyType == prev {
		return Request{}, false
	}
	return c.trigger(domain.ControlType), true
}

// SelectLocation sets the location and searches. ok is false when the
// selection did not change anything.
func (c *Coordinator) SelectLocation(id string) (req Request, ok bool) {
	f := c.store.Current()
	prev := f.LocationID
	f.LocationID = id
	if c.store.Replace(f).LocationID == prev {
		return Request{}, false
	}
	return c.trigger(domain.ControlLocation), true
}

// ReleasePrice commits the slider position and searches.
func (c *Coordinator) ReleasePrice(low, high float64) Request {
	c.DragPrice(low, high)
	return c.trigger(domain.ControlPrice)
}

// Submit is the explicit search button.
func (c *Coordinator) Submit() Request {
	return c.trigger(domain.ControlButton)
}

// ClearFilters resets every filter and searches.
func (c *Coordinator) ClearFilters() Request {
	c.forgetSharedPrices()
	c.store.Reset()
	return c.trigger(domain.ControlClear)
}

// Start issues the initial search.
func (c *Coordinator) Start() Request {
	return c.trigger(domain.ControlInit)
}

func (c *Coordinator) trigger(control domain.Control) Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	filters := c.store.Current()
	c.state.Generation++
	c.state.Phase = domain.PhaseSearching
	c.url = urlsync.Encode(filters, c.store.Bounds())
	SearchesTriggered.WithLabelValues(string(control)).Inc()

	c.logger.Debug("search triggered",
		slog.String("control", string(control)),
		slog.Uint64("generation", c.state.Generation),
		slog.String("query", c.url),
	)
	return Request{Generation: c.state.Generation, Control: control, Filters: filters}
}

// --- Execution ---

// Execute fetches the results for req. It touches no coordinator state and
// is safe to run off the interaction thread.
func (c *Coordinator) Execute(ctx context.Context, req Request) Outcome {
	ctx = logger.WithGeneration(ctx, req.Generation)
	ctx, span := c.tracer.Start(ctx, "coordinator.Execute",
		trace.WithAttributes(
			tracing.SearchGeneration(req.Generation),
			attribute.String("listing.search_control", string(req.Control)),
		),
	)
	defer span.End()

	results, err := c.searcher.Search(ctx, req.Filters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{Generation: req.Generation, Filters: req.Filters, Err: err}
	}
	span.SetAttributes(attribute.Int("listing.results", len(results)))
	return Outcome{Generation: req.Generation, Filters: req.Filters, Results: results}
}

// Resolve applies o if it belongs to the current generation and returns
// the coordinator to Idle. Superseded outcomes are dropped and false is
// returned. A failed outcome keeps the previous results.
func (c *Coordinator) Resolve(o Outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.Generation != c.state.Generation || c.state.Phase != domain.PhaseSearching {
		StaleResultsDiscarded.Inc()
		c.logger.Debug("discarding stale search outcome",
			slog.Uint64("generation", o.Generation),
			slog.Uint64("current_generation", c.state.Generation),
		)
		return false
	}

	c.state.Phase = domain.PhaseIdle
	if o.Err != nil {
		SearchFailures.Inc()
		if !c.shown {
			c.firstLoadFailed = true
		}
		c.logger.Error("search failed, keeping previous results",
			slog.Uint64("generation", o.Generation),
			slog.String("error", o.Err.Error()),
		)
		return true
	}

	c.results = o.Results
	c.shown = true
	c.firstLoadFailed = false
	c.logger.Debug("search results applied",
		slog.Uint64("generation", o.Generation),
		slog.Int("count", len(o.Results)),
	)
	return true
}

// Dispatch runs Execute and Resolve on a new goroutine. The returned
// channel receives Resolve's result.
func (c *Coordinator) Dispatch(ctx context.Context, req Request) <-chan bool {
	done := make(chan bool, 1)
	go func() {
		o := c.Execute(ctx, req)
		applied := c.Resolve(o)
		if applied && c.onResolved != nil {
			c.onResolved(o)
		}
		done <- applied
	}()
	return done
}

// --- Bounds and locations ---

// FetchSetup resolves bounds and locations from the catalog. It touches no
// coordinator state. Failures degrade to defaults and are logged.
func (c *Coordinator) FetchSetup(ctx context.Context) Setup {
	b, origin := c.resolver.Resolve(ctx)
	setup := Setup{Bounds: b, BoundsOrigin: origin}

	locs, err := c.source.FetchLocations(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "fetch locations failed",
			slog.String("error", catalog.FetchFailure("locations", err).Error()),
		)
		return setup
	}
	setup.Locations = locs
	setup.LocationsLoaded = true
	return setup
}

// ApplySetup reconciles bounds and loads locations.
func (c *Coordinator) ApplySetup(s Setup) domain.SearchFilters {
	f := c.ReconcileBounds(s.Bounds)
	if s.LocationsLoaded {
		f = c.SetLocations(s.Locations)
	}
	return f
}

// ReconcileBounds replaces the current bounds, typically the placeholder,
// with b. Prices from a URL loaded before the first reconcile are parsed
// again against b. Otherwise price edges left at the old extent follow the
// new one and the others are re-clamped.
func (c *Coordinator) ReconcileBounds(b domain.Bounds) domain.SearchFilters {
	c.mu.Lock()
	shared := c.sharedQuery
	c.sharedQuery = ""
	c.reconciled = true
	c.mu.Unlock()

	f := c.store.SetBounds(b)
	if shared != "" {
		f.PriceRange = urlsync.ParseQuery(shared, b).PriceRange
		f = c.store.Replace(f)
	}
	c.logger.Debug("price bounds reconciled",
		slog.Float64("min", b.Min),
		slog.Float64("max", b.Max),
	)
	return f
}

// SetLocations loads the known locations.
func (c *Coordinator) SetLocations(locs []domain.Location) domain.SearchFilters {
	ids := make([]string, len(locs))
	for i, l := range locs {
		ids[i] = l.ID
	}
	c.mu.Lock()
	c.locations = slices.Clone(locs)
	c.mu.Unlock()
	return c.store.SetLocations(ids)
}

// Initialize parses rawQuery, loads bounds and locations, and issues the
// first search. It blocks on the catalog.
func (c *Coordinator) Initialize(ctx context.Context, rawQuery string) Request {
	c.ApplySetup(c.FetchSetup(ctx))
	c.LoadURL(rawQuery)
	return c.Start()
}

// --- Snapshots ---

// State returns the request state.
func (c *Coordinator) State() domain.SearchRequestState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Filters returns the current filters, including uncommitted input.
func (c *Coordinator) Filters() domain.SearchFilters {
	return c.store.Current()
}

// Bounds returns the current price bounds.
func (c *Coordinator) Bounds() domain.Bounds {
	return c.store.Bounds()
}

// Results returns the applied result set.
func (c *Coordinator) Results() []domain.PropertyRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.results)
}

// Locations returns the known locations.
func (c *Coordinator) Locations() []domain.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.locations)
}

// URL returns the query string of the last committed search.
func (c *Coordinator) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// FirstLoadFailed reports whether every search so far has failed.
func (c *Coordinator) FirstLoadFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstLoadFailed
}
