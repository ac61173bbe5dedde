package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ffimoveis/imoveis/internal/service"
	apperrors "github.com/ffimoveis/imoveis/pkg/errors"
	"github.com/ffimoveis/imoveis/pkg/httputil"
	"github.com/ffimoveis/imoveis/pkg/validator"
)

// ListingHandler handles HTTP requests for listing endpoints.
type ListingHandler struct {
	service *service.ListingService
	logger  *slog.Logger
}

// NewListingHandler creates a new listing HTTP handler.
func NewListingHandler(svc *service.ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		service: svc,
		logger:  logger,
	}
}

// SearchProperties handles GET /api/v1/properties. Malformed filter
// parameters fall back to their defaults; the response carries the
// canonical query for the filters actually applied.
func (h *ListingHandler) SearchProperties(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SearchQuery(r.Context(), r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// GetBounds handles GET /api/v1/properties/bounds
func (h *ListingHandler) GetBounds(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.service.Bounds(r.Context())})
}

// GetProperty handles GET /api/v1/properties/{id}
func (h *ListingHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	property, err := h.service.GetProperty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: property})
}

// ListLocations handles GET /api/v1/locations
func (h *ListingHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.Locations(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: locations})
}

// ListNeighborhoods handles GET /api/v1/locations/{id}/neighborhoods
func (h *ListingHandler) ListNeighborhoods(w http.ResponseWriter, r *http.Request) {
	neighborhoods, err := h.service.Neighborhoods(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: neighborhoods})
}

// ListPropertyTypes handles GET /api/v1/property-types
func (h *ListingHandler) ListPropertyTypes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.service.PropertyTypes()})
}

// UpsertProperty handles PUT /api/v1/properties/{id}. The body may omit
// the id; when present it must match the path.
func (h *ListingHandler) UpsertProperty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input service.UpsertPropertyInput
	if err := validator.Decode(r, &input); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if input.ID == "" {
		input.ID = id
	}
	if input.ID != id {
		httputil.WriteError(w, r, apperrors.InvalidInput("body id does not match path id"), h.logger)
		return
	}

	property, err := h.service.UpsertProperty(r.Context(), &input)
	if err != nil {
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			httputil.WriteValidationError(w, err)
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: property})
}

// DeleteProperty handles DELETE /api/v1/properties/{id}
func (h *ListingHandler) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProperty(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
