package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hookpace/hookpace/internal/domain"
	"github.com/hookpace/hookpace/internal/queue"
	"github.com/hookpace/hookpace/internal/registry"
)

// DestinationRequest is the wire form of a destination. The rate limit
// crosses the API in whole seconds.
type DestinationRequest struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	EndpointURL      string `json:"endpoint_url"`
	RateLimitSeconds int64  `json:"rate_limit_seconds"`
}

func (r DestinationRequest) toDomain() domain.Destination {
	return domain.Destination{
		ID:          r.ID,
		Name:        r.Name,
		EndpointURL: r.EndpointURL,
		RateLimit:   time.Duration(r.RateLimitSeconds) * time.Second,
	}
}

// DestinationHandler manages the destination registry and keeps the queue
// manager's view in sync: every registry mutation ends with a Configure call
// carrying the full current set.
type DestinationHandler struct {
	reg    registry.Registry
	mgr    *queue.Manager
	logger *zap.Logger
}

func NewDestinationHandler(reg registry.Registry, mgr *queue.Manager, logger *zap.Logger) *DestinationHandler {
	return &DestinationHandler{reg: reg, mgr: mgr, logger: logger}
}

// Configure handles PUT /api/v1/destinations — the bulk configuration call
// used by the registry collaborator. Valid destinations are upserted and
// applied; invalid ones are rejected individually and reported.
//
// @Summary  Replace/refresh the destination set
// @Tags     destinations
// @Accept   json
// @Success  200  {object}  map[string]any
// @Failure  422  {object}  map[string]string
// @Router   /api/v1/destinations [put]
func (h *DestinationHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var reqs []DestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	applied := 0
	var rejected []string
	for _, req := range reqs {
		d := req.toDomain()
		if err := d.Validate(); err != nil {
			rejected = append(rejected, d.ID+": "+err.Error())
			continue
		}
		if err := h.reg.Upsert(r.Context(), d); err != nil {
			h.logger.Error("destination upsert failed", zap.String("id", d.ID), zap.Error(err))
			rejected = append(rejected, d.ID+": "+err.Error())
			continue
		}
		applied++
	}

	if err := h.syncManager(r); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to apply configuration")
		return
	}

	status := http.StatusOK
	if applied == 0 && len(rejected) > 0 {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, map[string]any{
		"applied":  applied,
		"rejected": rejected,
	})
}

// Create handles POST /api/v1/destinations
//
// @Summary  Register a single destination
// @Tags     destinations
// @Accept   json
// @Success  201  {object}  domain.Destination
// @Failure  409  {object}  map[string]string
// @Failure  422  {object}  map[string]string
// @Router   /api/v1/destinations [post]
func (h *DestinationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req DestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	d := req.toDomain()
	if err := d.Validate(); err != nil {
		mapError(w, err)
		return
	}

	if _, err := h.reg.Get(r.Context(), d.ID); err == nil {
		mapError(w, domain.ErrConflict)
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		mapError(w, err)
		return
	}

	if err := h.reg.Upsert(r.Context(), d); err != nil {
		mapError(w, err)
		return
	}
	if err := h.syncManager(r); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to apply configuration")
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

// List handles GET /api/v1/destinations
func (h *DestinationHandler) List(w http.ResponseWriter, r *http.Request) {
	dests, err := h.reg.List(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": dests, "total": len(dests)})
}

// GetByID handles GET /api/v1/destinations/{id}
func (h *DestinationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	d, err := h.reg.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// Delete handles DELETE /api/v1/destinations/{id}. The destination's queue
// survives in the manager and drains any pending entries with the last-known
// rate limit; only the registry record is removed.
func (h *DestinationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	if err := h.syncManager(r); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to apply configuration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// syncManager pushes the registry's current destination set into the queue
// manager. Configure never drops pending entries, so this is safe to call on
// every mutation.
func (h *DestinationHandler) syncManager(r *http.Request) error {
	dests, err := h.reg.List(r.Context())
	if err != nil {
		h.logger.Error("registry list failed during sync", zap.Error(err))
		return err
	}
	if err := h.mgr.Configure(dests); err != nil {
		// Individually invalid entries were skipped; the rest applied.
		h.logger.Warn("some destinations were not configured", zap.Error(err))
	}
	return nil
}
