package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/hookpace/hookpace/internal/api/middleware"
	"github.com/hookpace/hookpace/internal/domain"
	"github.com/hookpace/hookpace/internal/queue"
	"github.com/hookpace/hookpace/internal/registry"
)

// EnqueueRequest is the inbound payload from the trigger collaborator
// (context menu, automation, etc.). Payload is forwarded verbatim as the
// POST body to the destination endpoint.
type EnqueueRequest struct {
	DestinationID   string          `json:"destination_id"`
	DestinationName string          `json:"destination_name,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

func (r *EnqueueRequest) Validate() error {
	if r.DestinationID == "" {
		return domain.ErrInvalidDestinationID
	}
	if len(r.Payload) == 0 {
		return domain.ErrEmptyPayload
	}
	return nil
}

// EnqueueHandler accepts enqueue requests and hands them to the queue
// manager. Delivery is fire-and-forget: the response acknowledges queueing
// only, and delivery failures surface through completion events.
type EnqueueHandler struct {
	mgr    *queue.Manager
	reg    registry.Registry
	logger *zap.Logger
}

func NewEnqueueHandler(mgr *queue.Manager, reg registry.Registry, logger *zap.Logger) *EnqueueHandler {
	return &EnqueueHandler{mgr: mgr, reg: reg, logger: logger}
}

// Enqueue handles POST /api/v1/enqueue
//
// @Summary  Queue a payload for delivery to a destination
// @Tags     enqueue
// @Accept   json
// @Success  202  {object}  map[string]string
// @Failure  422  {object}  map[string]string
// @Router   /api/v1/enqueue [post]
func (h *EnqueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.logger.Warn("enqueue rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	// Fill in the display name from the registry when the caller omitted it.
	// An unregistered destination keeps whatever the caller sent — the queue
	// manager tolerates unknown IDs with an ad-hoc queue.
	name := req.DestinationName
	if name == "" {
		if d, err := h.reg.Get(r.Context(), req.DestinationID); err == nil {
			name = d.Name
		} else if !errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn("registry lookup failed during enqueue", zap.Error(err))
		}
	}

	h.mgr.Enqueue(req.DestinationID, req.Payload, name)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
