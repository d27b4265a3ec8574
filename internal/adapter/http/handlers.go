package http

import (
	"errors"
	"net/http"

	"github.com/syncbridge/syncbridge/internal/domain"
	"github.com/syncbridge/syncbridge/internal/domain/entity"
	"github.com/syncbridge/syncbridge/internal/port/database"
	"github.com/syncbridge/syncbridge/internal/service"
)

// Handlers bundles the services exposed over the admin/ingestion API.
type Handlers struct {
	Engine *service.EngineService
	Ingest *service.IngestService
	Store  database.Store
}

// defaultPriority is used when a request does not specify one.
const defaultPriority = 50

// --- Enqueue surface ---

type enqueueRequest struct {
	EntityID string `json:"entity_id"`
	Priority *int   `json:"priority,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

type enqueueResponse struct {
	Queued bool `json:"queued"`
}

// Enqueue schedules one entity for reconciliation.
func (h *Handlers) Enqueue(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[enqueueRequest](w, r)
	if !ok {
		return
	}
	if req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "entity_id is required")
		return
	}

	priority := defaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	queued, err := h.Engine.Enqueue(r.Context(), req.EntityID, priority, req.Force)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{Queued: queued})
}

type countResponse struct {
	Count int `json:"count"`
}

// EnqueueAllPending re-queues every pending entity.
func (h *Handlers) EnqueueAllPending(w http.ResponseWriter, r *http.Request) {
	count, err := h.Engine.EnqueueAllPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, countResponse{Count: count})
}

type enqueueTypeRequest struct {
	EntityType string `json:"entity_type"`
	Priority   *int   `json:"priority,omitempty"`
}

// EnqueueAllByType schedules every entity of a type.
func (h *Handlers) EnqueueAllByType(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[enqueueTypeRequest](w, r)
	if !ok {
		return
	}
	if req.EntityType == "" {
		writeError(w, http.StatusBadRequest, "entity_type is required")
		return
	}

	priority := defaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	count, err := h.Engine.EnqueueAllByType(r.Context(), req.EntityType, priority)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, countResponse{Count: count})
}

// --- Introspection ---

// GetEntity returns one entity by ID.
func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	e, err := h.Store.GetEntity(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ListRecords returns the audit trail for an entity, most recent first.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	records, err := h.Store.ListRecords(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []entity.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// DeleteEntity administratively removes an entity. Audit records remain.
func (h *Handlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	existed, err := h.Store.DeleteEntity(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Ingestion ---

// HandleTrackerWebhook accepts a change notification from the issue tracker.
// Signature verification happens in middleware before this handler runs.
func (h *Handlers) HandleTrackerWebhook(w http.ResponseWriter, r *http.Request) {
	n, ok := readJSON[service.ChangeNotification](w, r)
	if !ok {
		return
	}

	e, err := h.Ingest.Notify(r.Context(), n)
	if err != nil {
		if errors.Is(err, entity.ErrMissingType) || errors.Is(err, entity.ErrUnresolvable) || errors.Is(err, entity.ErrBadDirection) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"entity_id": e.ID})
}
