package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/snapzone/snapzone/internal/command"
	"github.com/snapzone/snapzone/internal/metric"
	"github.com/snapzone/snapzone/internal/models"
)

// StateReader is the read-only view of the confirmed state store.
type StateReader interface {
	Snapshot() models.Snapshot
	GetZone(index int) (models.ZoneState, bool)
	GetClient(index int) (models.ClientState, bool)
}

// Dispatcher executes commands by operation name.
type Dispatcher interface {
	Dispatch(ctx context.Context, op command.Operation, req command.Request) *models.AppError
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	store    StateReader
	commands Dispatcher
	metrics  *metric.Metrics
}

func (h *Handlers) countCommand(op command.Operation, status string) {
	if h.metrics == nil {
		return
	}
	label := string(op)
	if !command.Known(op) {
		label = "unknown"
	}
	h.metrics.CommandsTotal.WithLabelValues(label, status).Inc()
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *Handlers) getZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"zones": h.store.Snapshot().Zones})
}

func (h *Handlers) getZone(w http.ResponseWriter, r *http.Request) {
	index, appErr := intParam(r, "index")
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	z, ok := h.store.GetZone(index)
	if !ok {
		writeError(w, models.ErrNotFound("zone not found"))
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (h *Handlers) getClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"clients": h.store.Snapshot().Clients})
}

func (h *Handlers) getClient(w http.ResponseWriter, r *http.Request) {
	index, appErr := intParam(r, "index")
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	c, ok := h.store.GetClient(index)
	if !ok {
		writeError(w, models.ErrNotFound("client not found"))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// postCommand dispatches /api/command/{op}. The response reports only
// acceptance by the external server; confirmed state arrives later through
// the push and state endpoints.
func (h *Handlers) postCommand(w http.ResponseWriter, r *http.Request) {
	op := command.Operation(chi.URLParam(r, "op"))

	var req command.Request
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.countCommand(op, models.CommandStatusError)
			writeError(w, models.ErrValidation("invalid JSON: "+err.Error()))
			return
		}
	}

	if appErr := h.commands.Dispatch(r.Context(), op, req); appErr != nil {
		h.countCommand(op, models.CommandStatusError)
		writeError(w, appErr)
		return
	}
	h.countCommand(op, models.CommandStatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"status": models.CommandStatusOK})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, appErr *models.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(appErr)
}

// intParam reads an integer path parameter by name.
func intParam(r *http.Request, name string) (int, *models.AppError) {
	s := chi.URLParam(r, name)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, models.ErrValidation("invalid " + name + " parameter")
	}
	return n, nil
}
