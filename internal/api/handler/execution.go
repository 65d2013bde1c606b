package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/batchctl/internal/api/request"
	"github.com/edvin/batchctl/internal/api/response"
	"github.com/edvin/batchctl/internal/core"
	"github.com/edvin/batchctl/internal/model"
)

type Execution struct {
	svc *core.ExecutionService
}

func NewExecution(svc *core.ExecutionService) *Execution {
	return &Execution{svc: svc}
}

func (h *Execution) Trigger(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.TriggerJob
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	triggeredBy := actorFrom(r, req.TriggeredBy)
	if triggeredBy == "" {
		response.WriteError(w, http.StatusBadRequest, "triggered_by is required")
		return
	}

	exec, err := h.svc.TriggerJob(r.Context(), jobID, req.Parameters, triggeredBy, model.TriggerManual, req.SkipDependencyCheck)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, exec)
}

func (h *Execution) Get(w http.ResponseWriter, r *http.Request) {
	triggerID, err := request.RequireID(chi.URLParam(r, "triggerID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	exec, err := h.svc.GetByTriggerID(r.Context(), triggerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, exec)
}

func (h *Execution) Stop(w http.ResponseWriter, r *http.Request) {
	triggerID, err := request.RequireID(chi.URLParam(r, "triggerID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.StopExecution
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	requestedBy := actorFrom(r, req.RequestedBy)
	if requestedBy == "" {
		response.WriteError(w, http.StatusBadRequest, "requested_by is required")
		return
	}

	if err := h.svc.StopExecution(r.Context(), triggerID, requestedBy); err != nil {
		writeServiceError(w, err)
		return
	}

	exec, err := h.svc.GetByTriggerID(r.Context(), triggerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, exec)
}

func (h *Execution) ListByJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := request.ParsePagination(r)
	execs, hasMore, err := h.svc.ListByJob(r.Context(), jobID, p.Limit, p.Cursor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	nextCursor := ""
	if hasMore && len(execs) > 0 {
		nextCursor = execs[len(execs)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, execs, nextCursor, hasMore)
}

func (h *Execution) ListRunning(w http.ResponseWriter, r *http.Request) {
	execs, err := h.svc.ListRunning(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

func (h *Execution) ListRecent(w http.ResponseWriter, r *http.Request) {
	p := request.ParsePagination(r)
	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	execs, err := h.svc.ListRecent(r.Context(), since, p.Limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"executions": execs})
}
