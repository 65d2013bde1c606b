package handler

import (
	"net/http"
	"time"

	"github.com/edvin/batchctl/internal/api/request"
	"github.com/edvin/batchctl/internal/api/response"
	"github.com/edvin/batchctl/internal/core"
	"github.com/edvin/batchctl/internal/model"
)

// Event ingests worker lifecycle notifications on the internal surface.
type Event struct {
	svc *core.ExecutionService
}

func NewEvent(svc *core.ExecutionService) *Event {
	return &Event{svc: svc}
}

func (h *Event) Ingest(w http.ResponseWriter, r *http.Request) {
	var req request.JobEvent
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, "timestamp must be RFC 3339")
			return
		}
		ts = parsed
	}

	ev := model.JobEvent{
		TriggerID:          req.TriggerID,
		EventType:          req.EventType,
		ProgressPercentage: req.ProgressPercentage,
		ProgressMessage:    req.ProgressMessage,
		ErrorMessage:       req.ErrorMessage,
		Timestamp:          ts,
	}
	if err := h.svc.HandleEvent(r.Context(), ev); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
