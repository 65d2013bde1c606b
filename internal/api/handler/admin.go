package handler

import (
	"net/http"
	"time"

	"github.com/edvin/batchctl/internal/api/response"
	"github.com/edvin/batchctl/internal/scheduler"
	"github.com/edvin/batchctl/internal/worker"
)

// Admin exposes operational controls: pausing the cron evaluator and
// checking worker reachability.
type Admin struct {
	evaluator *scheduler.Evaluator
	worker    worker.Client
}

func NewAdmin(evaluator *scheduler.Evaluator, wc worker.Client) *Admin {
	return &Admin{evaluator: evaluator, worker: wc}
}

func (h *Admin) PauseScheduler(w http.ResponseWriter, r *http.Request) {
	h.evaluator.Pause()
	h.SchedulerStatus(w, r)
}

func (h *Admin) ResumeScheduler(w http.ResponseWriter, r *http.Request) {
	h.evaluator.Resume()
	h.SchedulerStatus(w, r)
}

func (h *Admin) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"paused": h.evaluator.Paused(),
	}
	if last := h.evaluator.LastTick(); !last.IsZero() {
		status["last_tick"] = last.UTC().Format(time.RFC3339)
	}
	response.WriteJSON(w, http.StatusOK, status)
}

func (h *Admin) WorkerHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.worker.Health(r.Context()); err != nil {
		response.WriteJSON(w, http.StatusOK, map[string]any{
			"reachable": false,
			"error":     err.Error(),
		})
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"reachable": true})
}
