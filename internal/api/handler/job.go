package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/batchctl/internal/api/request"
	"github.com/edvin/batchctl/internal/api/response"
	"github.com/edvin/batchctl/internal/core"
	"github.com/edvin/batchctl/internal/model"
	"github.com/edvin/batchctl/internal/platform"
)

type Job struct {
	svc *core.JobService
}

func NewJob(svc *core.JobService) *Job {
	return &Job{svc: svc}
}

func (h *Job) List(w http.ResponseWriter, r *http.Request) {
	p := request.ParsePagination(r)
	q := r.URL.Query()

	filter := core.JobFilter{
		Status:  q.Get("status"),
		JobType: q.Get("job_type"),
		Search:  q.Get("search"),
	}
	if v := q.Get("enabled"); v == "true" || v == "false" {
		enabled := v == "true"
		filter.Enabled = &enabled
	}

	jobs, hasMore, err := h.svc.List(r.Context(), filter, p.Limit, p.Cursor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	nextCursor := ""
	if hasMore && len(jobs) > 0 {
		nextCursor = jobs[len(jobs)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, jobs, nextCursor, hasMore)
}

func (h *Job) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateJob
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	job := &model.JobDefinition{
		ID:             platform.NewID(),
		Name:           req.Name,
		JobType:        req.JobType,
		Description:    req.Description,
		CronExpression: req.CronExpression,
		Timezone:       timezone,
		Status:         model.JobStatusActive,
		Enabled:        enabled,
		Priority:       req.Priority,
		MaxRetries:     req.MaxRetries,
		TimeoutSeconds: req.TimeoutSeconds,
		Parameters:     req.Parameters,
		TargetRoles:    req.TargetRoles,
		TargetCounties: req.TargetCounties,
		CreatedBy:      req.CreatedBy,
	}

	if err := h.svc.Create(r.Context(), job); err != nil {
		writeServiceError(w, err)
		return
	}

	created, err := h.svc.GetByID(r.Context(), job.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, created)
}

func (h *Job) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

func (h *Job) GetByName(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireID(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.GetByName(r.Context(), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

func (h *Job) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateJob
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if req.JobType != nil {
		job.JobType = *req.JobType
	}
	if req.Description != nil {
		job.Description = req.Description
	}
	if req.CronExpression != nil {
		job.CronExpression = req.CronExpression
	}
	if req.Timezone != nil {
		job.Timezone = *req.Timezone
	}
	if req.Enabled != nil {
		job.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		job.Priority = *req.Priority
	}
	if req.MaxRetries != nil {
		job.MaxRetries = *req.MaxRetries
	}
	if req.TimeoutSeconds != nil {
		job.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Parameters != nil {
		job.Parameters = req.Parameters
	}
	if req.TargetRoles != nil {
		job.TargetRoles = req.TargetRoles
	}
	if req.TargetCounties != nil {
		job.TargetCounties = req.TargetCounties
	}

	if err := h.svc.Update(r.Context(), job, req.UpdatedBy); err != nil {
		writeServiceError(w, err)
		return
	}

	updated, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, updated)
}

func (h *Job) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.Actor
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id, req.Actor); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Job) JobTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.JobTypes(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"job_types": types})
}

// lifecycle dispatches hold/ice/resume/enable/disable to the service.
func (h *Job) lifecycle(action func(r *http.Request, id, actor string) (*model.JobDefinition, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := request.RequireID(chi.URLParam(r, "id"))
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		var req request.Actor
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		job, err := action(r, id, req.Actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.WriteJSON(w, http.StatusOK, job)
	}
}

func (h *Job) Hold() http.HandlerFunc {
	return h.lifecycle(func(r *http.Request, id, actor string) (*model.JobDefinition, error) {
		return h.svc.Hold(r.Context(), id, actor)
	})
}

func (h *Job) Ice() http.HandlerFunc {
	return h.lifecycle(func(r *http.Request, id, actor string) (*model.JobDefinition, error) {
		return h.svc.Ice(r.Context(), id, actor)
	})
}

func (h *Job) Resume() http.HandlerFunc {
	return h.lifecycle(func(r *http.Request, id, actor string) (*model.JobDefinition, error) {
		return h.svc.Resume(r.Context(), id, actor)
	})
}

func (h *Job) Enable() http.HandlerFunc {
	return h.lifecycle(func(r *http.Request, id, actor string) (*model.JobDefinition, error) {
		return h.svc.Enable(r.Context(), id, actor)
	})
}

func (h *Job) Disable() http.HandlerFunc {
	return h.lifecycle(func(r *http.Request, id, actor string) (*model.JobDefinition, error) {
		return h.svc.Disable(r.Context(), id, actor)
	})
}
