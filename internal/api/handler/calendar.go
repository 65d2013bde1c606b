package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/batchctl/internal/api/request"
	"github.com/edvin/batchctl/internal/api/response"
	"github.com/edvin/batchctl/internal/core"
	"github.com/edvin/batchctl/internal/model"
	"github.com/edvin/batchctl/internal/platform"
)

type Calendar struct {
	svc *core.CalendarService
}

func NewCalendar(svc *core.CalendarService) *Calendar {
	return &Calendar{svc: svc}
}

func (h *Calendar) List(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.svc.List(r.Context(), r.URL.Query().Get("calendar_type"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"calendars": calendars})
}

func (h *Calendar) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateCalendar
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cal := &model.JobCalendar{
		ID:           platform.NewID(),
		Name:         req.Name,
		Description:  req.Description,
		CalendarType: req.CalendarType,
		IsActive:     true,
		CreatedBy:    req.CreatedBy,
	}
	if err := h.svc.Create(r.Context(), cal); err != nil {
		writeServiceError(w, err)
		return
	}

	created, err := h.svc.GetByID(r.Context(), cal.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, created)
}

func (h *Calendar) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cal, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, cal)
}

func (h *Calendar) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateCalendar
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cal, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if req.Description != nil {
		cal.Description = req.Description
	}
	if req.CalendarType != nil {
		cal.CalendarType = *req.CalendarType
	}
	if req.IsActive != nil {
		cal.IsActive = *req.IsActive
	}

	if err := h.svc.Update(r.Context(), cal, req.UpdatedBy); err != nil {
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

func (h *Calendar) Delete(w http.ResponseWriter, r *http.Request) {
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

func (h *Calendar) AddDates(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.AddCalendarDates
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	dates := make([]time.Time, 0, len(req.Dates))
	for _, d := range req.Dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, "invalid date: "+d)
			return
		}
		dates = append(dates, t)
	}

	if err := h.svc.AddDates(r.Context(), id, dates, req.Description); err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"added": len(dates)})
}

func (h *Calendar) RemoveDate(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	if err := h.svc.RemoveDate(r.Context(), id, date); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Calendar) Dates(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now.AddDate(1, 0, 0)
	if v := q.Get("from"); v != "" {
		from, err = time.Parse("2006-01-02", v)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		to, err = time.Parse("2006-01-02", v)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
	}

	dates, err := h.svc.DatesInRange(r.Context(), id, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func (h *Calendar) Assign(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.AssignCalendar
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	assignment, err := h.svc.AssignToJob(r.Context(), jobID, req.CalendarID, req.AssignmentType, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, assignment)
}

func (h *Calendar) Unassign(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	calendarID, err := request.RequireID(chi.URLParam(r, "calendarID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.Actor
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.UnassignFromJob(r.Context(), jobID, calendarID, req.Actor); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Calendar) AssignmentsForJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	assignments, err := h.svc.AssignmentsForJob(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}
