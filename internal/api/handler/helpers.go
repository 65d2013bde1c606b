package handler

import (
	"errors"
	"net/http"

	mw "github.com/edvin/batchctl/internal/api/middleware"
	"github.com/edvin/batchctl/internal/api/response"
	"github.com/edvin/batchctl/internal/core"
)

// actorFrom resolves who performed a request: an explicit body field wins,
// otherwise the name of the authenticated API key is used.
func actorFrom(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id := mw.GetIdentity(r.Context()); id != nil {
		return id.Name
	}
	return ""
}

// writeServiceError maps service-layer sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrExecutionNotFound),
		errors.Is(err, core.ErrCalendarNotFound),
		errors.Is(err, core.ErrDependencyNotFound):
		response.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrDuplicateJob),
		errors.Is(err, core.ErrDuplicateCalendar),
		errors.Is(err, core.ErrDuplicateDependency),
		errors.Is(err, core.ErrCalendarAssigned),
		errors.Is(err, core.ErrJobNotRunnable):
		response.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrCyclicDependency):
		response.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
