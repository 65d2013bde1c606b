package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/batchctl/internal/api/request"
	"github.com/edvin/batchctl/internal/api/response"
	"github.com/edvin/batchctl/internal/core"
)

type Dependency struct {
	svc *core.DependencyService
}

func NewDependency(svc *core.DependencyService) *Dependency {
	return &Dependency{svc: svc}
}

func (h *Dependency) Add(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.AddDependency
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	dep, err := h.svc.AddDependency(r.Context(), jobID, req.DependsOnJobID, req.DependencyType, req.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, dep)
}

func (h *Dependency) Remove(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	dependsOnID, err := request.RequireID(chi.URLParam(r, "dependsOnID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.Actor
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.RemoveDependency(r.Context(), jobID, dependsOnID, req.Actor); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Dependency) ListDependencies(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	deps, err := h.svc.Dependencies(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"dependencies": deps})
}

func (h *Dependency) ListDependents(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	deps, err := h.svc.Dependents(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"dependents": deps})
}

func (h *Dependency) ExecutionOrder(w http.ResponseWriter, r *http.Request) {
	var req request.ExecutionOrder
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.svc.ExecutionOrder(r.Context(), req.JobIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"execution_order": order})
}

func (h *Dependency) Subgraph(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		depth, err = strconv.Atoi(v)
		if err != nil {
			response.WriteError(w, http.StatusBadRequest, "depth must be an integer")
			return
		}
	}

	graph, err := h.svc.Subgraph(r.Context(), jobID, depth)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, graph)
}
