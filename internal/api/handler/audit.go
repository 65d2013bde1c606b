package handler

import (
	"net/http"

	"github.com/edvin/batchctl/internal/api/request"
	"github.com/edvin/batchctl/internal/api/response"
	"github.com/edvin/batchctl/internal/core"
)

type Audit struct {
	svc *core.AuditService
}

func NewAudit(svc *core.AuditService) *Audit {
	return &Audit{svc: svc}
}

func (h *Audit) List(w http.ResponseWriter, r *http.Request) {
	p := request.ParsePagination(r)
	entries, hasMore, err := h.svc.List(r.Context(), p.Limit, p.Cursor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	nextCursor := ""
	if hasMore && len(entries) > 0 {
		nextCursor = entries[len(entries)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, entries, nextCursor, hasMore)
}
