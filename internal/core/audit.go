package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/batchctl/internal/model"
	"github.com/edvin/batchctl/internal/platform"
)

// Auditor records state-changing operations. Fire-and-forget: callers never
// wait on the audit write and never see its errors.
type Auditor interface {
	Record(entityType, entityID, action, actor, detail string)
}

// AuditService writes audit records through an async buffered channel so the
// insert never sits on the request path.
type AuditService struct {
	db     DB
	logger zerolog.Logger
	ch     chan model.AuditLog
	done   chan struct{}
}

func NewAuditService(db DB, logger zerolog.Logger) *AuditService {
	s := &AuditService{
		db:     db,
		logger: logger,
		ch:     make(chan model.AuditLog, 1024),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *AuditService) drain() {
	defer close(s.done)
	for entry := range s.ch {
		_, err := s.db.Exec(context.Background(),
			`INSERT INTO audit_logs (id, entity_type, entity_id, action, actor, detail, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now())`,
			entry.ID, entry.EntityType, entry.EntityID, entry.Action, entry.Actor, entry.Detail,
		)
		if err != nil {
			s.logger.Error().Err(err).Str("action", entry.Action).Msg("failed to write audit log")
		}
	}
}

// Record enqueues one audit entry. Drops the entry if the buffer is full.
func (s *AuditService) Record(entityType, entityID, action, actor, detail string) {
	select {
	case s.ch <- model.AuditLog{
		ID:         platform.NewID(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Detail:     detail,
	}:
	default:
		s.logger.Warn().Str("action", action).Msg("audit buffer full, dropping entry")
	}
}

// Close flushes buffered entries and stops the writer.
func (s *AuditService) Close() {
	close(s.ch)
	<-s.done
}

// List returns audit records newest first, cursor-paginated by id.
func (s *AuditService) List(ctx context.Context, limit int, cursor string) ([]model.AuditLog, bool, error) {
	query := `SELECT id, entity_type, entity_id, action, actor, detail, created_at FROM audit_logs`
	args := []any{}
	argIdx := 1

	if cursor != "" {
		query += fmt.Sprintf(` WHERE id < $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY id DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []model.AuditLog
	for rows.Next() {
		var l model.AuditLog
		if err := rows.Scan(&l.ID, &l.EntityType, &l.EntityID, &l.Action, &l.Actor, &l.Detail, &l.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate audit logs: %w", err)
	}

	hasMore := len(logs) > limit
	if hasMore {
		logs = logs[:limit]
	}
	return logs, hasMore, nil
}
