package core

import (
	"github.com/rs/zerolog"

	"github.com/edvin/batchctl/internal/worker"
)

type Services struct {
	Job        *JobService
	Dependency *DependencyService
	Calendar   *CalendarService
	Execution  *ExecutionService
	Audit      *AuditService
}

func NewServices(db DB, wc worker.Client, logger zerolog.Logger) *Services {
	audit := NewAuditService(db, logger)
	deps := NewDependencyService(db, audit)
	return &Services{
		Job:        NewJobService(db, audit),
		Dependency: deps,
		Calendar:   NewCalendarService(db, audit),
		Execution:  NewExecutionService(db, wc, deps, audit, logger),
		Audit:      audit,
	}
}

// Close flushes the audit writer.
func (s *Services) Close() {
	s.Audit.Close()
}
