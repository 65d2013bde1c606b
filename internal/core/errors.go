package core

import "errors"

// Error kinds surfaced to callers. Handlers match these with errors.Is to
// pick response codes, so conflicts ("already exists") stay distinguishable
// from cycle rejections and not-found conditions.
var (
	ErrJobNotFound        = errors.New("job not found")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrCalendarNotFound   = errors.New("calendar not found")
	ErrDependencyNotFound = errors.New("dependency not found")

	ErrDuplicateJob        = errors.New("job already exists")
	ErrDuplicateCalendar   = errors.New("calendar already exists")
	ErrDuplicateDependency = errors.New("dependency already exists")
	ErrCalendarAssigned    = errors.New("calendar already assigned to job")

	ErrCyclicDependency = errors.New("dependency would create a cycle")
	ErrJobNotRunnable   = errors.New("job is not runnable")
)
