package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status   Status
	Checks   map[string]CheckResult
	Sessions int
}

// Service coordinates health checks.
type Service struct {
	db       DBPinger
	sessions SessionCounter
}

// New creates a Service. db is nil when no archive database is configured.
func New(db DBPinger, sessions SessionCounter) *Service {
	return &Service{db: db, sessions: sessions}
}

// Check runs the health checks. The engine itself is in-memory, so a failing archive
// database only degrades the service.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{"engine": CheckOK}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = CheckError
		} else {
			checks["database"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	r := Report{Status: status, Checks: checks}
	if s.sessions != nil {
		r.Sessions = s.sessions.Len()
	}
	return r
}
