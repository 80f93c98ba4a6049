package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the model provider is failing; stored filings can
	// still be listed and replayed, but extraction and answering cannot run.
	Degraded Status = "degraded"
	// Unhealthy indicates the state store is unreachable.
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
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db     DBPinger
	models ModelChecker
}

// New creates a Service. models can be nil.
func New(db DBPinger, models ModelChecker) *Service {
	return &Service{db: db, models: models}
}

// Check probes every component. The state store is load-bearing for the
// whole pipeline, so its failure makes the report Unhealthy; a model
// provider failure only degrades it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	if s.models != nil {
		if err := s.models.HealthCheck(ctx); err != nil {
			checks["models"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["models"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
