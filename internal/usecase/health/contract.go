package health

import "context"

// DBPinger checks state store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ModelChecker checks model provider availability.
type ModelChecker interface {
	HealthCheck(ctx context.Context) error
}
