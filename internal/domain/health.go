package domain

import "time"

const (
	// HealthStatusOK indicates every dependency answered its probe.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates a dependency reported an error but the API can still answer.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a dependency timed out or the probe was cancelled.
	HealthStatusError = "error"
)

// DependencyHealth is the outcome of one readiness probe.
type DependencyHealth struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for the readiness endpoint.
type HealthReport struct {
	Status      string
	Checks      map[string]DependencyHealth
	Version     string
	Uptime      time.Duration
	GeneratedAt time.Time
}
