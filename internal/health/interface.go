package health

import "context"

// HealthChecker reports the status code and JSON body for the health endpoint.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (int, []byte, error)
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Response is the body served by GET /health.
type Response struct {
	Status    string  `json:"status"`
	Service   string  `json:"service,omitempty"`
	Version   string  `json:"version,omitempty"`
	Candidate string  `json:"candidate,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
	Error     string  `json:"error,omitempty"`
}
