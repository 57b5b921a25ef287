package cowsay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cowsay-gateway/internal/health"
)

const (
	healthProbeText   = "test"
	notFoundHealthMsg = "cowsay command not found in any expected location"
)

// HealthChecker probes the resolver with a canned argument.
type HealthChecker struct {
	resolver *Resolver
	now      func() time.Time
}

func NewHealthChecker(resolver *Resolver) *HealthChecker {
	return &HealthChecker{
		resolver: resolver,
		now:      time.Now,
	}
}

func createUnhealthyResponse(reason string) []byte {
	body, err := json.Marshal(health.Response{Status: health.StatusUnhealthy, Error: reason})
	if err != nil {
		return []byte(`{"status":"unhealthy","error":"failed to marshal response"}`)
	}
	return body
}

func (h *HealthChecker) CheckHealth(ctx context.Context) (int, []byte, error) {
	result, err := h.resolver.Resolve(ctx, healthProbeText)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, ErrToolNotFound) {
			reason = notFoundHealthMsg
		}
		return http.StatusInternalServerError, createUnhealthyResponse(reason), fmt.Errorf("cowsay health check failed: %w", err)
	}

	now := h.now()
	body, err := json.Marshal(health.Response{
		Status:    health.StatusHealthy,
		Service:   "cowsay",
		Version:   "cowsay available",
		Candidate: result.Candidate,
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
	})
	if err != nil {
		return http.StatusInternalServerError, createUnhealthyResponse("failed to marshal response"), fmt.Errorf("failed to marshal healthy response: %v", err)
	}

	return http.StatusOK, body, nil
}
