// Package health aggregates dependency checks into one readiness status.
package health

import (
	"context"
	"time"

	"github.com/aetheris-os/aetheris/internal/domain"
)

// Status is the aggregated health verdict.
type Status string

const (
	// StatusOK means every dependency answered.
	StatusOK Status = "ok"
	// StatusDegraded means the store is up but the embedding provider is not:
	// planning and thermal tracking still work, search and upsert do not.
	StatusDegraded Status = "degraded"
	// StatusError means the backing store is unreachable.
	StatusError Status = "error"
)

// Pinger checks store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Report is the health check response body.
type Report struct {
	Status    Status `json:"status"`
	Store     string `json:"store"`
	Embedding string `json:"embedding"`
}

// Checker runs the dependency probes.
type Checker struct {
	store    Pinger
	embedder domain.HealthChecker
	timeout  time.Duration
}

// NewChecker creates a health checker. embedder may be nil when no
// provider health endpoint is available.
func NewChecker(store Pinger, embedder domain.HealthChecker) *Checker {
	return &Checker{store: store, embedder: embedder, timeout: 5 * time.Second}
}

// Check probes the store and the embedding provider.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	report := Report{Status: StatusOK, Store: "ok", Embedding: "ok"}

	if err := c.store.Ping(ctx); err != nil {
		report.Status = StatusError
		report.Store = err.Error()
	}

	if c.embedder == nil {
		report.Embedding = "not checked"
	} else if err := c.embedder.HealthCheck(ctx); err != nil {
		report.Embedding = err.Error()
		if report.Status == StatusOK {
			report.Status = StatusDegraded
		}
	}

	return report
}
