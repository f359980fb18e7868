package jsonstore

import (
	"context"
	"errors"
	"slices"
	"time"

	healthuc "github.com/kailas-cloud/jsonstore/internal/usecase/health"
)

// HealthStatus summarizes the document store and the index.
type HealthStatus struct {
	// Status is "ok", "degraded" when some components fail, or "error".
	Status string
	// Checks maps "store" and "index" to "ok" or "error". The store is absent
	// for backends that cannot be pinged.
	Checks map[string]string
}

// OK reports whether every component answered.
func (h HealthStatus) OK() bool { return h.Status == string(healthuc.Healthy) }

// Failing lists the components that did not answer, sorted.
func (h HealthStatus) Failing() []string {
	var out []string
	for name, res := range h.Checks {
		if res != string(healthuc.CheckOK) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

var errUnhealthy = errors.New("unhealthy")

// Health pings the index and, when it supports pings, the document store.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	report := c.health.Check(ctx)

	h := HealthStatus{
		Status: string(report.Status),
		Checks: make(map[string]string, len(report.Checks)),
	}
	for name, res := range report.Checks {
		h.Checks[name] = string(res)
	}

	var err error
	if !h.OK() {
		err = errUnhealthy
	}
	c.obs.observe("health", start, err)
	return h
}
