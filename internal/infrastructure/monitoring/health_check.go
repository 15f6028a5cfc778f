package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"microcourses/internal/core/ports"
)

type HealthChecker struct {
	checks []HealthCheck
	mu     sync.RWMutex
}

type HealthCheck struct {
	Name    string
	Check   func(ctx context.Context) error
	Timeout time.Duration
}

type CheckResult struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Detail  string        `json:"detail"`
	Took    time.Duration `json:"took"`
}

type HealthStatus struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []CheckResult `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make([]HealthCheck, 0),
	}
}

func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks = append(h.checks, HealthCheck{
		Name:    name,
		Check:   check,
		Timeout: timeout,
	})
}

// AddStorageCheck probes a key-value store with a write, read and delete of
// a scratch key.
func (h *HealthChecker) AddStorageCheck(name string, kv ports.KeyValueStore, timeout time.Duration) {
	h.AddCheck(name, func(ctx context.Context) error {
		const probeKey = "__healthcheck"
		want := time.Now().UTC().Format(time.RFC3339Nano)
		if err := kv.Set(ctx, probeKey, want); err != nil {
			return err
		}
		got, err := kv.Get(ctx, probeKey)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("read back %q, wrote %q", got, want)
		}
		return kv.Delete(ctx, probeKey)
	}, timeout)
}

// CheckAll runs the checks in registration order.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make([]CheckResult, 0, len(checks)),
	}

	for _, check := range checks {
		status.Checks = append(status.Checks, runCheck(ctx, check))
	}
	for _, r := range status.Checks {
		if !r.Healthy {
			status.Status = "unhealthy"
			break
		}
	}

	return status
}

func runCheck(ctx context.Context, check HealthCheck) CheckResult {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(checkCtx)
	result := CheckResult{Name: check.Name, Healthy: err == nil, Detail: "ok", Took: time.Since(start)}
	if err != nil {
		result.Detail = err.Error()
	}
	return result
}

// IsHealthy reports whether every check passes.
func (h *HealthChecker) IsHealthy(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}
