package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type orgHealthStatus string

const (
	orgHealthStatusHealthy  orgHealthStatus = "healthy"
	orgHealthStatusDegraded orgHealthStatus = "degraded"
	orgHealthStatusDown     orgHealthStatus = "down"
)

type orgHealthResponse struct {
	Status    orgHealthStatus `json:"status"`
	Timestamp string          `json:"timestamp"`
	Checks    map[string]any  `json:"checks"`
}

type orgComponentHealth struct {
	Status       orgHealthStatus `json:"status"`
	ResponseTime string          `json:"responseTime,omitempty"`
	Error        string          `json:"error,omitempty"`
	Details      map[string]any  `json:"details,omitempty"`
}

const (
	orgApprovalOldestPendingDegraded = 7 * 24 * time.Hour
	orgDBDegradedLatency             = 100 * time.Millisecond
	orgHealthCheckTimeout            = 5 * time.Second
)

// Pinger is satisfied by pgxpool.Pool and the redis chart cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsProbes are the backends reported by the ops health endpoint. A nil
// probe is reported as not configured.
type OpsProbes struct {
	Database Pinger
	Cache    Pinger
}

// WithOpsProbes enables GET /org/api/ops/health.
func (c *OrgAPIController) WithOpsProbes(p OpsProbes) *OrgAPIController {
	c.probes = &p
	return c
}

func (c *OrgAPIController) GetOpsHealth(w http.ResponseWriter, r *http.Request) {
	response := c.performOrgOpsHealthChecks(r.Context())

	status := http.StatusOK
	if response.Status == orgHealthStatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (c *OrgAPIController) performOrgOpsHealthChecks(ctx context.Context) orgHealthResponse {
	checks := make(map[string]any)
	overall := orgHealthStatusHealthy

	var probes OpsProbes
	if c.probes != nil {
		probes = *c.probes
	}

	dbHealth := checkPinger(ctx, probes.Database, "database")
	checks["database"] = dbHealth
	overall = mergeOrgHealthStatus(overall, dbHealth.Status)

	cacheHealth := checkPinger(ctx, probes.Cache, "cache")
	// a cold cache only costs latency
	if cacheHealth.Status == orgHealthStatusDown {
		cacheHealth.Status = orgHealthStatusDegraded
	}
	checks["cache"] = cacheHealth
	overall = mergeOrgHealthStatus(overall, cacheHealth.Status)

	approvals := c.checkPendingApprovals(ctx)
	checks["approvals"] = approvals
	overall = mergeOrgHealthStatus(overall, approvals.Status)

	return orgHealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
}

func mergeOrgHealthStatus(current, next orgHealthStatus) orgHealthStatus {
	if next == orgHealthStatusDown {
		return orgHealthStatusDown
	}
	if next == orgHealthStatusDegraded && current == orgHealthStatusHealthy {
		return orgHealthStatusDegraded
	}
	return current
}

func checkPinger(ctx context.Context, p Pinger, name string) orgComponentHealth {
	if p == nil {
		return orgComponentHealth{
			Status:  orgHealthStatusHealthy,
			Details: map[string]any{"configured": false},
		}
	}
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, orgHealthCheckTimeout)
	defer cancel()

	err := p.Ping(timeoutCtx)
	responseTime := time.Since(start)
	if err != nil {
		return orgComponentHealth{
			Status:       orgHealthStatusDown,
			ResponseTime: responseTime.String(),
			Error:        fmt.Sprintf("%s ping failed: %v", name, err),
		}
	}

	status := orgHealthStatusHealthy
	if responseTime > orgDBDegradedLatency {
		status = orgHealthStatusDegraded
	}
	return orgComponentHealth{
		Status:       status,
		ResponseTime: responseTime.String(),
		Details:      map[string]any{"configured": true},
	}
}

// checkPendingApprovals degrades when a ticket has waited longer than a week.
func (c *OrgAPIController) checkPendingApprovals(ctx context.Context) orgComponentHealth {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, orgHealthCheckTimeout)
	defer cancel()

	pending, err := c.approvals.ListPending(timeoutCtx)
	if err != nil {
		return orgComponentHealth{
			Status:       orgHealthStatusDown,
			ResponseTime: time.Since(start).String(),
			Error:        fmt.Sprintf("pending approvals query failed: %v", err),
		}
	}

	status := orgHealthStatusHealthy
	details := map[string]any{"pending": len(pending)}
	var oldest time.Time
	for _, cr := range pending {
		if oldest.IsZero() || cr.CreatedAt.Before(oldest) {
			oldest = cr.CreatedAt
		}
	}
	if !oldest.IsZero() {
		age := time.Since(oldest)
		details["oldest_pending_age"] = age.Truncate(time.Second).String()
		if age > orgApprovalOldestPendingDegraded {
			status = orgHealthStatusDegraded
		}
	}

	return orgComponentHealth{
		Status:       status,
		ResponseTime: time.Since(start).String(),
		Details:      details,
	}
}
