// Package health reports readiness from the database and the authorization engine.
package health

import (
	"context"
	"time"
)

// Pinger checks database connectivity (e.g. *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the authorization engine evaluates (e.g. *engine.OPAEngine).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Component status values.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailing = "failing"
)

const checkTimeout = 2 * time.Second

// Report is the outcome of one readiness check.
type Report struct {
	Ready      bool              `json:"ready"`
	Components map[string]string `json:"components"`
}

// Checker runs the readiness checks. A nil Pinger or PolicyChecker is skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker.
func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check runs every configured check with a short timeout.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	r := Report{Ready: true, Components: map[string]string{"database": StatusSkipped, "policy": StatusSkipped}}
	if c.pinger != nil {
		r.Components["database"] = StatusOK
		if err := c.pinger.Ping(ctx); err != nil {
			r.Ready = false
			r.Components["database"] = StatusFailing
		}
	}
	if c.policy != nil {
		r.Components["policy"] = StatusOK
		if err := c.policy.HealthCheck(ctx); err != nil {
			r.Ready = false
			r.Components["policy"] = StatusFailing
		}
	}
	return r
}
