// Package tenant defines the request- and tenant-scoped values that flow
// unchanged through every component in the pipeline (spec §3).
package tenant

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Context identifies the tenant a request belongs to. Every cache key and
// every retrieval filter must be scoped to Context.ID; it is illegal to emit
// a result that is not scoped to a tenant.
type Context struct {
	ID     string
	Active bool
}

// Validate reports whether the tenant context is usable for a request.
func (t Context) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("tenant: id must not be empty")
	}
	if !t.Active {
		return fmt.Errorf("tenant: %s is not active", t.ID)
	}
	return nil
}

// RequestContext carries the per-request identifiers and the absolute
// deadline computed once at entry and propagated unchanged through every
// component (spec §3, §5).
type RequestContext struct {
	RequestID string
	Tenant    Context
	UserID    string
	Deadline  time.Time
}

// NewRequestContext computes the deadline as now + slaTargetMs and stamps a
// fresh request ID if one was not supplied by the caller.
func NewRequestContext(tenant Context, userID string, slaTarget time.Duration, requestID string) RequestContext {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return RequestContext{
		RequestID: requestID,
		Tenant:    tenant,
		UserID:    userID,
		Deadline:  time.Now().Add(slaTarget),
	}
}

// Remaining returns the time left until the deadline, as of now. It never
// returns a negative value below zero semantics are represented as exactly
// zero so callers can compare with <= without special-casing negatives.
func (r RequestContext) Remaining() time.Duration {
	d := time.Until(r.Deadline)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the deadline has already passed.
func (r RequestContext) Expired() bool {
	return !time.Now().Before(r.Deadline)
}
