// Package provider defines the two plugin capability contracts the
// reconciliation core consumes, and the error taxonomy their
// implementations report through.
package provider

import (
	"context"

	"github.com/evanofslack/dns-reconciler/record"
)

// Source produces the desired record state for a set of zones from an
// external source of truth. Fetch must be read-only and safe to call
// concurrently for disjoint zone sets; implementations sharing a
// connection pool handle their own synchronization.
type Source interface {
	Fetch(ctx context.Context, zones []string) (record.Set, error)
}

// DNSProvider produces the actual record state held by a DNS service and
// accepts corrective changes.
//
// Apply is invoked once per change. Repeated identical Apply calls for the
// same key should be idempotent where the underlying protocol allows,
// since callers retry transient failures. A provider whose state has moved
// since the last Fetch reports ErrConflict rather than applying a stale
// change.
type DNSProvider interface {
	Fetch(ctx context.Context, zones []string) (record.Set, error)
	Apply(ctx context.Context, change record.Change) error
}
