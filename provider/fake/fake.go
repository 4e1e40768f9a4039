// Package fake provides an in-memory DNS provider for tests and dry
// runs, with hooks for injecting failures.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/evanofslack/dns-reconciler/metrics"
	"github.com/evanofslack/dns-reconciler/provider"
	"github.com/evanofslack/dns-reconciler/record"
	"github.com/evanofslack/dns-reconciler/registry"
)

// PluginKey is the config key this provider registers under.
const PluginKey = "dns.fake"

func init() {
	registry.Register(registry.Registration{
		Key:        PluginKey,
		Capability: registry.DNSProvider,
		Factory: func(settings map[string]string, m *metrics.Metrics) (any, error) {
			return New(), nil
		},
	})
}

// Provider is an in-memory DNS provider. It enforces the same conflict
// semantics a real provider would: a change whose recorded actual state
// no longer matches the store is refused with ErrConflict.
type Provider struct {
	mu      sync.Mutex
	records record.Set
	applied []record.Change

	fetchErr error
	applyErr map[record.Key]error
	// failNext makes the next n Apply calls fail with failNextErr, then
	// succeed. Used to exercise retry paths.
	failNext    int
	failNextErr error
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		records:  make(record.Set),
		applyErr: make(map[record.Key]error),
	}
}

// Seed pre-loads records, replacing any existing entry for the same key.
func (p *Provider) Seed(records ...record.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range records {
		p.records[r.Key()] = r
	}
}

// SetFetchError makes every Fetch fail with err until reset with nil.
func (p *Provider) SetFetchError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchErr = err
}

// SetApplyError makes Apply fail with err for the given key.
func (p *Provider) SetApplyError(key record.Key, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyErr[key] = err
}

// FailNextApplies makes the next n Apply calls fail with err, after
// which applies succeed again.
func (p *Provider) FailNextApplies(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = n
	p.failNextErr = err
}

// Fetch returns a copy of the stored records for the requested zones.
func (p *Provider) Fetch(ctx context.Context, zones []string) (record.Set, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}

	inZones := make(map[string]bool, len(zones))
	for _, z := range zones {
		inZones[z] = true
	}

	out := make(record.Set)
	for key, rec := range p.records {
		if inZones[key.Zone] {
			out[key] = rec
		}
	}
	return out, nil
}

// Apply mutates the store per the change, refusing changes computed
// against state that has since moved.
func (p *Provider) Apply(ctx context.Context, change record.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNext > 0 {
		p.failNext--
		return p.failNextErr
	}
	if err := p.applyErr[change.Key]; err != nil {
		return err
	}
	if err := change.Validate(); err != nil {
		return provider.Reject("%v", err)
	}

	stored, exists := p.records[change.Key]
	switch change.Action {
	case record.ActionCreate:
		if exists {
			return fmt.Errorf("%w: record %s already exists", provider.ErrConflict, change.Key)
		}
		p.records[change.Key] = *change.Desired
	case record.ActionUpdate:
		if !exists || !stored.Equal(*change.Actual) {
			return fmt.Errorf("%w: record %s moved since fetch", provider.ErrConflict, change.Key)
		}
		p.records[change.Key] = *change.Desired
	case record.ActionDelete:
		if !exists || !stored.Equal(*change.Actual) {
			return fmt.Errorf("%w: record %s moved since fetch", provider.ErrConflict, change.Key)
		}
		delete(p.records, change.Key)
	}

	p.applied = append(p.applied, change)
	return nil
}

// Applied returns every successfully applied change, oldest first.
func (p *Provider) Applied() []record.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]record.Change, len(p.applied))
	copy(out, p.applied)
	return out
}

// RecordCount returns the number of records currently stored.
func (p *Provider) RecordCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}
