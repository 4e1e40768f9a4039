// Package registry holds the process-wide table of provider plugin
// factories and instantiates the ones named by configuration.
package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/evanofslack/dns-reconciler/metrics"
	"github.com/evanofslack/dns-reconciler/provider"
)

// Capability tags what a plugin provides. Every registration declares
// exactly one.
type Capability string

const (
	SourceOfTruth Capability = "SOURCE_OF_TRUTH"
	DNSProvider   Capability = "DNS_PROVIDER"
)

// Factory constructs a plugin instance from its configuration section.
type Factory func(settings map[string]string, m *metrics.Metrics) (any, error)

// Registration binds a config key to a capability and a factory. The
// table is immutable after startup; registrations happen in package
// init() functions.
type Registration struct {
	Key        string
	Capability Capability
	Factory    Factory
}

var (
	mu            sync.Mutex
	registrations = make(map[string]Registration)
)

// Register is called by plugin packages in their init() to self-register.
func Register(r Registration) {
	if r.Key == "" || r.Factory == nil {
		panic("registry: registration requires a key and a factory")
	}
	if r.Capability != SourceOfTruth && r.Capability != DNSProvider {
		panic(fmt.Sprintf("registry: plugin %q declares unknown capability %q", r.Key, r.Capability))
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registrations[r.Key]; exists {
		panic(fmt.Sprintf("registry: plugin %q already registered", r.Key))
	}
	registrations[r.Key] = r
}

// Keys returns every registered config key, sorted.
func Keys() []string {
	mu.Lock()
	defer mu.Unlock()
	keys := make([]string, 0, len(registrations))
	for k := range registrations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadPolicy selects how construction failures are handled. Strict aborts
// the whole load; lenient records failures and proceeds with whatever
// constructed cleanly.
type LoadPolicy struct {
	Strict bool
}

// Providers holds the instantiated plugins for the life of the process.
// The maps are read-only after Load and safe for concurrent lookup. The
// registry retains ownership; callers borrow instances for a run and
// must not close them.
type Providers struct {
	Source    provider.Source
	SourceKey string
	DNS       map[string]provider.DNSProvider
	Failed    map[string]error

	instances []any
}

// Close releases any plugin that holds resources.
func (p *Providers) Close() error {
	var errs []error
	for _, inst := range p.instances {
		if closer, ok := inst.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Load instantiates the plugins named in keys, an allow-list: registered
// plugins not named are skipped. Each construction is independent; one
// failure never aborts another's construction. Under a strict policy any
// failure aborts the load; under a lenient policy failed plugins are
// recorded in Failed and excluded from runs.
//
// A usable load ends with exactly one source of truth and at least one
// DNS provider, regardless of policy: a reconciliation run cannot proceed
// without both sides of the comparison.
func Load(keys []string, settings map[string]map[string]string, m *metrics.Metrics, policy LoadPolicy) (*Providers, error) {
	out := &Providers{
		DNS:    make(map[string]provider.DNSProvider),
		Failed: make(map[string]error),
	}

	for _, key := range keys {
		mu.Lock()
		reg, ok := registrations[key]
		mu.Unlock()
		if !ok {
			out.Failed[key] = fmt.Errorf("plugin %q not registered (registered: %v)", key, Keys())
			m.IncPluginLoad(key, false)
			continue
		}

		inst, err := reg.Factory(settings[key], m)
		if err != nil {
			out.Failed[key] = fmt.Errorf("construct plugin %q: %w", key, err)
			m.IncPluginLoad(key, false)
			continue
		}

		if err := bind(out, reg, inst); err != nil {
			if closer, ok := inst.(io.Closer); ok {
				_ = closer.Close()
			}
			out.Failed[key] = err
			m.IncPluginLoad(key, false)
			continue
		}
		m.IncPluginLoad(key, true)
	}

	if len(out.Failed) > 0 {
		if policy.Strict {
			errs := make([]error, 0, len(out.Failed))
			for _, err := range out.Failed {
				errs = append(errs, err)
			}
			closeErr := out.Close()
			return nil, errors.Join(append(errs, closeErr)...)
		}
		for key, err := range out.Failed {
			slog.Default().Warn("fail load plugin, excluding from runs", "plugin", key, "error", err)
		}
	}

	if out.Source == nil {
		return nil, errors.Join(errors.New("no source of truth plugin loaded"), out.Close())
	}
	if len(out.DNS) == 0 {
		return nil, errors.Join(errors.New("no dns provider plugin loaded"), out.Close())
	}
	return out, nil
}

// bind validates the instance against its declared capability and wires
// it into place. An instance satisfying both capabilities, or neither, is
// a configuration error.
func bind(out *Providers, reg Registration, inst any) error {
	src, isSrc := inst.(provider.Source)
	dns, isDNS := inst.(provider.DNSProvider)

	switch reg.Capability {
	case SourceOfTruth:
		if isDNS {
			return fmt.Errorf("plugin %q declares %s but also implements %s", reg.Key, SourceOfTruth, DNSProvider)
		}
		if !isSrc {
			return fmt.Errorf("plugin %q declares %s but implements no capability", reg.Key, SourceOfTruth)
		}
		if out.Source != nil {
			return fmt.Errorf("plugin %q: source of truth already provided by %q", reg.Key, out.SourceKey)
		}
		out.Source = src
		out.SourceKey = reg.Key
	case DNSProvider:
		if !isDNS {
			return fmt.Errorf("plugin %q declares %s but implements no capability", reg.Key, DNSProvider)
		}
		out.DNS[reg.Key] = dns
	}
	out.instances = append(out.instances, inst)
	return nil
}
