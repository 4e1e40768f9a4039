package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/evanofslack/dns-reconciler/metrics"
	"github.com/evanofslack/dns-reconciler/record"
)

// The registration table is process-global, so every test registers
// under its own keys.

type stubSource struct{}

func (stubSource) Fetch(ctx context.Context, zones []string) (record.Set, error) {
	return make(record.Set), nil
}

type stubDNS struct{}

func (stubDNS) Fetch(ctx context.Context, zones []string) (record.Set, error) {
	return make(record.Set), nil
}

func (stubDNS) Apply(ctx context.Context, change record.Change) error {
	return nil
}

type closableSource struct {
	stubSource
	closed bool
}

func (c *closableSource) Close() error {
	c.closed = true
	return nil
}

func registerStub(t *testing.T, key string, capability Capability, inst any, err error) {
	t.Helper()
	Register(Registration{
		Key:        key,
		Capability: capability,
		Factory: func(settings map[string]string, m *metrics.Metrics) (any, error) {
			return inst, err
		},
	})
}

func TestLoadHappyPath(t *testing.T) {
	registerStub(t, "test.happy.source", SourceOfTruth, stubSource{}, nil)
	registerStub(t, "test.happy.dns", DNSProvider, stubDNS{}, nil)

	providers, err := Load(
		[]string{"test.happy.source", "test.happy.dns"},
		nil, metrics.New(false), LoadPolicy{Strict: true},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if providers.Source == nil || providers.SourceKey != "test.happy.source" {
		t.Error("source of truth not bound")
	}
	if _, ok := providers.DNS["test.happy.dns"]; !ok {
		t.Error("dns provider not bound")
	}
	if len(providers.Failed) != 0 {
		t.Errorf("unexpected failures: %v", providers.Failed)
	}
}

func TestLoadIsAnAllowList(t *testing.T) {
	registerStub(t, "test.allow.source", SourceOfTruth, stubSource{}, nil)
	registerStub(t, "test.allow.dns", DNSProvider, stubDNS{}, nil)
	registerStub(t, "test.allow.excluded", DNSProvider, stubDNS{}, nil)

	providers, err := Load(
		[]string{"test.allow.source", "test.allow.dns"},
		nil, metrics.New(false), LoadPolicy{Strict: true},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := providers.DNS["test.allow.excluded"]; ok {
		t.Error("plugin absent from the allow-list must not load")
	}
}

func TestLoadUnknownKey(t *testing.T) {
	registerStub(t, "test.unknown.source", SourceOfTruth, stubSource{}, nil)
	registerStub(t, "test.unknown.dns", DNSProvider, stubDNS{}, nil)

	keys := []string{"test.unknown.source", "test.unknown.dns", "test.unknown.missing"}

	if _, err := Load(keys, nil, metrics.New(false), LoadPolicy{Strict: true}); err == nil {
		t.Error("strict load with an unregistered key should fail")
	}

	providers, err := Load(keys, nil, metrics.New(false), LoadPolicy{Strict: false})
	if err != nil {
		t.Fatalf("lenient load should tolerate unregistered keys: %v", err)
	}
	if _, ok := providers.Failed["test.unknown.missing"]; !ok {
		t.Error("unregistered key should be recorded as failed")
	}
}

func TestLoadConstructionFailure(t *testing.T) {
	boom := errors.New("construction failed")
	registerStub(t, "test.construct.source", SourceOfTruth, stubSource{}, nil)
	registerStub(t, "test.construct.dns", DNSProvider, stubDNS{}, nil)
	registerStub(t, "test.construct.broken", DNSProvider, nil, boom)

	keys := []string{"test.construct.source", "test.construct.dns", "test.construct.broken"}

	// Strict: one failure aborts the whole load.
	if _, err := Load(keys, nil, metrics.New(false), LoadPolicy{Strict: true}); !errors.Is(err, boom) {
		t.Errorf("strict load should surface the construction error, got %v", err)
	}

	// Lenient: the failure is recorded and the rest proceed.
	providers, err := Load(keys, nil, metrics.New(false), LoadPolicy{Strict: false})
	if err != nil {
		t.Fatalf("lenient load should proceed: %v", err)
	}
	if !errors.Is(providers.Failed["test.construct.broken"], boom) {
		t.Errorf("expected recorded construction failure, got %v", providers.Failed)
	}
	if _, ok := providers.DNS["test.construct.dns"]; !ok {
		t.Error("healthy plugin should load despite sibling failure")
	}
}

func TestLoadRejectsDualCapability(t *testing.T) {
	// stubDNS structurally satisfies the source interface too; declaring
	// it as a source of truth must be refused.
	registerStub(t, "test.dual.imposter", SourceOfTruth, stubDNS{}, nil)
	registerStub(t, "test.dual.dns", DNSProvider, stubDNS{}, nil)

	_, err := Load(
		[]string{"test.dual.imposter", "test.dual.dns"},
		nil, metrics.New(false), LoadPolicy{Strict: true},
	)
	if err == nil || !strings.Contains(err.Error(), "also implements") {
		t.Errorf("expected dual-capability error, got %v", err)
	}
}

func TestLoadRejectsNoCapability(t *testing.T) {
	registerStub(t, "test.nocap.source", SourceOfTruth, stubSource{}, nil)
	registerStub(t, "test.nocap.broken", DNSProvider, struct{}{}, nil)

	_, err := Load(
		[]string{"test.nocap.source", "test.nocap.broken"},
		nil, metrics.New(false), LoadPolicy{Strict: true},
	)
	if err == nil || !strings.Contains(err.Error(), "implements no capability") {
		t.Errorf("expected missing-capability error, got %v", err)
	}
}

func TestLoadRejectsSecondSource(t *testing.T) {
	registerStub(t, "test.twosrc.first", SourceOfTruth, stubSource{}, nil)
	registerStub(t, "test.twosrc.second", SourceOfTruth, stubSource{}, nil)
	registerStub(t, "test.twosrc.dns", DNSProvider, stubDNS{}, nil)

	_, err := Load(
		[]string{"test.twosrc.first", "test.twosrc.second", "test.twosrc.dns"},
		nil, metrics.New(false), LoadPolicy{Strict: true},
	)
	if err == nil || !strings.Contains(err.Error(), "already provided") {
		t.Errorf("expected duplicate source error, got %v", err)
	}
}

func TestLoadRequiresSourceAndProvider(t *testing.T) {
	registerStub(t, "test.require.source", SourceOfTruth, stubSource{}, nil)
	registerStub(t, "test.require.dns", DNSProvider, stubDNS{}, nil)

	// Missing source is fatal even under a lenient policy.
	if _, err := Load([]string{"test.require.dns"}, nil, metrics.New(false), LoadPolicy{Strict: false}); err == nil {
		t.Error("load without a source of truth should fail")
	}
	if _, err := Load([]string{"test.require.source"}, nil, metrics.New(false), LoadPolicy{Strict: false}); err == nil {
		t.Error("load without a dns provider should fail")
	}
}

func TestLoadPassesSettings(t *testing.T) {
	var got map[string]string
	Register(Registration{
		Key:        "test.settings.source",
		Capability: SourceOfTruth,
		Factory: func(settings map[string]string, m *metrics.Metrics) (any, error) {
			got = settings
			return stubSource{}, nil
		},
	})
	registerStub(t, "test.settings.dns", DNSProvider, stubDNS{}, nil)

	settings := map[string]map[string]string{
		"test.settings.source": {"url": "http://inventory.local"},
	}
	if _, err := Load(
		[]string{"test.settings.source", "test.settings.dns"},
		settings, metrics.New(false), LoadPolicy{Strict: true},
	); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["url"] != "http://inventory.local" {
		t.Errorf("factory did not receive its settings section, got %v", got)
	}
}

func TestProvidersClose(t *testing.T) {
	src := &closableSource{}
	registerStub(t, "test.close.source", SourceOfTruth, src, nil)
	registerStub(t, "test.close.dns", DNSProvider, stubDNS{}, nil)

	providers, err := Load(
		[]string{"test.close.source", "test.close.dns"},
		nil, metrics.New(false), LoadPolicy{Strict: true},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := providers.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !src.closed {
		t.Error("close should release plugins that hold resources")
	}
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	registerStub(t, "test.dup.key", DNSProvider, stubDNS{}, nil)

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration should panic")
		}
	}()
	registerStub(t, "test.dup.key", DNSProvider, stubDNS{}, nil)
}

func TestRegisterPanicsOnUnknownCapability(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("unknown capability should panic")
		}
	}()
	Register(Registration{
		Key:        "test.badcap.key",
		Capability: Capability("OBSERVER"),
		Factory: func(settings map[string]string, m *metrics.Metrics) (any, error) {
			return stubDNS{}, nil
		},
	})
}
