// Package libdnsbridge mounts any libdns implementation as a DNS
// provider plugin, translating between the reconciler's keyed record
// model and libdns record lists.
package libdnsbridge

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/libdns/libdns"

	"github.com/evanofslack/dns-reconciler/metrics"
	"github.com/evanofslack/dns-reconciler/provider"
	"github.com/evanofslack/dns-reconciler/record"
	"github.com/evanofslack/dns-reconciler/registry"
)

// Client is the subset of libdns capabilities the bridge requires. Every
// full libdns provider implementation satisfies it.
type Client interface {
	GetRecords(ctx context.Context, zone string) ([]libdns.Record, error)
	AppendRecords(ctx context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error)
	SetRecords(ctx context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error)
	DeleteRecords(ctx context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error)
}

// RegisterPlugin registers a libdns-backed DNS provider plugin under key.
// The connect function builds the underlying libdns client from the
// plugin's configuration section.
func RegisterPlugin(key string, connect func(settings map[string]string) (Client, error)) {
	registry.Register(registry.Registration{
		Key:        key,
		Capability: registry.DNSProvider,
		Factory: func(settings map[string]string, m *metrics.Metrics) (any, error) {
			client, err := connect(settings)
			if err != nil {
				return nil, err
			}
			return New(key, client, m), nil
		},
	})
}

// Bridge adapts a libdns client to the DNSProvider capability.
type Bridge struct {
	key     string
	client  Client
	metrics *metrics.Metrics
}

func New(key string, client Client, m *metrics.Metrics) *Bridge {
	return &Bridge{key: key, client: client, metrics: m}
}

// Fetch lists each zone's records and folds libdns's one-value-per-record
// shape into keyed records, rrdata in listing order.
func (b *Bridge) Fetch(ctx context.Context, zones []string) (record.Set, error) {
	set := make(record.Set)
	for _, zone := range zones {
		records, err := b.client.GetRecords(ctx, zone)
		if err != nil {
			b.metrics.IncFetch(b.key, false)
			return nil, provider.Classify(fmt.Errorf("get records for zone %s: %w", zone, err))
		}
		for _, r := range records {
			rr := r.RR()
			key := record.Key{Zone: zone, Name: rr.Name, Type: record.Type(rr.Type)}
			existing, ok := set[key]
			if !ok {
				set[key] = record.Record{
					Zone:   zone,
					Name:   rr.Name,
					Type:   record.Type(rr.Type),
					TTL:    uint32(rr.TTL / time.Second),
					Rrdata: []string{rr.Data},
				}
				continue
			}
			existing.Rrdata = append(existing.Rrdata, rr.Data)
			set[key] = existing
		}
	}
	b.metrics.IncFetch(b.key, true)
	return set, nil
}

// Apply maps change actions onto libdns verbs: CREATE appends, UPDATE
// sets (replacing the key's records), DELETE removes the recorded actual
// records.
func (b *Bridge) Apply(ctx context.Context, change record.Change) error {
	var err error
	switch change.Action {
	case record.ActionCreate:
		recs, convErr := toLibdns(*change.Desired)
		if convErr != nil {
			return provider.Reject("%v", convErr)
		}
		_, err = b.client.AppendRecords(ctx, change.Zone, recs)
	case record.ActionUpdate:
		recs, convErr := toLibdns(*change.Desired)
		if convErr != nil {
			return provider.Reject("%v", convErr)
		}
		_, err = b.client.SetRecords(ctx, change.Zone, recs)
	case record.ActionDelete:
		recs, convErr := toLibdns(*change.Actual)
		if convErr != nil {
			return provider.Reject("%v", convErr)
		}
		_, err = b.client.DeleteRecords(ctx, change.Zone, recs)
	default:
		return provider.Reject("unknown change action %q", change.Action)
	}
	if err != nil {
		return provider.Classify(fmt.Errorf("apply %s for %s: %w", change.Action, change.Key, err))
	}
	return nil
}

// toLibdns expands one keyed record into libdns records, one per rrdata
// value, using typed libdns records where the type is known.
func toLibdns(r record.Record) ([]libdns.Record, error) {
	ttl := time.Duration(r.TTL) * time.Second
	out := make([]libdns.Record, 0, len(r.Rrdata))
	for _, value := range r.Rrdata {
		switch r.Type {
		case record.TypeA, record.TypeAAAA:
			addr, err := netip.ParseAddr(value)
			if err != nil {
				return nil, fmt.Errorf("fail parse ip addr %s, err=%w", value, err)
			}
			out = append(out, &libdns.Address{Name: r.Name, IP: addr, TTL: ttl})
		case record.TypeCNAME:
			out = append(out, &libdns.CNAME{Name: r.Name, Target: value, TTL: ttl})
		case record.TypeTXT:
			out = append(out, &libdns.TXT{Name: r.Name, Text: value, TTL: ttl})
		default:
			out = append(out, libdns.RR{Name: r.Name, Type: string(r.Type), Data: value, TTL: ttl})
		}
	}
	return out, nil
}
