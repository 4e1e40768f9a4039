// Package cloudflare implements the DNS provider capability against the
// Cloudflare API.
package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/ratelimit"

	"github.com/evanofslack/dns-reconciler/metrics"
	"github.com/evanofslack/dns-reconciler/provider"
	"github.com/evanofslack/dns-reconciler/record"
	"github.com/evanofslack/dns-reconciler/registry"
)

// PluginKey is the config key this provider registers under.
const PluginKey = "dns.cloudflare"

const (
	defaultQPS      = 4
	listPageSize    = 100
	zoneIDCacheTTL  = 30 * time.Minute
	zoneIDCacheScan = 10 * time.Minute
)

func init() {
	registry.Register(registry.Registration{
		Key:        PluginKey,
		Capability: registry.DNSProvider,
		Factory: func(settings map[string]string, m *metrics.Metrics) (any, error) {
			token := settings["token"]
			if token == "" {
				return nil, errors.New("cloudflare api token empty")
			}
			qps := defaultQPS
			if raw := settings["qps"]; raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil || parsed <= 0 {
					return nil, fmt.Errorf("invalid cloudflare qps setting %q", raw)
				}
				qps = parsed
			}
			return New(token, qps, m)
		},
	})
}

// Provider talks to the Cloudflare DNS API. Zone name to zone ID lookups
// are cached with a TTL; every API call passes through a process-wide
// rate limiter so reconciliation bursts stay inside API limits.
type Provider struct {
	api     *cloudflare.API
	zoneIDs *gocache.Cache
	limiter ratelimit.Limiter
	metrics *metrics.Metrics
}

func New(token string, qps int, m *metrics.Metrics) (*Provider, error) {
	api, err := cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("init cloudflare client: %w", err)
	}
	return &Provider{
		api:     api,
		zoneIDs: gocache.New(zoneIDCacheTTL, zoneIDCacheScan),
		limiter: ratelimit.New(qps),
		metrics: m,
	}, nil
}

// Fetch lists every record in the requested zones, grouped by identity
// key: Cloudflare stores one content value per API record, so records
// sharing (name, type) fold into one rrdata sequence in listing order.
func (p *Provider) Fetch(ctx context.Context, zones []string) (record.Set, error) {
	set := make(record.Set)
	for _, zone := range zones {
		zoneID, err := p.zoneID(ctx, zone)
		if err != nil {
			p.metrics.IncFetch(PluginKey, false)
			return nil, err
		}

		records, err := p.listAll(ctx, zoneID, cloudflare.ListDNSRecordsParams{})
		if err != nil {
			p.metrics.IncFetch(PluginKey, false)
			return nil, fmt.Errorf("list records for zone %s: %w", zone, classifyFetch(err))
		}

		for _, r := range records {
			key := record.Key{Zone: zone, Name: relativeName(r.Name, zone), Type: record.Type(r.Type)}
			existing, ok := set[key]
			if !ok {
				set[key] = record.Record{
					Zone:   key.Zone,
					Name:   key.Name,
					Type:   key.Type,
					TTL:    uint32(r.TTL),
					Rrdata: []string{r.Content},
				}
				continue
			}
			existing.Rrdata = append(existing.Rrdata, r.Content)
			set[key] = existing
		}
	}
	p.metrics.IncFetch(PluginKey, true)
	return set, nil
}

// Apply executes one change. Cloudflare has no atomic multi-value
// replace, so an UPDATE deletes the key's current API records and
// recreates the desired ones. Before mutating, actual state recorded in
// the change is checked against the live zone; any drift is a conflict
// and the change must be recomputed.
func (p *Provider) Apply(ctx context.Context, change record.Change) error {
	zoneID, err := p.zoneID(ctx, change.Zone)
	if err != nil {
		return err
	}

	fqdn := absoluteName(change.Key.Name, change.Zone)
	current, err := p.listAll(ctx, zoneID, cloudflare.ListDNSRecordsParams{
		Name: fqdn,
		Type: string(change.Key.Type),
	})
	if err != nil {
		return fmt.Errorf("list current records for %s: %w", change.Key, classifyFetch(err))
	}

	switch change.Action {
	case record.ActionCreate:
		if len(current) > 0 {
			return fmt.Errorf("%w: %s already present", provider.ErrConflict, change.Key)
		}
		return p.createAll(ctx, zoneID, fqdn, *change.Desired)
	case record.ActionUpdate:
		if !matchesActual(current, change) {
			return fmt.Errorf("%w: %s moved since fetch", provider.ErrConflict, change.Key)
		}
		if err := p.deleteAll(ctx, zoneID, current); err != nil {
			return err
		}
		return p.createAll(ctx, zoneID, fqdn, *change.Desired)
	case record.ActionDelete:
		if !matchesActual(current, change) {
			return fmt.Errorf("%w: %s moved since fetch", provider.ErrConflict, change.Key)
		}
		return p.deleteAll(ctx, zoneID, current)
	default:
		return provider.Reject("unknown change action %q", change.Action)
	}
}

func (p *Provider) createAll(ctx context.Context, zoneID, fqdn string, desired record.Record) error {
	rc := cloudflare.ZoneIdentifier(zoneID)
	for _, value := range desired.Rrdata {
		p.limiter.Take()
		slog.Debug("creating cloudflare record", "name", fqdn, "type", desired.Type, "content", value)
		_, err := p.api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
			Type:    string(desired.Type),
			Name:    fqdn,
			Content: value,
			TTL:     int(desired.TTL),
		})
		if err != nil {
			return fmt.Errorf("create record %s: %w", fqdn, classifyApply(err))
		}
	}
	return nil
}

func (p *Provider) deleteAll(ctx context.Context, zoneID string, records []cloudflare.DNSRecord) error {
	rc := cloudflare.ZoneIdentifier(zoneID)
	for _, r := range records {
		p.limiter.Take()
		slog.Debug("deleting cloudflare record", "name", r.Name, "type", r.Type, "id", r.ID)
		if err := p.api.DeleteDNSRecord(ctx, rc, r.ID); err != nil {
			return fmt.Errorf("delete record %s: %w", r.Name, classifyApply(err))
		}
	}
	return nil
}

func (p *Provider) listAll(ctx context.Context, zoneID string, params cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, error) {
	rc := cloudflare.ZoneIdentifier(zoneID)
	params.PerPage = listPageSize
	params.Page = 1

	var out []cloudflare.DNSRecord
	for {
		p.limiter.Take()
		records, info, err := p.api.ListDNSRecords(ctx, rc, params)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
		if info == nil || info.Page >= info.TotalPages {
			return out, nil
		}
		params.Page = info.Page + 1
	}
}

func (p *Provider) zoneID(ctx context.Context, zone string) (string, error) {
	if cached, ok := p.zoneIDs.Get(zone); ok {
		return cached.(string), nil
	}

	p.limiter.Take()
	zones, err := p.api.ListZones(ctx, zone)
	if err != nil {
		return "", fmt.Errorf("lookup zone %s: %w", zone, classifyFetch(err))
	}
	if len(zones) == 0 {
		return "", fmt.Errorf("%w: zone %s not found in cloudflare account", provider.ErrMalformedData, zone)
	}
	p.zoneIDs.Set(zone, zones[0].ID, gocache.DefaultExpiration)
	return zones[0].ID, nil
}

// matchesActual reports whether the live API records still carry exactly
// the rrdata the change recorded as actual state.
func matchesActual(current []cloudflare.DNSRecord, change record.Change) bool {
	if change.Actual == nil {
		return false
	}
	if len(current) != len(change.Actual.Rrdata) {
		return false
	}
	remaining := make(map[string]int, len(current))
	for _, v := range change.Actual.Rrdata {
		remaining[v]++
	}
	for _, r := range current {
		remaining[r.Content]--
		if remaining[r.Content] < 0 {
			return false
		}
	}
	return true
}

// relativeName converts a Cloudflare FQDN into the zone-relative name
// used by the record model, with "@" for the apex.
func relativeName(fqdn, zone string) string {
	if fqdn == zone {
		return "@"
	}
	return strings.TrimSuffix(fqdn, "."+zone)
}

// absoluteName is the inverse of relativeName.
func absoluteName(name, zone string) string {
	if name == "@" || name == "" {
		return zone
	}
	return name + "." + zone
}

func classifyFetch(err error) error {
	var apiErr *cloudflare.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", provider.ErrTimeout, err)
		case apiErr.ClientRateLimited() || apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
		default:
			return fmt.Errorf("%w: %v", provider.ErrMalformedData, err)
		}
	}
	return provider.Classify(err)
}

func classifyApply(err error) error {
	var apiErr *cloudflare.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusConflict:
			return fmt.Errorf("%w: %v", provider.ErrConflict, err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", provider.ErrTimeout, err)
		case apiErr.ClientRateLimited() || apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
		default:
			return provider.Reject("cloudflare api: %v", err)
		}
	}
	return provider.Classify(err)
}
