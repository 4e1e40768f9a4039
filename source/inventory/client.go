// Package inventory fetches desired record state from an HTTP inventory
// service, the registry of intended DNS records.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/evanofslack/dns-reconciler/metrics"
	"github.com/evanofslack/dns-reconciler/provider"
	"github.com/evanofslack/dns-reconciler/record"
	"github.com/evanofslack/dns-reconciler/registry"
)

// PluginKey is the config key this source registers under.
const PluginKey = "inventory.http"

func init() {
	registry.Register(registry.Registration{
		Key:        PluginKey,
		Capability: registry.SourceOfTruth,
		Factory: func(settings map[string]string, m *metrics.Metrics) (any, error) {
			baseURL := settings["url"]
			if baseURL == "" {
				return nil, errors.New("inventory source requires a url setting")
			}
			if _, err := url.Parse(baseURL); err != nil {
				return nil, fmt.Errorf("parse inventory url: %w", err)
			}
			return New(baseURL, m), nil
		},
	})
}

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client reads intended records over HTTP, one request per zone:
// GET {base}/v1/zones/{zone}/records.
type Client struct {
	baseURL string
	http    Httper
	metrics *metrics.Metrics
}

func New(baseURL string, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
		metrics: m,
	}
}

type zoneDocument struct {
	Zone    string        `json:"zone"`
	Records []recordEntry `json:"records"`
}

type recordEntry struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	TTL    uint32   `json:"ttl"`
	Rrdata []string `json:"rrdata"`
}

// Fetch retrieves the intended records for every requested zone. It is
// read-only and safe for concurrent calls; the underlying http.Client
// handles its own connection pooling.
func (c *Client) Fetch(ctx context.Context, zones []string) (record.Set, error) {
	set := make(record.Set)
	for _, zone := range zones {
		doc, err := c.getZone(ctx, zone)
		if err != nil {
			return nil, err
		}
		for _, entry := range doc.Records {
			rec := record.Record{
				Zone:   zone,
				Name:   entry.Name,
				Type:   record.Type(entry.Type),
				TTL:    entry.TTL,
				Rrdata: entry.Rrdata,
			}
			if err := set.Add(rec); err != nil {
				return nil, fmt.Errorf("%w: zone %s: %v", provider.ErrMalformedData, zone, err)
			}
		}
	}
	return set, nil
}

func (c *Client) getZone(ctx context.Context, zone string) (zoneDocument, error) {
	endpoint := fmt.Sprintf("%s/v1/zones/%s/records", c.baseURL, url.PathEscape(zone))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return zoneDocument{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.IncFetch(PluginKey, false)
		return zoneDocument{}, provider.Classify(fmt.Errorf("inventory request for zone %s: %w", zone, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.IncFetch(PluginKey, false)
		return zoneDocument{}, classifyStatus(zone, resp.StatusCode)
	}

	var doc zoneDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		c.metrics.IncFetch(PluginKey, false)
		return zoneDocument{}, fmt.Errorf("%w: parse inventory response for zone %s: %v", provider.ErrMalformedData, zone, err)
	}
	c.metrics.IncFetch(PluginKey, true)
	return doc, nil
}

func classifyStatus(zone string, code int) error {
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: inventory zone %s, status=%d", provider.ErrTimeout, zone, code)
	case code >= 500 || code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: inventory zone %s, status=%d", provider.ErrUnavailable, zone, code)
	default:
		return fmt.Errorf("%w: inventory zone %s, unexpected status=%d", provider.ErrMalformedData, zone, code)
	}
}
