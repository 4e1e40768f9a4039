// Package badgerregistry is a source of truth backed by a local badger
// database of intended records, for deployments that own their registry
// instead of consulting a remote inventory service.
package badgerregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/evanofslack/dns-reconciler/metrics"
	"github.com/evanofslack/dns-reconciler/provider"
	"github.com/evanofslack/dns-reconciler/record"
	"github.com/evanofslack/dns-reconciler/registry"
)

// PluginKey is the config key this source registers under.
const PluginKey = "inventory.badger"

const recordPrefix = "record:"

func init() {
	registry.Register(registry.Registration{
		Key:        PluginKey,
		Capability: registry.SourceOfTruth,
		Factory: func(settings map[string]string, m *metrics.Metrics) (any, error) {
			path := settings["path"]
			if path == "" {
				return nil, errors.New("badger registry requires a path setting")
			}
			return Open(path, m)
		},
	})
}

// Registry stores intended records keyed "record:<zone>/<name>/<type>"
// with a JSON body holding ttl and rrdata.
type Registry struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

func Open(path string, m *metrics.Metrics) (*Registry, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Registry{db: db, metrics: m}, nil
}

type storedRecord struct {
	TTL    uint32   `json:"ttl"`
	Rrdata []string `json:"rrdata"`
}

func storageKey(k record.Key) []byte {
	return []byte(recordPrefix + k.Zone + "/" + k.Name + "/" + string(k.Type))
}

// Fetch loads the intended records for the requested zones. Reads run in
// a single snapshot transaction, so a concurrent Put never yields a
// half-updated zone.
func (r *Registry) Fetch(ctx context.Context, zones []string) (record.Set, error) {
	set := make(record.Set)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for _, zone := range zones {
			prefix := []byte(recordPrefix + zone + "/")
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				key := string(item.Key())
				name, typ, ok := splitKey(key[len(recordPrefix)+len(zone)+1:])
				if !ok {
					return fmt.Errorf("%w: malformed registry key %q", provider.ErrMalformedData, key)
				}

				err := item.Value(func(val []byte) error {
					var stored storedRecord
					if err := json.Unmarshal(val, &stored); err != nil {
						return fmt.Errorf("%w: decode registry record %q: %v", provider.ErrMalformedData, key, err)
					}
					return set.Add(record.Record{
						Zone:   zone,
						Name:   name,
						Type:   record.Type(typ),
						TTL:    stored.TTL,
						Rrdata: stored.Rrdata,
					})
				})
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	r.metrics.IncBadgerRequest("read", err == nil)
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Put stores or replaces one intended record. It exists for seeding and
// admin tooling; the reconciliation core itself only reads.
func (r *Registry) Put(ctx context.Context, rec record.Record) error {
	data, err := json.Marshal(storedRecord{TTL: rec.TTL, Rrdata: rec.Rrdata})
	if err != nil {
		r.metrics.IncBadgerRequest("write", false)
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storageKey(rec.Key()), data)
	})
	r.metrics.IncBadgerRequest("write", err == nil)
	return err
}

// Delete removes one intended record.
func (r *Registry) Delete(ctx context.Context, key record.Key) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storageKey(key))
	})
	r.metrics.IncBadgerRequest("delete", err == nil)
	return err
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// splitKey separates "<name>/<type>". Record names never contain "/", so
// the last separator wins.
func splitKey(rest string) (name, typ string, ok bool) {
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}
