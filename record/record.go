// Package record defines the value types flowing through a reconciliation
// run: DNS records, the keyed sets of them fetched from a source of truth
// or a DNS provider, and the changes computed between two sets.
package record

import (
	"fmt"
	"sort"
	"strings"
)

// Type is a DNS record type.
type Type string

const (
	TypeA     Type = "A"
	TypeAAAA  Type = "AAAA"
	TypeCNAME Type = "CNAME"
	TypeTXT   Type = "TXT"
	TypeMX    Type = "MX"
	TypeNS    Type = "NS"
	TypeSRV   Type = "SRV"
)

// Key identifies a record within a zone. Two records with the same key but
// different TTL or rrdata are the same record in a changed state, not
// distinct records.
type Key struct {
	Zone string
	Name string
	Type Type
}

func (k Key) String() string {
	return k.Zone + "/" + k.Name + "/" + string(k.Type)
}

// Compare orders keys by (zone, name, type) ascending.
func (k Key) Compare(o Key) int {
	if c := strings.Compare(k.Zone, o.Zone); c != 0 {
		return c
	}
	if c := strings.Compare(k.Name, o.Name); c != 0 {
		return c
	}
	return strings.Compare(string(k.Type), string(o.Type))
}

// Record is one DNS record. Name is relative to Zone, with "@" for the
// zone apex. Rrdata holds one value per resource record sharing this key;
// its order is significant unless the diff is configured otherwise.
type Record struct {
	Zone   string
	Name   string
	Type   Type
	TTL    uint32
	Rrdata []string
}

func (r Record) Key() Key {
	return Key{Zone: r.Zone, Name: r.Name, Type: r.Type}
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s %s %s (ttl %d)", r.Zone, r.Name, r.Type, strings.Join(r.Rrdata, ","), r.TTL)
}

// Equal reports whether two records carry the same TTL and rrdata, with
// rrdata order significant.
func (r Record) Equal(o Record) bool {
	return r.equal(o, false)
}

// EqualUnordered is Equal with rrdata treated as an unordered multiset.
func (r Record) EqualUnordered(o Record) bool {
	return r.equal(o, true)
}

func (r Record) equal(o Record, unordered bool) bool {
	if r.TTL != o.TTL || len(r.Rrdata) != len(o.Rrdata) {
		return false
	}
	if !unordered {
		for i := range r.Rrdata {
			if r.Rrdata[i] != o.Rrdata[i] {
				return false
			}
		}
		return true
	}
	remaining := make(map[string]int, len(r.Rrdata))
	for _, v := range r.Rrdata {
		remaining[v]++
	}
	for _, v := range o.Rrdata {
		remaining[v]--
		if remaining[v] < 0 {
			return false
		}
	}
	return true
}

// Set maps identity keys to records. It represents either desired state
// (from a source of truth) or actual state (from a DNS provider), scoped
// to the zones it was fetched for. A set never holds duplicate keys.
type Set map[Key]Record

// NewSet builds a set from records, rejecting duplicate identity keys.
func NewSet(records ...Record) (Set, error) {
	s := make(Set, len(records))
	for _, r := range records {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts a record, rejecting a duplicate identity key.
func (s Set) Add(r Record) error {
	k := r.Key()
	if _, exists := s[k]; exists {
		return fmt.Errorf("duplicate record key %s", k)
	}
	s[k] = r
	return nil
}

// Keys returns the set's identity keys sorted by (zone, name, type).
func (s Set) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}
