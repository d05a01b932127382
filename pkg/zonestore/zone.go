// Package zonestore provides the zone cache abstraction the resolution
// core consumes: an in-memory store of authoritative zones, indexed by
// owner name and type, with loaders for RFC 1035 zone files and JSON.
package zonestore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/miekg/dns"
)

// ErrNotInZone indicates a record's owner name falls outside the zone it
// was added to.
var ErrNotInZone = errors.New("zonestore: record is not within zone")

// Zone holds one authoritative zone's records, indexed by owner name and
// type. A Zone is read-only from the resolver's perspective; only the
// owning Cache mutates it, and only through AddRR.
type Zone struct {
	Origin string

	version atomic.Uint32
	mu      sync.RWMutex
	byName  map[string]map[uint16][]dns.RR
	count   int

	// SigningZone is the name the DNSSEC hook should be consulted under for
	// this zone. It is usually equal to Origin, but may differ if a zone is
	// served from a parent's key material.
	SigningZone string
}

// NewZone creates an empty zone rooted at origin.
func NewZone(origin string) *Zone {
	return &Zone{
		Origin:      dns.Fqdn(origin),
		SigningZone: dns.Fqdn(origin),
		byName:      make(map[string]map[uint16][]dns.RR),
	}
}

// AddRR adds a record to the zone. The record's owner must be the zone's
// origin or a subdomain of it.
func (z *Zone) AddRR(rr dns.RR) error {
	owner := dns.Fqdn(rr.Header().Name)
	if !strings.EqualFold(owner, z.Origin) && !dns.IsSubDomain(z.Origin, owner) {
		return fmt.Errorf("%w: %s not in %s", ErrNotInZone, owner, z.Origin)
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	byType, ok := z.byName[strings.ToLower(owner)]
	if !ok {
		byType = make(map[uint16][]dns.RR)
		z.byName[strings.ToLower(owner)] = byType
	}

	rrtype := rr.Header().Rrtype
	byType[rrtype] = append(byType[rrtype], rr)
	z.count++
	z.version.Add(1)

	return nil
}

// SOA returns the zone's apex SOA record, or nil if none has been loaded.
func (z *Zone) SOA() *dns.SOA {
	z.mu.RLock()
	defer z.mu.RUnlock()

	for _, rr := range z.byName[strings.ToLower(z.Origin)][dns.TypeSOA] {
		if soa, ok := rr.(*dns.SOA); ok {
			return soa
		}
	}

	return nil
}

// RecordsByName returns every record owned by name, across all types.
func (z *Zone) RecordsByName(name string) []dns.RR {
	name = strings.ToLower(dns.Fqdn(name))

	z.mu.RLock()
	defer z.mu.RUnlock()

	byType, ok := z.byName[name]
	if !ok {
		return nil
	}

	out := make([]dns.RR, 0, len(byType))
	for _, rrs := range byType {
		out = append(out, rrs...)
	}

	return out
}

// RecordsByNameAndType returns the RRset owned by name with the given type.
// qtype == dns.TypeANY returns every record at name.
func (z *Zone) RecordsByNameAndType(name string, qtype uint16) []dns.RR {
	if qtype == dns.TypeANY {
		return z.RecordsByName(name)
	}

	name = strings.ToLower(dns.Fqdn(name))

	z.mu.RLock()
	defer z.mu.RUnlock()

	byType, ok := z.byName[name]
	if !ok {
		return nil
	}

	rrs := byType[qtype]
	out := make([]dns.RR, len(rrs))
	copy(out, rrs)

	return out
}

// Delegations returns NS records owned by name, provided name is not the
// zone apex — i.e. candidate zone-cut NS records.
func (z *Zone) Delegations(name string) []dns.RR {
	name = dns.Fqdn(name)
	if strings.EqualFold(name, z.Origin) {
		return nil
	}

	return z.RecordsByNameAndType(name, dns.TypeNS)
}

// RecordNameInZone reports whether qname falls within this zone's bailiwick.
func (z *Zone) RecordNameInZone(qname string) bool {
	qname = dns.Fqdn(qname)

	return strings.EqualFold(qname, z.Origin) || dns.IsSubDomain(z.Origin, qname)
}

// RecordCount returns the total number of records loaded into the zone.
func (z *Zone) RecordCount() int {
	z.mu.RLock()
	defer z.mu.RUnlock()

	return z.count
}

// Version returns a monotonically increasing counter bumped on every write,
// for admin-surface change detection.
func (z *Zone) Version() uint32 {
	return z.version.Load()
}

// AllNames returns every distinct owner name stored in the zone, sorted
// as plain strings. Used by the admin API's zone detail listing.
func (z *Zone) AllNames() []string {
	z.mu.RLock()
	defer z.mu.RUnlock()

	names := make([]string, 0, len(z.byName))
	for name := range z.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
