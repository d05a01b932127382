package zonestore

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/miekg/dns"
)

// Errors returned by Cache lookups.
var (
	// ErrNotAuthoritative indicates no locally hosted zone covers a name.
	ErrNotAuthoritative = errors.New("zonestore: not authoritative for name")

	// ErrAuthorityNotFound indicates a zone exists but carries no SOA.
	ErrAuthorityNotFound = errors.New("zonestore: zone has no authority record")

	// ErrZoneNotFound indicates no zone is registered under that origin.
	ErrZoneNotFound = errors.New("zonestore: zone not found")
)

// Cache is the read-only zone lookup surface the resolution core consumes.
// Writers (zone loaders, the admin API) mutate zones through a separate,
// externally-serialized path; the core only ever sees this interface.
type Cache interface {
	// FindZone returns the most specific locally hosted zone covering
	// qname, falling back to fallbackAuthority (typically the last root
	// hint) when qname itself matches nothing. Returns ErrNotAuthoritative
	// if neither covers it.
	FindZone(qname, fallbackAuthority string) (*Zone, error)

	// RecordsByName returns every record owned by name, in whichever zone
	// covers it.
	RecordsByName(name string) []dns.RR

	// RecordsByNameAndType returns the RRset owned by name with type qtype.
	RecordsByNameAndType(name string, qtype uint16) []dns.RR

	// Delegations returns NS records at name that mark a zone cut — i.e.
	// name is not the apex of the zone that covers it.
	Delegations(name string) []dns.RR

	// Authority returns the SOA(s) for the zone covering qname.
	Authority(qname string) ([]*dns.SOA, error)

	// InZone reports whether some locally hosted zone covers name.
	InZone(name string) bool

	// RecordNameInZone reports whether qname falls within the named zone's
	// bailiwick.
	RecordNameInZone(zoneName, qname string) bool

	// ZoneWithRecords returns the full Zone registered under zoneName.
	ZoneWithRecords(zoneName string) (*Zone, error)

	// Zones returns every registered zone origin.
	Zones() []string
}

// MemCache is an in-memory Cache over a fixed set of authoritative zones.
// Safe for concurrent reads; writes (AddZone/RemoveZone) are serialized by
// an internal mutex and expected to be infrequent relative to lookups.
type MemCache struct {
	mu    sync.RWMutex
	zones map[string]*Zone
}

// NewMemCache creates an empty in-memory zone cache.
func NewMemCache() *MemCache {
	return &MemCache{zones: make(map[string]*Zone)}
}

// AddZone registers zone, replacing any existing zone with the same origin.
func (c *MemCache) AddZone(zone *Zone) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.zones[strings.ToLower(zone.Origin)] = zone
}

// RemoveZone deregisters the zone at origin, if present.
func (c *MemCache) RemoveZone(origin string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.zones, strings.ToLower(dns.Fqdn(origin)))
}

// GetOrCreateZone returns the zone at origin, creating an empty one if
// it doesn't already exist. Used by zone loaders.
func (c *MemCache) GetOrCreateZone(origin string) *Zone {
	origin = dns.Fqdn(origin)

	c.mu.Lock()
	defer c.mu.Unlock()

	if zone, ok := c.zones[strings.ToLower(origin)]; ok {
		return zone
	}

	zone := NewZone(origin)
	c.zones[strings.ToLower(origin)] = zone

	return zone
}

// Zones returns every registered zone origin.
func (c *MemCache) Zones() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	origins := make([]string, 0, len(c.zones))
	for origin := range c.zones {
		origins = append(origins, origin)
	}

	return origins
}

// lookupZone returns the most specific zone covering name, walking labels
// toward the root, without falling back to a hint anchor.
func (c *MemCache) lookupZone(name string) *Zone {
	name = strings.ToLower(dns.Fqdn(name))

	c.mu.RLock()
	defer c.mu.RUnlock()

	if zone, ok := c.zones[name]; ok {
		return zone
	}

	labels := dns.SplitDomainName(name)
	for i := 1; i < len(labels); i++ {
		parent := strings.ToLower(dns.Fqdn(strings.Join(labels[i:], ".")))
		if zone, ok := c.zones[parent]; ok {
			return zone
		}
	}

	return nil
}

// FindZone implements Cache.
func (c *MemCache) FindZone(qname, fallbackAuthority string) (*Zone, error) {
	if zone := c.lookupZone(qname); zone != nil {
		return zone, nil
	}

	if fallbackAuthority != "" {
		if zone := c.lookupZone(fallbackAuthority); zone != nil {
			return zone, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotAuthoritative, qname)
}

// RecordsByName implements Cache.
func (c *MemCache) RecordsByName(name string) []dns.RR {
	zone := c.lookupZone(name)
	if zone == nil {
		return nil
	}

	return zone.RecordsByName(name)
}

// RecordsByNameAndType implements Cache.
func (c *MemCache) RecordsByNameAndType(name string, qtype uint16) []dns.RR {
	zone := c.lookupZone(name)
	if zone == nil {
		return nil
	}

	return zone.RecordsByNameAndType(name, qtype)
}

// Delegations implements Cache.
func (c *MemCache) Delegations(name string) []dns.RR {
	zone := c.lookupZone(name)
	if zone == nil {
		return nil
	}

	return zone.Delegations(name)
}

// Authority implements Cache.
func (c *MemCache) Authority(qname string) ([]*dns.SOA, error) {
	zone := c.lookupZone(qname)
	if zone == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAuthoritative, qname)
	}

	soa := zone.SOA()
	if soa == nil {
		return nil, fmt.Errorf("%w: %s", ErrAuthorityNotFound, zone.Origin)
	}

	return []*dns.SOA{soa}, nil
}

// InZone implements Cache.
func (c *MemCache) InZone(name string) bool {
	return c.lookupZone(name) != nil
}

// RecordNameInZone implements Cache.
func (c *MemCache) RecordNameInZone(zoneName, qname string) bool {
	c.mu.RLock()
	zone, ok := c.zones[strings.ToLower(dns.Fqdn(zoneName))]
	c.mu.RUnlock()

	if !ok {
		return false
	}

	return zone.RecordNameInZone(qname)
}

// ZoneWithRecords implements Cache.
func (c *MemCache) ZoneWithRecords(zoneName string) (*Zone, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	zone, ok := c.zones[strings.ToLower(dns.Fqdn(zoneName))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneName)
	}

	return zone, nil
}
