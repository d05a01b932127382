package zonestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/miekg/dns"
)

// LoadZoneFile parses an RFC 1035 master zone file at path and registers it
// in the cache under origin.
func LoadZoneFile(cache *MemCache, path, origin string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open zone file: %w", err)
	}
	defer file.Close()

	origin = dns.Fqdn(origin)
	zone := NewZone(origin)

	zp := dns.NewZoneParser(bufio.NewReader(file), origin, path)
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		if err := zone.AddRR(rr); err != nil {
			return fmt.Errorf("add record from %s: %w", path, err)
		}
	}

	if err := zp.Err(); err != nil {
		return fmt.Errorf("parse zone file %s: %w", path, err)
	}

	cache.AddZone(zone)

	return nil
}

// JSONZone is the on-disk shape of a zone ingested via the JSON loader, an
// external convenience format alongside RFC 1035 zone files.
type JSONZone struct {
	Origin  string       `json:"origin"`
	Records []JSONRecord `json:"records"`
}

// JSONRecord is a single resource record in presentation format, e.g.
// {"name": "www.example.com.", "ttl": 300, "class": "IN", "type": "A", "rdata": "192.0.2.1"}.
type JSONRecord struct {
	Name  string `json:"name"`
	TTL   uint32 `json:"ttl"`
	Class string `json:"class"`
	Type  string `json:"type"`
	Rdata string `json:"rdata"`
}

// LoadZoneJSON parses a JSON zone description from r and registers it in
// the cache. Each record is rendered into RFC 1035 presentation format and
// parsed with dns.NewRR, so the same RR grammar governs both loaders.
func LoadZoneJSON(cache *MemCache, r io.Reader) error {
	var doc JSONZone
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode JSON zone: %w", err)
	}

	origin := dns.Fqdn(doc.Origin)
	zone := NewZone(origin)

	for i, rec := range doc.Records {
		class := rec.Class
		if class == "" {
			class = "IN"
		}

		name := rec.Name
		if name == "" {
			name = origin
		}

		line := fmt.Sprintf("%s %d %s %s %s", dns.Fqdn(name), rec.TTL, class, rec.Type, rec.Rdata)

		rr, err := dns.NewRR(line)
		if err != nil {
			return fmt.Errorf("parse JSON record %d (%s): %w", i, line, err)
		}

		if err := zone.AddRR(rr); err != nil {
			return fmt.Errorf("add JSON record %d: %w", i, err)
		}
	}

	cache.AddZone(zone)

	return nil
}

// LoadZoneJSONFile is a convenience wrapper opening path and calling
// LoadZoneJSON.
func LoadZoneJSONFile(cache *MemCache, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open JSON zone file: %w", err)
	}
	defer file.Close()

	return LoadZoneJSON(cache, file)
}
