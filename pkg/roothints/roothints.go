// Package roothints provides the static root-server referral the
// resolution core attaches when no locally hosted zone is authoritative
// for a query and root hints are enabled.
package roothints

import (
	"net"

	"github.com/miekg/dns"
)

// NSTTL and ATTL are the conventional TTLs carried by the root hints file
// distributed by IANA.
const (
	NSTTL = 518400
	ATTL  = 3600000
)

// rootServer pairs a root server's hostname with its IPv4 glue address.
type rootServer struct {
	name string
	ipv4 string
}

// servers is the canonical list of the 13 root servers, a.root-servers.net
// through m.root-servers.net.
var servers = []rootServer{
	{"a.root-servers.net.", "198.41.0.4"},
	{"b.root-servers.net.", "199.9.14.201"},
	{"c.root-servers.net.", "192.33.4.12"},
	{"d.root-servers.net.", "199.7.91.13"},
	{"e.root-servers.net.", "192.203.230.10"},
	{"f.root-servers.net.", "192.5.5.241"},
	{"g.root-servers.net.", "192.112.36.4"},
	{"h.root-servers.net.", "198.97.190.53"},
	{"i.root-servers.net.", "192.36.148.17"},
	{"j.root-servers.net.", "192.58.128.30"},
	{"k.root-servers.net.", "193.0.14.129"},
	{"l.root-servers.net.", "199.7.83.42"},
	{"m.root-servers.net.", "202.12.27.33"},
}

// NS returns the 13 root NS records, owned by the DNS root.
func NS() []dns.RR {
	out := make([]dns.RR, 0, len(servers))
	for _, s := range servers {
		out = append(out, &dns.NS{
			Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: NSTTL},
			Ns:  s.name,
		})
	}

	return out
}

// A returns the 13 root server IPv4 glue records.
func A() []dns.RR {
	out := make([]dns.RR, 0, len(servers))
	for _, s := range servers {
		out = append(out, &dns.A{
			Hdr: dns.RR_Header{Name: s.name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ATTL},
			A:   mustParseIP(s.ipv4),
		})
	}

	return out
}

// LastAnchor returns the final root server's hostname, used by the core as
// the fallback authority anchor when the zone cache misses entirely.
func LastAnchor() string {
	return servers[len(servers)-1].name
}

func mustParseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		panic("roothints: invalid IPv4 literal " + s)
	}

	return ip
}
