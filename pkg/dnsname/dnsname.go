// Package dnsname provides the label- and name-level utilities the
// resolution core builds on: wildcard substitution, subdomain tests,
// RRset grouping, and SOA-TTL clamping.
package dnsname

import (
	"strings"

	"github.com/miekg/dns"
)

// WildcardLabel is the leftmost-only label that marks a wildcard owner name.
const WildcardLabel = "*"

// WildcardQname replaces the first label of n with the wildcard label,
// leaving the rest of the name untouched. "www.example.com." becomes
// "*.example.com.".
func WildcardQname(n string) string {
	n = dns.Fqdn(n)
	labels := dns.SplitDomainName(n)
	if len(labels) == 0 {
		return dns.Fqdn(WildcardLabel)
	}

	labels[0] = WildcardLabel

	return dns.Fqdn(strings.Join(labels, "."))
}

// DnameMatch reports whether n2 matches n1: either n2 equals n1 exactly, or
// n2 is a wildcard pattern ("*.suffix") whose suffix equals the
// corresponding suffix of n1.
func DnameMatch(n1, n2 string) bool {
	n1 = dns.Fqdn(n1)
	n2 = dns.Fqdn(n2)

	if strings.EqualFold(n1, n2) {
		return true
	}

	labels1 := dns.SplitDomainName(n1)
	labels2 := dns.SplitDomainName(n2)

	if len(labels1) < len(labels2) {
		return false
	}
	if len(labels2) == 0 || labels2[0] != WildcardLabel {
		return false
	}

	suffix1 := labels1[len(labels1)-(len(labels2)-1):]
	suffix2 := labels2[1:]

	return strings.EqualFold(dns.Fqdn(strings.Join(suffix1, ".")), dns.Fqdn(strings.Join(suffix2, ".")))
}

// WildcardSubstitution returns qname if name matches qname under
// DnameMatch (i.e. name is the wildcard owner that produced this answer),
// otherwise it returns name unchanged. Used to rewrite a wildcard RR's
// owner to the queried name before it reaches the answer section.
func WildcardSubstitution(name, qname string) string {
	if DnameMatch(qname, name) {
		return dns.Fqdn(qname)
	}

	return name
}

// IsSubdomain reports whether child is a proper descendant of parent.
// Equal names return false.
func IsSubdomain(parent, child string) bool {
	parent = dns.Fqdn(parent)
	child = dns.Fqdn(child)

	if strings.EqualFold(parent, child) {
		return false
	}

	return dns.IsSubDomain(parent, child)
}

// RecordsToRRsets groups records into RRsets, preserving the order in which
// each type was first encountered, and the intra-type order of records
// within that type.
func RecordsToRRsets(records []dns.RR) [][]dns.RR {
	order := make([]uint16, 0)
	byType := make(map[uint16][]dns.RR)

	for _, rr := range records {
		t := rr.Header().Rrtype
		if _, seen := byType[t]; !seen {
			order = append(order, t)
		}
		byType[t] = append(byType[t], rr)
	}

	rrsets := make([][]dns.RR, 0, len(order))
	for _, t := range order {
		rrsets = append(rrsets, byType[t])
	}

	return rrsets
}

// MinimumSOATTL clamps rr's TTL down to soa's Minimum field, per RFC 2308.
// A nil soa is a no-op.
func MinimumSOATTL(rr dns.RR, soa *dns.SOA) {
	if soa == nil || rr == nil {
		return
	}

	if rr.Header().Ttl > soa.Minttl {
		rr.Header().Ttl = soa.Minttl
	}
}

// NameType looks up the numeric RR type for a mnemonic (e.g. "A", "MX"),
// reporting false for unrecognized mnemonics.
func NameType(mnemonic string) (uint16, bool) {
	t, ok := dns.StringToType[strings.ToUpper(mnemonic)]

	return t, ok
}
