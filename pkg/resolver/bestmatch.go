package resolver

import (
	"strings"

	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/dnsname"
	"github.com/dnsforge/authdns/pkg/zonestore"
)

// bestMatch is the result of walking toward the zone apex looking for
// either a wildcard or an ancestor's own records.
type bestMatch struct {
	rrs        []dns.RR
	owner      string // the name actually matched: either a wildcard or an ancestor name
	isWildcard bool
}

// bestMatchSearch walks qname's labels from most specific toward the
// zone apex. At each depth it first tries the wildcard owner at that
// depth, then the plain ancestor name, returning on the first non-empty
// result. Depth 0 (qname itself) only tries the wildcard form — callers
// are expected to have already ruled out an exact match at qname.
//
// Tie-break, per spec: a wildcard found at depth k beats an exact
// ancestor match found at any depth > k, and vice versa, because the
// walk returns on the first hit at the shallowest depth.
func bestMatchSearch(cache zonestore.Cache, zone *zonestore.Zone, qname string) (bestMatch, bool) {
	qname = dns.Fqdn(qname)
	apex := dns.Fqdn(zone.Origin)
	labels := dns.SplitDomainName(qname)

	for depth := 0; depth < len(labels); depth++ {
		suffix := dns.Fqdn(strings.Join(labels[depth:], "."))

		wildcard := dnsname.WildcardQname(suffix)
		if rrs := cache.RecordsByName(wildcard); len(rrs) > 0 {
			return bestMatch{rrs: rrs, owner: wildcard, isWildcard: true}, true
		}

		if depth > 0 {
			if rrs := cache.RecordsByName(suffix); len(rrs) > 0 {
				return bestMatch{rrs: rrs, owner: suffix}, true
			}
		}

		if strings.EqualFold(suffix, apex) {
			break
		}
	}

	return bestMatch{}, false
}
