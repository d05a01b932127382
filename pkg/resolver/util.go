package resolver

import (
	"strings"

	"github.com/miekg/dns"
)

// equalFQDN compares two names case-insensitively after FQDN normalization.
func equalFQDN(a, b string) bool {
	return strings.EqualFold(dns.Fqdn(a), dns.Fqdn(b))
}

// cloneRR returns an independent copy of rr. Zone-stored records are
// shared across concurrent resolutions, so any RR the resolver intends
// to mutate (SOA TTL clamping, wildcard owner substitution) must be
// cloned first; dns.RR's copy method isn't exported, so reparsing the
// text form is the cheapest safe option available from outside the
// miekg/dns package.
func cloneRR(rr dns.RR) dns.RR {
	clone, err := dns.NewRR(rr.String())
	if err != nil {
		return rr
	}

	return clone
}
