package resolver

import (
	"strings"

	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/zonestore"
)

// findZoneCut walks qname's ancestors, strictly below the zone apex,
// looking for an NS RRset that marks a delegation boundary.
// It returns the NS records and the name they're owned by, innermost
// (closest to qname) cut first.
func findZoneCut(cache zonestore.Cache, zone *zonestore.Zone, qname string) ([]dns.RR, string, bool) {
	qname = dns.Fqdn(qname)
	apex := dns.Fqdn(zone.Origin)

	if strings.EqualFold(qname, apex) {
		return nil, "", false
	}

	labels := dns.SplitDomainName(qname)
	for depth := 0; depth < len(labels); depth++ {
		ancestor := dns.Fqdn(strings.Join(labels[depth:], "."))
		if strings.EqualFold(ancestor, apex) {
			return nil, "", false
		}

		if ns := cache.Delegations(ancestor); len(ns) > 0 {
			return ns, ancestor, true
		}
	}

	return nil, "", false
}
