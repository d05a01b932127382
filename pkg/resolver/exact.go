package resolver

import (
	"strings"

	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/dnssec"
	"github.com/dnsforge/authdns/pkg/rrfilter"
	"github.com/dnsforge/authdns/pkg/rrhandler"
	"github.com/dnsforge/authdns/pkg/zonestore"
)

// exactOutcome is cnameOutcome's sibling for the exact-match resolver:
// same shape, kept distinct so each file reads standalone.
type exactOutcome struct {
	done bool
	zone *zonestore.Zone
	next string
}

// resolveExact implements the exact-match resolver for
// a name that has direct records (matched is non-empty).
func resolveExact(
	cache zonestore.Cache,
	handlers *rrhandler.Registry,
	hook dnssec.Hook,
	zone *zonestore.Zone,
	name string,
	qtype uint16,
	matched []dns.RR,
	resp *dns.Msg,
	chain *cnameChain,
) exactOutcome {
	if cnames := rrfilter.CNAMEs(matched); len(cnames) > 0 {
		if qtype == dns.TypeCNAME {
			resp.Answer = append(resp.Answer, cnames...)
			resp.Authoritative = true

			return exactOutcome{done: true}
		}

		out := followCNAME(cache, zone, resp, cnames, chain)

		return exactOutcome{done: out.done, zone: out.zone, next: out.next}
	}

	// NS at a non-apex exact name is a delegation: it short-circuits
	// before any type match, including ANY and NS itself, because this
	// zone isn't authoritative for anything at or below that name
	// (resolving Open Question: NS-recursion-breakout is reachable only
	// with aa=false). Zone.Delegations already excludes the apex, so
	// the apex's own NS RRset is unaffected by this check.
	if ns := zone.Delegations(name); len(ns) > 0 {
		resp.Authoritative = false
		resp.Ns = append(resp.Ns, ns...)

		return exactOutcome{done: true}
	}

	typeMatch := rrfilter.Filter(matched, rrfilter.ByType(qtype))
	if len(typeMatch) > 0 {
		if qtype == dns.TypeDNSKEY && strings.EqualFold(name, zone.Origin) && hook.Enabled(zone.SigningZone) {
			if keys := hook.DNSKeyRRset(zone.SigningZone); len(keys) > 0 {
				typeMatch = keys
			}
		}

		if qtype == dns.TypeANY {
			typeMatch = handlers.FilterAny(typeMatch)
		}

		resp.Answer = append(resp.Answer, typeMatch...)
		resp.Authoritative = true

		return exactOutcome{done: true}
	}

	if handled := handlers.Dispatch(name, qtype, matched, resp); len(handled) > 0 {
		resp.Answer = append(resp.Answer, handled...)
		resp.Authoritative = true

		return exactOutcome{done: true}
	}

	noDataResponse(resp, zone)

	return exactOutcome{done: true}
}

// noDataResponse sets the NOERROR/no-data shape: authoritative, the
// zone's SOA in authority, nothing in answer.
func noDataResponse(resp *dns.Msg, zone *zonestore.Zone) {
	resp.Authoritative = true
	resp.Rcode = dns.RcodeSuccess

	if soa := zone.SOA(); soa != nil {
		resp.Ns = append(resp.Ns, cloneRR(soa))
	}
}
