package resolver

import (
	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/dnsname"
	"github.com/dnsforge/authdns/pkg/dnssec"
	"github.com/dnsforge/authdns/pkg/rrfilter"
	"github.com/dnsforge/authdns/pkg/rrhandler"
	"github.com/dnsforge/authdns/pkg/zonestore"
)

// bestOutcome mirrors exactOutcome/cnameOutcome for the best-match
// resolver's callers.
type bestOutcome struct {
	done bool
	next string
}

// resolveBestMatch implements the best-match resolver
// for a name with no direct records, given the non-empty set bm
// returned by bestMatchSearch.
func resolveBestMatch(
	cache zonestore.Cache,
	handlers *rrhandler.Registry,
	hook dnssec.Hook,
	zone *zonestore.Zone,
	name string,
	qtype uint16,
	bm bestMatch,
	resp *dns.Msg,
	chain *cnameChain,
	original string,
) bestOutcome {
	// A zone cut between name and the apex is caught earlier by
	// findZoneCut, before this function is ever called, so
	// bm never carries a delegation's NS records here.
	if bm.isWildcard {
		substituted := make([]dns.RR, len(bm.rrs))
		for i, rr := range bm.rrs {
			substituted[i] = substituteOwner(rr, name)
		}

		if cnames := rrfilter.CNAMEs(substituted); len(cnames) > 0 {
			if qtype == dns.TypeCNAME {
				resp.Answer = append(resp.Answer, cnames...)
				resp.Authoritative = true

				return bestOutcome{done: true}
			}

			out := followCNAME(cache, zone, resp, cnames, chain)

			return bestOutcome{done: out.done, next: out.next}
		}

		typeMatch := rrfilter.Filter(substituted, rrfilter.ByType(qtype))
		if len(typeMatch) > 0 {
			if qtype == dns.TypeANY {
				typeMatch = handlers.FilterAny(typeMatch)
			}

			resp.Answer = append(resp.Answer, typeMatch...)
			resp.Authoritative = true

			return bestOutcome{done: true}
		}

		if handled := handlers.Dispatch(name, qtype, substituted, resp); len(handled) > 0 {
			resp.Answer = append(resp.Answer, handled...)
			resp.Authoritative = true

			return bestOutcome{done: true}
		}

		noDataResponse(resp, zone)

		return bestOutcome{done: true}
	}

	// Neither a delegation nor a wildcard: an ancestor's own non-NS
	// records were found while climbing (e.g. the apex's non-NS RRs).
	// That name can't resolve the query either.
	return deadEnd(resp, zone, original, name)
}

// deadEnd handles the terminal branch of both the best-match resolver
// and a completely failed best-match search: NXDOMAIN if we're still
// asking about the original question name, otherwise leave the message
// as already built (a CNAME chain that ran off a cliff).
func deadEnd(resp *dns.Msg, zone *zonestore.Zone, original, name string) bestOutcome {
	if !equalFQDN(name, original) {
		return bestOutcome{done: true}
	}

	resp.Authoritative = true
	resp.Rcode = dns.RcodeNameError

	if soa := zone.SOA(); soa != nil {
		resp.Ns = append(resp.Ns, cloneRR(soa))
	}

	return bestOutcome{done: true}
}

// substituteOwner returns a copy of rr with its owner name replaced by
// owner. Zone-stored RRs are shared across concurrent resolutions, so
// wildcard substitution must never mutate rr in place; reparsing its
// text form gives an independent copy cheaply.
func substituteOwner(rr dns.RR, owner string) dns.RR {
	clone, err := dns.NewRR(rr.String())
	if err != nil {
		return rr
	}

	clone.Header().Name = dnsname.WildcardSubstitution(rr.Header().Name, owner)

	return clone
}
