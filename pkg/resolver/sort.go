package resolver

import (
	"sort"

	"github.com/miekg/dns"
)

// sortAnswers orders the answer section deterministically:
// CNAMEs first, chained so each CNAME sorts before the CNAME it points
// to, then everything else ordered by (owner, type, rdata text), with
// exact duplicates removed.
func sortAnswers(rrs []dns.RR) []dns.RR {
	rrs = dedupe(rrs)

	cnames := make([]dns.RR, 0, len(rrs))
	rest := make([]dns.RR, 0, len(rrs))

	for _, rr := range rrs {
		if rr.Header().Rrtype == dns.TypeCNAME {
			cnames = append(cnames, rr)
		} else {
			rest = append(rest, rr)
		}
	}

	cnames = orderChain(cnames)

	sort.SliceStable(rest, func(i, j int) bool {
		return rrLess(rest[i], rest[j])
	})

	return append(cnames, rest...)
}

// orderChain arranges CNAME RRs so that an RR whose target equals
// another CNAME's owner sorts before it, producing canonical chain
// order (A -> B -> C appears as A, B, C in the answer section).
func orderChain(cnames []dns.RR) []dns.RR {
	byOwner := make(map[string]dns.RR, len(cnames))
	for _, rr := range cnames {
		byOwner[dns.Fqdn(rr.Header().Name)] = rr
	}

	visited := make(map[string]bool, len(cnames))
	out := make([]dns.RR, 0, len(cnames))

	var visit func(rr dns.RR)
	visit = func(rr dns.RR) {
		owner := dns.Fqdn(rr.Header().Name)
		if visited[owner] {
			return
		}
		visited[owner] = true
		out = append(out, rr)

		cname, ok := rr.(*dns.CNAME)
		if !ok {
			return
		}
		if next, ok := byOwner[dns.Fqdn(cname.Target)]; ok {
			visit(next)
		}
	}

	for _, rr := range cnames {
		visit(rr)
	}

	return out
}

// rrLess implements the total order on (owner, type, rdata) used to sort
// non-CNAME answers.
func rrLess(a, b dns.RR) bool {
	ha, hb := a.Header(), b.Header()
	if ha.Name != hb.Name {
		return ha.Name < hb.Name
	}
	if ha.Rrtype != hb.Rrtype {
		return ha.Rrtype < hb.Rrtype
	}

	return a.String() < b.String()
}

// dedupe removes exact duplicate RRs (identical String() representation)
// while preserving first-occurrence order.
func dedupe(rrs []dns.RR) []dns.RR {
	seen := make(map[string]bool, len(rrs))
	out := make([]dns.RR, 0, len(rrs))

	for _, rr := range rrs {
		key := rr.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rr)
	}

	return out
}
