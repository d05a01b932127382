// Package rrfilter provides composable predicates over resource records,
// used to select RRsets by name, type, or data variant without the core
// hand-rolling ad-hoc loops at every call site.
package rrfilter

import (
	"strings"

	"github.com/miekg/dns"
)

// Predicate reports whether rr matches some condition.
type Predicate func(rr dns.RR) bool

// Filter returns the subset of rrs for which pred is true, preserving
// order.
func Filter(rrs []dns.RR, pred Predicate) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, rr := range rrs {
		if pred(rr) {
			out = append(out, rr)
		}
	}

	return out
}

// Not negates pred.
func Not(pred Predicate) Predicate {
	return func(rr dns.RR) bool { return !pred(rr) }
}

// And is true only when every predicate matches.
func And(preds ...Predicate) Predicate {
	return func(rr dns.RR) bool {
		for _, p := range preds {
			if !p(rr) {
				return false
			}
		}

		return true
	}
}

// Or is true when any predicate matches.
func Or(preds ...Predicate) Predicate {
	return func(rr dns.RR) bool {
		for _, p := range preds {
			if p(rr) {
				return true
			}
		}

		return false
	}
}

// ByType matches records of exactly rrtype. dns.TypeANY matches everything
// that isn't itself a pseudo-record.
func ByType(rrtype uint16) Predicate {
	if rrtype == dns.TypeANY {
		return Not(IsOPT)
	}

	return func(rr dns.RR) bool { return rr.Header().Rrtype == rrtype }
}

// ByName matches records owned by name, case-insensitively.
func ByName(name string) Predicate {
	name = dns.Fqdn(name)

	return func(rr dns.RR) bool { return strings.EqualFold(dns.Fqdn(rr.Header().Name), name) }
}

// IsCNAME matches CNAME records.
func IsCNAME(rr dns.RR) bool { return rr.Header().Rrtype == dns.TypeCNAME }

// IsNS matches NS records.
func IsNS(rr dns.RR) bool { return rr.Header().Rrtype == dns.TypeNS }

// IsSOA matches SOA records.
func IsSOA(rr dns.RR) bool { return rr.Header().Rrtype == dns.TypeSOA }

// IsOPT matches the EDNS0 pseudo-record, which predicates must exclude from
// any "real" RR filter — it is never a normal RR per the data model.
func IsOPT(rr dns.RR) bool { return rr.Header().Rrtype == dns.TypeOPT }

// HasCNAME reports whether rrs contains any CNAME record.
func HasCNAME(rrs []dns.RR) bool {
	for _, rr := range rrs {
		if IsCNAME(rr) {
			return true
		}
	}

	return false
}

// CNAMEs returns just the CNAME records in rrs.
func CNAMEs(rrs []dns.RR) []dns.RR {
	return Filter(rrs, IsCNAME)
}

// ExcludeOPT strips EDNS0 pseudo-records, which must never be treated as
// ordinary RRs by any other predicate.
func ExcludeOPT(rrs []dns.RR) []dns.RR {
	return Filter(rrs, Not(IsOPT))
}
