package resolver

import (
	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/zonestore"
)

// cnameOutcome tells the driver loop in resolver.go what to do after a
// CNAME has been followed (or a loop/overflow rejected the query).
type cnameOutcome struct {
	done bool
	zone *zonestore.Zone // non-nil when the restart crosses into a different local zone
	next string
}

// followCNAME implements the append-to-chain-and-restart step of CNAME
// chasing: it loop-checks the last of cnames against chain, appends cnames
// to resp.Answer, pushes every one onto chain, checks the chain length
// against maxChainLen, and decides where resolution continues from the
// target name — the same zone, a different local zone, or nowhere
// (leaving the message as already built) when the target is out of
// bailiwick.
func followCNAME(cache zonestore.Cache, zone *zonestore.Zone, resp *dns.Msg, cnames []dns.RR, chain *cnameChain) cnameOutcome {
	last := cnames[len(cnames)-1]

	if chain.contains(last) {
		resp.Rcode = dns.RcodeServerFailure
		resp.Authoritative = true

		return cnameOutcome{done: true}
	}

	resp.Answer = append(resp.Answer, cnames...)
	resp.Authoritative = true

	for _, rr := range cnames {
		chain.push(rr)
	}

	if chain.overflowed() {
		resp.Rcode = dns.RcodeServerFailure

		return cnameOutcome{done: true}
	}

	target := dns.Fqdn(last.(*dns.CNAME).Target)

	if zone.RecordNameInZone(target) {
		return cnameOutcome{next: target}
	}

	if cache.InZone(target) {
		newZone, err := cache.FindZone(target, "")
		if err == nil {
			return cnameOutcome{zone: newZone, next: target}
		}
	}

	// Out of bailiwick: the CNAME is already recorded in the answer;
	// resolution stops here without touching authority/additional.
	return cnameOutcome{done: true}
}
