package resolver

import "github.com/miekg/dns"

// maxChainLen bounds CNAME chase depth, on top of loop detection, so a
// long acyclic chain (crafted or misconfigured) can't run away.
const maxChainLen = 8

// cnameChain is the append-only sequence of CNAME RRs already followed
// in the current resolution. Membership uses full RR equality, matching
// dns.RR's String() representation, which is stable and covers owner,
// type, class, ttl and rdata.
type cnameChain struct {
	seen []string
	rrs  []dns.RR
}

// contains reports whether rr has already been followed in this chain.
func (c *cnameChain) contains(rr dns.RR) bool {
	key := rr.String()
	for _, s := range c.seen {
		if s == key {
			return true
		}
	}

	return false
}

// push appends rr to the chain. Callers must check contains first;
// push never removes or reorders existing entries.
func (c *cnameChain) push(rr dns.RR) {
	c.seen = append(c.seen, rr.String())
	c.rrs = append(c.rrs, rr)
}

// overflowed reports whether the chain has exceeded the bounded depth.
func (c *cnameChain) overflowed() bool {
	return len(c.rrs) > maxChainLen
}
