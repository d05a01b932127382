package resolver

import (
	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/zonestore"
)

// fillAdditional walks the answer and authority sections collecting NS
// and MX rdata targets, then appends any A/AAAA records held for those
// targets to the additional section, preserving whatever is already
// there. It never removes existing additional records and
// never fails the response — a target with no glue just contributes
// nothing.
func fillAdditional(cache zonestore.Cache, resp *dns.Msg) {
	targets := collectGlueTargets(resp.Answer, resp.Ns)
	if len(targets) == 0 {
		return
	}

	seen := make(map[string]bool, len(targets))
	for _, rr := range resp.Extra {
		seen[rr.String()] = true
	}

	for _, name := range targets {
		for _, rrtype := range [...]uint16{dns.TypeA, dns.TypeAAAA} {
			for _, rr := range cache.RecordsByNameAndType(name, rrtype) {
				key := rr.String()
				if seen[key] {
					continue
				}
				seen[key] = true
				resp.Extra = append(resp.Extra, rr)
			}
		}
	}
}

// collectGlueTargets gathers, in first-seen order with duplicates
// removed, the dname targets of every NS and MX RR across sections.
func collectGlueTargets(sections ...[]dns.RR) []string {
	seen := make(map[string]bool)
	var targets []string

	add := func(name string) {
		name = dns.Fqdn(name)
		if seen[name] {
			return
		}
		seen[name] = true
		targets = append(targets, name)
	}

	for _, section := range sections {
		for _, rr := range section {
			switch v := rr.(type) {
			case *dns.NS:
				add(v.Ns)
			case *dns.MX:
				add(v.Mx)
			}
		}
	}

	return targets
}
