package resolver

import (
	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/dnsname"
	"github.com/dnsforge/authdns/pkg/dnssec"
	"github.com/dnsforge/authdns/pkg/zonestore"
)

// applyDNSSEC is the resolver's single call site into the DNSSEC hook:
// a no-op unless the zone has signing configured and the client set
// the EDNS DO bit. It signs every answer and SOA RRset and,
// for negative responses, asks the hook for a denial-of-existence
// chain to attach alongside the SOA.
func applyDNSSEC(hook dnssec.Hook, resp *dns.Msg, zone *zonestore.Zone, qname string, doBit bool) {
	if !doBit || zone == nil || !hook.Enabled(zone.SigningZone) {
		return
	}

	resp.AuthenticatedData = true

	for _, rrset := range dnsname.RecordsToRRsets(resp.Answer) {
		if sig, err := hook.SignRRset(zone.SigningZone, rrset); err == nil {
			resp.Answer = append(resp.Answer, sig)
		}
	}

	for _, rrset := range dnsname.RecordsToRRsets(onlySOA(resp.Ns)) {
		if sig, err := hook.SignRRset(zone.SigningZone, rrset); err == nil {
			resp.Ns = append(resp.Ns, sig)
		}
	}

	switch {
	case resp.Rcode == dns.RcodeNameError:
		if denial, ok := hook.DenyNXDOMAIN(zone.SigningZone, qname); ok {
			resp.Ns = append(resp.Ns, denial...)
		}
	case resp.Rcode == dns.RcodeSuccess && len(resp.Answer) == 0 && resp.Authoritative && !hasNS(resp.Ns):
		if denial, ok := hook.DenyNODATA(zone.SigningZone, qname); ok {
			resp.Ns = append(resp.Ns, denial...)
		}
	}
}

func onlySOA(rrs []dns.RR) []dns.RR {
	var out []dns.RR
	for _, rr := range rrs {
		if rr.Header().Rrtype == dns.TypeSOA {
			out = append(out, rr)
		}
	}

	return out
}

func hasNS(rrs []dns.RR) bool {
	for _, rr := range rrs {
		if rr.Header().Rrtype == dns.TypeNS {
			return true
		}
	}

	return false
}
