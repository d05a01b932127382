package dnssec

import (
	"strings"

	"github.com/miekg/dns"
)

// NSECProver selects NSEC records that prove denial of existence for an
// authoritative negative response, given the zone's full NSEC chain.
type NSECProver struct {
	chain []*dns.NSEC
}

// NewNSECProver builds a prover over a zone's NSEC chain.
func NewNSECProver(chain []*dns.NSEC) *NSECProver {
	return &NSECProver{chain: chain}
}

// CoveringNXDOMAIN returns the NSEC record that proves qname does not exist.
// RFC 4035 §3.1.3.2.
func (np *NSECProver) CoveringNXDOMAIN(qname string) (*dns.NSEC, bool) {
	qname = dns.Fqdn(strings.ToLower(qname))

	for _, nsec := range np.chain {
		owner := dns.Fqdn(strings.ToLower(nsec.Hdr.Name))
		next := dns.Fqdn(strings.ToLower(nsec.NextDomain))

		if coversName(owner, next, qname) {
			return nsec, true
		}
	}

	return nil, false
}

// AtName returns the NSEC record owned by qname, proving the name exists
// but lacks data for some requested type (NODATA, RFC 4035 §3.1.3.1).
func (np *NSECProver) AtName(qname string) (*dns.NSEC, bool) {
	qname = dns.Fqdn(strings.ToLower(qname))

	for _, nsec := range np.chain {
		if dns.Fqdn(strings.ToLower(nsec.Hdr.Name)) == qname {
			return nsec, true
		}
	}

	return nil, false
}

// CoveringWildcards returns, for every wildcard expansion level of qname,
// the NSEC record covering that wildcard name — proving no closer wildcard
// exists (RFC 4035 §3.1.3.3). Returns false if any level lacks coverage.
func (np *NSECProver) CoveringWildcards(qname string) ([]*dns.NSEC, bool) {
	qname = dns.Fqdn(qname)

	var covering []*dns.NSEC
	for _, wildcard := range getWildcardNames(qname) {
		nsec, ok := np.CoveringNXDOMAIN(wildcard)
		if !ok {
			return nil, false
		}
		covering = append(covering, nsec)
	}

	return covering, true
}

// coversName checks if an NSEC record covers a name.
// An NSEC covers a name if: owner < name < next (canonical ordering).
// Special case: if next < owner, this is the last NSEC wrapping to first.
func coversName(owner, next, name string) bool {
	owner = dns.Fqdn(strings.ToLower(owner))
	next = dns.Fqdn(strings.ToLower(next))
	name = dns.Fqdn(strings.ToLower(name))

	ownerCmp := canonicalCompare(owner, name)
	nextCmp := canonicalCompare(name, next)

	if canonicalCompare(owner, next) < 0 {
		// Normal case: owner < next. Name is covered if owner < name < next.
		return ownerCmp < 0 && nextCmp < 0
	}

	// Wrap-around case: next < owner (last NSEC in zone).
	return ownerCmp < 0 || nextCmp < 0
}

// canonicalCompare performs canonical DNS name comparison (RFC 4034 §6.1).
func canonicalCompare(name1, name2 string) int {
	name1 = dns.Fqdn(strings.ToLower(name1))
	name2 = dns.Fqdn(strings.ToLower(name2))

	if name1 == name2 {
		return 0
	}

	labels1 := strings.Split(strings.TrimSuffix(name1, "."), ".")
	labels2 := strings.Split(strings.TrimSuffix(name2, "."), ".")

	reverseLabels(labels1)
	reverseLabels(labels2)

	minLen := len(labels1)
	if len(labels2) < minLen {
		minLen = len(labels2)
	}

	for i := 0; i < minLen; i++ {
		cmp := strings.Compare(labels1[i], labels2[i])
		if cmp != 0 {
			return cmp
		}
	}

	if len(labels1) < len(labels2) {
		return -1
	}
	if len(labels1) > len(labels2) {
		return 1
	}

	return 0
}

// reverseLabels reverses a slice of labels in place.
func reverseLabels(labels []string) {
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
}

// hasType checks if a type bitmap includes a specific RR type.
func hasType(bitmap []uint16, rrtype uint16) bool {
	for _, t := range bitmap {
		if t == rrtype {
			return true
		}
	}

	return false
}

// getWildcardNames returns all possible wildcard names for a qname.
// For "a.b.c.example.com.", returns: ["*.b.c.example.com.", "*.c.example.com.", "*.example.com.", "*.com."]
func getWildcardNames(qname string) []string {
	qname = dns.Fqdn(qname)
	labels := strings.Split(strings.TrimSuffix(qname, "."), ".")

	wildcards := make([]string, 0, len(labels)-1)
	for i := 1; i < len(labels); i++ {
		wildcard := "*." + strings.Join(labels[i:], ".")
		wildcards = append(wildcards, dns.Fqdn(wildcard))
	}

	return wildcards
}

// ExtractNSECRecords extracts NSEC records from a DNS message.
func ExtractNSECRecords(msg *dns.Msg) []*dns.NSEC {
	nsecs := make([]*dns.NSEC, 0)

	for _, rr := range msg.Ns {
		if nsec, ok := rr.(*dns.NSEC); ok {
			nsecs = append(nsecs, nsec)
		}
	}

	for _, rr := range msg.Answer {
		if nsec, ok := rr.(*dns.NSEC); ok {
			nsecs = append(nsecs, nsec)
		}
	}

	return nsecs
}
