package dnssec

import (
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Errors returned by signing operations.
var (
	ErrNoSigningKey  = errors.New("dnssec: no active signing key for zone")
	ErrEmptyRRset    = errors.New("dnssec: cannot sign an empty RRset")
	ErrMixedOwnerSet = errors.New("dnssec: RRset records do not share an owner name and type")
)

// SigningKey pairs a DNSKEY record with the private key material used to
// produce signatures over it.
type SigningKey struct {
	DNSKEY  *dns.DNSKEY
	Private crypto.Signer
}

// Hook is the DNSSEC signing surface the resolution core calls into when a
// zone has signing enabled. Implementations must be safe for concurrent use.
type Hook interface {
	// Enabled reports whether zone has DNSSEC signing configured.
	Enabled(zone string) bool

	// SignRRset signs an RRset (all records sharing an owner name, type and
	// class) and returns the RRSIG to attach alongside it. The RRset must be
	// non-empty and already in canonical form.
	SignRRset(zone string, rrset []dns.RR) (*dns.RRSIG, error)

	// DNSKeyRRset returns the zone's published DNSKEY records (KSK and ZSK).
	DNSKeyRRset(zone string) []dns.RR

	// DenyNXDOMAIN returns the NSEC/NSEC3 record(s) proving qname does not
	// exist in zone, plus their RRSIGs. ok is false if the zone carries no
	// denial-of-existence chain (unsigned zone, or DNSSEC disabled).
	DenyNXDOMAIN(zone, qname string) (records []dns.RR, ok bool)

	// DenyNODATA returns the NSEC/NSEC3 record proving qname exists but
	// lacks the queried type, plus its RRSIG.
	DenyNODATA(zone, qname string) (records []dns.RR, ok bool)
}

// NoopHook is a Hook that never signs anything. It is the default for zones
// without a configured signing key, and keeps the resolution core's calls
// into the hook unconditional.
type NoopHook struct{}

// Enabled always returns false.
func (NoopHook) Enabled(string) bool { return false }

// SignRRset always fails: the noop hook never signs.
func (NoopHook) SignRRset(string, []dns.RR) (*dns.RRSIG, error) {
	return nil, ErrNoSigningKey
}

// DNSKeyRRset always returns nil.
func (NoopHook) DNSKeyRRset(string) []dns.RR { return nil }

// DenyNXDOMAIN always reports no denial chain available.
func (NoopHook) DenyNXDOMAIN(string, string) ([]dns.RR, bool) { return nil, false }

// DenyNODATA always reports no denial chain available.
func (NoopHook) DenyNODATA(string, string) ([]dns.RR, bool) { return nil, false }

// ZoneKeySet holds one zone's signing keys and precomputed denial-of
// -existence chain, used by SigningHook.
type ZoneKeySet struct {
	Zone        string
	Keys        []SigningKey
	SigValidity time.Duration
	NSEC        *NSECProver
	NSEC3       *NSEC3Prover
}

// SigningHook is a Hook backed by real key material, driving the
// DNSKEY/NSEC/NSEC3 machinery in production signing mode rather than
// verification mode.
type SigningHook struct {
	zones map[string]*ZoneKeySet
}

// NewSigningHook builds a SigningHook from a set of per-zone key sets.
func NewSigningHook(zones ...*ZoneKeySet) *SigningHook {
	m := make(map[string]*ZoneKeySet, len(zones))
	for _, z := range zones {
		m[dns.Fqdn(z.Zone)] = z
	}

	return &SigningHook{zones: m}
}

// Enabled reports whether zone has at least one signing key configured.
func (h *SigningHook) Enabled(zone string) bool {
	ks, ok := h.zones[dns.Fqdn(zone)]

	return ok && len(ks.Keys) > 0
}

// SignRRset signs rrset with the zone's active ZSK (falling back to its KSK
// if no ZSK is present), producing a single RRSIG covering the set.
func (h *SigningHook) SignRRset(zone string, rrset []dns.RR) (*dns.RRSIG, error) {
	if len(rrset) == 0 {
		return nil, ErrEmptyRRset
	}

	ks, ok := h.zones[dns.Fqdn(zone)]
	if !ok || len(ks.Keys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, zone)
	}

	owner := rrset[0].Header().Name
	rrtype := rrset[0].Header().Rrtype
	for _, rr := range rrset[1:] {
		if rr.Header().Name != owner || rr.Header().Rrtype != rrtype {
			return nil, ErrMixedOwnerSet
		}
	}

	signer := selectSigningKey(ks.Keys)
	if signer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSigningKey, zone)
	}

	now := time.Now()
	validity := ks.SigValidity
	if validity <= 0 {
		validity = 7 * 24 * time.Hour
	}

	rrsig := &dns.RRSIG{
		Hdr: dns.RR_Header{
			Name:   owner,
			Rrtype: dns.TypeRRSIG,
			Class:  dns.ClassINET,
			Ttl:    rrset[0].Header().Ttl,
		},
		Algorithm:  signer.DNSKEY.Algorithm,
		Labels:     uint8(dns.CountLabel(owner)),
		OrigTtl:    rrset[0].Header().Ttl,
		Expiration: uint32(now.Add(validity).Unix()),
		Inception:  uint32(now.Add(-1 * time.Hour).Unix()),
		KeyTag:     signer.DNSKEY.KeyTag(),
		SignerName: dns.Fqdn(zone),
	}

	// RRSIG.Sign sorts rrset into canonical order (RFC 4034 §6.3) itself.
	if err := rrsig.Sign(signer.Private, rrset); err != nil {
		return nil, fmt.Errorf("sign RRset %s/%d: %w", owner, rrtype, err)
	}

	return rrsig, nil
}

// DNSKeyRRset returns the zone's DNSKEY records, KSK and ZSK alike.
func (h *SigningHook) DNSKeyRRset(zone string) []dns.RR {
	ks, ok := h.zones[dns.Fqdn(zone)]
	if !ok {
		return nil
	}

	rrset := make([]dns.RR, 0, len(ks.Keys))
	for _, k := range ks.Keys {
		rrset = append(rrset, k.DNSKEY)
	}

	return rrset
}

// DenyNXDOMAIN returns the records proving qname does not exist, each
// followed by its RRSIG: with an NSEC3 chain (preferred), the three NSEC3
// records of the closest-encloser proof; otherwise the covering NSEC record.
func (h *SigningHook) DenyNXDOMAIN(zone, qname string) ([]dns.RR, bool) {
	ks, ok := h.zones[dns.Fqdn(zone)]
	if !ok {
		return nil, false
	}

	if ks.NSEC3 != nil {
		encloser, nextCloser, wildcard, ok := ks.NSEC3.ClosestEncloserProof(qname)
		if !ok {
			return nil, false
		}

		return h.signEach(zone, encloser, nextCloser, wildcard)
	}

	if ks.NSEC != nil {
		nsec, ok := ks.NSEC.CoveringNXDOMAIN(qname)
		if !ok {
			return nil, false
		}

		return h.signEach(zone, nsec)
	}

	return nil, false
}

// DenyNODATA returns the NSEC/NSEC3 record at qname proving it lacks a
// queried type, signed with the zone's active key.
func (h *SigningHook) DenyNODATA(zone, qname string) ([]dns.RR, bool) {
	ks, ok := h.zones[dns.Fqdn(zone)]
	if !ok {
		return nil, false
	}

	if ks.NSEC3 != nil {
		nsec3, ok := ks.NSEC3.AtName(qname)
		if !ok {
			return nil, false
		}

		return h.signEach(zone, nsec3)
	}

	if ks.NSEC != nil {
		nsec, ok := ks.NSEC.AtName(qname)
		if !ok {
			return nil, false
		}

		return h.signEach(zone, nsec)
	}

	return nil, false
}

// signEach signs each RR individually (each is its own RRset by RFC 4035
// convention for NSEC/NSEC3) and returns records interleaved with sigs.
func (h *SigningHook) signEach(zone string, rrs ...dns.RR) ([]dns.RR, bool) {
	out := make([]dns.RR, 0, len(rrs)*2)
	for _, rr := range rrs {
		sig, err := h.SignRRset(zone, []dns.RR{rr})
		if err != nil {
			return nil, false
		}
		out = append(out, rr, sig)
	}

	return out, true
}

// selectSigningKey prefers a ZSK for every RRset, falling back to a KSK
// when no ZSK is configured, or to the first configured key.
func selectSigningKey(keys []SigningKey) *SigningKey {
	var ksk *SigningKey
	for i := range keys {
		if IsZSK(keys[i].DNSKEY) {
			return &keys[i]
		}
		if ksk == nil && IsKSK(keys[i].DNSKEY) {
			ksk = &keys[i]
		}
	}

	if ksk != nil {
		return ksk
	}
	if len(keys) > 0 {
		return &keys[0]
	}

	return nil
}
