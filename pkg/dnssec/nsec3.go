package dnssec

import (
	"crypto/sha1" //nolint:gosec // SHA1 required for NSEC3 per RFC 5155
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// NSEC3Prover selects NSEC3 records that prove denial of existence for an
// authoritative negative response, given the zone's full NSEC3 chain.
type NSEC3Prover struct {
	chain []*dns.NSEC3
}

// NewNSEC3Prover builds a prover over a zone's NSEC3 chain.
func NewNSEC3Prover(chain []*dns.NSEC3) *NSEC3Prover {
	return &NSEC3Prover{chain: chain}
}

// ClosestEncloserProof returns the three records needed for an RFC 5155
// §7.2.1 NXDOMAIN proof: the NSEC3 matching the closest encloser, the one
// covering the next closer name, and the one covering the wildcard at the
// closest encloser.
func (n3p *NSEC3Prover) ClosestEncloserProof(qname string) (encloser, nextCloser, wildcard *dns.NSEC3, ok bool) {
	if len(n3p.chain) == 0 {
		return nil, nil, nil, false
	}

	qname = dns.Fqdn(strings.ToLower(qname))
	param := extractNSEC3Params(n3p.chain[0])

	closestEncloser, encloserRR, found := n3p.findClosestEncloser(qname, param)
	if !found {
		return nil, nil, nil, false
	}

	nextCloserName := getNextCloser(qname, closestEncloser)
	nextCloserRR, ok := n3p.covering(nextCloserName, param)
	if !ok {
		return nil, nil, nil, false
	}

	wildcardRR, ok := n3p.covering("*."+closestEncloser, param)
	if !ok {
		return nil, nil, nil, false
	}

	return encloserRR, nextCloserRR, wildcardRR, true
}

// AtName returns the NSEC3 record whose owner hash matches qname, proving
// the name exists but may lack data for some requested type (NODATA).
func (n3p *NSEC3Prover) AtName(qname string) (*dns.NSEC3, bool) {
	if len(n3p.chain) == 0 {
		return nil, false
	}

	qname = dns.Fqdn(strings.ToLower(qname))
	hashedName := hashName(qname, n3p.chain[0])

	for _, nsec3 := range n3p.chain {
		if extractHashFromNSEC3Owner(nsec3.Hdr.Name) == hashedName {
			return nsec3, true
		}
	}

	return nil, false
}

// covering returns the NSEC3 record in the chain whose hash range covers
// name's hash, under the given parameters.
func (n3p *NSEC3Prover) covering(name string, param *nsec3Params) (*dns.NSEC3, bool) {
	name = dns.Fqdn(strings.ToLower(name))
	hashedName := hashNameWithParams(name, param)

	for _, nsec3 := range n3p.chain {
		owner := extractHashFromNSEC3Owner(nsec3.Hdr.Name)
		next := nsec3.NextDomain

		if coversHash(owner, next, hashedName) {
			return nsec3, true
		}
	}

	return nil, false
}

// findClosestEncloser finds the closest enclosing name that exists in the
// chain, per RFC 5155 §7.2.1.
func (n3p *NSEC3Prover) findClosestEncloser(qname string, param *nsec3Params) (string, *dns.NSEC3, bool) {
	qname = dns.Fqdn(strings.ToLower(qname))
	labels := strings.Split(strings.TrimSuffix(qname, "."), ".")

	for i := range labels {
		testName := strings.Join(labels[i:], ".") + "."
		hashedName := hashNameWithParams(testName, param)

		for _, rec := range n3p.chain {
			if extractHashFromNSEC3Owner(rec.Hdr.Name) == hashedName {
				return testName, rec, true
			}
		}
	}

	return "", nil, false
}

// getNextCloser returns the next closer name to the closest encloser.
func getNextCloser(qname, closestEncloser string) string {
	qname = dns.Fqdn(strings.ToLower(qname))
	closestEncloser = dns.Fqdn(strings.ToLower(closestEncloser))

	qLabels := strings.Split(strings.TrimSuffix(qname, "."), ".")
	ceLabels := strings.Split(strings.TrimSuffix(closestEncloser, "."), ".")

	if len(qLabels) <= len(ceLabels) {
		return qname
	}

	return strings.Join(qLabels[len(qLabels)-len(ceLabels)-1:], ".") + "."
}

// coversHash checks if an NSEC3 record's hash range covers a hashed name.
func coversHash(owner, next, hash string) bool {
	if owner == hash {
		return false
	}

	if owner < next {
		return owner < hash && hash < next
	}

	return hash > owner || hash < next
}

// nsec3Params holds NSEC3 hash parameters.
type nsec3Params struct {
	HashAlg    uint8
	Flags      uint8
	Iterations uint16
	Salt       string
}

// extractNSEC3Params extracts hash parameters from an NSEC3 record.
func extractNSEC3Params(nsec3 *dns.NSEC3) *nsec3Params {
	return &nsec3Params{
		HashAlg:    nsec3.Hash,
		Flags:      nsec3.Flags,
		Iterations: nsec3.Iterations,
		Salt:       nsec3.Salt,
	}
}

// hashName hashes a domain name using NSEC3 parameters from an NSEC3 record.
func hashName(name string, nsec3 *dns.NSEC3) string {
	return hashNameWithParams(name, extractNSEC3Params(nsec3))
}

// hashNameWithParams hashes a domain name using NSEC3 parameters.
func hashNameWithParams(name string, param *nsec3Params) string {
	name = dns.Fqdn(strings.ToLower(name))
	wireData := canonicalName(name)

	salt := []byte{}
	if param.Salt != "-" && param.Salt != "" {
		salt = []byte(param.Salt)
	}

	var hash []byte
	switch param.HashAlg {
	case dns.SHA1:
		hash = nsec3Hash(wireData, salt, param.Iterations)
	default:
		return ""
	}

	return base32Encode(hash)
}

// nsec3Hash performs the NSEC3 iterated hash (RFC 5155 §5).
func nsec3Hash(data, salt []byte, iterations uint16) []byte {
	h := sha1.New() //nolint:gosec // SHA1 required for NSEC3 per RFC 5155
	h.Write(data)
	h.Write(salt)
	digest := h.Sum(nil)

	for range iterations {
		h.Reset()
		h.Write(digest)
		h.Write(salt)
		digest = h.Sum(nil)
	}

	return digest
}

// base32Encode encodes data in base32hex without padding.
func base32Encode(data []byte) string {
	encoder := base32.HexEncoding.WithPadding(base32.NoPadding)

	return strings.ToUpper(encoder.EncodeToString(data))
}

// extractHashFromNSEC3Owner extracts the hash portion from an NSEC3 owner
// name. NSEC3 owner format: <hash>.<zone>.
func extractHashFromNSEC3Owner(owner string) string {
	owner = dns.Fqdn(strings.ToLower(owner))
	parts := strings.SplitN(owner, ".", 2)
	if len(parts) < 1 {
		return ""
	}

	return strings.ToUpper(parts[0])
}

// ExtractNSEC3Records extracts NSEC3 records from a DNS message.
func ExtractNSEC3Records(msg *dns.Msg) []*dns.NSEC3 {
	nsec3s := make([]*dns.NSEC3, 0)

	for _, rr := range msg.Ns {
		if nsec3, ok := rr.(*dns.NSEC3); ok {
			nsec3s = append(nsec3s, nsec3)
		}
	}

	for _, rr := range msg.Answer {
		if nsec3, ok := rr.(*dns.NSEC3); ok {
			nsec3s = append(nsec3s, nsec3)
		}
	}

	return nsec3s
}

// IsOptOut checks if NSEC3 opt-out is enabled.
func IsOptOut(nsec3 *dns.NSEC3) bool {
	return nsec3.Flags&0x01 == 0x01
}

// ValidateNSEC3Params validates NSEC3 parameters are acceptable for signing.
func ValidateNSEC3Params(nsec3 *dns.NSEC3) error {
	if nsec3.Hash != dns.SHA1 {
		return fmt.Errorf("unsupported NSEC3 hash algorithm: %d", nsec3.Hash)
	}

	maxIterations := uint16(150)
	if nsec3.Iterations > maxIterations {
		return fmt.Errorf("NSEC3 iteration count too high: %d > %d", nsec3.Iterations, maxIterations)
	}

	maxSaltLen := 255
	if len(nsec3.Salt) > maxSaltLen {
		return fmt.Errorf("NSEC3 salt too long: %d > %d", len(nsec3.Salt), maxSaltLen)
	}

	return nil
}
