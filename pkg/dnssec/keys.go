package dnssec

import (
	"github.com/miekg/dns"
)

// IsKSK returns true if the DNSKEY is a Key Signing Key.
func IsKSK(key *dns.DNSKEY) bool {
	// Bit 7 of Flags (0x0100) is Zone Key flag (always 1 for DNSSEC)
	// Bit 15 of Flags (0x0001 in wire format, bit 0 counting from right) is Secure Entry Point (SEP) flag (KSK indicator)
	// KSK: flags = 257 (0x0101) = Zone Key + SEP
	return key.Flags&0x0100 == 0x0100 && key.Flags&0x0001 == 0x0001
}

// IsZSK returns true if the DNSKEY is a Zone Signing Key.
func IsZSK(key *dns.DNSKEY) bool {
	// ZSK: flags = 256 (0x0100) = Zone Key only, no SEP
	return key.Flags&0x0100 == 0x0100 && key.Flags&0x0001 == 0
}

// GetActiveKSKs returns all KSKs from a set of DNSKEYs.
func GetActiveKSKs(keys []*dns.DNSKEY) []*dns.DNSKEY {
	ksks := make([]*dns.DNSKEY, 0)
	for _, key := range keys {
		if IsKSK(key) {
			ksks = append(ksks, key)
		}
	}

	return ksks
}

// GetActiveZSKs returns all ZSKs from a set of DNSKEYs.
func GetActiveZSKs(keys []*dns.DNSKEY) []*dns.DNSKEY {
	zsks := make([]*dns.DNSKEY, 0)
	for _, key := range keys {
		if IsZSK(key) {
			zsks = append(zsks, key)
		}
	}

	return zsks
}
