package dnssec

import (
	"strings"

	"github.com/miekg/dns"
)

// canonicalName returns the wire-format encoding of name, lowercased per
// RFC 4034 §6.2, for use in digest and signature input construction.
func canonicalName(name string) []byte {
	name = strings.ToLower(dns.Fqdn(name))
	if name == "." {
		return []byte{0}
	}

	buf := make([]byte, 0, len(name)+1)
	labels := strings.Split(strings.TrimSuffix(name, "."), ".")
	for _, label := range labels {
		if label == "" {
			continue
		}
		buf = append(buf, byte(len(label)))
		buf = append(buf, []byte(label)...)
	}
	buf = append(buf, 0)

	return buf
}
