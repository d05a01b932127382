package dnssec

import (
	"crypto"
	"fmt"
	"os"

	"github.com/miekg/dns"
)

// LoadSigningKeys reads a set of dnssec-keygen-style key pairs and returns
// the SigningKey values ready to hand to NewSigningHook. Each entry in
// basePaths names a key pair without its extension (e.g.
// "/etc/authdns/keys/Kexample.com.+013+12345"); the loader reads
// "<basePath>.key" for the public DNSKEY record and "<basePath>.private"
// for the matching BIND private-key-file-format material.
func LoadSigningKeys(basePaths []string) ([]SigningKey, error) {
	keys := make([]SigningKey, 0, len(basePaths))

	for _, base := range basePaths {
		key, err := loadSigningKey(base)
		if err != nil {
			return nil, fmt.Errorf("load key %s: %w", base, err)
		}

		keys = append(keys, key)
	}

	return keys, nil
}

func loadSigningKey(basePath string) (SigningKey, error) {
	keyFile := basePath + ".key"
	privFile := basePath + ".private"

	keyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		return SigningKey{}, fmt.Errorf("read %s: %w", keyFile, err)
	}

	rr, err := dns.NewRR(string(keyBytes))
	if err != nil {
		return SigningKey{}, fmt.Errorf("parse DNSKEY in %s: %w", keyFile, err)
	}

	dnskey, ok := rr.(*dns.DNSKEY)
	if !ok {
		return SigningKey{}, fmt.Errorf("%s does not contain a DNSKEY record", keyFile)
	}

	privBytes, err := os.ReadFile(privFile)
	if err != nil {
		return SigningKey{}, fmt.Errorf("read %s: %w", privFile, err)
	}

	priv, err := dnskey.NewPrivateKey(string(privBytes))
	if err != nil {
		return SigningKey{}, fmt.Errorf("parse private key in %s: %w", privFile, err)
	}

	signer, ok := priv.(crypto.Signer)
	if !ok {
		return SigningKey{}, fmt.Errorf("%s: private key type %T does not implement crypto.Signer", privFile, priv)
	}

	return SigningKey{DNSKEY: dnskey, Private: signer}, nil
}
