package security

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// QueryValidator validates DNS queries for security issues.
type QueryValidator struct {
	config ValidationConfig
}

// ValidationConfig holds validation configuration.
type ValidationConfig struct {
	// MaxQuestionCount limits number of questions per query
	MaxQuestionCount int

	// MaxDomainLength limits domain name length (RFC 1035: 255)
	MaxDomainLength int

	// MaxLabelLength limits individual label length (RFC 1035: 63)
	MaxLabelLength int

	// MaxQuerySize is a query size in bytes; ValidateQuery does not
	// check it.
	MaxQuerySize int

	// RejectPrivateAddresses rejects queries for private IP ranges
	RejectPrivateAddresses bool

	// RandomizeSourcePort is carried in the configuration only; nothing
	// in this package or the listeners reads it.
	RandomizeSourcePort bool

	// ValidateQNAME validates query names
	ValidateQNAME bool
}

// DefaultValidationConfig returns sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxQuestionCount:       1,     // RFC 1035: typically 1 question
		MaxDomainLength:        255,   // RFC 1035 limit
		MaxLabelLength:         63,    // RFC 1035 limit
		MaxQuerySize:           4096,  // Reasonable max
		RejectPrivateAddresses: false, // Allow by default (for internal DNS)
		RandomizeSourcePort:    true,  // RFC 5452 recommendation
		ValidateQNAME:          true,  // Validate domain names
	}
}

// NewQueryValidator creates a new query validator.
func NewQueryValidator(config ValidationConfig) *QueryValidator {
	return &QueryValidator{
		config: config,
	}
}

// ValidateQuery validates a DNS query for security issues.
func (qv *QueryValidator) ValidateQuery(msg *dns.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	// Validate question count
	if len(msg.Question) > qv.config.MaxQuestionCount {
		return fmt.Errorf("too many questions: %d (max: %d)",
			len(msg.Question), qv.config.MaxQuestionCount)
	}

	if len(msg.Question) == 0 {
		return errors.New("no questions in query")
	}

	// Validate each question
	for i, q := range msg.Question {
		if err := qv.validateQuestion(&q); err != nil {
			return fmt.Errorf("question %d invalid: %w", i, err)
		}
	}

	return nil
}

// validateQuestion validates a single question.
func (qv *QueryValidator) validateQuestion(q *dns.Question) error {
	if !qv.config.ValidateQNAME {
		return nil
	}

	// Validate domain name length
	if len(q.Name) > qv.config.MaxDomainLength {
		return fmt.Errorf("domain name too long: %d bytes (max: %d)",
			len(q.Name), qv.config.MaxDomainLength)
	}

	// Validate individual labels
	labels := strings.Split(strings.TrimSuffix(q.Name, "."), ".")
	for _, label := range labels {
		if len(label) > qv.config.MaxLabelLength {
			return fmt.Errorf("label too long: %s (%d bytes, max: %d)",
				label, len(label), qv.config.MaxLabelLength)
		}

		// Validate label characters (basic validation)
		if !isValidLabel(label) {
			return fmt.Errorf("invalid label: %s", label)
		}
	}

	// Check for private address queries if configured
	if qv.config.RejectPrivateAddresses && q.Qtype == dns.TypePTR {
		if isPrivateReverseQuery(q.Name) {
			return fmt.Errorf("private address query rejected: %s", q.Name)
		}
	}

	return nil
}

// isValidLabel checks if a DNS label contains valid characters.
func isValidLabel(label string) bool {
	if len(label) == 0 {
		return true // Empty labels are OK (for root)
	}

	// RFC 1035: labels can contain letters, digits, and hyphens; underscores
	// are accepted too (service labels such as _srv).
	// Must not start or end with hyphen
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}

	for _, c := range label {
		if (c < 'a' || c > 'z') &&
			(c < 'A' || c > 'Z') &&
			(c < '0' || c > '9') &&
			c != '-' && c != '_' {
			return false
		}
	}

	return true
}

// isPrivateReverseQuery checks if a PTR query is for a private IP range.
func isPrivateReverseQuery(name string) bool {
	// Check for common private IP reverse zones
	privateZones := []string{
		"10.in-addr.arpa.",
		"168.192.in-addr.arpa.", // 192.168.x.x
		"16.172.in-addr.arpa.",  // 172.16.x.x; 172.17-172.31 are added below
		"d.f.ip6.arpa.",         // IPv6 fd00::/8
	}
	for octet := 17; octet <= 31; octet++ {
		privateZones = append(privateZones, fmt.Sprintf("%d.172.in-addr.arpa.", octet))
	}

	for _, zone := range privateZones {
		if strings.HasSuffix(name, zone) {
			return true
		}
	}

	return false
}

// ValidateResponseSize checks if a response size is reasonable.
func ValidateResponseSize(size int, maxSize int) error {
	if size > maxSize {
		return fmt.Errorf("response too large: %d bytes (max: %d)", size, maxSize)
	}
	if size < 12 {
		return fmt.Errorf("response too small: %d bytes (min: 12)", size)
	}

	return nil
}
