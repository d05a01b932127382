package security_test

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/dnsforge/authdns/pkg/security"
)

// TestRateLimiter_Allow tests basic rate limiting.
func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()
	config := security.RateLimitConfig{
		QueriesPerSecond: 10,
		BurstSize:        10,
		CleanupInterval:  1 * time.Minute,
		BucketTTL:        5 * time.Minute,
		Enabled:          true,
		WhitelistedIPs:   nil,
	}

	rl := security.NewRateLimiter(config)
	defer rl.Stop()

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.100"), Port: 53, Zone: ""}

	// Should allow first 10 requests (burst)
	for i := range 10 {
		if !rl.Allow(addr) {
			t.Errorf("Request %d should be allowed (within burst)", i+1)
		}
	}

	// 11th request should be blocked (burst exhausted)
	if rl.Allow(addr) {
		t.Error("Request 11 should be rate limited")
	}

	t.Logf("✓ Rate limiting: Allowed 10 requests, blocked 11th")
}

// TestRateLimiter_Refill tests token refill over time.
func TestRateLimiter_Refill(t *testing.T) {
	t.Parallel()
	config := security.RateLimitConfig{
		QueriesPerSecond: 100, // 100 QPS = 10ms per token
		BurstSize:        5,
		CleanupInterval:  1 * time.Minute,
		BucketTTL:        5 * time.Minute,
		Enabled:          true,
		WhitelistedIPs:   nil,
	}

	rl := security.NewRateLimiter(config)
	defer rl.Stop()

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.101"), Port: 53, Zone: ""}

	// Exhaust burst
	for range 5 {
		rl.Allow(addr)
	}

	// Should be blocked now
	if rl.Allow(addr) {
		t.Error("Should be blocked after burst exhausted")
	}

	// Wait for one token to refill (10ms at 100 QPS)
	time.Sleep(15 * time.Millisecond)

	// Should allow one more request
	if !rl.Allow(addr) {
		t.Error("Should allow request after refill")
	}

	t.Logf("✓ Token refill working correctly")
}

// TestRateLimiter_MultipleIPs tests independent buckets per IP.
func TestRateLimiter_MultipleIPs(t *testing.T) {
	t.Parallel()
	config := security.RateLimitConfig{
		QueriesPerSecond: 10,
		BurstSize:        5,
		CleanupInterval:  1 * time.Minute,
		BucketTTL:        5 * time.Minute,
		Enabled:          true,
		WhitelistedIPs:   nil,
	}

	rl := security.NewRateLimiter(config)
	defer rl.Stop()

	addr1 := &net.UDPAddr{IP: net.ParseIP("192.168.1.102"), Port: 53, Zone: ""}
	addr2 := &net.UDPAddr{IP: net.ParseIP("192.168.1.103"), Port: 53, Zone: ""}

	// Exhaust burst for addr1
	for range 5 {
		rl.Allow(addr1)
	}

	// addr1 should be blocked
	if rl.Allow(addr1) {
		t.Error("addr1 should be rate limited")
	}

	// addr2 should still be allowed (independent bucket)
	if !rl.Allow(addr2) {
		t.Error("addr2 should be allowed (independent bucket)")
	}

	t.Logf("✓ Independent rate limiting per IP working correctly")
}

// TestRateLimiter_Disabled tests that disabled rate limiter allows all.
func TestRateLimiter_Disabled(t *testing.T) {
	t.Parallel()
	config := security.RateLimitConfig{
		QueriesPerSecond: 1,
		BurstSize:        1,
		CleanupInterval:  0,
		BucketTTL:        0,
		Enabled:          false, // Disabled
		WhitelistedIPs:   nil,
	}

	rl := security.NewRateLimiter(config)

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.104"), Port: 53, Zone: ""}

	// Should allow all requests when disabled
	for range 100 {
		if !rl.Allow(addr) {
			t.Error("All requests should be allowed when rate limiting is disabled")
		}
	}

	t.Logf("✓ Disabled rate limiter allows all requests")
}

// TestQueryValidator_ValidQuery tests valid query validation.
func TestQueryValidator_ValidQuery(t *testing.T) {
	t.Parallel()
	validator := security.NewQueryValidator(security.DefaultValidationConfig())

	msg := new(dns.Msg)
	msg.SetQuestion("example.com.", dns.TypeA)

	if err := validator.ValidateQuery(msg); err != nil {
		t.Errorf("Valid query should pass validation: %v", err)
	}

	t.Logf("✓ Valid query passes validation")
}

// TestQueryValidator_TooManyQuestions tests multiple questions rejection.
func TestQueryValidator_TooManyQuestions(t *testing.T) {
	t.Parallel()
	validator := security.NewQueryValidator(security.DefaultValidationConfig())

	msg := new(dns.Msg)
	msg.Question = []dns.Question{
		{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET},
		{Name: "google.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET},
	}

	if err := validator.ValidateQuery(msg); err == nil {
		t.Error("Query with multiple questions should be rejected")
	}

	t.Logf("✓ Multiple questions rejected correctly")
}

// TestQueryValidator_NoQuestions tests empty question rejection.
func TestQueryValidator_NoQuestions(t *testing.T) {
	t.Parallel()
	validator := security.NewQueryValidator(security.DefaultValidationConfig())

	msg := new(dns.Msg)
	msg.Question = []dns.Question{}

	if err := validator.ValidateQuery(msg); err == nil {
		t.Error("Query with no questions should be rejected")
	}

	t.Logf("✓ Empty questions rejected correctly")
}

// TestQueryValidator_LongDomainName tests domain length validation.
func TestQueryValidator_LongDomainName(t *testing.T) {
	t.Parallel()
	validator := security.NewQueryValidator(security.DefaultValidationConfig())

	// Create domain name longer than 255 bytes
	longDomain := ""
	for range 30 {
		longDomain += "verylonglabel."
	}

	msg := new(dns.Msg)
	msg.SetQuestion(longDomain, dns.TypeA)

	if err := validator.ValidateQuery(msg); err == nil {
		t.Error("Query with overly long domain should be rejected")
	}

	t.Logf("✓ Long domain name rejected correctly")
}

// TestValidateResponseSize tests response size validation.
func TestValidateResponseSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		size      int
		maxSize   int
		shouldErr bool
	}{
		{"Valid small", 100, 512, false},
		{"Valid max", 512, 512, false},
		{"Too large", 1000, 512, true},
		{"Too small", 10, 512, true},
		{"Minimum valid", 12, 512, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := security.ValidateResponseSize(tt.size, tt.maxSize)
			if (err != nil) != tt.shouldErr {
				t.Errorf("ValidateResponseSize(%d, %d): expected error=%v, got error=%v",
					tt.size, tt.maxSize, tt.shouldErr, err != nil)
			}
		})
	}

	t.Logf("✓ Response size validation working correctly")
}

// TestIsValidLabel tests DNS label validation.
func TestIsValidLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label string
		valid bool
	}{
		{"example", true},
		{"test123", true},
		{"test-label", true},
		{"-invalid", false},   // Starts with hyphen
		{"invalid-", false},   // Ends with hyphen
		{"test@label", false}, // Invalid character
		{"", true},            // Empty (root) is valid
		{"_srv", true},        // Underscore allowed
	}

	validator := security.NewQueryValidator(security.DefaultValidationConfig())

	for _, tt := range tests {
		msg := new(dns.Msg)
		msg.SetQuestion(tt.label+".example.com.", dns.TypeA)

		err := validator.ValidateQuery(msg)
		if (err == nil) != tt.valid {
			t.Errorf("label %q: expected valid=%v, got error %v", tt.label, tt.valid, err)
		}
	}

	t.Logf("✓ Label validation working correctly")
}

// TestRateLimiter_WhitelistCIDR tests that a whitelisted CIDR block
// bypasses limiting entirely.
func TestRateLimiter_WhitelistCIDR(t *testing.T) {
	t.Parallel()
	config := security.RateLimitConfig{
		QueriesPerSecond: 1,
		BurstSize:        1,
		CleanupInterval:  time.Minute,
		BucketTTL:        5 * time.Minute,
		Enabled:          true,
		WhitelistedIPs:   []string{"10.0.0.0/8"},
	}

	rl := security.NewRateLimiter(config)
	defer rl.Stop()

	addr := &net.UDPAddr{IP: net.ParseIP("10.1.2.3"), Port: 53}

	for i := range 20 {
		if !rl.Allow(addr) {
			t.Errorf("request %d from whitelisted CIDR should be allowed", i+1)
		}
	}

	t.Logf("✓ Whitelisted CIDR bypasses rate limiting")
}

// TestRateLimiter_WhitelistExactIP tests that a whitelisted plain
// address bypasses limiting.
func TestRateLimiter_WhitelistExactIP(t *testing.T) {
	t.Parallel()
	config := security.RateLimitConfig{
		QueriesPerSecond: 1,
		BurstSize:        1,
		CleanupInterval:  time.Minute,
		BucketTTL:        5 * time.Minute,
		Enabled:          true,
		WhitelistedIPs:   []string{"192.168.1.200"},
	}

	rl := security.NewRateLimiter(config)
	defer rl.Stop()

	whitelisted := &net.UDPAddr{IP: net.ParseIP("192.168.1.200"), Port: 53}
	other := &net.UDPAddr{IP: net.ParseIP("192.168.1.201"), Port: 53}

	for i := range 5 {
		if !rl.Allow(whitelisted) {
			t.Errorf("request %d from whitelisted IP should be allowed", i+1)
		}
	}

	rl.Allow(other)
	if rl.Allow(other) {
		t.Error("non-whitelisted IP should be rate limited")
	}

	t.Logf("✓ Whitelisted exact IP bypasses rate limiting")
}

// TestRateLimiterCleanup tests bucket cleanup.
func TestRateLimiterCleanup(t *testing.T) {
	t.Parallel()
	config := security.RateLimitConfig{
		QueriesPerSecond: 10,
		BurstSize:        5,
		CleanupInterval:  100 * time.Millisecond,
		BucketTTL:        200 * time.Millisecond,
		Enabled:          true,
		WhitelistedIPs:   nil,
	}

	rl := security.NewRateLimiter(config)
	defer rl.Stop()

	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.105"), Port: 53, Zone: ""}

	// Create bucket
	rl.Allow(addr)

	// Check bucket exists
	stats := rl.GetStats()
	if stats.ActiveBuckets != 1 {
		t.Error("Bucket should exist")
	}

	// Wait for cleanup
	time.Sleep(400 * time.Millisecond)

	// Bucket should be cleaned up
	stats = rl.GetStats()
	if stats.ActiveBuckets != 0 {
		t.Error("Bucket should be cleaned up")
	}

	t.Logf("✓ Rate limiter cleanup working correctly")
}
