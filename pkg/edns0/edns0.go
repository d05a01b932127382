// Package edns0 implements EDNS0 (RFC 6891) negotiation for the query
// path: OPT record parsing, UDP payload-size negotiation, DO-bit
// propagation, and extended-RCODE encoding split across msg.Rcode and
// the OPT record's TTL field.
package edns0

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// Params holds the EDNS0 parameters carried by a query's OPT record.
type Params struct {
	Present       bool   // whether the query carried an OPT record at all
	PayloadSize   uint16 // client's advertised UDP payload size
	DO            bool   // DNSSEC OK bit
	ExtendedRcode uint8  // upper 8 bits of the extended RCODE
	Version       uint8  // EDNS version
}

// Negotiation bounds and defaults, per RFC 6891 §6.2.3/§6.2.5.
const (
	DefaultPayloadSize = 1232 // RFC 6891-recommended default for IPv4
	MinPayloadSize     = 512  // RFC 1035 minimum; values below this are clamped up
	MaxPayloadSize     = 4096 // this server's advertised ceiling
	SupportedVersion   = 0    // the only EDNS version this server understands
)

// RcodeBadVers is the extended RCODE (RFC 6891 §6.1.3) returned when a
// query's EDNS version exceeds SupportedVersion.
const RcodeBadVers = 16

var (
	ErrMultipleOPT        = errors.New("edns0: multiple OPT records in query")
	ErrMisplacedOPT       = errors.New("edns0: OPT record owner name must be root")
	ErrUnsupportedVersion = errors.New("edns0: unsupported EDNS version")
)

// ValidationError wraps a validation failure with the extended RCODE
// the caller should encode in its error response.
type ValidationError struct {
	Err           error
	ExtendedRcode int
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Parse extracts EDNS0 parameters from a query. A query with no OPT
// record returns a zero-value Params with Present=false and
// PayloadSize defaulted to MinPayloadSize.
func Parse(msg *dns.Msg) *Params {
	params := &Params{PayloadSize: MinPayloadSize}

	opt := msg.IsEdns0()
	if opt == nil {
		return params
	}

	params.Present = true
	params.PayloadSize = clamp(opt.UDPSize())
	params.DO = opt.Do()
	params.Version = opt.Version()
	params.ExtendedRcode = uint8(opt.Hdr.Ttl >> 24)

	return params
}

func clamp(size uint16) uint16 {
	switch {
	case size < MinPayloadSize:
		return MinPayloadSize
	case size > MaxPayloadSize:
		return MaxPayloadSize
	default:
		return size
	}
}

// Attach replaces any existing OPT record on msg with one advertising
// payloadSize (clamped to [MinPayloadSize, MaxPayloadSize]) and the
// given DO bit.
func Attach(msg *dns.Msg, payloadSize uint16, dnssecOK bool) {
	msg.Extra = stripOPT(msg.Extra)

	opt := newOPT(clamp(payloadSize), 0)
	if dnssecOK {
		opt.SetDo()
	}

	msg.Extra = append(msg.Extra, opt)
}

func newOPT(payloadSize uint16, ttl uint32) *dns.OPT {
	opt := &dns.OPT{
		Hdr: dns.RR_Header{
			Name:   ".",
			Rrtype: dns.TypeOPT,
			Class:  payloadSize,
			Ttl:    ttl,
		},
	}
	opt.SetVersion(SupportedVersion)

	return opt
}

func stripOPT(rrs []dns.RR) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, rr := range rrs {
		if _, ok := rr.(*dns.OPT); !ok {
			out = append(out, rr)
		}
	}

	return out
}

// NegotiatePayloadSize returns the smaller of the client's and the
// server's advertised UDP payload sizes.
func NegotiatePayloadSize(clientSize, serverSize uint16) uint16 {
	if clientSize < serverSize {
		return clientSize
	}

	return serverSize
}

// ShouldTruncate reports whether a packed response of responseSize
// bytes exceeds the negotiated (or, absent EDNS0, RFC 1035 minimum)
// payload size and must have TC set instead of being sent whole.
func ShouldTruncate(responseSize int, params *Params) bool {
	maxSize := int(MinPayloadSize)
	if params.Present {
		maxSize = int(params.PayloadSize)
	}

	return responseSize > maxSize
}

// Validate checks a query's OPT record against RFC 6891 §6.1.1/§6.1.3:
// at most one OPT record, owned by the root, at a version this server
// supports. A query with no OPT record is valid. On failure the
// returned error is always a *ValidationError.
func Validate(msg *dns.Msg) error {
	var opt *dns.OPT
	count := 0

	for _, rr := range msg.Extra {
		if o, ok := rr.(*dns.OPT); ok {
			count++
			opt = o
		}
	}

	switch {
	case count > 1:
		return &ValidationError{Err: ErrMultipleOPT, ExtendedRcode: dns.RcodeFormatError}
	case count == 0:
		return nil
	case opt.Hdr.Name != ".":
		return &ValidationError{Err: ErrMisplacedOPT, ExtendedRcode: dns.RcodeFormatError}
	}

	if version := opt.Version(); version > SupportedVersion {
		return &ValidationError{
			Err:           fmt.Errorf("%w: got %d, support up to %d", ErrUnsupportedVersion, version, SupportedVersion),
			ExtendedRcode: RcodeBadVers,
		}
	}

	return nil
}

// SetExtendedRcode splits rcode across msg.Rcode (lower 4 bits) and,
// when msg carries an OPT record, its TTL's upper 8 bits.
func SetExtendedRcode(msg *dns.Msg, rcode int) {
	msg.Rcode = rcode & 0x0F

	if opt := msg.IsEdns0(); opt != nil {
		opt.Hdr.Ttl = (opt.Hdr.Ttl & 0x00FFFFFF) | uint32(rcode>>4)<<24
	}
}

// ExtendedRcode reassembles the full extended RCODE from msg.Rcode and,
// when present, the OPT record's TTL.
func ExtendedRcode(msg *dns.Msg) int {
	rcode := msg.Rcode

	if opt := msg.IsEdns0(); opt != nil {
		rcode |= int(opt.Hdr.Ttl>>24) << 4
	}

	return rcode
}
