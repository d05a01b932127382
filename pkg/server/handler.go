// Package server wires the resolution core to the wire: it implements
// io.QueryHandler, running every inbound packet through query
// validation, rate limiting, resolution, EDNS0 negotiation, and
// telemetry before handing the packed response back to the listener.
package server

import (
	"context"
	"net"

	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/edns0"
	dnsio "github.com/dnsforge/authdns/pkg/io"
	"github.com/dnsforge/authdns/pkg/resolver"
	"github.com/dnsforge/authdns/pkg/security"
)

// Config controls which pre-resolution guards are active.
type Config struct {
	// EnableQueryValidation rejects malformed questions before they
	// reach the resolver.
	EnableQueryValidation bool

	// EnableRateLimiting bounds per-source-IP query volume.
	EnableRateLimiting bool
}

// DefaultConfig returns both guards enabled.
func DefaultConfig() Config {
	return Config{
		EnableQueryValidation: true,
		EnableRateLimiting:    true,
	}
}

// Handler adapts a *resolver.Resolver to io.QueryHandler.
type Handler struct {
	resolver *resolver.Resolver

	msgPool *dnsio.MessagePool

	rateLimiter    *security.RateLimiter
	queryValidator *security.QueryValidator

	config Config
}

// NewHandler builds a Handler. rateLimiter and queryValidator may be
// nil, in which case their corresponding guard in config is treated as
// disabled regardless of the config value.
func NewHandler(res *resolver.Resolver, rateLimiter *security.RateLimiter, queryValidator *security.QueryValidator, config Config) *Handler {
	return &Handler{
		resolver:       res,
		msgPool:        dnsio.NewMessagePool(),
		rateLimiter:    rateLimiter,
		queryValidator: queryValidator,
		config:         config,
	}
}

// HandleQuery implements io.QueryHandler. It never returns a non-nil
// error for a malformed or abusive query; those are reported as a
// packed DNS error response instead, matching the on-the-wire contract
// every resolver in this stack expects to fulfil.
func (h *Handler) HandleQuery(ctx context.Context, query []byte, addr net.Addr) ([]byte, error) {
	if h.config.EnableRateLimiting && h.rateLimiter != nil && !h.rateLimiter.Allow(addr) {
		return h.errorResponse(query, dns.RcodeRefused)
	}

	msg := h.msgPool.Get()
	defer h.msgPool.Put(msg)

	if err := msg.Unpack(query); err != nil {
		return h.errorResponse(query, dns.RcodeFormatError)
	}

	if err := edns0.Validate(msg); err != nil {
		if ve, ok := err.(*edns0.ValidationError); ok {
			return h.errorResponse(query, ve.ExtendedRcode)
		}
		return h.errorResponse(query, dns.RcodeFormatError)
	}

	if h.config.EnableQueryValidation && h.queryValidator != nil {
		if err := h.queryValidator.ValidateQuery(msg); err != nil {
			return h.errorResponse(query, dns.RcodeFormatError)
		}
	}

	response := h.resolver.Resolve(msg, addr)

	h.applyEDNS0(msg, response)

	responseBytes, err := response.Pack()
	if err != nil {
		return h.errorResponse(query, dns.RcodeServerFailure)
	}

	return h.truncateIfNeeded(msg, responseBytes)
}

// errorResponse builds a minimal error reply carrying the original
// question (when the query could be parsed at all) and the given
// RCODE, matching the shape every query above expects on failure.
func (h *Handler) errorResponse(query []byte, rcode int) ([]byte, error) {
	msg := h.msgPool.Get()
	defer h.msgPool.Put(msg)

	response := new(dns.Msg)

	if err := msg.Unpack(query); err != nil {
		response.SetRcode(&dns.Msg{}, rcode)
		return response.Pack()
	}

	response.SetRcode(msg, rcode)

	return response.Pack()
}

// applyEDNS0 attaches an OPT record to the response when the query
// carried one, negotiating the advertised UDP payload size and
// preserving the DO bit the resolver already honored.
func (h *Handler) applyEDNS0(query, response *dns.Msg) {
	params := edns0.Parse(query)
	if !params.Present {
		return
	}

	payloadSize := edns0.NegotiatePayloadSize(params.PayloadSize, edns0.MaxPayloadSize)
	edns0.Attach(response, payloadSize, params.DO)
}

// truncateIfNeeded sets the TC bit and leaves the sections untouched
// when the packed response exceeds the client's negotiated buffer size;
// callers are expected to retry over TCP, per spec.
func (h *Handler) truncateIfNeeded(query *dns.Msg, responseBytes []byte) ([]byte, error) {
	params := edns0.Parse(query)
	if !edns0.ShouldTruncate(len(responseBytes), params) {
		return responseBytes, nil
	}

	truncated := h.msgPool.Get()
	defer h.msgPool.Put(truncated)

	if err := truncated.Unpack(responseBytes); err != nil {
		return responseBytes, nil
	}

	truncated.Truncated = true

	return truncated.Pack()
}
