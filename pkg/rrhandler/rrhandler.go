// Package rrhandler implements the pluggable record-type handler registry
// the resolution core dispatches to when the records matched for a name
// (its own, or a wildcard's) hold no RR of the queried type: handlers get
// a chance to synthesize an answer.
package rrhandler

import (
	"fmt"
	"log"

	"github.com/miekg/dns"
)

// HandlerV1 is the original calling convention: given the query name, type,
// and whatever records already matched, produce RRs to answer with.
type HandlerV1 func(qname string, qtype uint16, matched []dns.RR) []dns.RR

// HandlerV2 additionally receives the in-progress response message, for
// handlers that need context beyond the matched set.
type HandlerV2 func(qname string, qtype uint16, matched []dns.RR, msg *dns.Msg) []dns.RR

// FilterFunc narrows a handler's RRs for ANY queries.
type FilterFunc func(rrs []dns.RR) []dns.RR

// Handler is one registered record-type handler. Exactly one of V1Handle or
// V2Handle should be set.
type Handler struct {
	ModuleID string
	Types    []uint16
	Version  int

	V1Handle HandlerV1
	V2Handle HandlerV2
	Filter   FilterFunc
}

// handles reports whether this handler is invoked for qtype.
func (h *Handler) handles(qtype uint16) bool {
	if qtype == dns.TypeANY {
		return true
	}

	for _, t := range h.Types {
		if t == qtype {
			return true
		}
	}

	return false
}

// invoke calls whichever convention this handler implements, recovering
// from panics per spec: handler exceptions are caught and treated as
// returning no records.
func (h *Handler) invoke(qname string, qtype uint16, matched []dns.RR, msg *dns.Msg) (rrs []dns.RR) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("rrhandler: handler %s panicked: %v", h.ModuleID, r)
			rrs = nil
		}
	}()

	switch {
	case h.V2Handle != nil:
		return h.V2Handle(qname, qtype, matched, msg)
	case h.V1Handle != nil:
		return h.V1Handle(qname, qtype, matched)
	default:
		return nil
	}
}

// Registry holds the set of registered handlers, dispatched by type.
type Registry struct {
	handlers []*Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds h to the registry.
func (r *Registry) Register(h *Handler) error {
	if h.V1Handle == nil && h.V2Handle == nil {
		return fmt.Errorf("rrhandler: handler %s registers neither v1 nor v2 convention", h.ModuleID)
	}

	r.handlers = append(r.handlers, h)

	return nil
}

// Dispatch calls every handler whose Types include qtype (or any handler,
// for qtype=ANY), merging their results in registration order. Handler
// output for ANY queries passes through each handler's own Filter hook.
func (r *Registry) Dispatch(qname string, qtype uint16, matched []dns.RR, msg *dns.Msg) []dns.RR {
	var out []dns.RR

	for _, h := range r.handlers {
		if !h.handles(qtype) {
			continue
		}

		rrs := h.invoke(qname, qtype, matched, msg)
		if qtype == dns.TypeANY && h.Filter != nil {
			rrs = h.Filter(rrs)
		}

		out = append(out, rrs...)
	}

	return out
}

// FilterAny narrows a zone's own pre-existing RRs for an ANY query by
// running them through every registered handler's Filter hook, in
// registration order. Unlike Dispatch, matched here is not handler
// output to merge — it's the zone's matched RRset itself, so a
// handler with no Filter leaves it untouched rather than contributing
// nothing. Callers should only invoke this for qtype == dns.TypeANY.
func (r *Registry) FilterAny(matched []dns.RR) []dns.RR {
	out := matched

	for _, h := range r.handlers {
		if h.Filter != nil {
			out = h.Filter(out)
		}
	}

	return out
}

// Len reports how many handlers are registered.
func (r *Registry) Len() int {
	return len(r.handlers)
}
