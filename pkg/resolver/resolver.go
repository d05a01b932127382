// Package resolver implements the authoritative query resolution core:
// best-match search, exact-match and best-match resolution, CNAME
// chasing, delegation detection, wildcard expansion, DNSSEC signing
// hand-off, and additional-section glue. It is a pure function of its
// inputs — a zone cache snapshot, a handler registry, and a DNSSEC hook
// — and produces a new response message without mutating the request
// or the zone data it reads.
package resolver

import (
	"net"

	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/dnsname"
	"github.com/dnsforge/authdns/pkg/dnssec"
	"github.com/dnsforge/authdns/pkg/events"
	"github.com/dnsforge/authdns/pkg/roothints"
	"github.com/dnsforge/authdns/pkg/rrhandler"
	"github.com/dnsforge/authdns/pkg/zonestore"
)

// Config controls optional resolver behavior.
type Config struct {
	// RootHints enables attaching the 13 root NS/A records as a referral
	// when no locally hosted zone is authoritative for a query.
	RootHints bool
}

// DefaultConfig returns the conventional defaults: root hints enabled.
func DefaultConfig() Config {
	return Config{RootHints: true}
}

// Resolver is the resolution core, closed over the collaborators it
// consumes through small interfaces so each can be swapped or faked in
// tests independently.
type Resolver struct {
	cache    zonestore.Cache
	handlers *rrhandler.Registry
	hook     dnssec.Hook
	sink     events.Sink
	config   Config
}

// New builds a Resolver. hook and sink may be nil, in which case they
// default to dnssec.NoopHook and events.NoopSink.
func New(cache zonestore.Cache, handlers *rrhandler.Registry, hook dnssec.Hook, sink events.Sink, config Config) *Resolver {
	if hook == nil {
		hook = dnssec.NoopHook{}
	}
	if sink == nil {
		sink = events.NoopSink{}
	}
	if handlers == nil {
		handlers = rrhandler.NewRegistry()
	}

	return &Resolver{cache: cache, handlers: handlers, hook: hook, sink: sink, config: config}
}

// Resolve is the C10 entry point: resolve(msg, hints, client). hints is
// implicit in the cache's fallback-authority anchor (the last
// configured root hint); client is used only for telemetry.
func (r *Resolver) Resolve(msg *dns.Msg, client net.Addr) *dns.Msg {
	if len(msg.Question) == 0 {
		return msg
	}

	q := msg.Question[0]

	r.sink.Notify(events.Event{
		Kind:     events.KindHandleStart,
		Qname:    q.Name,
		Qtype:    q.Qtype,
		ClientIP: clientString(client),
	})

	resp := new(dns.Msg)
	resp.SetReply(msg)
	resp.RecursionAvailable = false
	resp.AuthenticatedData = false
	resp.CheckingDisabled = false

	opt := msg.IsEdns0()
	doBit := opt != nil && opt.Do()
	if doBit {
		r.sink.Notify(events.Event{Kind: events.KindDNSSECRequest, Qname: q.Name, Qtype: q.Qtype})
	}

	if q.Qtype == dns.TypeRRSIG {
		resp.Rcode = dns.RcodeRefused
		resp.Authoritative = false

		r.notifyEnd(q, resp, client)

		return resp
	}

	zone, err := r.cache.FindZone(q.Name, roothints.LastAnchor())
	if err != nil {
		resp.Authoritative = true
		resp.Rcode = dns.RcodeSuccess

		if r.config.RootHints {
			resp.Ns = append(resp.Ns, roothints.NS()...)
			resp.Extra = append(resp.Extra, roothints.A()...)
		}

		r.notifyEnd(q, resp, client)

		return resp
	}

	finalZone := r.resolveAuthoritative(resp, zone, q.Name, q.Qtype)

	soa := finalZone.SOA()
	for _, rr := range resp.Ns {
		if rr.Header().Rrtype == dns.TypeSOA {
			dnsname.MinimumSOATTL(rr, soa)
		}
	}

	applyDNSSEC(r.hook, resp, finalZone, q.Name, doBit)
	fillAdditional(r.cache, resp)
	resp.Answer = sortAnswers(resp.Answer)

	r.notifyEnd(q, resp, client)

	return resp
}

// resolveAuthoritative drives the C5/C6/C7 state machine: repeatedly
// resolve the current name, following CNAME restarts (possibly across
// zones) until a terminal response is produced. It returns the zone
// the terminal response was produced from, so callers clamp SOA TTLs
// and hand off to DNSSEC signing against the right zone even when a
// CNAME chase crossed zone boundaries.
func (r *Resolver) resolveAuthoritative(resp *dns.Msg, zone *zonestore.Zone, qname string, qtype uint16) *zonestore.Zone {
	chain := &cnameChain{}
	current := dns.Fqdn(qname)
	original := current
	currentZone := zone

	for {
		if matched := r.cache.RecordsByName(current); len(matched) > 0 {
			out := resolveExact(r.cache, r.handlers, r.hook, currentZone, current, qtype, matched, resp, chain)
			if out.done {
				return currentZone
			}
			if out.zone != nil {
				currentZone = out.zone
			}
			current = out.next

			continue
		}

		if ns, _, found := findZoneCut(r.cache, currentZone, current); found {
			resp.Authoritative = false
			resp.Ns = append(resp.Ns, ns...)

			return currentZone
		}

		bm, found := bestMatchSearch(r.cache, currentZone, current)
		if !found {
			deadEnd(resp, currentZone, original, current)

			return currentZone
		}

		out := resolveBestMatch(r.cache, r.handlers, r.hook, currentZone, current, qtype, bm, resp, chain, original)
		if out.done {
			return currentZone
		}

		current = out.next
	}
}

func (r *Resolver) notifyEnd(q dns.Question, resp *dns.Msg, client net.Addr) {
	r.sink.Notify(events.Event{
		Kind:     events.KindHandleEnd,
		Qname:    q.Name,
		Qtype:    q.Qtype,
		Rcode:    resp.Rcode,
		ClientIP: clientString(client),
	})
}

func clientString(client net.Addr) string {
	if client == nil {
		return ""
	}

	return client.String()
}
