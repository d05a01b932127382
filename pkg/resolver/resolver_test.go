package resolver

import (
	"testing"

	"github.com/miekg/dns"

	"github.com/dnsforge/authdns/pkg/rrhandler"
	"github.com/dnsforge/authdns/pkg/zonestore"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("dns.NewRR(%q): %v", s, err)
	}

	return rr
}

func newExampleZone(t *testing.T) *zonestore.MemCache {
	t.Helper()

	cache := zonestore.NewMemCache()
	zone := zonestore.NewZone("example.com.")

	records := []string{
		"example.com. 3600 IN SOA ns1.example.com. admin.example.com. 1 3600 600 86400 60",
		"example.com. 3600 IN NS ns1.example.com.",
		"ns1.example.com. 3600 IN A 10.0.0.1",
		"www.example.com. 300 IN A 1.2.3.4",
		"example.com. 300 IN MX 10 mail.example.com.",
		"mail.example.com. 300 IN A 1.1.1.1",
		"*.example.com. 300 IN CNAME target.example.com.",
		"target.example.com. 300 IN A 5.6.7.8",
		"a.example.com. 300 IN CNAME b.example.com.",
		"b.example.com. 300 IN CNAME a.example.com.",
		"sub.example.com. 300 IN NS ns1.sub.example.com.",
		"ns1.sub.example.com. 300 IN A 9.9.9.9",
	}

	for _, s := range records {
		if err := zone.AddRR(mustRR(t, s)); err != nil {
			t.Fatalf("AddRR(%q): %v", s, err)
		}
	}

	cache.AddZone(zone)

	return cache
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()

	return New(newExampleZone(t), nil, nil, nil, Config{RootHints: true})
}

func query(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)

	return m
}

func TestResolve_ExactA(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	resp := r.Resolve(query("www.example.com.", dns.TypeA), nil)

	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected NOERROR, got %s", dns.RcodeToString[resp.Rcode])
	}
	if !resp.Authoritative {
		t.Error("expected aa=true")
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(resp.Answer))
	}
	a, ok := resp.Answer[0].(*dns.A)
	if !ok || a.A.String() != "1.2.3.4" {
		t.Errorf("expected A 1.2.3.4, got %v", resp.Answer[0])
	}
}

func TestResolve_NXDOMAIN(t *testing.T) {
	t.Parallel()

	// newExampleZone carries *.example.com., which answers
	// nope.example.com. by wildcard synthesis, so this test builds a zone
	// without a wildcard.
	cache := zonestore.NewMemCache()
	zone := zonestore.NewZone("example.com.")
	for _, s := range []string{
		"example.com. 3600 IN SOA ns1.example.com. admin.example.com. 1 3600 600 86400 60",
		"example.com. 3600 IN NS ns1.example.com.",
		"www.example.com. 300 IN A 1.2.3.4",
	} {
		if err := zone.AddRR(mustRR(t, s)); err != nil {
			t.Fatalf("AddRR(%q): %v", s, err)
		}
	}
	cache.AddZone(zone)

	r := New(cache, nil, nil, nil, Config{RootHints: true})
	resp := r.Resolve(query("nope.example.com.", dns.TypeA), nil)

	if resp.Rcode != dns.RcodeNameError {
		t.Fatalf("expected NXDOMAIN, got %s", dns.RcodeToString[resp.Rcode])
	}
	if !resp.Authoritative {
		t.Error("expected aa=true")
	}
	if len(resp.Answer) != 0 {
		t.Errorf("expected no answers, got %d", len(resp.Answer))
	}
	if len(resp.Ns) != 1 {
		t.Fatalf("expected exactly the zone SOA in authority, got %d records", len(resp.Ns))
	}
	soa, ok := resp.Ns[0].(*dns.SOA)
	if !ok {
		t.Fatalf("expected SOA, got %T", resp.Ns[0])
	}
	if soa.Hdr.Ttl != 60 {
		t.Errorf("expected SOA TTL clamped to minimum 60, got %d", soa.Hdr.Ttl)
	}
}

func TestResolve_WildcardCNAMEChase(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	resp := r.Resolve(query("anything.example.com.", dns.TypeA), nil)

	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected NOERROR, got %s", dns.RcodeToString[resp.Rcode])
	}
	if !resp.Authoritative {
		t.Error("expected aa=true")
	}
	if len(resp.Answer) != 2 {
		t.Fatalf("expected CNAME + A, got %d answers: %v", len(resp.Answer), resp.Answer)
	}

	cname, ok := resp.Answer[0].(*dns.CNAME)
	if !ok {
		t.Fatalf("expected first answer to be CNAME, got %T", resp.Answer[0])
	}
	if cname.Hdr.Name != "anything.example.com." {
		t.Errorf("expected wildcard substituted to qname, got owner %s", cname.Hdr.Name)
	}

	a, ok := resp.Answer[1].(*dns.A)
	if !ok || a.A.String() != "5.6.7.8" {
		t.Errorf("expected A 5.6.7.8, got %v", resp.Answer[1])
	}
}

func TestResolve_CNAMELoop(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	resp := r.Resolve(query("a.example.com.", dns.TypeA), nil)

	if resp.Rcode != dns.RcodeServerFailure {
		t.Fatalf("expected SERVFAIL, got %s", dns.RcodeToString[resp.Rcode])
	}
	if !resp.Authoritative {
		t.Error("expected aa=true on a CNAME loop")
	}
}

func TestResolve_Delegation(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	resp := r.Resolve(query("host.sub.example.com.", dns.TypeA), nil)

	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected NOERROR, got %s", dns.RcodeToString[resp.Rcode])
	}
	if resp.Authoritative {
		t.Error("expected aa=false on a referral")
	}
	if len(resp.Ns) != 1 {
		t.Fatalf("expected 1 NS in authority, got %d", len(resp.Ns))
	}
	if _, ok := resp.Ns[0].(*dns.NS); !ok {
		t.Errorf("expected NS record, got %T", resp.Ns[0])
	}

	foundGlue := false
	for _, rr := range resp.Extra {
		if a, ok := rr.(*dns.A); ok && a.A.String() == "9.9.9.9" {
			foundGlue = true
		}
	}
	if !foundGlue {
		t.Errorf("expected glue A 9.9.9.9 in additional, got %v", resp.Extra)
	}
}

func TestResolve_MXAdditional(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	resp := r.Resolve(query("example.com.", dns.TypeMX), nil)

	if resp.Rcode != dns.RcodeSuccess || !resp.Authoritative {
		t.Fatalf("expected authoritative NOERROR, got rcode=%s aa=%v", dns.RcodeToString[resp.Rcode], resp.Authoritative)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected 1 MX answer, got %d", len(resp.Answer))
	}

	foundGlue := false
	for _, rr := range resp.Extra {
		if a, ok := rr.(*dns.A); ok && a.A.String() == "1.1.1.1" {
			foundGlue = true
		}
	}
	if !foundGlue {
		t.Errorf("expected glue A 1.1.1.1 in additional, got %v", resp.Extra)
	}
}

func TestResolve_RootHintsOnMiss(t *testing.T) {
	t.Parallel()

	r := New(zonestore.NewMemCache(), nil, nil, nil, Config{RootHints: true})
	resp := r.Resolve(query("com.", dns.TypeNS), nil)

	if resp.Rcode != dns.RcodeSuccess || !resp.Authoritative {
		t.Fatalf("expected authoritative NOERROR, got rcode=%s aa=%v", dns.RcodeToString[resp.Rcode], resp.Authoritative)
	}
	if len(resp.Ns) != 13 {
		t.Fatalf("expected 13 root NS hints, got %d", len(resp.Ns))
	}
	if len(resp.Extra) != 13 {
		t.Fatalf("expected 13 root A glue hints, got %d", len(resp.Extra))
	}
}

func TestResolve_RootHintsDisabled(t *testing.T) {
	t.Parallel()

	r := New(zonestore.NewMemCache(), nil, nil, nil, Config{RootHints: false})
	resp := r.Resolve(query("com.", dns.TypeNS), nil)

	if resp.Rcode != dns.RcodeSuccess || !resp.Authoritative {
		t.Fatalf("expected authoritative NOERROR, got rcode=%s aa=%v", dns.RcodeToString[resp.Rcode], resp.Authoritative)
	}
	if len(resp.Ns) != 0 || len(resp.Extra) != 0 {
		t.Errorf("expected empty authority/additional with root hints disabled, got ns=%d extra=%d", len(resp.Ns), len(resp.Extra))
	}
}

func TestResolve_RRSIGQueryRefused(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	resp := r.Resolve(query("www.example.com.", dns.TypeRRSIG), nil)

	if resp.Rcode != dns.RcodeRefused {
		t.Fatalf("expected REFUSED, got %s", dns.RcodeToString[resp.Rcode])
	}
	if resp.AuthenticatedData || resp.CheckingDisabled {
		t.Error("expected ad=cd=false on a refused RRSIG query")
	}
}

func TestResolve_EmptyQuestionReturnsUnchanged(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	in := new(dns.Msg)
	in.Rcode = dns.RcodeServerFailure

	out := r.Resolve(in, nil)
	if out != in {
		t.Error("expected the same message returned unchanged when there are no questions")
	}
}

func TestResolve_NoDataResponse(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	resp := r.Resolve(query("www.example.com.", dns.TypeAAAA), nil)

	if resp.Rcode != dns.RcodeSuccess || !resp.Authoritative {
		t.Fatalf("expected authoritative NOERROR, got rcode=%s aa=%v", dns.RcodeToString[resp.Rcode], resp.Authoritative)
	}
	if len(resp.Answer) != 0 {
		t.Errorf("expected no answers for an unmatched type, got %d", len(resp.Answer))
	}
	if len(resp.Ns) != 1 {
		t.Fatalf("expected SOA-only no-data authority, got %d records", len(resp.Ns))
	}
	if _, ok := resp.Ns[0].(*dns.SOA); !ok {
		t.Errorf("expected SOA, got %T", resp.Ns[0])
	}
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	r1 := r.Resolve(query("anything.example.com.", dns.TypeA), nil)
	r2 := r.Resolve(query("anything.example.com.", dns.TypeA), nil)

	if len(r1.Answer) != len(r2.Answer) {
		t.Fatalf("expected identical answer counts across runs, got %d and %d", len(r1.Answer), len(r2.Answer))
	}
	for i := range r1.Answer {
		if r1.Answer[i].String() != r2.Answer[i].String() {
			t.Errorf("answer %d differs between runs: %s vs %s", i, r1.Answer[i].String(), r2.Answer[i].String())
		}
	}
}

func TestResolve_ANYQueryAppliesHandlerFilter(t *testing.T) {
	t.Parallel()

	registry := rrhandler.NewRegistry()
	if err := registry.Register(&rrhandler.Handler{
		ModuleID: "test-any-filter",
		Types:    []uint16{dns.TypeA},
		V1Handle: func(qname string, qtype uint16, matched []dns.RR) []dns.RR { return nil },
		Filter: func(rrs []dns.RR) []dns.RR {
			out := make([]dns.RR, 0, len(rrs))
			for _, rr := range rrs {
				if rr.Header().Rrtype != dns.TypeMX {
					out = append(out, rr)
				}
			}

			return out
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r := New(newExampleZone(t), registry, nil, nil, Config{RootHints: true})
	resp := r.Resolve(query("example.com.", dns.TypeANY), nil)

	for _, rr := range resp.Answer {
		if rr.Header().Rrtype == dns.TypeMX {
			t.Errorf("expected registered handler's Filter to strip MX from an ANY answer, got %v", rr)
		}
	}
	if len(resp.Answer) == 0 {
		t.Error("expected ANY query to still return the zone's other matched RRs")
	}
}

func TestResolve_WildcardCNAMEQueryReturnsCNAME(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)

	// anything.example.com matches *.example.com, whose only record is
	// a CNAME. A CNAME query against it is a type match, not a CNAME
	// chase, and must return the CNAME itself rather than NOERROR/no-data.
	resp := r.Resolve(query("anything.example.com.", dns.TypeCNAME), nil)

	if resp.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected NOERROR, got %s", dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected the wildcard's CNAME record as the answer, got %d answers: %v", len(resp.Answer), resp.Answer)
	}
	if _, ok := resp.Answer[0].(*dns.CNAME); !ok {
		t.Errorf("expected a CNAME answer, got %T", resp.Answer[0])
	}
}

func TestResolve_NoWildcardOwnersInAnswers(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t)
	resp := r.Resolve(query("anything.example.com.", dns.TypeA), nil)

	for _, rr := range resp.Answer {
		if len(rr.Header().Name) > 0 && rr.Header().Name[0] == '*' {
			t.Errorf("wildcard owner leaked into answer: %s", rr.Header().Name)
		}
	}
}
