package zonestore

import (
	"errors"
	"testing"

	"github.com/miekg/dns"
)

func buildTestCache(t *testing.T) *MemCache {
	t.Helper()

	cache := NewMemCache()
	zone := NewZone("example.com.")

	records := []string{
		"example.com. 3600 IN SOA ns1.example.com. admin.example.com. 1 7200 3600 1209600 3600",
		"example.com. 3600 IN NS ns1.example.com.",
		"www.example.com. 300 IN A 192.0.2.1",
		"sub.example.com. 3600 IN NS ns1.sub.example.com.",
		"ns1.sub.example.com. 3600 IN A 198.51.100.9",
	}

	for _, rec := range records {
		rr := mustRR(t, rec)
		if err := zone.AddRR(rr); err != nil {
			t.Fatalf("AddRR(%s): %v", rec, err)
		}
	}

	cache.AddZone(zone)

	return cache
}

func TestMemCache_FindZone(t *testing.T) {
	t.Parallel()

	cache := buildTestCache(t)

	zone, err := cache.FindZone("www.example.com.", "")
	if err != nil {
		t.Fatalf("FindZone: %v", err)
	}
	if zone.Origin != "example.com." {
		t.Errorf("expected zone example.com., got %s", zone.Origin)
	}
}

func TestMemCache_FindZone_NotAuthoritative(t *testing.T) {
	t.Parallel()

	cache := buildTestCache(t)

	_, err := cache.FindZone("example.net.", "")
	if !errors.Is(err, ErrNotAuthoritative) {
		t.Errorf("expected ErrNotAuthoritative, got %v", err)
	}
}

func TestMemCache_FindZone_Fallback(t *testing.T) {
	t.Parallel()

	cache := buildTestCache(t)

	zone, err := cache.FindZone("nowhere.net.", "example.com.")
	if err != nil {
		t.Fatalf("FindZone with fallback: %v", err)
	}
	if zone.Origin != "example.com." {
		t.Errorf("expected fallback to resolve example.com., got %s", zone.Origin)
	}
}

func TestMemCache_RecordsByNameAndType(t *testing.T) {
	t.Parallel()

	cache := buildTestCache(t)

	got := cache.RecordsByNameAndType("www.example.com.", dns.TypeA)
	if len(got) != 1 {
		t.Fatalf("expected 1 A record, got %d", len(got))
	}
}

func TestMemCache_Delegations(t *testing.T) {
	t.Parallel()

	cache := buildTestCache(t)

	got := cache.Delegations("sub.example.com.")
	if len(got) != 1 {
		t.Fatalf("expected 1 NS delegation, got %d", len(got))
	}
}

func TestMemCache_Authority(t *testing.T) {
	t.Parallel()

	cache := buildTestCache(t)

	soas, err := cache.Authority("www.example.com.")
	if err != nil {
		t.Fatalf("Authority: %v", err)
	}
	if len(soas) != 1 {
		t.Fatalf("expected 1 SOA, got %d", len(soas))
	}
}

func TestMemCache_InZone(t *testing.T) {
	t.Parallel()

	cache := buildTestCache(t)

	if !cache.InZone("deep.sub.example.com.") {
		t.Error("expected deep.sub.example.com. to be in zone")
	}
	if cache.InZone("example.org.") {
		t.Error("expected example.org. to not be in zone")
	}
}

func TestMemCache_ZoneWithRecords(t *testing.T) {
	t.Parallel()

	cache := buildTestCache(t)

	zone, err := cache.ZoneWithRecords("example.com.")
	if err != nil {
		t.Fatalf("ZoneWithRecords: %v", err)
	}
	if zone.RecordCount() == 0 {
		t.Error("expected records in returned zone")
	}

	if _, err := cache.ZoneWithRecords("nosuch.com."); !errors.Is(err, ErrZoneNotFound) {
		t.Errorf("expected ErrZoneNotFound, got %v", err)
	}
}

func TestMemCache_RemoveZone(t *testing.T) {
	t.Parallel()

	cache := buildTestCache(t)
	cache.RemoveZone("example.com.")

	if cache.InZone("www.example.com.") {
		t.Error("expected zone to be gone after RemoveZone")
	}
}

func TestMemCache_GetOrCreateZone(t *testing.T) {
	t.Parallel()

	cache := NewMemCache()

	zone := cache.GetOrCreateZone("new.test.")
	if zone.Origin != "new.test." {
		t.Errorf("expected origin new.test., got %s", zone.Origin)
	}

	again := cache.GetOrCreateZone("new.test.")
	if zone != again {
		t.Error("expected GetOrCreateZone to return the same zone on second call")
	}
}
