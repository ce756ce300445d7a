package cache

import (
	"net"
	"testing"
	"time"

	"github.com/poyrazK/hermesdns/internal/dns/packet"
)

func TestInsertAndLookupFresh(t *testing.T) {
	c := New(nil)
	rec := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("1.2.3.4")}
	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{rec}, 30*time.Second)

	got, status := c.Lookup("www.example.com.", packet.A)
	if status != Hit || len(got) != 1 {
		t.Fatalf("expected a fresh hit, got status=%v records=%v", status, got)
	}
}

func TestLookupExpiresEntries(t *testing.T) {
	c := New(nil)
	base := time.Now()
	c.now = func() time.Time { return base }

	rec := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("1.2.3.4")}
	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{rec}, 10*time.Second)

	c.now = func() time.Time { return base.Add(20 * time.Second) }
	got, status := c.Lookup("www.example.com.", packet.A)
	if status != Miss || len(got) != 0 {
		t.Fatalf("expected expired entry to miss, got status=%v records=%v", status, got)
	}
}

func TestLookupMissingBucket(t *testing.T) {
	c := New(nil)
	_, status := c.Lookup("nothing.example.com.", packet.A)
	if status != Miss {
		t.Error("expected miss on an untouched name")
	}
}

func TestDistinctValuesCoexist(t *testing.T) {
	c := New(nil)
	a1 := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("1.1.1.1")}
	a2 := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("2.2.2.2")}
	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{a1, a2}, 30*time.Second)

	got, status := c.Lookup("www.example.com.", packet.A)
	if status != Hit || len(got) != 2 {
		t.Fatalf("expected both records cached, got %v", got)
	}
}

func TestEnumerateReflectsHits(t *testing.T) {
	c := New(nil)
	rec := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("1.2.3.4")}
	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{rec}, 30*time.Second)
	c.Lookup("www.example.com.", packet.A)
	c.Lookup("www.example.com.", packet.A)

	stats := c.Enumerate()
	if len(stats) != 1 {
		t.Fatalf("expected one bucket, got %d", len(stats))
	}
	if stats[0].Hits != 2 {
		t.Errorf("Hits = %d, want 2", stats[0].Hits)
	}
	if stats[0].Records != 1 {
		t.Errorf("Records = %d, want 1", stats[0].Records)
	}
}

func TestCleanupRemovesExpiredBucketsEntirely(t *testing.T) {
	c := New(nil)
	base := time.Now()
	c.now = func() time.Time { return base }
	rec := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("1.2.3.4")}
	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{rec}, 1*time.Second)

	c.now = func() time.Time { return base.Add(5 * time.Second) }
	c.Cleanup()

	if len(c.Enumerate()) != 0 {
		t.Error("expected cleanup to remove the expired bucket entirely")
	}
}

func TestInsertNegativeThenLookup(t *testing.T) {
	c := New(nil)
	c.InsertNegative("ghost.example.com.", packet.A, 30*time.Second)

	_, status := c.Lookup("ghost.example.com.", packet.A)
	if status != NegativeHit {
		t.Fatalf("expected NegativeHit, got %v", status)
	}
}

func TestInsertNegativeExpires(t *testing.T) {
	c := New(nil)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.InsertNegative("ghost.example.com.", packet.A, 10*time.Second)

	c.now = func() time.Time { return base.Add(20 * time.Second) }
	_, status := c.Lookup("ghost.example.com.", packet.A)
	if status != Miss {
		t.Fatalf("expected expired negative entry to miss, got %v", status)
	}
}

func TestPositiveInsertClearsNegative(t *testing.T) {
	c := New(nil)
	c.InsertNegative("www.example.com.", packet.A, 30*time.Second)

	rec := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("1.2.3.4")}
	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{rec}, 30*time.Second)

	got, status := c.Lookup("www.example.com.", packet.A)
	if status != Hit || len(got) != 1 {
		t.Fatalf("expected positive hit after insert cleared negative marker, got status=%v records=%v", status, got)
	}
}

func TestNegativeTTL(t *testing.T) {
	if got := NegativeTTL(0); got != negativeTTLFloor {
		t.Errorf("NegativeTTL(0) = %v, want floor %v", got, negativeTTLFloor)
	}
	if got := NegativeTTL(60); got != 60*time.Second {
		t.Errorf("NegativeTTL(60) = %v, want 60s", got)
	}
}

type recordingMirror struct {
	writes int
}

func (m *recordingMirror) Write(name string, qtype packet.QueryType, entries []Entry) {
	m.writes++
}

func TestInsertWritesThroughMirror(t *testing.T) {
	m := &recordingMirror{}
	c := New(m)
	rec := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("1.2.3.4")}
	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{rec}, 30*time.Second)

	if m.writes != 1 {
		t.Errorf("mirror writes = %d, want 1", m.writes)
	}
}
