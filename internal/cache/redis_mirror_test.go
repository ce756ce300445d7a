package cache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/poyrazK/hermesdns/internal/dns/packet"
)

func newTestMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisMirror(client, nil), mr
}

func TestRedisMirrorWriteAndWarm(t *testing.T) {
	mirror, _ := newTestMirror(t)
	c := New(mirror)

	rec := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("9.9.9.9")}
	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{rec}, 30*time.Second)

	fresh := New(nil)
	mirror.Warm(context.Background(), fresh, "www.example.com.", packet.A)

	got, status := fresh.Lookup("www.example.com.", packet.A)
	if status != Hit || len(got) != 1 || got[0].IP.String() != "9.9.9.9" {
		t.Fatalf("expected warm to restore the mirrored entry, got status=%v records=%v", status, got)
	}
}

func TestRedisMirrorWarmMissingKeyIsNoop(t *testing.T) {
	mirror, _ := newTestMirror(t)
	c := New(nil)
	mirror.Warm(context.Background(), c, "nothing.example.com.", packet.A)

	if _, status := c.Lookup("nothing.example.com.", packet.A); status != Miss {
		t.Error("expected no entry to be warmed from an empty mirror")
	}
}

func TestRedisMirrorWarmAll(t *testing.T) {
	mirror, _ := newTestMirror(t)
	c := New(mirror)

	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{
		{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("9.9.9.9")},
	}, 30*time.Second)
	c.Insert("ns1.example.com.", packet.NS, []packet.DNSRecord{
		{Name: "ns1.example.com.", Type: packet.NS, Host: "ns1.example.com."},
	}, 30*time.Second)

	fresh := New(nil)
	mirror.WarmAll(context.Background(), fresh)

	if got, status := fresh.Lookup("www.example.com.", packet.A); status != Hit || len(got) != 1 {
		t.Errorf("expected WarmAll to restore the A bucket, got status=%v records=%v", status, got)
	}
	if got, status := fresh.Lookup("ns1.example.com.", packet.NS); status != Hit || len(got) != 1 {
		t.Errorf("expected WarmAll to restore the NS bucket, got status=%v records=%v", status, got)
	}
}

func TestRedisMirrorWarmAllNilClientIsNoop(t *testing.T) {
	mirror := NewRedisMirror(nil, nil)
	mirror.WarmAll(context.Background(), New(nil))
}

func TestRedisMirrorNilClientIsNoop(t *testing.T) {
	mirror := NewRedisMirror(nil, nil)
	c := New(mirror)
	rec := packet.DNSRecord{Name: "www.example.com.", Type: packet.A, IP: net.ParseIP("1.1.1.1")}
	c.Insert("www.example.com.", packet.A, []packet.DNSRecord{rec}, 30*time.Second)
}
