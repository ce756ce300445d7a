package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/poyrazK/hermesdns/internal/dns/packet"
)

// RedisMirror is an optional L2 write-through mirror: every Insert is
// copied here on a best-effort basis so a freshly started resolver can
// warm its cache from a previous process's state instead of starting
// stone cold. It is never read from during resolution; Cache.Lookup
// never touches Redis (see Mirror's doc comment in cache.go).
type RedisMirror struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisMirror wraps an already-configured redis client.
func NewRedisMirror(client *redis.Client, logger *slog.Logger) *RedisMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisMirror{client: client, logger: logger}
}

type mirrorEntry struct {
	Type       uint16    `json:"type"`
	Value      string    `json:"value"`
	Priority   uint16    `json:"priority,omitempty"`
	InsertedAt time.Time `json:"inserted_at"`
	TTLSeconds float64   `json:"ttl_seconds"`
}

// Write serializes entries and stores them under a bucket key with an
// expiry matching the longest-lived entry. Failures are logged, never
// returned: a cold L2 mirror must not block resolution.
func (m *RedisMirror) Write(name string, qtype packet.QueryType, entries []Entry) {
	if m.client == nil || len(entries) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := make([]mirrorEntry, 0, len(entries))
	var maxTTL time.Duration
	for _, e := range entries {
		out = append(out, mirrorEntry{
			Type:       uint16(e.Record.Type),
			Value:      recordValue(e.Record),
			Priority:   e.Record.Priority,
			InsertedAt: e.InsertedAt,
			TTLSeconds: e.TTL.Seconds(),
		})
		if e.TTL > maxTTL {
			maxTTL = e.TTL
		}
	}

	payload, err := json.Marshal(out)
	if err != nil {
		m.logger.Warn("redis mirror marshal failed", "name", name, "error", err)
		return
	}

	key := mirrorKey(name, qtype)
	if err := m.client.Set(ctx, key, payload, maxTTL).Err(); err != nil {
		m.logger.Warn("redis mirror write failed", "name", name, "error", err)
	}
}

// Warm loads any mirrored entries for one (name, qtype) key back into
// cache. Startup warming in cmd/hermesd goes through WarmAll instead.
func (m *RedisMirror) Warm(ctx context.Context, c *Cache, name string, qtype packet.QueryType) {
	if m.client == nil {
		return
	}
	raw, err := m.client.Get(ctx, mirrorKey(name, qtype)).Bytes()
	if err != nil {
		return
	}
	m.load(c, name, qtype, raw)
}

// WarmAll scans every key this mirror has written and loads whatever is
// still fresh back into c, so a freshly started resolver doesn't begin
// stone cold after a previous process's cache was mirrored here. Scan
// failures partway through are logged and stop the sweep; whatever was
// already loaded stays.
func (m *RedisMirror) WarmAll(ctx context.Context, c *Cache) {
	if m.client == nil {
		return
	}
	iter := m.client.Scan(ctx, 0, mirrorKeyPrefix+"*", 0).Iterator()
	loaded := 0
	for iter.Next(ctx) {
		name, qtype, ok := parseMirrorKey(iter.Val())
		if !ok {
			continue
		}
		raw, err := m.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		if m.load(c, name, qtype, raw) {
			loaded++
		}
	}
	if err := iter.Err(); err != nil {
		m.logger.Warn("redis mirror scan failed", "error", err)
	}
	m.logger.Info("redis mirror warm complete", "buckets_loaded", loaded)
}

// load unmarshals a mirrored bucket and inserts whatever entries have
// not yet expired. Returns whether anything was inserted.
func (m *RedisMirror) load(c *Cache, name string, qtype packet.QueryType, raw []byte) bool {
	var stored []mirrorEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		m.logger.Warn("redis mirror unmarshal failed", "name", name, "error", err)
		return false
	}
	records := make([]packet.DNSRecord, 0, len(stored))
	var minRemaining time.Duration = time.Hour
	now := time.Now()
	for _, se := range stored {
		remaining := se.InsertedAt.Add(time.Duration(se.TTLSeconds * float64(time.Second))).Sub(now)
		if remaining <= 0 {
			continue
		}
		if remaining < minRemaining {
			minRemaining = remaining
		}
		records = append(records, recordFromValue(name, packet.QueryType(se.Type), se.Value, se.Priority))
	}
	if len(records) == 0 {
		return false
	}
	c.Insert(name, qtype, records, minRemaining)
	return true
}

const mirrorKeyPrefix = "hermesdns:cache:"

func mirrorKey(name string, qtype packet.QueryType) string {
	return fmt.Sprintf("%s%s:%d", mirrorKeyPrefix, name, qtype)
}

// parseMirrorKey reverses mirrorKey. DNS names never contain a colon,
// so the qtype is whatever follows the last one.
func parseMirrorKey(key string) (string, packet.QueryType, bool) {
	rest := strings.TrimPrefix(key, mirrorKeyPrefix)
	if rest == key {
		return "", 0, false
	}
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", 0, false
	}
	qtypeNum, err := strconv.ParseUint(rest[idx+1:], 10, 16)
	if err != nil {
		return "", 0, false
	}
	return rest[:idx], packet.QueryType(qtypeNum), true
}

func recordValue(rec packet.DNSRecord) string {
	switch rec.Type {
	case packet.A, packet.AAAA:
		return rec.IP.String()
	case packet.NS, packet.CNAME, packet.MX:
		return rec.Host
	default:
		return string(rec.Data)
	}
}

func recordFromValue(name string, qtype packet.QueryType, value string, priority uint16) packet.DNSRecord {
	rec := packet.DNSRecord{Name: name, Type: qtype, TTL: 0}
	switch qtype {
	case packet.A, packet.AAAA:
		rec.IP = net.ParseIP(value)
	case packet.NS, packet.CNAME:
		rec.Host = value
	case packet.MX:
		rec.Host = value
		rec.Priority = priority
	}
	return rec
}
