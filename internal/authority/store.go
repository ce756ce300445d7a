// Package authority implements the local zone store: a mapping from
// zone apex to the records that zone owns, consulted by the resolver
// before any outbound query is made (spec §4.2).
package authority

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"

	"github.com/poyrazK/hermesdns/internal/dns/packet"
)

var validLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidateName checks a canonical (lowercase, dot-terminated) domain
// name against spec §3: labels at most 63 octets, total at most 255,
// and dot-separated. Ported from the teacher's ValidateZoneName,
// generalised to any owned name rather than only zone apexes.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("authority: name cannot be empty")
	}
	if name == "." {
		return nil
	}
	if !strings.HasSuffix(name, ".") {
		return fmt.Errorf("authority: name %q must be a dot-terminated FQDN", name)
	}
	if len(name) > 255 {
		return fmt.Errorf("authority: name %q exceeds 255 octets", name)
	}
	for _, label := range strings.Split(strings.TrimSuffix(name, "."), ".") {
		if label == "" {
			return fmt.Errorf("authority: name %q contains an empty label", name)
		}
		if len(label) > 63 {
			return fmt.Errorf("authority: label %q exceeds 63 octets", label)
		}
		if !validLabel.MatchString(label) {
			return fmt.Errorf("authority: label %q contains invalid characters", label)
		}
	}
	return nil
}

// Record is an owned resource record, keyed for upsert identity by
// (Name, Type, value) per spec §4.2.
type Record struct {
	Name  string
	Type  packet.QueryType
	TTL   uint32
	IP    string // A/AAAA
	Host  string // NS/CNAME
	Pref  uint16 // MX preference
}

func (r Record) identity() string {
	return fmt.Sprintf("%s|%d|%s|%s|%d", r.Name, r.Type, r.IP, r.Host, r.Pref)
}

// ToPacketRecord renders an owned record into the wire representation.
func (r Record) ToPacketRecord() packet.DNSRecord {
	pr := packet.DNSRecord{Name: r.Name, Type: r.Type, TTL: r.TTL}
	switch r.Type {
	case packet.A, packet.AAAA:
		pr.IP = net.ParseIP(r.IP)
	case packet.NS, packet.CNAME:
		pr.Host = r.Host
	case packet.MX:
		pr.Priority = r.Pref
		pr.Host = r.Host
	}
	return pr
}

// ZoneConfig carries zone-level metadata used for SOA generation, even
// though SOA is not a first-class record variant in this core's wire
// codec (spec §3, Zone entry).
type ZoneConfig struct {
	PrimaryNS string
	Admin     string
	Serial    uint32
	Refresh   uint32
	Retry     uint32
	Expire    uint32
	Minimum   uint32
}

type zone struct {
	apex    string
	config  ZoneConfig
	records map[string]Record // identity -> record
}

// Store is the concurrent, read-mostly mapping from zone apex to owned
// records. Mutation goes through an exclusive lock (spec §5); lookups
// take the read lock, the common case.
type Store struct {
	mu    sync.RWMutex
	zones map[string]*zone
}

// NewStore returns an empty authority store.
func NewStore() *Store {
	return &Store{zones: make(map[string]*zone)}
}

// AddZone creates or replaces the zone container for apex, preserving
// any records previously upserted into it.
func (s *Store) AddZone(apex string, cfg ZoneConfig) error {
	apex = strings.ToLower(apex)
	if err := ValidateName(apex); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[apex]
	if !ok {
		z = &zone{apex: apex, records: make(map[string]Record)}
		s.zones[apex] = z
	}
	z.config = cfg
	return nil
}

// UpsertRecord adds or replaces rec within zoneApex by (name, type,
// value) identity.
func (s *Store) UpsertRecord(zoneApex string, rec Record) error {
	zoneApex = strings.ToLower(zoneApex)
	rec.Name = strings.ToLower(rec.Name)
	if err := ValidateName(rec.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[zoneApex]
	if !ok {
		return fmt.Errorf("authority: zone %q does not exist", zoneApex)
	}
	z.records[rec.identity()] = rec
	return nil
}

// ZoneMatch is the result of a successful Lookup: the owning zone apex
// plus the records that answer the query.
type ZoneMatch struct {
	Apex    string
	Config  ZoneConfig
	Records []Record
	// NXDomain is true when the zone owns no record of any type under
	// qname, so the answer is an authoritative negative (spec §4.2).
	NXDomain bool
}

// Lookup finds the longest-suffix zone apex covering qname and returns
// the records in that zone matching qtype (CNAME substituted
// transparently, per spec §4.2), or ok=false if no owned zone covers
// qname at all.
func (s *Store) Lookup(qname string, qtype packet.QueryType) (ZoneMatch, bool) {
	qname = strings.ToLower(qname)
	s.mu.RLock()
	defer s.mu.RUnlock()

	apex, z := s.longestMatch(qname)
	if z == nil {
		return ZoneMatch{}, false
	}

	var matched []Record
	var anyForName bool
	for _, rec := range z.records {
		if rec.Name != qname {
			continue
		}
		anyForName = true
		if rec.Type == qtype || rec.Type == packet.CNAME {
			matched = append(matched, rec)
		}
	}

	return ZoneMatch{
		Apex:     apex,
		Config:   z.config,
		Records:  matched,
		NXDomain: !anyForName,
	}, true
}

// longestMatch returns the zone whose apex is the longest suffix of
// qname, or nil if no zone covers it.
func (s *Store) longestMatch(qname string) (string, *zone) {
	var bestApex string
	var best *zone
	for apex, z := range s.zones {
		if qname == apex || strings.HasSuffix(qname, "."+apex) || (apex == "." ) {
			if len(apex) > len(bestApex) || best == nil {
				bestApex, best = apex, z
			}
		}
	}
	return bestApex, best
}

// ZoneSummary is the administrative listing shape (spec §6).
type ZoneSummary struct {
	Apex    string
	Config  ZoneConfig
	Records int
}

// ListZones enumerates all configured zones for the admin interface.
func (s *Store) ListZones() []ZoneSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ZoneSummary, 0, len(s.zones))
	for apex, z := range s.zones {
		out = append(out, ZoneSummary{Apex: apex, Config: z.config, Records: len(z.records)})
	}
	return out
}

// ListRecords enumerates every record owned by zoneApex for the admin
// interface.
func (s *Store) ListRecords(zoneApex string) ([]Record, error) {
	zoneApex = strings.ToLower(zoneApex)
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[zoneApex]
	if !ok {
		return nil, fmt.Errorf("authority: zone %q does not exist", zoneApex)
	}
	out := make([]Record, 0, len(z.records))
	for _, rec := range z.records {
		out = append(out, rec)
	}
	return out, nil
}
