package authority

import (
	"testing"

	"github.com/poyrazK/hermesdns/internal/dns/packet"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"example.com.", false},
		{".", false},
		{"example.com", true},           // missing trailing dot
		{"", true},                      // empty
		{"a..com.", true},               // empty label
		{"under_score.com.", true},      // invalid char
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateName(%q) err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}

func TestStoreLookupLongestSuffix(t *testing.T) {
	s := NewStore()
	if err := s.AddZone("example.com.", ZoneConfig{PrimaryNS: "ns1.example.com.", Minimum: 300}); err != nil {
		t.Fatalf("AddZone: %v", err)
	}
	if err := s.AddZone("sub.example.com.", ZoneConfig{PrimaryNS: "ns1.sub.example.com.", Minimum: 60}); err != nil {
		t.Fatalf("AddZone: %v", err)
	}
	if err := s.UpsertRecord("example.com.", Record{Name: "www.example.com.", Type: packet.A, TTL: 300, IP: "1.2.3.4"}); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	if err := s.UpsertRecord("sub.example.com.", Record{Name: "host.sub.example.com.", Type: packet.A, TTL: 300, IP: "5.6.7.8"}); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	match, ok := s.Lookup("host.sub.example.com.", packet.A)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Apex != "sub.example.com." {
		t.Errorf("Apex = %q, want the more specific zone", match.Apex)
	}
	if len(match.Records) != 1 || match.Records[0].IP != "5.6.7.8" {
		t.Errorf("unexpected records: %+v", match.Records)
	}
}

func TestStoreLookupNXDomain(t *testing.T) {
	s := NewStore()
	_ = s.AddZone("example.com.", ZoneConfig{})
	_ = s.UpsertRecord("example.com.", Record{Name: "www.example.com.", Type: packet.A, IP: "1.2.3.4"})

	match, ok := s.Lookup("nosuchname.example.com.", packet.A)
	if !ok {
		t.Fatal("expected zone to be found even with no matching name")
	}
	if !match.NXDomain {
		t.Error("expected NXDomain=true for an unowned name under an owned zone")
	}
}

func TestStoreLookupNoZone(t *testing.T) {
	s := NewStore()
	_, ok := s.Lookup("example.org.", packet.A)
	if ok {
		t.Error("expected no match when no zone covers the name")
	}
}

func TestStoreLookupCNAMESubstitution(t *testing.T) {
	s := NewStore()
	_ = s.AddZone("example.com.", ZoneConfig{})
	_ = s.UpsertRecord("example.com.", Record{Name: "alias.example.com.", Type: packet.CNAME, Host: "target.example.com."})

	match, ok := s.Lookup("alias.example.com.", packet.A)
	if !ok || len(match.Records) != 1 {
		t.Fatalf("expected CNAME to be returned transparently for an A query, got %+v", match)
	}
	if match.Records[0].Type != packet.CNAME {
		t.Errorf("expected CNAME record, got %v", match.Records[0].Type)
	}
}

func TestUpsertRecordUnknownZone(t *testing.T) {
	s := NewStore()
	err := s.UpsertRecord("example.com.", Record{Name: "www.example.com.", Type: packet.A, IP: "1.2.3.4"})
	if err == nil {
		t.Error("expected error when upserting into a zone that was never added")
	}
}

func TestListZonesAndRecords(t *testing.T) {
	s := NewStore()
	_ = s.AddZone("example.com.", ZoneConfig{PrimaryNS: "ns1.example.com."})
	_ = s.UpsertRecord("example.com.", Record{Name: "www.example.com.", Type: packet.A, IP: "1.2.3.4"})
	_ = s.UpsertRecord("example.com.", Record{Name: "mail.example.com.", Type: packet.MX, Pref: 10, Host: "mx.example.com."})

	zones := s.ListZones()
	if len(zones) != 1 || zones[0].Records != 2 {
		t.Fatalf("unexpected zone summary: %+v", zones)
	}

	records, err := s.ListRecords("example.com.")
	if err != nil || len(records) != 2 {
		t.Fatalf("ListRecords: %v, %+v", err, records)
	}

	if _, err := s.ListRecords("missing.com."); err == nil {
		t.Error("expected error for unknown zone")
	}
}
