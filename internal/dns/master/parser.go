// Package master parses DNS master zone files (RFC 1035 §5) for
// optional startup preload of the authority store.
package master

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/poyrazK/hermesdns/internal/authority"
	"github.com/poyrazK/hermesdns/internal/dns/packet"
)

// Parser reads master-file syntax and tracks $ORIGIN/$TTL state across
// lines, the way a single zone file is accumulated.
type Parser struct {
	Origin     string
	DefaultTTL int
}

// NewParser returns a Parser with the conventional 3600s default TTL.
func NewParser() *Parser {
	return &Parser{DefaultTTL: 3600}
}

// ZoneData holds one parsed zone: its apex/config plus owned records,
// ready to be loaded into an authority.Store.
type ZoneData struct {
	Apex    string
	Config  authority.ZoneConfig
	Records []authority.Record
}

// Parse reads a master zone file, handling $ORIGIN/$TTL directives,
// comment stripping, and parenthesized multi-line records. Only the
// record types this core resolves (A, AAAA, NS, CNAME, MX) are kept;
// any other type is skipped with no error, since a zone file may
// legitimately carry types (TXT, SRV, DNSKEY, ...) this resolver has
// no use for.
func (p *Parser) Parse(r io.Reader) (*ZoneData, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 64*1024)
	data := &ZoneData{}

	var lastName string
	var inParen bool
	var parenLines []string
	var firstLineLeadingWS bool

	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}

		if !inParen {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			firstLineLeadingWS = len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
			if strings.Contains(line, "(") {
				inParen = true
				parenLines = append(parenLines, strings.Replace(line, "(", " ", 1))
				if !strings.Contains(line, ")") {
					continue
				}
			}
		} else {
			parenLines = append(parenLines, line)
			if !strings.Contains(line, ")") {
				continue
			}
			inParen = false
		}

		var fullLine string
		if len(parenLines) > 0 {
			fullLine = strings.Join(parenLines, " ")
			fullLine = strings.ReplaceAll(fullLine, ")", " ")
			parenLines = nil
		} else {
			fullLine = line
		}

		trimmedFull := strings.TrimSpace(fullLine)
		if trimmedFull == "" {
			continue
		}

		if strings.HasPrefix(trimmedFull, "$") {
			parts := strings.Fields(trimmedFull)
			if len(parts) < 2 {
				continue
			}
			switch strings.ToUpper(parts[0]) {
			case "$ORIGIN":
				p.Origin = parts[1]
				if !strings.HasSuffix(p.Origin, ".") {
					p.Origin += "."
				}
				data.Apex = p.Origin
			case "$TTL":
				ttl, err := strconv.Atoi(parts[1])
				if err != nil {
					return nil, fmt.Errorf("master: invalid $TTL %q: %w", parts[1], err)
				}
				p.DefaultTTL = ttl
			}
			continue
		}

		fields := strings.Fields(trimmedFull)
		if len(fields) == 0 {
			continue
		}

		var name string
		if firstLineLeadingWS {
			name = lastName
		} else {
			name = fields[0]
			fields = fields[1:]
			if name == "@" {
				name = p.Origin
			} else if !strings.HasSuffix(name, ".") && p.Origin != "" {
				name = name + "." + p.Origin
			}
			lastName = name
		}

		ttl := p.DefaultTTL
		var typeTok string
		var rdata []string
		for i := 0; i < len(fields); i++ {
			f := fields[i]
			upper := strings.ToUpper(f)
			if val, err := strconv.Atoi(f); err == nil {
				ttl = val
				continue
			}
			if upper == "IN" || upper == "CS" || upper == "CH" || upper == "HS" {
				continue
			}
			typeTok = upper
			rdata = fields[i+1:]
			break
		}

		if typeTok == "" || name == "" {
			continue
		}

		if typeTok == "SOA" {
			applySOA(data, rdata)
			continue
		}

		rec, ok := toRecord(name, typeTok, uint32(ttl), rdata)
		if !ok {
			continue
		}
		data.Records = append(data.Records, rec)
	}

	return data, scanner.Err()
}

func toRecord(name, typeTok string, ttl uint32, rdata []string) (authority.Record, bool) {
	switch typeTok {
	case "A", "AAAA":
		if len(rdata) < 1 {
			return authority.Record{}, false
		}
		qtype := packet.A
		if typeTok == "AAAA" {
			qtype = packet.AAAA
		}
		return authority.Record{Name: name, Type: qtype, TTL: ttl, IP: rdata[0]}, true
	case "NS", "CNAME":
		if len(rdata) < 1 {
			return authority.Record{}, false
		}
		qtype := packet.NS
		if typeTok == "CNAME" {
			qtype = packet.CNAME
		}
		return authority.Record{Name: name, Type: qtype, TTL: ttl, Host: rdata[0]}, true
	case "MX":
		if len(rdata) < 2 {
			return authority.Record{}, false
		}
		pref, err := strconv.Atoi(rdata[0])
		if err != nil {
			return authority.Record{}, false
		}
		return authority.Record{Name: name, Type: packet.MX, TTL: ttl, Pref: uint16(pref), Host: rdata[1]}, true
	default:
		return authority.Record{}, false
	}
}

// applySOA fills in the zone's SOA-shaped metadata: MNAME RNAME SERIAL
// REFRESH RETRY EXPIRE MINIMUM, in that order (RFC 1035 §3.3.13).
func applySOA(data *ZoneData, rdata []string) {
	if len(rdata) < 7 {
		return
	}
	asUint := func(s string) uint32 {
		v, _ := strconv.ParseUint(s, 10, 32)
		return uint32(v)
	}
	data.Config = authority.ZoneConfig{
		PrimaryNS: rdata[0],
		Admin:     rdata[1],
		Serial:    asUint(rdata[2]),
		Refresh:   asUint(rdata[3]),
		Retry:     asUint(rdata[4]),
		Expire:    asUint(rdata[5]),
		Minimum:   asUint(rdata[6]),
	}
}

// CompareNamesCanonically orders two names per RFC 4034 §6.1 canonical
// DNS name ordering (least-significant label first).
func CompareNamesCanonically(a, b string) int {
	a = strings.TrimSuffix(strings.ToLower(a), ".")
	b = strings.TrimSuffix(strings.ToLower(b), ".")
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}

	aLabels := strings.Split(a, ".")
	bLabels := strings.Split(b, ".")
	i, j := len(aLabels)-1, len(bLabels)-1
	for i >= 0 && j >= 0 {
		if aLabels[i] < bLabels[j] {
			return -1
		}
		if aLabels[i] > bLabels[j] {
			return 1
		}
		i--
		j--
	}
	if len(aLabels) < len(bLabels) {
		return -1
	}
	if len(aLabels) > len(bLabels) {
		return 1
	}
	return 0
}

// SortRecordsCanonically orders records by canonical name, then type.
func SortRecordsCanonically(records []authority.Record) {
	sort.Slice(records, func(i, j int) bool {
		cmp := CompareNamesCanonically(records[i].Name, records[j].Name)
		if cmp == 0 {
			return records[i].Type < records[j].Type
		}
		return cmp < 0
	})
}
