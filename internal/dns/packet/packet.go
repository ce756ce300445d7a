package packet

import (
	"fmt"
	"net"
)

// QueryType is the 16-bit DNS type field (RFC 1035 §3.2.2).
type QueryType uint16

const (
	// UNKNOWN carries any type this core doesn't distinguish, including
	// OPT (EDNS(0)) pseudo-records, which are passed through opaquely
	// per spec's non-goals rather than given a dedicated variant.
	UNKNOWN QueryType = 0
	A       QueryType = 1
	NS      QueryType = 2
	CNAME   QueryType = 5
	SOA     QueryType = 6
	MX      QueryType = 15
	AAAA    QueryType = 28
)

// String returns the human-readable name of a QueryType, or "TYPEn"
// for anything this core treats as opaque.
func (t QueryType) String() string {
	switch t {
	case A:
		return "A"
	case NS:
		return "NS"
	case CNAME:
		return "CNAME"
	case SOA:
		return "SOA"
	case MX:
		return "MX"
	case AAAA:
		return "AAAA"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

// RFC 1035 §4.1.1 OPCODE values this core recognises; anything else is
// NOTIMP (spec §7).
const (
	OpcodeQuery uint8 = 0
)

// RFC 1035 §4.1.1 RCODE values (spec §3).
const (
	RcodeNoError  uint8 = 0
	RcodeFormErr  uint8 = 1
	RcodeServFail uint8 = 2
	RcodeNxDomain uint8 = 3
	RcodeNotImp   uint8 = 4
	RcodeRefused  uint8 = 5
)

// DNSHeader is the fixed 12-byte DNS message header.
type DNSHeader struct {
	ID uint16

	Response           bool
	Opcode             uint8
	AuthoritativeAnswer bool
	TruncatedMessage   bool
	RecursionDesired   bool
	RecursionAvailable bool
	Z                  bool // reserved; AuthedData/CheckingDisabled ride in it
	AuthedData         bool
	CheckingDisabled   bool
	ResCode            uint8

	Questions            uint16
	Answers              uint16
	AuthoritativeEntries uint16
	ResourceEntries      uint16
}

// Read populates h by parsing 12 bytes from buffer.
func (h *DNSHeader) Read(buffer *BytePacketBuffer) error {
	var err error
	if h.ID, err = buffer.Readu16(); err != nil {
		return err
	}

	flags, err := buffer.Readu16()
	if err != nil {
		return err
	}
	hi := uint8(flags >> 8)
	lo := uint8(flags & 0xFF)

	h.RecursionDesired = hi&(1<<0) != 0
	h.TruncatedMessage = hi&(1<<1) != 0
	h.AuthoritativeAnswer = hi&(1<<2) != 0
	h.Opcode = (hi >> 3) & 0x0F
	h.Response = hi&(1<<7) != 0

	h.ResCode = lo & 0x0F
	h.CheckingDisabled = lo&(1<<4) != 0
	h.AuthedData = lo&(1<<5) != 0
	h.Z = lo&(1<<6) != 0
	h.RecursionAvailable = lo&(1<<7) != 0

	if h.Questions, err = buffer.Readu16(); err != nil {
		return err
	}
	if h.Answers, err = buffer.Readu16(); err != nil {
		return err
	}
	if h.AuthoritativeEntries, err = buffer.Readu16(); err != nil {
		return err
	}
	if h.ResourceEntries, err = buffer.Readu16(); err != nil {
		return err
	}
	return nil
}

// Write serialises h into buffer.
func (h *DNSHeader) Write(buffer *BytePacketBuffer) error {
	if err := buffer.Writeu16(h.ID); err != nil {
		return err
	}

	var flags uint16
	if h.Response {
		flags |= 1 << 15
	}
	flags |= uint16(h.Opcode) << 11
	if h.AuthoritativeAnswer {
		flags |= 1 << 10
	}
	if h.TruncatedMessage {
		flags |= 1 << 9
	}
	if h.RecursionDesired {
		flags |= 1 << 8
	}
	if h.RecursionAvailable {
		flags |= 1 << 7
	}
	if h.Z {
		flags |= 1 << 6
	}
	if h.AuthedData {
		flags |= 1 << 5
	}
	if h.CheckingDisabled {
		flags |= 1 << 4
	}
	flags |= uint16(h.ResCode)

	if err := buffer.Writeu16(flags); err != nil {
		return err
	}
	if err := buffer.Writeu16(h.Questions); err != nil {
		return err
	}
	if err := buffer.Writeu16(h.Answers); err != nil {
		return err
	}
	if err := buffer.Writeu16(h.AuthoritativeEntries); err != nil {
		return err
	}
	return buffer.Writeu16(h.ResourceEntries)
}

// DNSQuestion is a single entry in the question section.
type DNSQuestion struct {
	Name  string
	QType QueryType
}

// NewDNSQuestion builds a question for name/qtype, class IN.
func NewDNSQuestion(name string, qtype QueryType) *DNSQuestion {
	return &DNSQuestion{Name: name, QType: qtype}
}

// Read parses a question from buffer.
func (q *DNSQuestion) Read(buffer *BytePacketBuffer) error {
	var err error
	if q.Name, err = buffer.ReadName(); err != nil {
		return err
	}
	qtype, err := buffer.Readu16()
	if err != nil {
		return err
	}
	q.QType = QueryType(qtype)
	_, err = buffer.Readu16() // QCLASS, always IN
	return err
}

// Write serialises q into buffer. Class is always IN(1) per spec §3.
func (q *DNSQuestion) Write(buffer *BytePacketBuffer) error {
	if err := buffer.WriteName(q.Name); err != nil {
		return err
	}
	if err := buffer.Writeu16(uint16(q.QType)); err != nil {
		return err
	}
	return buffer.Writeu16(1)
}

// DNSRecord is a tagged-union resource record. Only the fields
// relevant to r.Type are populated; Read/Write dispatch on Type as a
// flat switch rather than an inheritance hierarchy, per the design
// note on avoiding record-type class hierarchies.
type DNSRecord struct {
	Name  string
	Type  QueryType
	Class uint16
	TTL   uint32

	IP       net.IP // A/AAAA
	Host     string // NS/CNAME
	Priority uint16 // MX

	// UNKNOWN: original type code carried in Type, raw RDATA preserved
	// verbatim so a passthrough forwarder could re-emit it unchanged.
	Data []byte
}

// Read parses a record's preamble and type-specific RDATA from buffer.
func (r *DNSRecord) Read(buffer *BytePacketBuffer) error {
	var err error
	if r.Name, err = buffer.ReadName(); err != nil {
		return err
	}
	typeVal, err := buffer.Readu16()
	if err != nil {
		return err
	}
	r.Type = QueryType(typeVal)
	if r.Class, err = buffer.Readu16(); err != nil {
		return err
	}
	if r.TTL, err = buffer.Readu32(); err != nil {
		return err
	}
	dataLen, err := buffer.Readu16()
	if err != nil {
		return err
	}

	switch r.Type {
	case A:
		raw, err := buffer.ReadRange(buffer.Position(), 4)
		if err != nil {
			return err
		}
		r.IP = net.IP(raw)
		return buffer.Step(4)
	case AAAA:
		raw, err := buffer.ReadRange(buffer.Position(), 16)
		if err != nil {
			return err
		}
		r.IP = net.IP(raw)
		return buffer.Step(16)
	case NS, CNAME:
		r.Host, err = buffer.ReadName()
		return err
	case MX:
		if r.Priority, err = buffer.Readu16(); err != nil {
			return err
		}
		r.Host, err = buffer.ReadName()
		return err
	default:
		raw, err := buffer.ReadRange(buffer.Position(), int(dataLen))
		if err != nil {
			return err
		}
		r.Data = raw
		return buffer.Step(int(dataLen))
	}
}

// Write serialises r into buffer and returns the number of bytes
// written (preamble + RDATA). Variable-length RDATA (NS/CNAME/MX
// targets) reserves two bytes for RDLENGTH and back-patches it with
// Set16 once the payload length is known, since name compression can
// make the target shorter than its uncompressed label sequence.
// UNKNOWN records are dropped silently on write: this core never
// originates a response containing a type it doesn't understand.
func (r *DNSRecord) Write(buffer *BytePacketBuffer) (int, error) {
	start := buffer.Position()

	if r.Type != A && r.Type != AAAA && r.Type != NS && r.Type != CNAME && r.Type != MX {
		return 0, nil
	}

	if err := buffer.WriteName(r.Name); err != nil {
		return 0, err
	}
	if err := buffer.Writeu16(uint16(r.Type)); err != nil {
		return 0, err
	}
	if err := buffer.Writeu16(1); err != nil { // CLASS IN
		return 0, err
	}
	if err := buffer.Writeu32(r.TTL); err != nil {
		return 0, err
	}

	switch r.Type {
	case A:
		if err := buffer.Writeu16(4); err != nil {
			return 0, err
		}
		ip4 := r.IP.To4()
		for _, b := range ip4 {
			if err := buffer.Write(b); err != nil {
				return 0, err
			}
		}
	case AAAA:
		if err := buffer.Writeu16(16); err != nil {
			return 0, err
		}
		for _, b := range r.IP.To16() {
			if err := buffer.Write(b); err != nil {
				return 0, err
			}
		}
	case NS, CNAME:
		lenPos := buffer.Position()
		if err := buffer.Writeu16(0); err != nil {
			return 0, err
		}
		if err := buffer.WriteName(r.Host); err != nil {
			return 0, err
		}
		end := buffer.Position()
		if err := buffer.Set16(lenPos, uint16(end-lenPos-2)); err != nil {
			return 0, err
		}
	case MX:
		lenPos := buffer.Position()
		if err := buffer.Writeu16(0); err != nil {
			return 0, err
		}
		if err := buffer.Writeu16(r.Priority); err != nil {
			return 0, err
		}
		if err := buffer.WriteName(r.Host); err != nil {
			return 0, err
		}
		end := buffer.Position()
		if err := buffer.Set16(lenPos, uint16(end-lenPos-2)); err != nil {
			return 0, err
		}
	}

	return buffer.Position() - start, nil
}

// DNSPacket is a full DNS message: a header plus the four ordered
// record sections.
type DNSPacket struct {
	Header      DNSHeader
	Questions   []DNSQuestion
	Answers     []DNSRecord
	Authorities []DNSRecord
	Resources   []DNSRecord
}

// NewDNSPacket returns an empty packet with a zeroed header.
func NewDNSPacket() *DNSPacket {
	return &DNSPacket{}
}

// FromBuffer parses a complete packet from buffer, trusting the
// header's section counts to know how many records of each kind to
// read (spec P2 requires these counts match the section lengths after
// a round trip, but read-side we simply follow what the header says).
func (p *DNSPacket) FromBuffer(buffer *BytePacketBuffer) error {
	if err := p.Header.Read(buffer); err != nil {
		return err
	}
	for i := 0; i < int(p.Header.Questions); i++ {
		var q DNSQuestion
		if err := q.Read(buffer); err != nil {
			return err
		}
		p.Questions = append(p.Questions, q)
	}
	for i := 0; i < int(p.Header.Answers); i++ {
		var r DNSRecord
		if err := r.Read(buffer); err != nil {
			return err
		}
		p.Answers = append(p.Answers, r)
	}
	for i := 0; i < int(p.Header.AuthoritativeEntries); i++ {
		var r DNSRecord
		if err := r.Read(buffer); err != nil {
			return err
		}
		p.Authorities = append(p.Authorities, r)
	}
	for i := 0; i < int(p.Header.ResourceEntries); i++ {
		var r DNSRecord
		if err := r.Read(buffer); err != nil {
			return err
		}
		p.Resources = append(p.Resources, r)
	}
	return nil
}

// Write serialises p into buffer, recomputing the header's section
// counts from the slice lengths first (spec P2).
func (p *DNSPacket) Write(buffer *BytePacketBuffer) error {
	p.Header.Questions = uint16(len(p.Questions))
	p.Header.Answers = uint16(len(p.Answers))
	p.Header.AuthoritativeEntries = uint16(len(p.Authorities))
	p.Header.ResourceEntries = uint16(len(p.Resources))

	if err := p.Header.Write(buffer); err != nil {
		return err
	}
	for _, q := range p.Questions {
		if err := q.Write(buffer); err != nil {
			return err
		}
	}
	for _, rec := range p.Answers {
		if _, err := rec.Write(buffer); err != nil {
			return err
		}
	}
	for _, rec := range p.Authorities {
		if _, err := rec.Write(buffer); err != nil {
			return err
		}
	}
	for _, rec := range p.Resources {
		if _, err := rec.Write(buffer); err != nil {
			return err
		}
	}
	return nil
}
