package resolver

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/poyrazK/hermesdns/internal/dns/packet"
)

// Querier sends a single query to server and returns its parsed
// response. recursionDesired distinguishes the iterative descent's
// RD=0 queries (spec §4.4, "send a non-recursive query") from a
// forwarder's RD=1 query (spec §4.4, "Forwarding"). It is a field on
// Resolver so tests can swap in a fake without touching the network.
type Querier func(ctx context.Context, server string, name string, qtype packet.QueryType, recursionDesired bool) (*packet.DNSPacket, error)

// udpQuery is the default Querier: dial UDP, write the question,
// read one datagram, verify the transaction ID, and parse it.
func udpQuery(ctx context.Context, server string, name string, qtype packet.QueryType, recursionDesired bool) (*packet.DNSPacket, error) {
	deadline := time.Now().Add(upstreamTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Timeout: upstreamTimeout}
	conn, err := dialer.DialContext(ctx, "udp", server)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	req := packet.NewDNSPacket()
	req.Header.ID = generateTransactionID()
	req.Header.Questions = 1
	req.Header.RecursionDesired = recursionDesired
	req.Questions = append(req.Questions, *packet.NewDNSQuestion(name, qtype))

	buf := packet.NewBytePacketBuffer()
	if err := req.Write(buf); err != nil {
		return nil, err
	}
	if _, err := conn.Write(buf.Buf[:buf.Position()]); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	tmp := make([]byte, packet.PacketSize)
	n, err := conn.Read(tmp)
	if err != nil {
		return nil, err
	}

	resBuf := packet.NewBytePacketBuffer()
	resBuf.Load(tmp[:n])

	resp := packet.NewDNSPacket()
	if err := resp.FromBuffer(resBuf); err != nil {
		return nil, err
	}
	if resp.Header.ID != req.Header.ID {
		return nil, fmt.Errorf("resolver: transaction ID mismatch: expected %d, got %d", req.Header.ID, resp.Header.ID)
	}
	return resp, nil
}

func generateTransactionID() uint16 {
	var id uint16
	_ = binary.Read(rand.Reader, binary.BigEndian, &id)
	return id
}
