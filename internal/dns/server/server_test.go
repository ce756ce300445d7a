package server

import (
	"net"
	"testing"
	"time"

	"github.com/poyrazK/hermesdns/internal/authority"
	"github.com/poyrazK/hermesdns/internal/cache"
	"github.com/poyrazK/hermesdns/internal/dns/packet"
	"github.com/poyrazK/hermesdns/internal/resolver"
)

func TestServerAnswersAuthoritativeQuery(t *testing.T) {
	store := authority.NewStore()
	if err := store.AddZone("example.com.", authority.ZoneConfig{}); err != nil {
		t.Fatalf("AddZone: %v", err)
	}
	if err := store.UpsertRecord("example.com.", authority.Record{
		Name: "www.example.com.", Type: packet.A, TTL: 300, IP: "203.0.113.5",
	}); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	res := resolver.New(resolver.ModeAuthorityOnly, store, cache.New(nil), "", nil, nil)
	srv := NewServer("127.0.0.1:0", res, nil, nil)

	// Bind ourselves so we control the exact ephemeral port, then run
	// the server's handling logic directly against a client socket
	// pair instead of relying on Run()'s fixed-address listen.
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer listener.Close()

	client, err := net.Dial("udp", listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	req := packet.NewDNSPacket()
	req.Header.ID = 0x1234
	req.Header.RecursionDesired = true
	req.Questions = append(req.Questions, *packet.NewDNSQuestion("www.example.com.", packet.A))
	buf := packet.NewBytePacketBuffer()
	if err := req.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	go func() {
		data := make([]byte, packet.PacketSize)
		n, addr, err := listener.ReadFrom(data)
		if err != nil {
			return
		}
		srv.handlePacket(listener, addr, data[:n])
	}()

	if _, err := client.Write(buf.Buf[:buf.Position()]); err != nil {
		t.Fatalf("client write: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	respBuf := make([]byte, packet.PacketSize)
	n, err := client.Read(respBuf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}

	out := packet.NewDNSPacket()
	readBuf := packet.NewBytePacketBuffer()
	readBuf.Load(respBuf[:n])
	if err := out.FromBuffer(readBuf); err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}

	if out.Header.ID != 0x1234 {
		t.Errorf("ID = %x, want 0x1234", out.Header.ID)
	}
	if !out.Header.AuthoritativeAnswer {
		t.Error("expected AA bit set for a locally-owned zone")
	}
	if out.Header.ResCode != packet.RcodeNoError {
		t.Errorf("ResCode = %d, want NOERROR", out.Header.ResCode)
	}
	if len(out.Answers) != 1 || out.Answers[0].IP.String() != "203.0.113.5" {
		t.Fatalf("unexpected answers: %+v", out.Answers)
	}
}

func TestServerFormErrOnEmptyQuestions(t *testing.T) {
	store := authority.NewStore()
	res := resolver.New(resolver.ModeAuthorityOnly, store, cache.New(nil), "", nil, nil)
	srv := NewServer("127.0.0.1:0", res, nil, nil)

	req := packet.NewDNSPacket()
	req.Header.ID = 0x42
	buf := packet.NewBytePacketBuffer()
	if err := req.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer listener.Close()
	client, err := net.Dial("udp", listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	go func() {
		data := make([]byte, packet.PacketSize)
		n, addr, err := listener.ReadFrom(data)
		if err != nil {
			return
		}
		srv.handlePacket(listener, addr, data[:n])
	}()

	if _, err := client.Write(buf.Buf[:buf.Position()]); err != nil {
		t.Fatalf("client write: %v", err)
	}
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	respBuf := make([]byte, packet.PacketSize)
	n, err := client.Read(respBuf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}

	out := packet.NewDNSPacket()
	readBuf := packet.NewBytePacketBuffer()
	readBuf.Load(respBuf[:n])
	if err := out.FromBuffer(readBuf); err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	if out.Header.ResCode != packet.RcodeFormErr {
		t.Errorf("ResCode = %d, want FORMERR", out.Header.ResCode)
	}
}

func TestServerNotImpOnNonStandardOpcode(t *testing.T) {
	store := authority.NewStore()
	res := resolver.New(resolver.ModeAuthorityOnly, store, cache.New(nil), "", nil, nil)
	srv := NewServer("127.0.0.1:0", res, nil, nil)

	req := packet.NewDNSPacket()
	req.Header.ID = 0x99
	req.Header.Opcode = 2 // STATUS, not a standard query
	req.Questions = append(req.Questions, *packet.NewDNSQuestion("example.com.", packet.A))
	buf := packet.NewBytePacketBuffer()
	if err := req.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer listener.Close()
	client, err := net.Dial("udp", listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	go func() {
		data := make([]byte, packet.PacketSize)
		n, addr, err := listener.ReadFrom(data)
		if err != nil {
			return
		}
		srv.handlePacket(listener, addr, data[:n])
	}()

	if _, err := client.Write(buf.Buf[:buf.Position()]); err != nil {
		t.Fatalf("client write: %v", err)
	}
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	respBuf := make([]byte, packet.PacketSize)
	n, err := client.Read(respBuf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}

	out := packet.NewDNSPacket()
	readBuf := packet.NewBytePacketBuffer()
	readBuf.Load(respBuf[:n])
	if err := out.FromBuffer(readBuf); err != nil {
		t.Fatalf("FromBuffer: %v", err)
	}
	if out.Header.ID != 0x99 {
		t.Errorf("ID = %x, want 0x99", out.Header.ID)
	}
	if out.Header.ResCode != packet.RcodeNotImp {
		t.Errorf("ResCode = %d, want NOTIMP", out.Header.ResCode)
	}
}
