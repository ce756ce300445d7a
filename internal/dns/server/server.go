// Package server implements the UDP listener loop: reading datagrams,
// handling them concurrently through a worker pool, and writing
// responses (spec §4.5). Everything beyond the UDP wire transport
// (TCP, DoT, DoH, AXFR/IXFR, dynamic update) is a thin shell outside
// this core's scope.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"strings"
	"time"

	"github.com/poyrazK/hermesdns/internal/dns/packet"
	"github.com/poyrazK/hermesdns/internal/metrics"
	"github.com/poyrazK/hermesdns/internal/resolver"
)

// Server owns the UDP socket(s), the worker pool that processes
// datagrams, and the resolver queries are answered through.
type Server struct {
	Addr        string
	Resolver    *resolver.Resolver
	WorkerCount int
	Logger      *slog.Logger
	Metrics     *metrics.Registry

	queue   chan udpTask
	limiter *rateLimiter
}

type udpTask struct {
	addr net.Addr
	data []byte
	conn net.PacketConn
}

// NewServer builds a Server bound to addr, backed by res. WorkerCount
// defaults to NumCPU()*4, a worker pool sized for an I/O-bound
// resolver rather than the teacher's NumCPU()*8 (this core's queries
// block on recursive network round-trips, not CPU work). m may be nil,
// in which case metrics are skipped.
func NewServer(addr string, res *resolver.Resolver, m *metrics.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Addr:        addr,
		Resolver:    res,
		WorkerCount: runtime.NumCPU() * 4,
		Logger:      logger,
		Metrics:     m,
		queue:       make(chan udpTask, 4096),
		limiter:     newRateLimiter(20000, 10000),
	}
}

// Run opens the UDP listener, starts the worker pool, and blocks
// serving datagrams until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.Addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.Logger.Info("starting UDP server", "addr", s.Addr, "workers", s.WorkerCount)

	for i := 0; i < s.WorkerCount; i++ {
		go s.worker()
	}
	if s.Metrics != nil {
		s.Metrics.ActiveWorkers.Set(float64(s.WorkerCount))
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.limiter.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, packet.PacketSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				continue
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case s.queue <- udpTask{addr: addr, data: data, conn: conn}:
		default:
			s.Logger.Warn("dropping query: worker queue full", "from", addr)
		}
	}
}

func (s *Server) worker() {
	for task := range s.queue {
		s.handlePacket(task.conn, task.addr, task.data)
	}
}

func (s *Server) handlePacket(conn net.PacketConn, addr net.Addr, data []byte) {
	start := time.Now()

	clientIP, _, _ := net.SplitHostPort(addr.String())
	if !s.limiter.Allow(clientIP) {
		return
	}

	reqBuffer := packet.GetBuffer()
	defer packet.PutBuffer(reqBuffer)
	reqBuffer.Load(data)

	request := packet.NewDNSPacket()
	if err := request.FromBuffer(reqBuffer); err != nil {
		s.Logger.Warn("malformed packet", "from", clientIP, "error", err)
		s.sendError(conn, addr, 0, packet.RcodeFormErr)
		return
	}

	if request.Header.Opcode != packet.OpcodeQuery {
		s.Logger.Warn("rejecting non-standard opcode", "from", clientIP, "opcode", request.Header.Opcode)
		s.sendError(conn, addr, request.Header.ID, packet.RcodeNotImp)
		return
	}

	if len(request.Questions) == 0 {
		s.sendError(conn, addr, request.Header.ID, packet.RcodeFormErr)
		return
	}

	q := request.Questions[0]
	if !strings.HasSuffix(q.Name, ".") {
		q.Name += "."
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result := s.Resolver.Resolve(ctx, q.Name, q.QType)

	response := packet.NewDNSPacket()
	response.Header.ID = request.Header.ID
	response.Header.Response = true
	response.Header.RecursionDesired = request.Header.RecursionDesired
	response.Header.RecursionAvailable = s.Resolver.Mode != resolver.ModeAuthorityOnly
	response.Header.AuthoritativeAnswer = result.Authoritative
	response.Header.ResCode = result.RCode
	response.Questions = append(response.Questions, q)
	response.Answers = result.Answers
	response.Authorities = result.Authorities
	response.Resources = result.Additionals

	resBuffer := packet.GetBuffer()
	defer packet.PutBuffer(resBuffer)
	resBuffer.HasNames = true
	if err := response.Write(resBuffer); err != nil {
		s.Logger.Error("failed to serialize response", "name", q.Name, "error", err)
		return
	}

	if _, err := conn.WriteTo(resBuffer.Buf[:resBuffer.Position()], addr); err != nil {
		s.Logger.Warn("failed to write response", "to", clientIP, "error", err)
		return
	}

	elapsed := time.Since(start)
	if s.Metrics != nil {
		qtype := q.QType.String()
		s.Metrics.QueriesTotal.WithLabelValues(qtype, fmt.Sprint(result.RCode)).Inc()
		s.Metrics.QueryDuration.WithLabelValues(qtype).Observe(elapsed.Seconds())
	}

	s.Logger.Info("query processed", "name", q.Name, "qtype", q.QType, "rcode", result.RCode,
		"from", clientIP, "latency_ms", elapsed.Milliseconds())
}

// sendError writes a header-only response carrying rcode, used for the
// malformed-packet, empty-question, and unsupported-opcode rejections
// that never reach the resolver (spec §7).
func (s *Server) sendError(conn net.PacketConn, addr net.Addr, id uint16, rcode uint8) {
	response := packet.NewDNSPacket()
	response.Header.ID = id
	response.Header.Response = true
	response.Header.ResCode = rcode

	resBuffer := packet.GetBuffer()
	defer packet.PutBuffer(resBuffer)
	if err := response.Write(resBuffer); err != nil {
		s.Logger.Error("failed to serialize error response", "rcode", rcode, "error", err)
		return
	}
	_, _ = conn.WriteTo(resBuffer.Buf[:resBuffer.Position()], addr)
}
