// Package resolver implements query resolution: authority lookup
// first, cache second, then either an iterative recursive descent from
// the root servers or a single forwarding query, depending on mode
// (spec §4.1, §4.4).
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/poyrazK/hermesdns/internal/authority"
	"github.com/poyrazK/hermesdns/internal/cache"
	"github.com/poyrazK/hermesdns/internal/dns/packet"
	"github.com/poyrazK/hermesdns/internal/metrics"
)

// Mode selects how a query that authority and cache cannot answer gets
// resolved.
type Mode int

const (
	// ModeRecursive walks the delegation chain from the root servers.
	ModeRecursive Mode = iota
	// ModeForwarding sends every miss to a single configured upstream.
	ModeForwarding
	// ModeAuthorityOnly never leaves the local store; a miss becomes
	// NXDOMAIN or REFUSED rather than reaching out to the network.
	ModeAuthorityOnly
)

// maxDescentDepth bounds the number of delegation hops a recursive
// resolution will follow before giving up with SERVFAIL, per
// SPEC_FULL.md §10 (the distilled spec leaves this unbounded).
const maxDescentDepth = 16

// upstreamTimeout bounds a single outbound query, matching the
// teacher's sendQuery deadline.
const upstreamTimeout = 5 * time.Second

// Result is the outcome of a single resolution, shaped for the server
// loop to render into a wire response.
type Result struct {
	Answers     []packet.DNSRecord
	Authorities []packet.DNSRecord
	Additionals []packet.DNSRecord
	RCode       uint8
	// Authoritative is set when the answer came from the local store,
	// so the server loop can set the AA bit.
	Authoritative bool
}

// Resolver ties the authority store and cache together with an
// outbound resolution strategy.
type Resolver struct {
	Mode      Mode
	Authority *authority.Store
	Cache     *cache.Cache
	// ForwardAddr is consulted only in ModeForwarding.
	ForwardAddr string
	Logger      *slog.Logger
	// Metrics is optional; when nil, resolution proceeds unmeasured.
	Metrics *metrics.Registry

	querier Querier
}

// New builds a Resolver. store and c may be nil only in tests that
// don't exercise the corresponding lookup path. m may be nil, in which
// case resolution proceeds unmeasured.
func New(mode Mode, store *authority.Store, c *cache.Cache, forwardAddr string, m *metrics.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		Mode:        mode,
		Authority:   store,
		Cache:       c,
		ForwardAddr: forwardAddr,
		Logger:      logger,
		Metrics:     m,
		querier:     udpQuery,
	}
}

// Resolve answers a single question, trying the authority store, then
// the cache, then the network per Mode (spec §4.1).
func (r *Resolver) Resolve(ctx context.Context, name string, qtype packet.QueryType) Result {
	if match, ok := r.Authority.Lookup(name, qtype); ok {
		if match.NXDomain {
			return Result{RCode: packet.RcodeNxDomain, Authoritative: true}
		}
		if len(match.Records) > 0 {
			return Result{Answers: toPacketRecords(match.Records), RCode: packet.RcodeNoError, Authoritative: true}
		}
		// Zone is owned but has no record of this type for qname: that
		// is a NOERROR/empty answer, not NXDOMAIN (spec §4.2).
		return Result{RCode: packet.RcodeNoError, Authoritative: true}
	}

	switch records, status := r.Cache.Lookup(name, qtype); status {
	case cache.Hit:
		r.observeCache("hit")
		return Result{Answers: records, RCode: packet.RcodeNoError}
	case cache.NegativeHit:
		r.observeCache("hit")
		return Result{RCode: packet.RcodeNxDomain}
	default:
		r.observeCache("miss")
	}

	switch r.Mode {
	case ModeAuthorityOnly:
		return Result{RCode: packet.RcodeRefused}
	case ModeForwarding:
		return r.resolveForwarding(ctx, name, qtype)
	default:
		return r.resolveRecursive(ctx, name, qtype)
	}
}

func (r *Resolver) resolveForwarding(ctx context.Context, name string, qtype packet.QueryType) Result {
	resp, err := r.querier(ctx, r.ForwardAddr, name, qtype, true)
	if err != nil {
		r.observeUpstream("error")
		r.Logger.Warn("forwarding query failed", "upstream", r.ForwardAddr, "name", name, "error", err)
		return Result{RCode: packet.RcodeServFail}
	}
	r.observeUpstream("success")
	if resp.Header.ResCode == packet.RcodeNxDomain {
		r.cacheNegative(name, qtype)
	} else {
		r.cacheRecordSet(resp.Answers)
		r.cacheRecordSet(resp.Authorities)
		r.cacheRecordSet(resp.Resources)
	}
	return Result{Answers: resp.Answers, RCode: resp.Header.ResCode}
}

func (r *Resolver) observeCache(result string) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.CacheOperations.WithLabelValues(result).Inc()
}

func (r *Resolver) observeUpstream(outcome string) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.UpstreamQueries.WithLabelValues(outcome).Inc()
}

// recordGroupKey groups records pulled from a response's answer,
// authority, or additional section by their own owner name and type,
// since a referral's NS/glue records describe names other than the
// one being resolved.
type recordGroupKey struct {
	name  string
	qtype packet.QueryType
}

// cacheRecordSet inserts every record in recs into the cache under its
// own (Name, Type), grouping same-key records so they share one Insert
// call. Spec §4.4 requires every successful hop's answers, authorities,
// and additionals to be cached this way, not just the exact (name,
// qtype) pair being resolved, so later lookups for a delegated
// nameserver or its glue can short-circuit the descent.
func (r *Resolver) cacheRecordSet(recs []packet.DNSRecord) {
	if r.Cache == nil || len(recs) == 0 {
		return
	}
	groups := make(map[recordGroupKey][]packet.DNSRecord)
	for _, rec := range recs {
		key := recordGroupKey{name: rec.Name, qtype: rec.Type}
		groups[key] = append(groups[key], rec)
	}
	for key, group := range groups {
		r.Cache.Insert(key.name, key.qtype, group, minTTL(group))
	}
}

// cacheNegative stores an authoritative NXDOMAIN, the source behavior
// spec §8/S4 asks this cache to preserve: a negative answer is cached
// like any other record (SPEC_FULL.md §10, Open Question resolved).
// soaMinimum is unknown at this layer, so the negativeTTLFloor default
// applies; a zone-aware caller could supply the real SOA minimum.
func (r *Resolver) cacheNegative(name string, qtype packet.QueryType) {
	if r.Cache == nil {
		return
	}
	r.Cache.InsertNegative(name, qtype, cache.NegativeTTL(0))
}

func toPacketRecords(recs []authority.Record) []packet.DNSRecord {
	out := make([]packet.DNSRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ToPacketRecord())
	}
	return out
}

func minTTL(recs []packet.DNSRecord) time.Duration {
	min := time.Duration(0)
	for i, rec := range recs {
		ttl := time.Duration(rec.TTL) * time.Second
		if i == 0 || ttl < min {
			min = ttl
		}
	}
	return min
}
