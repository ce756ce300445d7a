package resolver

import (
	"context"
	mrand "math/rand"
	"net"

	"github.com/poyrazK/hermesdns/internal/dns/packet"
)

// rootHints are the 13 IANA root server addresses, the starting point
// for any iterative descent (spec §4.1).
var rootHints = []string{
	"198.41.0.4",     // a.root-servers.net
	"170.247.170.2",  // b.root-servers.net
	"192.33.4.12",    // c.root-servers.net
	"199.7.91.13",    // d.root-servers.net
	"192.203.230.10", // e.root-servers.net
	"192.5.5.241",    // f.root-servers.net
	"192.112.36.4",   // g.root-servers.net
	"198.97.190.53",  // h.root-servers.net
	"192.36.148.17",  // i.root-servers.net
	"192.58.128.30",  // j.root-servers.net
	"193.0.14.129",   // k.root-servers.net
	"199.7.83.42",    // l.root-servers.net
	"202.12.27.33",   // m.root-servers.net
}

func shuffledRoots() []string {
	shuffled := make([]string, len(rootHints))
	copy(shuffled, rootHints)
	// #nosec G404 -- load-balancing across root hints, not a security boundary
	mrand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// resolveRecursive walks the delegation chain for (name, qtype),
// starting from a randomly-ordered root hint and following NS
// referrals until an authoritative answer, NXDOMAIN, or the descent
// bound is reached. Unlike the ancestor this is generalised from, the
// requested qtype is carried all the way down rather than hardcoded
// to A (SPEC_FULL.md §5.4).
func (r *Resolver) resolveRecursive(ctx context.Context, name string, qtype packet.QueryType) Result {
	var lastErr error

roots:
	for _, root := range shuffledRoots() {
		ns := root
		for depth := 0; depth < maxDescentDepth; depth++ {
			serverAddr := net.JoinHostPort(ns, "53")
			r.Logger.Info("recursive lookup", "name", name, "qtype", qtype, "ns", ns, "depth", depth)

			resp, err := r.querier(ctx, serverAddr, name, qtype, false)
			if err != nil {
				lastErr = err
				r.observeUpstream("error")
				r.Logger.Warn("recursive query failed", "ns", ns, "error", err)
				continue roots
			}
			r.observeUpstream("success")

			// Every hop's NS/glue are cached, answer or not, so a later
			// descent for a sibling name can skip straight past this
			// delegation (spec §4.4).
			r.cacheRecordSet(resp.Authorities)
			r.cacheRecordSet(resp.Resources)

			if len(resp.Answers) > 0 && resp.Header.ResCode == packet.RcodeNoError {
				r.cacheRecordSet(resp.Answers)
				return Result{Answers: resp.Answers, Authorities: resp.Authorities, Additionals: resp.Resources, RCode: packet.RcodeNoError}
			}

			if resp.Header.ResCode == packet.RcodeNxDomain {
				r.cacheNegative(name, qtype)
				return Result{RCode: packet.RcodeNxDomain}
			}

			if nextNS, ok := r.findNextNS(ctx, resp, depth); ok {
				ns = nextNS
				continue
			}

			// No referral and no answer: this server is authoritative
			// for the name but has nothing for this qtype.
			return Result{RCode: packet.RcodeNoError}
		}

		r.Logger.Warn("recursion exceeded descent depth", "name", name, "max_depth", maxDescentDepth)
		return Result{RCode: packet.RcodeServFail}
	}

	if lastErr != nil {
		r.Logger.Warn("recursion exhausted all root servers", "name", name, "error", lastErr)
	}
	return Result{RCode: packet.RcodeServFail}
}

// findNextNS picks the next server to query from a referral response:
// prefer glue (an A record in Additionals matching the delegated NS
// hostname), falling back to any A glue present, and finally resolving
// the NS hostname itself via a bounded nested A lookup when no glue
// was supplied at all (spec §4.1, "un-glued NS" case). NS and glue
// candidates are tried in random order to spread load.
func (r *Resolver) findNextNS(ctx context.Context, resp *packet.DNSPacket, depth int) (string, bool) {
	auths := append([]packet.DNSRecord(nil), resp.Authorities...)
	glue := append([]packet.DNSRecord(nil), resp.Resources...)
	// #nosec G404 -- load-balancing across delegated servers, not a security boundary
	mrand.Shuffle(len(auths), func(i, j int) { auths[i], auths[j] = auths[j], auths[i] })
	// #nosec G404 -- load-balancing across delegated servers, not a security boundary
	mrand.Shuffle(len(glue), func(i, j int) { glue[i], glue[j] = glue[j], glue[i] })

	var nsHost string
	for _, auth := range auths {
		if auth.Type != packet.NS {
			continue
		}
		if nsHost == "" {
			nsHost = auth.Host
		}
		for _, add := range glue {
			if add.Type == packet.A && add.Name == auth.Host {
				return add.IP.String(), true
			}
		}
	}
	for _, add := range glue {
		if add.Type == packet.A {
			return add.IP.String(), true
		}
	}

	// No glue at all: resolve the nameserver's own address. The depth at
	// which each nested lookup starts is carried in ctx and added up, so
	// a chain of un-glued NS records nests at most maxDescentDepth levels
	// deep.
	type nestedDepthKey struct{}
	base, _ := ctx.Value(nestedDepthKey{}).(int)
	if nsHost == "" || base+depth+1 >= maxDescentDepth {
		return "", false
	}
	sub := r.resolveRecursive(context.WithValue(ctx, nestedDepthKey{}, base+depth+1), nsHost, packet.A)
	if sub.RCode != packet.RcodeNoError || len(sub.Answers) == 0 {
		return "", false
	}
	for _, rec := range sub.Answers {
		if rec.Type == packet.A {
			return rec.IP.String(), true
		}
	}
	return "", false
}
