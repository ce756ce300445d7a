// Package config resolves startup configuration from flags with
// environment variable overrides, the way the teacher's binaries are
// configured (spec's CLI flag parsing is a thin shell; this is the
// ambient parsing layer underneath it).
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/poyrazK/hermesdns/internal/resolver"
)

// Config is the fully-resolved set of knobs main() needs to wire a
// Server together.
type Config struct {
	Addr          string
	Mode          resolver.Mode
	ForwardAddr   string
	ZoneFile      string
	RedisAddr     string
	AdminAddr     string
	MetricsAddr   string
}

// Parse builds a Config from args (parsed with its own FlagSet) plus HERMES_* environment
// overrides, matching the teacher's "flags define defaults, env vars
// win" convention.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("hermesd", flag.ContinueOnError)

	port := fs.Int("port", 10053, "UDP port to listen on")
	authorityOnly := fs.Bool("authority-only", false, "never resolve outside the local zone store")
	forward := fs.String("forward", "", "forward cache/authority misses to this upstream (host:port); empty enables recursive resolution")
	zoneFile := fs.String("zone-file", "", "optional RFC 1035 master zone file to preload at startup")
	redisAddr := fs.String("redis-addr", "", "optional Redis address for the L2 cache mirror")
	adminAddr := fs.String("admin-addr", "127.0.0.1:8080", "address for the admin HTTP interface")
	metricsAddr := fs.String("metrics-addr", "", "parsed into Config.MetricsAddr but not used by hermesd; metrics are always served on admin-addr")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("HERMES_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid HERMES_PORT %q: %w", v, err)
		}
		*port = p
	}
	if v := os.Getenv("HERMES_FORWARD"); v != "" {
		*forward = v
	}
	if v := os.Getenv("HERMES_AUTHORITY_ONLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid HERMES_AUTHORITY_ONLY %q: %w", v, err)
		}
		*authorityOnly = b
	}
	if v := os.Getenv("HERMES_ZONE_FILE"); v != "" {
		*zoneFile = v
	}
	if v := os.Getenv("HERMES_REDIS_ADDR"); v != "" {
		*redisAddr = v
	}
	if v := os.Getenv("HERMES_ADMIN_ADDR"); v != "" {
		*adminAddr = v
	}

	mode := resolver.ModeRecursive
	switch {
	case *authorityOnly:
		mode = resolver.ModeAuthorityOnly
	case *forward != "":
		mode = resolver.ModeForwarding
	}

	return Config{
		Addr:        fmt.Sprintf("0.0.0.0:%d", *port),
		Mode:        mode,
		ForwardAddr: *forward,
		ZoneFile:    *zoneFile,
		RedisAddr:   *redisAddr,
		AdminAddr:   *adminAddr,
		MetricsAddr: *metricsAddr,
	}, nil
}
