package searchexec

import (
	"net"
	"time"
)

const proxyProbeTimeout = 3 * time.Second

// ProxyConfig is an optional upstream proxy the browser should route through.
type ProxyConfig struct {
	Server string // host:port
}

// ProbeProxy TCP-dials cfg.Server with a 3s timeout. An unreachable proxy is
// not a hard failure: callers should log it and launch without a proxy
// rather than aborting.
func ProbeProxy(cfg ProxyConfig) bool {
	if cfg.Server == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", cfg.Server, proxyProbeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
