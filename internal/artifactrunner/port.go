package artifactrunner

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aipp-workbench/engine/internal/engineerr"
)

// PortRange returns the allocation window for a template kind: React
// templates claim [3001, 4000), Vue templates claim [3010, 4000).
func PortRange(kind string) (start, end int) {
	switch kind {
	case "vue", "vue-artifacts":
		return 3010, 4000
	default:
		return 3001, 4000
	}
}

// findAvailablePort returns the first port in [start, end) that can be bound
// on both 127.0.0.1 and 0.0.0.0, matching the dual-interface check the
// original runner performs before handing a port to the dev server.
func findAvailablePort(start, end int) (int, error) {
	for port := start; port < end; port++ {
		if bindable("127.0.0.1", port) && bindable("0.0.0.0", port) {
			return port, nil
		}
	}
	return 0, engineerr.New(engineerr.KindInternal, fmt.Sprintf("no free port in [%d, %d)", start, end))
}

func bindable(host string, port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

func isPortOpen(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 300*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// waitForReady polls 127.0.0.1:port every 300ms, up to 20 times.
func waitForReady(ctx context.Context, port int) error {
	const (
		interval   = 300 * time.Millisecond
		maxRetries = 20
	)
	for i := 0; i < maxRetries; i++ {
		if isPortOpen("127.0.0.1", port) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return engineerr.New(engineerr.KindTimeout, fmt.Sprintf("dev server on port %d did not become ready", port))
}

// PortFree reports whether port can currently be bound on 127.0.0.1, used by
// tests asserting a closed artifact released its port.
func PortFree(port int) bool {
	return bindable("127.0.0.1", port)
}
