package searchexec

import "testing"

func TestProbeProxyEmptyServerReturnsFalse(t *testing.T) {
	if ProbeProxy(ProxyConfig{}) {
		t.Error("ProbeProxy(empty) = true, want false")
	}
}

func TestProbeProxyUnreachableServerReturnsFalse(t *testing.T) {
	if ProbeProxy(ProxyConfig{Server: "127.0.0.1:1"}) {
		t.Error("ProbeProxy(unreachable) = true, want false")
	}
}
