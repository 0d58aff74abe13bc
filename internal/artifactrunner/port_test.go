package artifactrunner

import (
	"net"
	"testing"
)

func TestFindAvailablePortSkipsBoundPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	got, err := findAvailablePort(port, port+1)
	if err == nil {
		t.Errorf("findAvailablePort() = %d, want error for a range containing only a bound port", got)
	}
}

func TestFindAvailablePortReturnsFreePort(t *testing.T) {
	port, err := findAvailablePort(20000, 20100)
	if err != nil {
		t.Fatalf("findAvailablePort() error = %v", err)
	}
	if !PortFree(port) {
		t.Errorf("findAvailablePort() returned %d, which is not actually free", port)
	}
}

func TestPortFreeAfterListenerCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if PortFree(port) {
		t.Error("PortFree() = true while listener is still bound")
	}
	ln.Close()
	if !PortFree(port) {
		t.Error("PortFree() = false after listener closed, want true")
	}
}
