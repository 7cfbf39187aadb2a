//go:build linux

package receiver

import (
	"context"
	"net"
	"testing"

	"golang.org/x/sys/unix"
)

func sockoptInt(t *testing.T, conn net.PacketConn, opt int) int {
	t.Helper()
	raw, err := conn.(*net.UDPConn).SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn() error: %v", err)
	}
	var v int
	var getErr error
	if err := raw.Control(func(fd uintptr) {
		v, getErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, opt)
	}); err != nil {
		t.Fatalf("Control() error: %v", err)
	}
	if getErr != nil {
		t.Fatalf("GetsockoptInt() error: %v", getErr)
	}
	return v
}

func TestListen_SetsSocketOptions(t *testing.T) {
	conn, err := Listen(context.Background(), "127.0.0.1:0", 64*1024)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer conn.Close()

	if v := sockoptInt(t, conn, unix.SO_REUSEADDR); v == 0 {
		t.Fatalf("SO_REUSEADDR not set")
	}
	// The kernel doubles the requested size for bookkeeping.
	if v := sockoptInt(t, conn, unix.SO_RCVBUF); v < 64*1024 {
		t.Fatalf("SO_RCVBUF=%d want >= %d", v, 64*1024)
	}
}
