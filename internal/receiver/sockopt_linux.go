//go:build linux

package receiver

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

func socketControl(readBufferBytes int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
				return
			}
			if readBufferBytes > 0 {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, readBufferBytes)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

// SO_RCVBUF is applied in socketControl.
func applyReadBuffer(net.PacketConn, int) error { return nil }
