//go:build !linux

package receiver

import (
	"net"
	"syscall"
)

func socketControl(int) func(network, address string, c syscall.RawConn) error { return nil }

func applyReadBuffer(conn net.PacketConn, readBufferBytes int) error {
	if readBufferBytes <= 0 {
		return nil
	}
	if uc, ok := conn.(*net.UDPConn); ok {
		return uc.SetReadBuffer(readBufferBytes)
	}
	return nil
}
