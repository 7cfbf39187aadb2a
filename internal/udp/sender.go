package udp

import (
	"fmt"
	"io"
	"net"
)

type udpConn interface {
	io.Writer
	io.Closer
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Sender writes datagrams to a single destination.
type Sender struct {
	dest string
	conn udpConn
}

func NewSender(dest string) (*Sender, error) {
	return newSender(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newSender(dest string, resolve resolveFunc, dial dialFunc) (*Sender, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Sender{dest: dest, conn: conn}, nil
}

func (s *Sender) Dest() string { return s.dest }

// Send writes one datagram. Empty payloads are skipped.
func (s *Sender) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	n, err := s.conn.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(payload))
	}
	return nil
}

func (s *Sender) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
