package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rtu-receiver/internal/jsonl"
)

// MaxDatagramSize is the largest UDP payload read from the socket.
const MaxDatagramSize = 65535

var ErrTimeout = errors.New("no datagram received before timeout")

// Server reads datagrams from a UDP socket and hands them to Handler through
// a bounded queue drained by Workers goroutines.
type Server struct {
	Handler    *Handler
	Status     *Status
	Log        zerolog.Logger
	MaxPending int
	Workers    int

	now func() time.Time
}

// Listen binds a UDP socket on addr. readBufferBytes > 0 sets SO_RCVBUF.
func Listen(ctx context.Context, addr string, readBufferBytes int) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: socketControl(readBufferBytes)}
	conn, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	if err := applyReadBuffer(conn, readBufferBytes); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set read buffer: %w", err)
	}
	return conn, nil
}

// Serve reads from conn until ctx is done or the socket fails. It closes conn
// and waits for queued datagrams to be handled before returning. A cancelled
// ctx is a clean shutdown and returns nil.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	pending := s.MaxPending
	if pending < 1 {
		pending = 1
	}
	s.Status.SetListen(conn.LocalAddr().String())

	queue := make(chan Datagram, pending)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range queue {
				// Handler logs its own failures.
				_ = s.Handler.Handle(d)
			}
		}()
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.Log.Info().Str("listen", conn.LocalAddr().String()).Int("workers", workers).
		Int("max_pending", pending).Msg("listening")

	var readErr error
	buf := make([]byte, MaxDatagramSize)
	for {
		d, err := s.read(conn, buf)
		if err != nil {
			if ctx.Err() == nil {
				readErr = err
			}
			break
		}
		select {
		case queue <- d:
		default:
			s.Status.markDropped()
			s.Log.Warn().Str("src_ip", d.Source.IP).Int("src_port", d.Source.Port).
				Int("len", len(d.Data)).Int("max_pending", pending).Msg("queue full, datagram dropped")
			// Handler logs its own failures.
			_ = s.Handler.Overflow(d, pending)
		}
	}

	_ = conn.Close()
	close(queue)
	wg.Wait()
	if readErr != nil {
		return fmt.Errorf("read udp: %w", readErr)
	}
	return nil
}

// ServeOnce handles exactly one datagram synchronously. It returns ErrTimeout
// when nothing arrives within timeout.
func (s *Server) ServeOnce(ctx context.Context, conn net.PacketConn, timeout time.Duration) error {
	defer conn.Close()
	s.Status.SetListen(conn.LocalAddr().String())

	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, MaxDatagramSize)
	d, err := s.read(conn, buf)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return ErrTimeout
		}
		return fmt.Errorf("read udp: %w", err)
	}
	return s.Handler.Handle(d)
}

func (s *Server) read(conn net.PacketConn, buf []byte) (Datagram, error) {
	n, addr, err := conn.ReadFrom(buf)
	if err != nil {
		return Datagram{}, err
	}
	d := Datagram{
		Data:       append([]byte(nil), buf[:n]...),
		Source:     sourceOf(addr),
		ReceivedAt: s.clock(),
	}
	s.Status.markReceived(d.ReceivedAt)
	return d, nil
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func sourceOf(addr net.Addr) jsonl.Source {
	if ua, ok := addr.(*net.UDPAddr); ok {
		return jsonl.Source{IP: ua.IP.String(), Port: ua.Port}
	}
	if addr == nil {
		return jsonl.Source{}
	}
	return jsonl.Source{IP: addr.String()}
}
