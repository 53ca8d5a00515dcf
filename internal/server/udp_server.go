package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"gps-svr/internal/dispatcher"
)

const (
	DefaultPollTimeout = time.Second
	readBufferSize     = 2048
)

// UDPServer es el lazo de recepción del colector. Un solo goroutine lee,
// procesa y responde; el timeout de lectura solo sirve para notar ctx.Done.
type UDPServer struct {
	conn        net.PacketConn
	dispatcher  *dispatcher.Dispatcher
	pollTimeout time.Duration
	logger      *slog.Logger
}

func Listen(addr string, d *dispatcher.Dispatcher, pollTimeout time.Duration, logger *slog.Logger) (*UDPServer, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("error starting UDP server: %w", err)
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &UDPServer{
		conn:        conn,
		dispatcher:  d,
		pollTimeout: pollTimeout,
		logger:      logger.With("component", "udp_server"),
	}, nil
}

func (s *UDPServer) Addr() net.Addr { return s.conn.LocalAddr() }

func (s *UDPServer) Close() error { return s.conn.Close() }

// Serve corre hasta que ctx se cancela. Los errores de un datagrama nunca
// detienen el lazo.
func (s *UDPServer) Serve(ctx context.Context) error {
	s.logger.Info("UDP server listening", "addr", s.Addr().String())

	buffer := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		// sin deadline el lazo no podría notar la cancelación de ctx
		if err := s.conn.SetReadDeadline(time.Now().Add(s.pollTimeout)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, from, err := s.conn.ReadFrom(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("read error", "err", err)
			continue
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])

		res := s.dispatcher.Handle(ctx, data, from)
		if res.Reply == nil {
			continue
		}
		if _, err := s.conn.WriteTo(res.Reply, from); err != nil {
			s.logger.Error("ack send failed", "device", res.Msg.DeviceID, "seq", res.Msg.Seq, "err", err)
			continue
		}
		s.dispatcher.AckSent()
		s.logger.Debug("ack sent", "device", res.Msg.DeviceID, "seq", res.Msg.Seq, "remote", from.String())
	}
}
