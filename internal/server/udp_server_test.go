package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"gps-svr/internal/codec"
	"gps-svr/internal/dispatcher"
	"gps-svr/internal/registry"
)

func startServer(t *testing.T, sendAck bool) (*UDPServer, *dispatcher.Dispatcher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dispatcher.New(dispatcher.Config{SendAck: sendAck}, registry.New(logger), logger)

	srv, err := Listen("127.0.0.1:0", d, 50*time.Millisecond, logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not stop after cancel")
		}
		srv.Close()
	})
	return srv, d
}

func dial(t *testing.T, srv *UDPServer) net.Conn {
	t.Helper()
	conn, err := net.Dial("udp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServeAcknowledgesData(t *testing.T) {
	srv, d := startServer(t, true)
	conn := dial(t, srv)

	report := codec.Report{LatE7: -173935000, LonE7: -661570000, AltitudeM: 2558, SpeedD: 450, HeadingD: 1350, BatteryPct: 85}
	if _, err := conn.Write(codec.EncodeData(4321, 42, report, codec.FlagMoving)); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("no ack: %v", err)
	}
	ack, err := codec.Decode(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if n != codec.HeaderSize || ack.Type != codec.TypeAck || ack.DeviceID != 4321 || ack.Seq != 42 {
		t.Fatalf("ack = %+v (%d bytes)", ack, n)
	}

	dev, ok := d.Registry().Get(4321)
	if !ok || dev.LastSeq != 42 {
		t.Fatalf("device = %+v ok=%v", dev, ok)
	}

	// sin ACK para el duplicado
	if _, err := conn.Write(codec.EncodeData(4321, 42, report, codec.FlagMoving)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("duplicate was acknowledged")
	}
	if st := d.Stats(); st.AcksSent != 1 {
		t.Fatalf("acks sent = %d", st.AcksSent)
	}
}

func TestServeSurvivesGarbage(t *testing.T) {
	srv, d := startServer(t, true)
	conn := dial(t, srv)

	for _, b := range [][]byte{{0xFF}, make([]byte, 30), []byte("hello world, not gps")} {
		if _, err := conn.Write(b); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := conn.Write(codec.EncodeHeartbeat(9, 1, 0)); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("no ack after garbage: %v", err)
	}
	if ack, err := codec.Decode(buf[:n]); err != nil || ack.Seq != 1 {
		t.Fatalf("ack = %+v err = %v", ack, err)
	}
	if st := d.Stats(); st.Errors != 3 {
		t.Fatalf("errors = %d, want 3", st.Errors)
	}
}

func TestServeReturnsWhenSocketClosed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dispatcher.New(dispatcher.Config{}, registry.New(logger), logger)
	srv, err := Listen("127.0.0.1:0", d, 50*time.Millisecond, logger)
	if err != nil {
		t.Fatal(err)
	}
	srv.Close()

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve kept running on a closed socket")
	}
}
