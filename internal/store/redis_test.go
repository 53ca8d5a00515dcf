package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gps-svr/internal/pipeline"
)

func TestKeys(t *testing.T) {
	if got := SnapshotKey(4321); got != "dev:4321:snapshot" {
		t.Errorf("SnapshotKey = %q", got)
	}
	// 2023-11-15 01:00 en UTC-4 sigue siendo el 15 en UTC
	day := time.Date(2023, 11, 14, 21, 0, 0, 0, time.FixedZone("BOT", -4*3600))
	if got := CountKey(7, day); got != "dev:7:count:20231115" {
		t.Errorf("CountKey = %q", got)
	}
}

func TestSnapshotEncoding(t *testing.T) {
	tr := &pipeline.TrackingObject{
		DeviceID: 4321, Seq: 42, Datetime: "2023-11-14T22:13:20Z", Unix: 1_700_000_000,
		Lat: -17.3935, Lon: -66.157, Alt: 2558, Spd: 45, Crs: 135, Battery: 85,
		Flags: 4, MsgType: 1, Fix: 1,
	}
	b, err := EncodeSnapshot(tr)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeSnapshot(b)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *tr {
		t.Fatalf("decoded = %+v, want %+v", got, tr)
	}

	if _, err := DecodeSnapshot([]byte{0xFF, 0x00}); err == nil {
		t.Fatal("expected error for garbage")
	}
}

func TestPublishUnreachable(t *testing.T) {
	// puerto cerrado: reservamos uno y lo liberamos
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	r := newRedis(&redis.Options{Addr: addr, DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer r.Close()

	if r.Name() != "redis" {
		t.Fatalf("Name = %q", r.Name())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Publish(ctx, &pipeline.TrackingObject{DeviceID: 1}); err == nil {
		t.Fatal("expected publish error")
	}
	if err := r.Publish(ctx, nil); err != nil {
		t.Fatalf("nil record: %v", err)
	}
}

func newMiniRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), mr.Addr(), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestPublishLoadAndCount(t *testing.T) {
	ctx := context.Background()
	r, mr := newMiniRedis(t)
	ts := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	if _, err := r.LoadSnapshot(ctx, 4321); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty LoadSnapshot err = %v", err)
	}

	for seq := uint16(42); seq <= 44; seq++ {
		tr := &pipeline.TrackingObject{DeviceID: 4321, Seq: seq, Unix: ts.Unix(), Lat: -17.3935, Lon: -66.157, Fix: 1}
		if err := r.Publish(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	snap, err := r.LoadSnapshot(ctx, 4321)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Seq != 44 || snap.Lat != -17.3935 || snap.Fix != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	n, err := r.DailyCount(ctx, 4321, ts)
	if err != nil || n != 3 {
		t.Fatalf("DailyCount = %d, %v", n, err)
	}
	if n, err := r.DailyCount(ctx, 4321, ts.Add(24*time.Hour)); err != nil || n != 0 {
		t.Fatalf("next day count = %d, %v", n, err)
	}
	if ttl := mr.TTL(CountKey(4321, ts)); ttl != countTTL {
		t.Fatalf("count TTL = %v", ttl)
	}
	if ttl := mr.TTL(SnapshotKey(4321)); ttl != 0 {
		t.Fatalf("snapshot TTL = %v, want none", ttl)
	}
}

func TestSnapshotHandler(t *testing.T) {
	ctx := context.Background()
	r, _ := newMiniRedis(t)
	now := time.Now()
	if err := r.Publish(ctx, &pipeline.TrackingObject{DeviceID: 7, Seq: 9, Unix: now.Unix(), Battery: 85}); err != nil {
		t.Fatal(err)
	}
	h := r.SnapshotHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		query string
		code  int
	}{
		{"device=7", http.StatusOK},
		{"device=8", http.StatusNotFound},
		{"device=70000", http.StatusBadRequest},
		{"", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot?"+tt.query, nil))
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.code, rec.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			var body snapshotResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.DeviceID != 7 || body.Snapshot == nil || body.Snapshot.Seq != 9 || body.TodayCount != 1 {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}
