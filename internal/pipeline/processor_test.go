package pipeline

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"gps-svr/internal/codec"
	"gps-svr/internal/registry"
)

func TestBuildTracking(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	msg := codec.Message{Type: codec.TypeData, DeviceID: 4321, Seq: 42, Flags: codec.FlagMoving}
	dev := registry.Device{
		ID: 4321,
		Snapshot: registry.Snapshot{
			LatE7: -173935000, LonE7: -661570000, AltitudeM: 2558,
			SpeedD: 450, HeadingD: 1350, BatteryPct: 85,
			Flags: codec.FlagMoving, Timestamp: ts, RecordedAt: ts,
		},
	}

	tr := BuildTracking(msg, dev, ts.Add(time.Second))
	if tr.DeviceID != 4321 || tr.Seq != 42 || tr.Alt != 2558 || tr.Battery != 85 {
		t.Fatalf("tracking = %+v", tr)
	}
	if math.Abs(tr.Lat-(-17.3935)) > 1e-9 || math.Abs(tr.Lon-(-66.157)) > 1e-9 {
		t.Errorf("lat/lon = %v/%v", tr.Lat, tr.Lon)
	}
	if tr.Spd != 45 || tr.Crs != 135 || tr.Flags != uint16(codec.FlagMoving) {
		t.Errorf("spd/crs/flags = %v/%v/%v", tr.Spd, tr.Crs, tr.Flags)
	}
	if tr.MsgType != 1 || tr.Fix != 1 || tr.Datetime != "2023-11-14T22:13:20Z" {
		t.Errorf("msg_type/fix/dt = %d/%d/%s", tr.MsgType, tr.Fix, tr.Datetime)
	}

	if old := BuildTracking(msg, dev, ts.Add(10*time.Minute)); old.MsgType != 0 {
		t.Errorf("old report msg_type = %d, want 0", old.MsgType)
	}
}

func TestCalcFix(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     int
	}{
		{-17.39, -66.15, 1},
		{0, 0, 0},
		{91, 10, 0},
		{10, -181, 0},
	}
	for _, tt := range tests {
		if got := CalcFix(tt.lat, tt.lon); got != tt.want {
			t.Errorf("CalcFix(%v, %v) = %d, want %d", tt.lat, tt.lon, got, tt.want)
		}
	}
}

func TestToGRPCIsJSON(t *testing.T) {
	tr := &TrackingObject{DeviceID: 7, Seq: 3, Datetime: "2024-01-01T00:00:00Z", Lat: 1.5, Lon: -2.25, Spd: 12.5}
	out := ToGRPC(tr)
	if len(out) != 1 {
		t.Fatalf("len = %d", len(out))
	}
	var decoded TrackingObject
	if err := json.Unmarshal([]byte(out[0]), &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v (%s)", err, out[0])
	}
	if decoded.DeviceID != 7 || decoded.Lat != 1.5 || decoded.Spd != 12.5 {
		t.Fatalf("decoded = %+v", decoded)
	}
}
