package pipeline

import (
	"context"
	"fmt"
	"time"

	"gps-svr/internal/codec"
	"gps-svr/internal/registry"
)

// Sink recibe cada registro DATA aceptado por el colector.
type Sink interface {
	Name() string
	Publish(ctx context.Context, tr *TrackingObject) error
}

// DeviceObserver es notificado cuando aparece un dispositivo nuevo y
// cuando un dispositivo conocido cambia de dirección de origen.
type DeviceObserver interface {
	DeviceConnected(ctx context.Context, deviceID uint16, remote string)
	DeviceUpdated(ctx context.Context, deviceID uint16, remote string)
}

// liveThreshold: reportes más viejos se marcan como buffer.
const liveThreshold = 120 * time.Second

func coordsValid(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return true
}

func CalcFix(lat, lon float64) int {
	if coordsValid(lat, lon) {
		return 1
	}
	return 0
}

func DecideMsgType(ts, now time.Time) int {
	if !ts.IsZero() && now.Sub(ts) > liveThreshold {
		return 0
	}
	return 1
}

// BuildTracking arma el objeto publicado a partir del mensaje y la sesión
// ya actualizada.
func BuildTracking(msg codec.Message, dev registry.Device, now time.Time) *TrackingObject {
	s := dev.Snapshot
	lat, lon := s.Lat(), s.Lon()
	return &TrackingObject{
		DeviceID: dev.ID,
		Seq:      msg.Seq,
		Datetime: s.Timestamp.UTC().Format(time.RFC3339),
		Unix:     s.Timestamp.Unix(),
		Lat:      lat,
		Lon:      lon,
		Alt:      int(s.AltitudeM),
		Spd:      s.SpeedKmh(),
		Crs:      s.HeadingDeg(),
		Battery:  int(s.BatteryPct),
		Flags:    uint16(s.Flags),
		MsgType:  DecideMsgType(s.Timestamp, now),
		Fix:      CalcFix(lat, lon),
	}
}

func ToGRPC(tr *TrackingObject) []string {
	out := fmt.Sprintf(
		`{"device_id":%d,"seq":%d,"dt":"%s","lat":%.7f,"lon":%.7f,"alt":%d,"spd":%.1f,"crs":%.1f,"bat":%d,"flags":%d,"msg_type":%d,"fix":%d}`,
		tr.DeviceID, tr.Seq, tr.Datetime, tr.Lat, tr.Lon, tr.Alt, tr.Spd, tr.Crs,
		tr.Battery, tr.Flags, tr.MsgType, tr.Fix,
	)
	return []string{out}
}
