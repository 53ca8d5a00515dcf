package dispatcher

import (
	"encoding/json"
	"net/http"
	"time"
)

type deviceStatus struct {
	DeviceID   uint16    `json:"device_id"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	LastSeq    uint16    `json:"last_seq"`
	Received   uint64    `json:"received"`
	Lost       uint64    `json:"lost"`
	Duplicated uint64    `json:"duplicated"`

	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
	Altitude   uint16   `json:"alt,omitempty"`
	SpeedKmh   float64  `json:"spd,omitempty"`
	HeadingDeg float64  `json:"crs,omitempty"`
	Battery    uint8    `json:"bat,omitempty"`
	Flags      string   `json:"flags,omitempty"`
}

type statusPayload struct {
	Stats   Stats          `json:"stats"`
	Devices []deviceStatus `json:"devices"`
}

// StatusHandler expone los contadores y la tabla de dispositivos en JSON.
func (d *Dispatcher) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		devs := d.reg.Devices()
		out := statusPayload{Stats: d.Stats(), Devices: make([]deviceStatus, 0, len(devs))}
		for _, dev := range devs {
			ds := deviceStatus{
				DeviceID:   dev.ID,
				FirstSeen:  dev.FirstSeen,
				LastSeen:   dev.LastSeen,
				LastSeq:    dev.LastSeq,
				Received:   dev.Received,
				Lost:       dev.Lost,
				Duplicated: dev.Duplicated,
			}
			if s := dev.Snapshot; s.HasFix() {
				lat, lon := s.Lat(), s.Lon()
				ds.Lat, ds.Lon = &lat, &lon
				ds.Altitude = s.AltitudeM
				ds.SpeedKmh = s.SpeedKmh()
				ds.HeadingDeg = s.HeadingDeg()
				ds.Battery = s.BatteryPct
				ds.Flags = s.Flags.String()
			}
			out.Devices = append(out.Devices, ds)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			d.logger.Debug("write status response failed", "err", err)
		}
	})
}
