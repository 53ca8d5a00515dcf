// Package archive persiste cada registro DATA aceptado como una posición
// histórica.
package archive

import (
	"time"

	"gps-svr/internal/pipeline"
)

type Position struct {
	DeviceID   uint16    `bson:"device_id" json:"deviceId"`
	Seq        uint16    `bson:"seq" json:"seq"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	ReceivedAt time.Time `bson:"received_at" json:"receivedAt"`
	Latitude   float64   `bson:"latitude" json:"latitude"`
	Longitude  float64   `bson:"longitude" json:"longitude"`
	Altitude   int       `bson:"altitude" json:"altitude"`
	Speed      float64   `bson:"speed" json:"speed"`
	Course     float64   `bson:"course" json:"course"`
	Battery    int       `bson:"battery" json:"battery"`
	Flags      uint16    `bson:"flags" json:"flags"`
	Valid      bool      `bson:"valid" json:"valid"` // fix GPS válido
	Live       bool      `bson:"live" json:"live"`
}

// FromTracking convierte el registro publicado en una posición.
func FromTracking(tr *pipeline.TrackingObject, receivedAt time.Time) *Position {
	return &Position{
		DeviceID:   tr.DeviceID,
		Seq:        tr.Seq,
		Timestamp:  time.Unix(tr.Unix, 0).UTC(),
		ReceivedAt: receivedAt.UTC(),
		Latitude:   tr.Lat,
		Longitude:  tr.Lon,
		Altitude:   tr.Alt,
		Speed:      tr.Spd,
		Course:     tr.Crs,
		Battery:    tr.Battery,
		Flags:      tr.Flags,
		Valid:      tr.Fix == 1,
		Live:       tr.MsgType == 1,
	}
}
