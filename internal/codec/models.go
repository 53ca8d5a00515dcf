package codec

import (
	"strings"
	"time"
)

// Constantes del protocolo
const (
	Version     = 0x01
	DefaultPort = 9999

	HeaderSize = 10
	DataSize   = 30

	// offset del campo checksum dentro de la cabecera
	checksumOffset = 6
)

type MsgType uint8

const (
	TypeData      MsgType = 0x01
	TypeAck       MsgType = 0x02
	TypeHeartbeat MsgType = 0x03
)

func (t MsgType) String() string {
	switch t {
	case TypeData:
		return "data"
	case TypeAck:
		return "ack"
	case TypeHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Flags es el bitmask de estado de la cabecera.
type Flags uint16

const (
	FlagLowBattery Flags = 0x01
	FlagSOS        Flags = 0x02
	FlagMoving     Flags = 0x04
	FlagIgnitionOn Flags = 0x08
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagLowBattery, "LOW_BATTERY"},
	{FlagSOS, "SOS"},
	{FlagMoving, "MOVING"},
	{FlagIgnitionOn, "IGNITION_ON"},
}

func (f Flags) Has(x Flags) bool { return f&x == x }

// String devuelve los flags activos separados por '|', o "-" si no hay ninguno.
func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

// Report es el payload de un mensaje DATA sin el timestamp.
type Report struct {
	LatE7      int32  `json:"lat_e7"`
	LonE7      int32  `json:"lon_e7"`
	AltitudeM  uint16 `json:"altitude_m"`
	SpeedD     uint16 `json:"speed_d"`   // km/h x10
	HeadingD   uint16 `json:"heading_d"` // grados x10, 0-3599
	BatteryPct uint8  `json:"battery_pct"`
	Status     uint8  `json:"status"`
}

type Message struct {
	Version  uint8
	Type     MsgType
	DeviceID uint16
	Seq      uint16
	Checksum uint16
	Flags    Flags

	// Solo para TypeData
	Report    Report
	Timestamp uint32
}

func (m Message) Time() time.Time {
	return time.Unix(int64(m.Timestamp), 0)
}

func (m Message) IsData() bool { return m.Type == TypeData }

// DegreesToE7 convierte grados a punto fijo x10^7 truncando hacia cero.
func DegreesToE7(deg float64) int32 {
	return int32(deg * 1e7)
}

func E7ToDegrees(v int32) float64 {
	return float64(v) / 1e7
}
