// Package vehicle es el modelo de movimiento simulado que alimenta al
// cliente: una caminata aleatoria de velocidad y rumbo.
package vehicle

import (
	"math"
	"math/rand/v2"
	"time"

	"gps-svr/internal/codec"
)

const (
	maxSpeedKmh      = 120
	lowBatteryPct    = 20
	degreesPerKm     = 0.01
	defaultLatitude  = -17.3935
	defaultLongitude = -66.1570
	defaultAltitude  = 2558
)

type Model struct {
	Lat        float64
	Lon        float64
	AltitudeM  uint16
	SpeedKmh   float64
	HeadingDeg float64
	Battery    float64
	Moving     bool
	Ignition   bool

	rng *rand.Rand
}

// New arranca en Cochabamba, detenido y con batería llena.
func New(rng *rand.Rand) *Model {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Model{
		Lat:       defaultLatitude,
		Lon:       defaultLongitude,
		AltitudeM: defaultAltitude,
		Battery:   100,
		rng:       rng,
	}
}

// Step avanza el modelo dt.
func (m *Model) Step(dt time.Duration) {
	secs := dt.Seconds()
	if m.Moving {
		dist := m.SpeedKmh / 3600 * secs * degreesPerKm
		rad := m.HeadingDeg * math.Pi / 180
		m.Lat += dist * math.Cos(rad)
		m.Lon += dist * math.Sin(rad)

		m.SpeedKmh = clamp(m.SpeedKmh+m.uniform(-2, 2), 0, maxSpeedKmh)
		m.HeadingDeg = math.Mod(m.HeadingDeg+m.uniform(-5, 5)+360, 360)
		m.Battery -= m.uniform(0.01, 0.05)
	} else {
		m.Battery -= m.uniform(0.001, 0.01)
	}
	m.Battery = math.Max(0, m.Battery)
}

func (m *Model) Flags() codec.Flags {
	var f codec.Flags
	if m.Battery < lowBatteryPct {
		f |= codec.FlagLowBattery
	}
	if m.Moving {
		f |= codec.FlagMoving
	}
	if m.Ignition {
		f |= codec.FlagIgnitionOn
	}
	return f
}

// Report convierte el estado actual a las unidades del protocolo.
func (m *Model) Report() codec.Report {
	heading := uint16(m.HeadingDeg * 10)
	if heading > 3599 {
		heading = 3599
	}
	return codec.Report{
		LatE7:      codec.DegreesToE7(m.Lat),
		LonE7:      codec.DegreesToE7(m.Lon),
		AltitudeM:  m.AltitudeM,
		SpeedD:     uint16(m.SpeedKmh * 10),
		HeadingD:   heading,
		BatteryPct: uint8(clamp(m.Battery, 0, 100)),
	}
}

func (m *Model) uniform(lo, hi float64) float64 {
	return lo + m.rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
