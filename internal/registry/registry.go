package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"gps-svr/internal/codec"
	"gps-svr/internal/sequence"
)

// Snapshot es la última telemetría DATA aceptada de un dispositivo.
type Snapshot struct {
	LatE7      int32
	LonE7      int32
	AltitudeM  uint16
	SpeedD     uint16
	HeadingD   uint16
	BatteryPct uint8
	Flags      codec.Flags
	Timestamp  time.Time // timestamp embebido en el mensaje
	RecordedAt time.Time
}

func (s Snapshot) HasFix() bool { return !s.RecordedAt.IsZero() }

func (s Snapshot) Lat() float64 { return codec.E7ToDegrees(s.LatE7) }
func (s Snapshot) Lon() float64 { return codec.E7ToDegrees(s.LonE7) }

// SpeedKmh y HeadingDeg deshacen la escala x10 del protocolo.
func (s Snapshot) SpeedKmh() float64   { return float64(s.SpeedD) / 10 }
func (s Snapshot) HeadingDeg() float64 { return float64(s.HeadingD) / 10 }

// Device es el estado de secuencia y telemetría de un id de dispositivo.
type Device struct {
	ID         uint16
	FirstSeen  time.Time
	LastSeen   time.Time
	LastSeq    uint16
	Received   uint64
	Lost       uint64
	Duplicated uint64

	Snapshot Snapshot

	LastHeartbeat  time.Time
	HeartbeatFlags codec.Flags

	// Remote es la última dirección desde la que llegó un mensaje.
	Remote string
}

// Registry es el mapa de dispositivos conocidos del colector. Lo escribe
// un único dispatcher; el mutex permite lecturas concurrentes (HTTP, stats).
// Las entradas nunca se eliminan durante la ejecución.
type Registry struct {
	mu      sync.RWMutex
	devices map[uint16]*Device
	now     func() time.Time
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		devices: make(map[uint16]*Device),
		now:     time.Now,
		logger:  logger.With("component", "registry"),
	}
}

// SetClock reemplaza la fuente de tiempo (tests).
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Touch busca o crea la sesión del dispositivo y refresca LastSeen.
func (r *Registry) Touch(id uint16) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	dev, ok := r.devices[id]
	if !ok {
		dev = &Device{ID: id, FirstSeen: now}
		r.devices[id] = dev
		r.logger.Info("new device", "device", id)
	}
	dev.LastSeen = now
	return *dev, !ok
}

// SetRemote guarda la dirección de origen del dispositivo y devuelve la
// anterior. changed es true solo si ya había una dirección y es distinta.
func (r *Registry) SetRemote(id uint16, remote string) (previous string, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[id]
	if !ok || remote == "" {
		return "", false
	}
	previous = dev.Remote
	dev.Remote = remote
	return previous, previous != "" && previous != remote
}

// Classify compara seq contra la última secuencia aceptada del dispositivo.
// Un dispositivo desconocido parte de LastSeq=0.
func (r *Registry) Classify(id, seq uint16) sequence.Verdict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last uint16
	if dev, ok := r.devices[id]; ok {
		last = dev.LastSeq
	}
	return sequence.Classify(last, seq)
}

// Record aplica el veredicto. Fresh avanza LastSeq y los contadores; solo
// DATA sobrescribe el snapshot. Stale incrementa Duplicated y nada más.
func (r *Registry) Record(id uint16, v sequence.Verdict, msg codec.Message) Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	dev, ok := r.devices[id]
	if !ok {
		dev = &Device{ID: id, FirstSeen: now, LastSeen: now}
		r.devices[id] = dev
	}

	if !v.Fresh() {
		dev.Duplicated++
		return *dev
	}

	dev.LastSeq = msg.Seq
	dev.Received++
	dev.Lost += uint64(v.Lost)

	switch msg.Type {
	case codec.TypeData:
		dev.Snapshot = Snapshot{
			LatE7:      msg.Report.LatE7,
			LonE7:      msg.Report.LonE7,
			AltitudeM:  msg.Report.AltitudeM,
			SpeedD:     msg.Report.SpeedD,
			HeadingD:   msg.Report.HeadingD,
			BatteryPct: msg.Report.BatteryPct,
			Flags:      msg.Flags,
			Timestamp:  msg.Time(),
			RecordedAt: now,
		}
	case codec.TypeHeartbeat:
		dev.LastHeartbeat = now
		dev.HeartbeatFlags = msg.Flags
	}
	return *dev
}

func (r *Registry) Get(id uint16) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return *dev, true
}

// Devices devuelve una copia de todas las sesiones ordenada por id.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, *dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
