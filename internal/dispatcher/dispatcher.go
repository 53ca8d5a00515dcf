package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"gps-svr/internal/codec"
	"gps-svr/internal/observability"
	"gps-svr/internal/pipeline"
	"gps-svr/internal/registry"
	"gps-svr/internal/sequence"
)

var ErrUnexpectedType = errors.New("unexpected message type")

type Config struct {
	SendAck    bool
	TimeWindow time.Duration
}

type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeDecodeError
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDecodeError:
		return "decode_error"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result describe lo que pasó con un datagrama. Reply no es nil solo
// cuando hay que devolver un ACK al remitente.
type Result struct {
	Outcome Outcome
	Msg     codec.Message
	Verdict sequence.Verdict
	Device  registry.Device
	Reply   []byte
	Err     error
}

// Stats son los contadores globales del colector.
type Stats struct {
	Received   uint64
	Lost       uint64
	Duplicated uint64
	Errors     uint64
	AcksSent   uint64
}

type Dispatcher struct {
	cfg       Config
	reg       *registry.Registry
	sinks     []pipeline.Sink
	observers []pipeline.DeviceObserver
	now       func() time.Time
	logger    *slog.Logger

	received   atomic.Uint64
	lost       atomic.Uint64
	duplicated atomic.Uint64
	errs       atomic.Uint64
	acks       atomic.Uint64
}

func New(cfg Config, reg *registry.Registry, logger *slog.Logger) *Dispatcher {
	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = registry.DefaultTimeWindow
	}
	return &Dispatcher{
		cfg:    cfg,
		reg:    reg,
		now:    time.Now,
		logger: logger.With("component", "dispatcher"),
	}
}

// AddSink registra un destino para los registros DATA aceptados.
func (d *Dispatcher) AddSink(s pipeline.Sink) {
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) AddObserver(o pipeline.DeviceObserver) {
	d.observers = append(d.observers, o)
}

func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

func (d *Dispatcher) Registry() *registry.Registry { return d.reg }

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:   d.received.Load(),
		Lost:       d.lost.Load(),
		Duplicated: d.duplicated.Load(),
		Errors:     d.errs.Load(),
		AcksSent:   d.acks.Load(),
	}
}

// AckSent lo llama el transporte después de escribir Reply con éxito.
func (d *Dispatcher) AckSent() {
	d.acks.Add(1)
	observability.AcksSent.Inc()
}

// Handle procesa un datagrama: decode, sesión, secuencia, ventana, registro.
// Nunca entra en pánico ni devuelve ACK para un mensaje no aceptado.
func (d *Dispatcher) Handle(ctx context.Context, data []byte, from net.Addr) Result {
	start := time.Now()
	defer observability.ObserveProcessLatency(start)
	observability.DatagramsRecv.Inc()

	remote := addrString(from)

	msg, err := codec.Decode(data)
	if err != nil {
		d.errs.Add(1)
		observability.DecodeErrors.WithLabelValues(codec.ErrorKind(err)).Inc()
		d.logger.Warn("decode failed", "remote", remote, "bytes", len(data), "err", err)
		return Result{Outcome: OutcomeDecodeError, Err: err}
	}

	if msg.Type != codec.TypeData && msg.Type != codec.TypeHeartbeat {
		d.errs.Add(1)
		observability.ProtocolErrors.WithLabelValues("unexpected_type").Inc()
		err = fmt.Errorf("%w: %s (0x%02X)", ErrUnexpectedType, msg.Type, uint8(msg.Type))
		d.logger.Warn("unexpected message", "remote", remote, "device", msg.DeviceID, "err", err)
		return Result{Outcome: OutcomeRejected, Msg: msg, Err: err}
	}

	_, created := d.reg.Touch(msg.DeviceID)
	previous, moved := d.reg.SetRemote(msg.DeviceID, remote)
	switch {
	case created:
		observability.DevicesKnown.Set(float64(d.reg.Len()))
		for _, o := range d.observers {
			o.DeviceConnected(ctx, msg.DeviceID, remote)
		}
	case moved:
		d.logger.Info("device address changed", "device", msg.DeviceID, "from", previous, "remote", remote)
		for _, o := range d.observers {
			o.DeviceUpdated(ctx, msg.DeviceID, remote)
		}
	}

	verdict := d.reg.Classify(msg.DeviceID, msg.Seq)
	if !verdict.Fresh() {
		dev := d.reg.Record(msg.DeviceID, verdict, msg)
		d.duplicated.Add(1)
		observability.MessagesDuplicated.Inc()
		d.logger.Info("duplicate or stale message",
			"device", msg.DeviceID, "seq", msg.Seq, "last_seq", dev.LastSeq)
		return Result{Outcome: OutcomeDuplicate, Msg: msg, Verdict: verdict, Device: dev}
	}

	now := d.now()
	if msg.IsData() {
		if err := registry.CheckWindow(msg.Time(), now, d.cfg.TimeWindow); err != nil {
			d.errs.Add(1)
			observability.ProtocolErrors.WithLabelValues("timestamp_window").Inc()
			d.logger.Warn("timestamp out of window",
				"device", msg.DeviceID, "seq", msg.Seq, "ts", msg.Timestamp, "err", err)
			return Result{Outcome: OutcomeRejected, Msg: msg, Verdict: verdict, Err: err}
		}
	}

	dev := d.reg.Record(msg.DeviceID, verdict, msg)
	d.received.Add(1)
	observability.MessagesAccepted.WithLabelValues(msg.Type.String()).Inc()
	if verdict.Lost > 0 {
		d.lost.Add(uint64(verdict.Lost))
		observability.MessagesLost.Add(float64(verdict.Lost))
		d.logger.Warn("messages lost", "device", msg.DeviceID, "lost", verdict.Lost, "seq", msg.Seq)
	}

	if msg.IsData() {
		s := dev.Snapshot
		d.logger.Info("data received",
			"remote", remote, "device", msg.DeviceID, "seq", msg.Seq,
			"lat", s.Lat(), "lon", s.Lon(), "alt", s.AltitudeM,
			"speed_kmh", s.SpeedKmh(), "heading", s.HeadingDeg(),
			"battery", s.BatteryPct, "flags", s.Flags.String())
		d.publish(ctx, pipeline.BuildTracking(msg, dev, now))
	} else {
		d.logger.Info("heartbeat received",
			"remote", remote, "device", msg.DeviceID, "seq", msg.Seq, "flags", msg.Flags.String())
	}

	res := Result{Outcome: OutcomeAccepted, Msg: msg, Verdict: verdict, Device: dev}
	if d.cfg.SendAck {
		res.Reply = codec.EncodeAck(msg.DeviceID, msg.Seq)
	}
	return res
}

// publish reparte el registro; un destino que falla no frena a los demás.
func (d *Dispatcher) publish(ctx context.Context, tr *pipeline.TrackingObject) {
	for _, s := range d.sinks {
		if err := s.Publish(ctx, tr); err != nil {
			observability.SinkErrors.WithLabelValues(s.Name()).Inc()
			d.logger.Error("sink publish failed", "sink", s.Name(), "device", tr.DeviceID, "err", err)
		}
	}
}

// LogStats deja en el log los totales y la tabla de dispositivos.
func (d *Dispatcher) LogStats() {
	st := d.Stats()
	d.logger.Info("collector stats",
		"received", st.Received, "lost", st.Lost, "duplicated", st.Duplicated,
		"errors", st.Errors, "acks_sent", st.AcksSent, "devices", d.reg.Len())

	for _, dev := range d.reg.Devices() {
		attrs := []any{
			"device", dev.ID, "received", dev.Received, "lost", dev.Lost,
			"duplicated", dev.Duplicated, "last_seq", dev.LastSeq,
			"idle", d.now().Sub(dev.LastSeen).Round(time.Second).String(),
		}
		if dev.Snapshot.HasFix() {
			attrs = append(attrs,
				"lat", dev.Snapshot.Lat(), "lon", dev.Snapshot.Lon(),
				"speed_kmh", dev.Snapshot.SpeedKmh(), "battery", dev.Snapshot.BatteryPct)
		}
		d.logger.Info("device summary", attrs...)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
