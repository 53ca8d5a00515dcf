package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"gps-svr/internal/codec"
	"gps-svr/internal/observability"
	"gps-svr/internal/sequence"
)

const DefaultAckTimeout = 3 * time.Second

// Outcome es el estado final de un envío: Idle -> Sent -> {Acked | ...}.
type Outcome int

const (
	OutcomeAcked Outcome = iota
	OutcomeTimedOut
	OutcomeMismatched
	OutcomeBadReply
	OutcomeSendFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcked:
		return "acked"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeMismatched:
		return "mismatched"
	case OutcomeBadReply:
		return "bad_reply"
	case OutcomeSendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}

type TickResult struct {
	Type    codec.MsgType
	Seq     uint16
	Outcome Outcome
	// AckSeq es la secuencia del ACK recibido (si hubo uno).
	AckSeq uint16
	Err    error
}

type Stats struct {
	Sent       uint64
	Acked      uint64
	TimedOut   uint64
	Mismatched uint64
	BadReply   uint64
	SendFailed uint64
}

// Device es el lado dispositivo: un socket UDP conectado al colector y el
// contador de secuencia propio. No reintenta nunca.
type Device struct {
	id         uint16
	seq        uint16
	conn       net.Conn
	ackTimeout time.Duration
	stats      Stats
	logger     *slog.Logger
}

func Dial(addr string, id uint16, ackTimeout time.Duration, logger *slog.Logger) (*Device, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &Device{
		id:         id,
		conn:       conn,
		ackTimeout: ackTimeout,
		logger:     logger.With("component", "device", "device", id),
	}, nil
}

func (d *Device) ID() uint16 { return d.id }

// Seq es la última secuencia usada.
func (d *Device) Seq() uint16 { return d.seq }

func (d *Device) Stats() Stats { return d.stats }

func (d *Device) Close() error { return d.conn.Close() }

func (d *Device) SendReport(r codec.Report, flags codec.Flags) TickResult {
	d.seq = sequence.Next(d.seq)
	return d.exchange(codec.TypeData, codec.EncodeData(d.id, d.seq, r, flags))
}

func (d *Device) SendHeartbeat(flags codec.Flags) TickResult {
	d.seq = sequence.Next(d.seq)
	return d.exchange(codec.TypeHeartbeat, codec.EncodeHeartbeat(d.id, d.seq, flags))
}

// exchange envía y espera una sola respuesta hasta ackTimeout.
func (d *Device) exchange(typ codec.MsgType, frame []byte) TickResult {
	res := TickResult{Type: typ, Seq: d.seq}
	defer d.count(&res)

	if _, err := d.conn.Write(frame); err != nil {
		res.Outcome, res.Err = OutcomeSendFailed, err
		d.logger.Error("send failed", "seq", res.Seq, "err", err)
		return res
	}
	d.logger.Debug("message sent", "type", typ.String(), "seq", res.Seq, "bytes", len(frame))

	buf := make([]byte, 64)
	_ = d.conn.SetReadDeadline(time.Now().Add(d.ackTimeout))
	n, err := d.conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			res.Outcome = OutcomeTimedOut
			d.logger.Warn("no ack (timeout)", "seq", res.Seq)
			return res
		}
		// p.ej. ICMP port unreachable: equivale a no recibir respuesta
		res.Outcome, res.Err = OutcomeTimedOut, err
		d.logger.Warn("no ack", "seq", res.Seq, "err", err)
		return res
	}

	ack, err := codec.Decode(buf[:n])
	if err != nil {
		res.Outcome, res.Err = OutcomeBadReply, err
		d.logger.Warn("invalid reply", "seq", res.Seq, "err", err)
		return res
	}
	if ack.Type != codec.TypeAck {
		res.Outcome = OutcomeBadReply
		d.logger.Warn("reply is not an ack", "seq", res.Seq, "type", ack.Type.String())
		return res
	}

	res.AckSeq = ack.Seq
	if ack.Seq != res.Seq || ack.DeviceID != d.id {
		res.Outcome = OutcomeMismatched
		d.logger.Warn("ack mismatch", "seq", res.Seq, "ack_seq", ack.Seq, "ack_device", ack.DeviceID)
		return res
	}

	res.Outcome = OutcomeAcked
	d.logger.Info("ack received", "seq", res.Seq)
	return res
}

func (d *Device) count(res *TickResult) {
	d.stats.Sent++
	switch res.Outcome {
	case OutcomeAcked:
		d.stats.Acked++
	case OutcomeTimedOut:
		d.stats.TimedOut++
	case OutcomeMismatched:
		d.stats.Mismatched++
	case OutcomeBadReply:
		d.stats.BadReply++
	case OutcomeSendFailed:
		d.stats.SendFailed++
	}
	observability.ClientReports.WithLabelValues(res.Type.String(), res.Outcome.String()).Inc()
}
