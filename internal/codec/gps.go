package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTooShort           = errors.New("message too short")
	ErrBadChecksum        = errors.New("bad checksum")
	ErrUnsupportedVersion = errors.New("unsupported version")
)

// ErrorKind devuelve una etiqueta estable para métricas y logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTooShort):
		return "too_short"
	case errors.Is(err, ErrBadChecksum):
		return "bad_checksum"
	case errors.Is(err, ErrUnsupportedVersion):
		return "unsupported_version"
	default:
		return "other"
	}
}

// Checksum calcula CRC-16/MODBUS: registro inicial 0xFFFF, polinomio reflejado 0xA001.
func Checksum(b []byte) uint16 {
	return checksumSkipping(b, -1)
}

// checksumSkipping calcula el CRC tratando los dos bytes del campo checksum
// (a partir de skip) como cero, sin copiar el buffer.
func checksumSkipping(b []byte, skip int) uint16 {
	crc := uint16(0xFFFF)
	for i, v := range b {
		if skip >= 0 && (i == skip || i == skip+1) {
			v = 0
		}
		crc ^= uint16(v)
		for j := 0; j < 8; j++ {
			if (crc & 1) == 1 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func putHeader(out []byte, typ MsgType, deviceID, seq uint16, flags Flags) {
	out[0] = Version
	out[1] = byte(typ)
	binary.BigEndian.PutUint16(out[2:4], deviceID)
	binary.BigEndian.PutUint16(out[4:6], seq)
	binary.BigEndian.PutUint16(out[6:8], 0) // placeholder
	binary.BigEndian.PutUint16(out[8:10], uint16(flags))
}

func seal(out []byte) []byte {
	crc := checksumSkipping(out, checksumOffset)
	binary.BigEndian.PutUint16(out[checksumOffset:checksumOffset+2], crc)
	return out
}

// EncodeData arma un mensaje DATA de 30 bytes con el timestamp actual.
func EncodeData(deviceID, seq uint16, r Report, flags Flags) []byte {
	return EncodeDataAt(time.Now(), deviceID, seq, r, flags)
}

// EncodeDataAt es EncodeData con un timestamp explícito.
// Layout: VER TYPE ID SEQ CRC FLAGS | LAT LON ALT TIME SPD HDG BAT STATUS
func EncodeDataAt(ts time.Time, deviceID, seq uint16, r Report, flags Flags) []byte {
	out := make([]byte, DataSize)
	putHeader(out, TypeData, deviceID, seq, flags)

	binary.BigEndian.PutUint32(out[10:14], uint32(r.LatE7))
	binary.BigEndian.PutUint32(out[14:18], uint32(r.LonE7))
	binary.BigEndian.PutUint16(out[18:20], r.AltitudeM)
	binary.BigEndian.PutUint32(out[20:24], uint32(ts.Unix()))
	binary.BigEndian.PutUint16(out[24:26], r.SpeedD)
	binary.BigEndian.PutUint16(out[26:28], r.HeadingD)
	out[28] = r.BatteryPct
	out[29] = r.Status

	return seal(out)
}

// EncodeAck arma un ACK de 10 bytes; los flags siempre van en cero.
func EncodeAck(deviceID, seq uint16) []byte {
	out := make([]byte, HeaderSize)
	putHeader(out, TypeAck, deviceID, seq, 0)
	return seal(out)
}

func EncodeHeartbeat(deviceID, seq uint16, flags Flags) []byte {
	out := make([]byte, HeaderSize)
	putHeader(out, TypeHeartbeat, deviceID, seq, flags)
	return seal(out)
}

// Decode valida y parsea un datagrama. El checksum se verifica antes de
// mirar la versión o el payload.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrTooShort, len(b))
	}

	got := binary.BigEndian.Uint16(b[checksumOffset : checksumOffset+2])
	if want := checksumSkipping(b, checksumOffset); got != want {
		return Message{}, fmt.Errorf("%w: got 0x%04X want 0x%04X", ErrBadChecksum, got, want)
	}

	if b[0] != Version {
		return Message{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])
	}

	m := Message{
		Version:  b[0],
		Type:     MsgType(b[1]),
		DeviceID: binary.BigEndian.Uint16(b[2:4]),
		Seq:      binary.BigEndian.Uint16(b[4:6]),
		Checksum: got,
		Flags:    Flags(binary.BigEndian.Uint16(b[8:10])),
	}

	if m.Type != TypeData {
		return m, nil
	}
	if len(b) < DataSize {
		return Message{}, fmt.Errorf("%w: data message has %d bytes", ErrTooShort, len(b))
	}

	m.Report = Report{
		LatE7:      int32(binary.BigEndian.Uint32(b[10:14])),
		LonE7:      int32(binary.BigEndian.Uint32(b[14:18])),
		AltitudeM:  binary.BigEndian.Uint16(b[18:20]),
		SpeedD:     binary.BigEndian.Uint16(b[24:26]),
		HeadingD:   binary.BigEndian.Uint16(b[26:28]),
		BatteryPct: b[28],
		Status:     b[29],
	}
	m.Timestamp = binary.BigEndian.Uint32(b[20:24])
	return m, nil
}
