// Package store guarda el último estado conocido de cada dispositivo en
// Redis para que otros servicios lo consulten sin pasar por el colector.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"gps-svr/internal/pipeline"
)

// los contadores diarios viven dos días para poder leer el día anterior
const countTTL = 48 * time.Hour

var ErrNoSnapshot = errors.New("no snapshot stored")

type Redis struct {
	rdb *redis.Client
}

// NewRedis conecta y verifica con PING.
func NewRedis(ctx context.Context, addr string, db int) (*Redis, error) {
	r := newRedis(&redis.Options{Addr: addr, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.rdb.Ping(pingCtx).Err(); err != nil {
		_ = r.rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return r, nil
}

func newRedis(opt *redis.Options) *Redis {
	return &Redis{rdb: redis.NewClient(opt)}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Close() error { return r.rdb.Close() }

// Publish guarda el snapshot en CBOR e incrementa el contador del día.
func (r *Redis) Publish(ctx context.Context, tr *pipeline.TrackingObject) error {
	if tr == nil {
		return nil
	}
	val, err := EncodeSnapshot(tr)
	if err != nil {
		return err
	}
	day := time.Unix(tr.Unix, 0)
	countKey := CountKey(tr.DeviceID, day)

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, SnapshotKey(tr.DeviceID), val, 0)
		p.Incr(ctx, countKey)
		p.Expire(ctx, countKey, countTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish device %d: %w", tr.DeviceID, err)
	}
	return nil
}

func (r *Redis) LoadSnapshot(ctx context.Context, deviceID uint16) (*pipeline.TrackingObject, error) {
	b, err := r.rdb.Get(ctx, SnapshotKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(b)
}

// DailyCount devuelve cuántos DATA se aceptaron para el dispositivo en day (UTC).
func (r *Redis) DailyCount(ctx context.Context, deviceID uint16, day time.Time) (int, error) {
	val, err := r.rdb.Get(ctx, CountKey(deviceID, day)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

func SnapshotKey(deviceID uint16) string {
	return fmt.Sprintf("dev:%d:snapshot", deviceID)
}

func CountKey(deviceID uint16, day time.Time) string {
	return fmt.Sprintf("dev:%d:count:%s", deviceID, day.UTC().Format("20060102"))
}

func EncodeSnapshot(tr *pipeline.TrackingObject) ([]byte, error) {
	b, err := cbor.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

func DecodeSnapshot(b []byte) (*pipeline.TrackingObject, error) {
	var tr pipeline.TrackingObject
	if err := cbor.Unmarshal(b, &tr); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &tr, nil
}
