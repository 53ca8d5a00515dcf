package registry

import (
	"errors"
	"fmt"
	"time"
)

const DefaultTimeWindow = 300 * time.Second

var ErrTimestampOutOfWindow = errors.New("timestamp out of window")

// CheckWindow rechaza timestamps a más de window de now, en cualquier
// dirección. Es una protección mínima anti-replay, no autenticación.
// El timestamp del protocolo tiene resolución de segundos, así que la
// comparación se hace en segundos enteros.
func CheckWindow(ts, now time.Time, window time.Duration) error {
	diff := now.Unix() - ts.Unix()
	if diff < 0 {
		diff = -diff
	}
	if limit := int64(window / time.Second); diff > limit {
		return fmt.Errorf("%w: %ds off (window %s)", ErrTimestampOutOfWindow, diff, window)
	}
	return nil
}
