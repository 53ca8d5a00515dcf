package client

import (
	"context"
	"time"

	"gps-svr/internal/vehicle"
)

// Plan son los parámetros ya validados de una corrida del simulador.
type Plan struct {
	Scenario vehicle.Scenario
	Interval time.Duration
	// Duration 0 significa sin límite.
	Duration time.Duration
	Once     bool
}

// Run ejecuta un envío por tick hasta agotar Duration, cancelar ctx, o
// tras el primero si Once. El resultado de un tick nunca cambia el
// siguiente: no hay reintentos ni backoff.
func Run(ctx context.Context, d *Device, model *vehicle.Model, plan Plan) Stats {
	interval := plan.Interval
	if interval <= 0 {
		interval = plan.Scenario.Interval
	}

	var deadline <-chan time.Time
	if plan.Duration > 0 {
		timer := time.NewTimer(plan.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("simulation started",
		"scenario", plan.Scenario.Name, "interval", interval.String(),
		"duration", plan.Duration.String(), "once", plan.Once)

	for {
		tick(d, model, plan.Scenario, interval)
		if plan.Once {
			break
		}

		select {
		case <-ctx.Done():
			d.logger.Info("simulation stopped")
			return d.Stats()
		case <-deadline:
			d.logger.Info("simulation finished", "duration", plan.Duration.String())
			return d.Stats()
		case <-ticker.C:
		}
	}
	return d.Stats()
}

func tick(d *Device, model *vehicle.Model, sc vehicle.Scenario, dt time.Duration) TickResult {
	if sc.Heartbeat {
		return d.SendHeartbeat(model.Flags())
	}
	model.Step(dt)
	return d.SendReport(model.Report(), model.Flags())
}
