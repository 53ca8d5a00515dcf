package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"gps-svr/internal/client"
	"gps-svr/internal/config"
	"gps-svr/internal/observability"
	"gps-svr/internal/vehicle"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		serverAddr string
		deviceID   int
		scenario   string
		interval   time.Duration
		duration   time.Duration
		speed      float64
		heading    float64
		once       bool
		ackTimeout time.Duration
	)
	flagSet := pflag.NewFlagSet("gps-client", pflag.ContinueOnError)
	flagSet.StringVarP(&serverAddr, "server", "s", cfg.ServerAddr, "collector address host:port")
	flagSet.IntVarP(&deviceID, "id", "i", cfg.DeviceID, "device id (0-65535)")
	flagSet.StringVar(&scenario, "scenario", "urban", "static, urban, highway, custom or heartbeat")
	flagSet.DurationVar(&interval, "interval", 0, "send interval (default: scenario interval)")
	flagSet.DurationVarP(&duration, "duration", "d", 0, "stop after this long (0 = run until interrupted)")
	flagSet.Float64Var(&speed, "speed", 0, "initial speed in km/h for the custom scenario")
	flagSet.Float64Var(&heading, "heading", 0, "initial heading in degrees")
	flagSet.BoolVar(&once, "once", false, "send a single message and exit")
	flagSet.DurationVar(&ackTimeout, "ack-timeout", cfg.AckTimeout(), "how long to wait for each ACK")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if deviceID < 0 || deviceID > 65535 {
		return fmt.Errorf("invalid --id %d: must be in range 0..65535", deviceID)
	}

	sc, err := vehicle.LookupScenario(scenario)
	if err != nil {
		return err
	}
	if flagSet.Changed("speed") {
		sc.SpeedKmh = speed
	}

	logger := observability.NewLogger(cfg.LogLevel)

	model := vehicle.New(nil)
	sc.Apply(model, heading)

	d, err := client.Dial(serverAddr, uint16(deviceID), ackTimeout, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := client.Run(ctx, d, model, client.Plan{
		Scenario: sc,
		Interval: interval,
		Duration: duration,
		Once:     once,
	})
	logger.Info("client stats",
		"device", deviceID, "sent", st.Sent, "acked", st.Acked, "timed_out", st.TimedOut,
		"mismatched", st.Mismatched, "bad_reply", st.BadReply, "send_failed", st.SendFailed)
	return nil
}
