package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"gps-svr/internal/archive"
	"gps-svr/internal/config"
	"gps-svr/internal/dispatcher"
	"gps-svr/internal/grpcclient"
	"gps-svr/internal/link"
	"gps-svr/internal/observability"
	"gps-svr/internal/registry"
	"gps-svr/internal/server"
	"gps-svr/internal/store"
	"gps-svr/internal/tracklog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		port       int
		noAck      bool
		logPath    string
		maxKB      int
		windowSec  int
		logLevel   string
	)
	flagSet := pflag.NewFlagSet("gps-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	flagSet.IntVarP(&port, "port", "p", 0, "UDP port to listen on, all interfaces")
	flagSet.BoolVar(&noAck, "no-ack", false, "do not send ACKs")
	flagSet.StringVar(&logPath, "log", "", "track log file")
	flagSet.IntVar(&maxKB, "max-kb", 0, "rotate the track log at this size in KB (0 = never)")
	flagSet.IntVar(&windowSec, "window", 0, "accepted timestamp skew in seconds")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if configPath != "" {
		_ = os.Setenv(config.EnvConfigFile, configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagSet.Changed("port") {
		cfg.UDPAddr = net.JoinHostPort("", strconv.Itoa(port))
	}
	if noAck {
		cfg.SendAck = false
	}
	if flagSet.Changed("log") {
		cfg.TrackLogPath = logPath
	}
	if flagSet.Changed("max-kb") {
		cfg.TrackLogMaxKB = maxKB
	}
	if flagSet.Changed("window") {
		cfg.TimeWindowSec = windowSec
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel)
	logger.Info("starting gps-svr",
		"udp", cfg.UDPAddr, "send_ack", cfg.SendAck, "window", cfg.TimeWindow().String(),
		"track_log", cfg.TrackLogPath, "max_kb", cfg.TrackLogMaxKB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(logger)
	d := dispatcher.New(dispatcher.Config{SendAck: cfg.SendAck, TimeWindow: cfg.TimeWindow()}, reg, logger)

	if cfg.TrackLogPath != "" {
		d.AddSink(tracklog.New(cfg.TrackLogPath, cfg.TrackLogMaxBytes()))
	}
	mux := observability.NewMux()
	mux.Handle("/devices", d.StatusHandler())

	closers, err := wireSinks(ctx, cfg, d, mux, logger)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	if err != nil {
		return err
	}

	srv, err := server.Listen(cfg.UDPAddr, d, cfg.PollTimeout(), logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	go func() {
		if err := observability.StartMetricsServer(ctx, cfg.MetricsPort, mux); err != nil {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	err = srv.Serve(ctx)
	d.LogStats()
	return err
}

// wireSinks conecta los destinos opcionales configurados. Devuelve las
// funciones de cierre aun cuando falla a mitad de camino.
func wireSinks(ctx context.Context, cfg config.Config, d *dispatcher.Dispatcher, mux *http.ServeMux, logger *slog.Logger) ([]func(), error) {
	var closers []func()

	if cfg.RedisAddr != "" {
		r, err := store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return closers, err
		}
		closers = append(closers, func() { _ = r.Close() })
		d.AddSink(r)
		mux.Handle("/snapshot", r.SnapshotHandler(logger))
		logger.Info("redis sink enabled", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	}

	if cfg.MongoURI != "" {
		db, err := archive.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return closers, err
		}
		closers = append(closers, func() { _ = db.Client().Disconnect(context.Background()) })
		d.AddSink(archive.NewSink(archive.NewMongoPositionRepository(db)))
		logger.Info("mongo archive enabled", "database", cfg.MongoDatabase)
	}

	if cfg.GRPCServer != "" {
		g, err := grpcclient.NewGRPCClient(cfg.GRPCServer)
		if err != nil {
			return closers, err
		}
		closers = append(closers, func() { _ = g.Close() })
		d.AddSink(g)
		logger.Info("grpc forwarder enabled", "addr", cfg.GRPCServer)
	}

	if cfg.ProxyAddr != "" {
		l := link.New(cfg.ProxyAddr, logger)
		l.Start(ctx)
		d.AddSink(l)
		d.AddObserver(l)
		logger.Info("proxy link enabled", "addr", cfg.ProxyAddr)
	} else {
		logger.Info("proxy link disabled (no proxy address configured)")
	}

	return closers, nil
}
