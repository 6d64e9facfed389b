package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/goerzh/kvs/pkg/config"
	"github.com/goerzh/kvs/pkg/engine"
	"github.com/goerzh/kvs/pkg/kvserver"
	"github.com/goerzh/kvs/pkg/logger"
	"github.com/goerzh/kvs/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	addr := flag.String("addr", "", "listen address, overrides config (e.g. 127.0.0.1:4000)")
	dataDir := flag.String("data-dir", "", "engine data directory, overrides config")
	engineName := flag.String("engine", "", "storage engine selector, accepted for forward compatibility")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("kvs-server (dev)")
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		host, port, parseErr := splitAddr(*addr)
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "invalid --addr: %v\n", parseErr)
			os.Exit(1)
		}
		cfg.Server.Host, cfg.Server.Port = host, port
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *engineName != "" {
		cfg.Storage.Engine = *engineName
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger.SetDefault(log)
	serverLog := log.WithComponent("kvs-server")

	serverLog.Infow("starting kvs-server",
		"addr", cfg.Server.Addr(),
		"data_dir", cfg.Storage.DataDir,
		"engine", cfg.Storage.Engine,
		"compaction_threshold_bytes", cfg.Storage.CompactionThresholdBytes,
	)

	metricsSink := metrics.NewSink()
	metricsServer := metrics.New(cfg.Metrics)
	if err := metricsServer.Start(); err != nil {
		serverLog.Fatalw("failed to start metrics server", "error", err)
	}

	eng, err := engine.Open(engine.Options{
		Dir:                 cfg.Storage.DataDir,
		CompactionThreshold: cfg.Storage.CompactionThresholdBytes,
		Logger:              log.WithComponent("engine"),
		Metrics:             metricsSink,
	})
	if err != nil {
		serverLog.Fatalw("failed to open engine", "error", err)
	}

	srv := kvserver.New(cfg.Server.Addr(), eng, log.WithComponent("server"), metricsSink)
	if err := srv.Start(); err != nil {
		serverLog.Fatalw("failed to start server", "error", err)
	}

	serverLog.Infow("kvs-server started", "addr", cfg.Server.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	serverLog.Infow("shutting down kvs-server")
	srv.Stop()

	if err := eng.Close(); err != nil {
		serverLog.Errorw("failed to close engine", "error", err)
	}
	if err := metricsServer.Stop(); err != nil {
		serverLog.Errorw("failed to stop metrics server", "error", err)
	}

	serverLog.Infow("kvs-server stopped")
}

func splitAddr(addr string) (host string, port int, err error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("expected host:port, got %q", addr)
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("expected host:port, got %q", addr)
	}
	return host, port, nil
}
