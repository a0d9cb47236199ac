// Package main is aquired, the background tuning daemon. It keeps a
// performance profile fed with live system signals, mirrors every change into
// a state file and answers the aquire CLI on a Unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesainslie/aquire/pkg/aquire/config"
	"github.com/jamesainslie/aquire/pkg/aquire/engine"
	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/jamesainslie/aquire/pkg/aquire/telemetry"
	"github.com/jamesainslie/aquire/pkg/daemon"
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	cfgFile string
	rootCmd = &cobra.Command{
		Use:           "aquired",
		Short:         "Adaptive visual-tuning daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/aquire/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aquired: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := cfg.LoggingConfig()
	if logCfg.ConsoleLevel == "" && os.Getenv("INVOCATION_ID") != "" {
		// Under systemd stderr is the journal.
		logCfg.ConsoleLevel = "info"
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Close() //nolint:errcheck // nothing to report at exit
	log := logging.Get("daemon")

	paths := daemon.Paths{
		Socket: cfg.Daemon.SocketPath,
		PID:    cfg.Daemon.PIDPath,
		Status: cfg.Daemon.StatusPath,
		State:  cfg.Daemon.StatePath,
		Store:  cfg.Store.Path,
	}

	if err := daemon.RecoverFromStaleDaemon(paths); err != nil {
		if errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
			return errors.New("aquired is already running")
		}
		return err
	}

	fail := func(err error) error {
		log.Error("startup failed", "error", err)
		_ = daemon.WriteStatusError(paths.Status, err)
		return err
	}

	eng, err := engine.Open(cfg)
	if err != nil {
		return fail(err)
	}
	defer eng.Close() //nolint:errcheck // closed on the way out

	svc := daemon.NewService(daemon.Config{
		Profile:   eng.Profile,
		Observer:  eng.Observer,
		Store:     eng.Store,
		Telemetry: eng.Telemetry,
		Metrics:   eng.Metrics,
		StatePath: paths.State,
	})

	control, err := daemon.Listen("unix", paths.Socket, svc.Handler(os.Getpid()))
	if err != nil {
		return fail(fmt.Errorf("listen on %s: %w", paths.Socket, err))
	}

	var metricsSrv *daemon.Server
	metricsAddr := ""
	if eng.Metrics.Enabled() {
		metricsSrv, err = daemon.Listen("tcp", cfg.Metrics.Addr, eng.Metrics.Handler())
		if err != nil {
			_ = control.Close(context.Background())
			return fail(fmt.Errorf("listen on %s: %w", cfg.Metrics.Addr, err))
		}
		metricsAddr = metricsSrv.Addr()
	}

	if err := daemon.WritePIDFile(paths.PID); err != nil {
		return fail(fmt.Errorf("write PID file: %w", err))
	}
	defer func() {
		if err := daemon.RemovePIDFile(paths.PID); err != nil {
			log.Warn("failed to remove PID file", "error", err)
		}
		_ = daemon.RemoveStatus(paths.Status)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go serve(log, "control", control)
	if metricsSrv != nil {
		go serve(log, "metrics", metricsSrv)
	}

	if err := daemon.WriteStatusReady(paths.Status, paths.Socket, metricsAddr); err != nil {
		log.Warn("failed to write status file", "error", err)
	}
	eng.Telemetry.Log(telemetry.EventAppLaunch, "aquired "+version)
	log.Info("aquired started",
		"pid", os.Getpid(),
		"socket", paths.Socket,
		"metrics", metricsAddr,
		"tier", eng.Profile.Tier(),
		"policy", cfg.Policy)

	runErr := svc.Run(ctx)

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := control.Close(shutdownCtx); err != nil {
		log.Warn("error closing control socket", "error", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Close(shutdownCtx); err != nil {
			log.Warn("error closing metrics server", "error", err)
		}
	}
	return runErr
}

func serve(log *logging.Logger, name string, srv *daemon.Server) {
	if err := srv.Serve(); err != nil {
		log.Error("server stopped", "server", name, "error", err)
	}
}
