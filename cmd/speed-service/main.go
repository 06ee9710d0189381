package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"speed-service/internal/config"
	"speed-service/internal/core"
	"speed-service/internal/hardware"
	"speed-service/internal/journal"
	"speed-service/internal/logger"
	"speed-service/internal/messaging"
	"speed-service/internal/speed"
	"speed-service/internal/status"
)

const journalBatchSize = 16

type flags struct {
	envFiles     []string
	mode         string
	logLevel     string
	initialSpeed int
	minSpeed     int
	eventTable   string
	redisAddr    string
	journal      string
	httpAddr     string
	inputDevice  string
}

func main() {
	f := &flags{}

	root := &cobra.Command{
		Use:           "speed-service",
		Short:         "Adjusts vehicle target speed from road and sensor events",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	pf := root.Flags()
	pf.StringSliceVar(&f.envFiles, "env", []string{".env"}, "Environment files to load (missing files are skipped)")
	pf.StringVar(&f.mode, "mode", "", "Drive mode (normal, sport or safe); prompted when empty")
	pf.StringVar(&f.logLevel, "log", "info", "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	pf.IntVar(&f.initialSpeed, "initial-speed", speed.DefaultInitialSpeed, "Speed at startup")
	pf.IntVar(&f.minSpeed, "min-speed", speed.DefaultMinSpeed, "Lowest speed the controller will set")
	pf.StringVar(&f.eventTable, "events", "", "YAML event table (built-in table when empty)")
	pf.StringVar(&f.redisAddr, "redis", "", "Redis address, e.g. 127.0.0.1:6379 (disabled when empty)")
	pf.StringVar(&f.journal, "journal", "", "SQLite journal path (disabled when empty)")
	pf.StringVar(&f.httpAddr, "http", "", "Status API listen address (disabled when empty)")
	pf.StringVar(&f.inputDevice, "input-device", "", "Sensor input event device (disabled when empty)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "speed-service: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// resolveConfig layers explicitly set flags over .env files and the environment.
func resolveConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg, err := config.Load(f.envFiles...)
	if err != nil {
		return cfg, err
	}

	set := cmd.Flags().Changed
	if set("mode") {
		cfg.Mode = f.mode
	}
	if set("log") {
		lvl, err := logger.ParseLevel(f.logLevel)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = lvl
	}
	if set("initial-speed") {
		cfg.InitialSpeed = f.initialSpeed
	}
	if set("min-speed") {
		cfg.MinSpeed = f.minSpeed
	}
	if set("events") {
		cfg.EventTable = f.eventTable
	}
	if set("redis") {
		cfg.RedisAddr = f.redisAddr
	}
	if set("journal") {
		cfg.Journal = f.journal
	}
	if set("http") {
		cfg.HTTPAddr = f.httpAddr
	}
	if set("input-device") {
		cfg.InputDevice = f.inputDevice
	}

	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l := logger.New(os.Stdout, cfg.LogLevel)

	interactive := isTerminal(os.Stdin)
	h := newHarness(os.Stdin, os.Stdout, interactive)

	var (
		mode speed.DriveMode
		err  error
	)
	if cfg.Mode != "" {
		mode, err = speed.ParseMode(cfg.Mode)
	} else {
		mode, err = h.readMode()
	}
	if err != nil {
		return err
	}

	table, err := cfg.EventTableOrDefault()
	if err != nil {
		return err
	}

	ctrl := speed.New(mode,
		speed.WithInitialSpeed(cfg.InitialSpeed),
		speed.WithMinSpeed(cfg.MinSpeed),
		speed.WithEventTable(table),
		speed.WithLogger(l.WithTag("speed")),
	)

	// Interfaces stay nil for disabled components.
	var (
		redis core.MessagingClient
		io    core.HardwareIO
		jr    core.Journal
	)
	if cfg.RedisAddr != "" {
		redis = messaging.NewRedisClient(cfg.RedisAddr, l.WithTag("redis"), messaging.Callbacks{})
	}
	if cfg.InputDevice != "" {
		io = hardware.NewLinuxHardwareIO(cfg.InputDevice, l.WithTag("hardware"))
	}
	if cfg.Journal != "" {
		jr = journal.NewSQLiteJournal(cfg.Journal, journalBatchSize)
	}

	l.Infof("Starting speed service...")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The machine outlives the signal so Shutdown can still drive it.
	system := core.NewSpeedSystem(ctrl, redis, io, jr, l)
	if err := system.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start system: %w", err)
	}

	var server *status.Server
	if cfg.HTTPAddr != "" {
		server = status.NewServer(cfg.HTTPAddr, system, l.WithTag("status"))
		server.Start()
	}

	l.Infof("System started successfully")

	// Other event sources keep the service alive after stdin closes.
	keepAlive := redis != nil || io != nil || server != nil

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- h.run(ctx, system.HandleEvent)
	}()

	select {
	case <-ctx.Done():
		l.Infof("Received shutdown signal, shutting down...")
	case err := <-loopDone:
		if err != nil {
			l.Errorf("Reading events failed: %v", err)
		}
		if keepAlive {
			l.Infof("Input closed, waiting for signal")
			<-ctx.Done()
		}
		l.Infof("Shutting down...")
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			l.Warnf("Status API shutdown: %v", err)
		}
		cancel()
	}
	system.Shutdown()
	l.Infof("Shutdown complete")
	return nil
}
