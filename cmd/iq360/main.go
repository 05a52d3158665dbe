// Command iq360 runs the IQ 360 lead-analysis API server and the local
// voice agent.
//
//	iq360 serve -config config.yaml
//	iq360 voice -config config.yaml -persona atlas
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/iq360/internal/app"
	"github.com/MrWong99/iq360/internal/config"
	"github.com/MrWong99/iq360/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: iq360 <serve|voice> [flags]")
	fmt.Fprintln(w, "  serve   run the lead and analysis HTTP API")
	fmt.Fprintln(w, "  voice   talk to a persona through the local microphone and speaker")
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "serve":
		return runServe(args[1:], stderr)
	case "voice":
		return runVoice(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return 0
	case "version":
		fmt.Fprintln(stdout, "iq360", version)
		return 0
	}
	fmt.Fprintf(stderr, "iq360: unknown command %q\n", args[0])
	usage(stderr)
	return 2
}

// loadConfig reads .env files and the YAML config, and installs the default
// logger. The returned LevelVar lets hot reload change the level.
func loadConfig(path string, stderr io.Writer) (*config.Config, *slog.LevelVar, error) {
	if err := config.LoadEnvFiles(".env"); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
		}
		return nil, nil, err
	}
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(stderr, level))
	return cfg, level, nil
}

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	watch := fs.Bool("watch", true, "hot-reload log level, personas and leads when the config changes")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, level, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "iq360: %v\n", err)
		return 1
	}
	slog.Info("iq360 starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to init telemetry", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Audio)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	opts := []app.Option{app.WithLevelVar(level)}
	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath, 0))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
	slog.Info("goodbye")
	return code
}

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
