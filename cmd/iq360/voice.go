package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MrWong99/iq360/internal/app"
	"github.com/MrWong99/iq360/internal/config"
	"github.com/MrWong99/iq360/internal/persona"
	"github.com/MrWong99/iq360/internal/voice"
	"github.com/MrWong99/iq360/pkg/audio/capture"
	"github.com/MrWong99/iq360/pkg/audio/playback"
	"github.com/MrWong99/iq360/pkg/memory"
	"github.com/MrWong99/iq360/pkg/memory/postgres"
)

func runVoice(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("voice", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	personaID := fs.String("persona", "", "persona to talk to (default: echo)")
	list := fs.Bool("list", false, "list the available personas and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "iq360: %v\n", err)
		return 1
	}
	personas, err := persona.NewRegistry(cfg.Personas...)
	if err != nil {
		fmt.Fprintf(stderr, "iq360: %v\n", err)
		return 1
	}
	if *list {
		printPersonas(stdout, personas)
		return 0
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Audio)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if providers.S2S == nil {
		fmt.Fprintln(stderr, "iq360: providers.s2s must name gemini-live or openai-realtime for voice sessions")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sessions memory.SessionStore
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer store.Close()
		sessions = store.Transcripts()
	}

	sm := app.NewSessionManager(app.SessionManagerConfig{
		Provider: providers.S2S,
		Mic: capture.NewMic(
			capture.WithSampleRate(cfg.Audio.CaptureRate),
			capture.WithQueueSize(cfg.Audio.MicQueue),
		),
		Output: func() (playback.Output, func() error, error) {
			spk, err := playback.OpenSpeaker(cfg.Audio.PlaybackRate, 0)
			if err != nil {
				return nil, nil, err
			}
			return spk, spk.Close, nil
		},
		Personas:     personas,
		Audio:        cfg.Audio,
		SessionStore: sessions,
	})

	sess, err := sm.Start(ctx, *personaID, printEvents(stdout))
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(stderr, "iq360: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "Speak into the microphone. Press Ctrl+C to hang up.")

	select {
	case <-ctx.Done():
	case <-sess.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sm.Stop(stopCtx); err != nil && !errors.Is(err, app.ErrNoSession) {
		slog.Warn("stop voice session", "err", err)
	}
	if err := sess.Err(); err != nil {
		fmt.Fprintf(stderr, "iq360: %v\n", err)
		return 1
	}
	return 0
}

// printEvents renders session events as console lines.
func printEvents(w io.Writer) func(voice.Event) {
	return func(ev voice.Event) {
		switch ev.Kind {
		case voice.EventState:
			fmt.Fprintf(w, "[%s]\n", ev.Status)
		case voice.EventTranscript:
			fmt.Fprintln(w, ev.Line.String())
		case voice.EventInterrupted:
			fmt.Fprintf(w, "(interrupted, %d buffers stopped)\n", ev.Stopped)
		case voice.EventChunkDropped:
			slog.Debug("audio chunk dropped", "err", ev.Err)
		case voice.EventError:
			fmt.Fprintf(w, "error: %v\n", ev.Err)
		}
	}
}

func printPersonas(w io.Writer, reg *persona.Registry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tVOICE")
	for _, p := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Role, p.Voice)
	}
	_ = tw.Flush()
}
