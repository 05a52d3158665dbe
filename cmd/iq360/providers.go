package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/iq360/internal/app"
	"github.com/MrWong99/iq360/internal/config"
	"github.com/MrWong99/iq360/pkg/provider/llm"
	"github.com/MrWong99/iq360/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/iq360/pkg/provider/llm/openai"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
	geminilive "github.com/MrWong99/iq360/pkg/provider/s2s/gemini"
	oais2s "github.com/MrWong99/iq360/pkg/provider/s2s/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// The s2s transports size their outbound queue from audio.
func registerBuiltinProviders(reg *config.Registry, audio config.AudioConfig) {
	// ── S2S ───────────────────────────────────────────────────────────────────

	reg.RegisterS2S("gemini-live", func(entry config.ProviderEntry) (s2s.Provider, error) {
		opts := []geminilive.Option{geminilive.WithQueueSize(audio.SendQueue)}
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "setup_timeout"); d > 0 {
			opts = append(opts, geminilive.WithSetupTimeout(d))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	reg.RegisterS2S("openai-realtime", func(entry config.ProviderEntry) (s2s.Provider, error) {
		opts := []oais2s.Option{oais2s.WithQueueSize(audio.SendQueue)}
		if entry.Model != "" {
			opts = append(opts, oais2s.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oais2s.WithBaseURL(entry.BaseURL))
		}
		if m := optString(entry.Options, "transcription_model"); m != "" {
			opts = append(opts, oais2s.WithTranscriptionModel(m))
		}
		if d := optDuration(entry.Options, "setup_timeout"); d > 0 {
			opts = append(opts, oais2s.WithSetupTimeout(d))
		}
		return oais2s.New(entry.APIKey, opts...), nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai-go carries image parts, so both vision-capable names use it.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		return newOpenAILLM(entry, entry.BaseURL)
	})
	reg.RegisterLLM("gemini-openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = oaillm.GeminiBaseURL
		}
		return newOpenAILLM(entry, baseURL)
	})

	// The remaining text-only backends go through any-llm-go. "openai" is
	// already taken by openai-go above, which also carries images.
	for _, name := range anyllm.Backends() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(name, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	for _, kind := range []string{"s2s", "llm"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

func newOpenAILLM(entry config.ProviderEntry, baseURL string) (llm.Provider, error) {
	var opts []oaillm.Option
	if baseURL != "" {
		opts = append(opts, oaillm.WithBaseURL(baseURL))
	}
	if org := optString(entry.Options, "organization"); org != "" {
		opts = append(opts, oaillm.WithOrganization(org))
	}
	if d := optDuration(entry.Options, "timeout"); d > 0 {
		opts = append(opts, oaillm.WithTimeout(d))
	}
	p, err := oaillm.New(entry.APIKey, entry.Model, opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// buildProviders instantiates every provider named in cfg. Unregistered
// names are skipped with a warning; factory errors abort startup.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.S2S.Name; name != "" {
		p, err := reg.CreateS2S(cfg.Providers.S2S)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("unknown provider, skipping", "kind", "s2s", "name", name)
		case err != nil:
			return nil, fmt.Errorf("create s2s provider %q: %w", name, err)
		default:
			ps.S2S = p
			slog.Info("provider created", "kind", "s2s", "name", name)
		}
	}

	slots := []struct {
		slot  string
		entry config.ProviderEntry
		dst   *app.NamedLLM
	}{
		{"vision", cfg.Providers.Vision, &ps.Vision},
		{"llm", cfg.Providers.LLM, &ps.Text},
		{"contracts", cfg.Providers.Contracts, &ps.Contracts},
	}
	for _, s := range slots {
		p, err := createLLM(reg, s.slot, s.entry)
		if err != nil {
			return nil, err
		}
		if p != nil {
			*s.dst = app.NamedLLM{Name: s.entry.Name, Provider: p}
		}
	}

	for i, entry := range cfg.Providers.Fallback {
		p, err := createLLM(reg, fmt.Sprintf("fallback[%d]", i), entry)
		if err != nil {
			return nil, err
		}
		if p != nil {
			ps.Fallback = append(ps.Fallback, app.NamedLLM{Name: entry.Name, Provider: p})
		}
	}
	return ps, nil
}

func createLLM(reg *config.Registry, slot string, entry config.ProviderEntry) (llm.Provider, error) {
	if entry.Name == "" {
		return nil, nil
	}
	p, err := reg.CreateLLM(entry)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("unknown provider, skipping", "kind", "llm", "slot", slot, "name", entry.Name)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("create %s provider %q: %w", slot, entry.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "slot", slot, "name", entry.Name, "model", entry.Model)
	return p, nil
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration option such as "15s". Invalid values are
// reported and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
