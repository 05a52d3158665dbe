// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the IQ 360 server and voice CLI.
package config

import (
	"log/slog"

	"github.com/MrWong99/iq360/internal/persona"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a slog level. Unknown levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure. Load it with [Load] or
// [LoadFromReader].
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Providers ProvidersConfig   `yaml:"providers"`
	Audio     AudioConfig       `yaml:"audio"`
	Personas  []persona.Persona `yaml:"personas"`

	// LeadsFile is the lead book YAML served by the API. Relative paths are
	// resolved against the working directory.
	LeadsFile string `yaml:"leads_file"`

	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds PEM certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the model backends. Each entry names a factory in
// the [Registry].
type ProvidersConfig struct {
	// S2S is the realtime speech model used by voice sessions.
	S2S ProviderEntry `yaml:"s2s"`

	// Vision analyses property photos. It must support image input.
	Vision ProviderEntry `yaml:"vision"`

	// LLM handles market comps. Empty falls back to Vision.
	LLM ProviderEntry `yaml:"llm"`

	// Contracts drafts assignment contracts. Empty falls back to LLM.
	Contracts ProviderEntry `yaml:"contracts"`

	// Fallback lists extra LLM backends tried in order when the primary
	// for a call fails or its circuit is open.
	Fallback []ProviderEntry `yaml:"fallback"`
}

// ProviderEntry is the configuration block shared by every provider kind.
type ProviderEntry struct {
	// Name selects the registered factory, e.g. "gemini-live" or "openai".
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AudioConfig tunes the local audio path of voice sessions. Zero values take
// the defaults from [ApplyDefaults].
type AudioConfig struct {
	CaptureRate      int `yaml:"capture_rate"`
	PlaybackRate     int `yaml:"playback_rate"`
	FrameSize        int `yaml:"frame_size"`
	TranscriptWindow int `yaml:"transcript_window"`

	// MicQueue is how many device buffers may wait before new ones drop.
	MicQueue int `yaml:"mic_queue"`

	// SendQueue is the transport's outbound frame queue depth.
	SendQueue int `yaml:"send_queue"`
}

// StorageConfig configures optional persistence.
type StorageConfig struct {
	// PostgresDSN enables the transcript log and analysis store. Empty keeps
	// everything in memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultCaptureRate      = 16000
	DefaultPlaybackRate     = 24000
	DefaultFrameSize        = 4096
	DefaultTranscriptWindow = 5
	DefaultMicQueue         = 32
	DefaultSendQueue        = 64
	DefaultLeadsFile        = "configs/leads.yaml"
)

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.LeadsFile, DefaultLeadsFile)
	setDefault(&cfg.Audio.CaptureRate, DefaultCaptureRate)
	setDefault(&cfg.Audio.PlaybackRate, DefaultPlaybackRate)
	setDefault(&cfg.Audio.FrameSize, DefaultFrameSize)
	setDefault(&cfg.Audio.TranscriptWindow, DefaultTranscriptWindow)
	setDefault(&cfg.Audio.MicQueue, DefaultMicQueue)
	setDefault(&cfg.Audio.SendQueue, DefaultSendQueue)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}
