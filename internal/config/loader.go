package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the factories registered by the iq360 command,
// per kind. [Validate] warns about names outside this list.
var ValidProviderNames = map[string][]string{
	"s2s": {"gemini-live", "openai-realtime"},
	"llm": {"openai", "gemini-openai", "gemini", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
}

// LoadEnvFiles loads KEY=value files into the process environment. Missing
// files are skipped and variables that are already set win.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config: load env file %q: %w", p, err)
		}
		slog.Debug("loaded env file", "path", p)
	}
	return nil
}

// Load reads, expands, decodes and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates the
// result. ${VAR} and ${VAR:-default} references are expanded from the
// environment before decoding.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} in raw. Bare $VAR is left
// alone so instructions may contain dollar amounts.
func ExpandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v, ok := os.LookupEnv(string(sub[1])); ok && v != "" {
			return []byte(v)
		}
		return sub[2]
	})
}

// Validate checks cfg for coherence and returns every failure joined.
// Unknown provider names only log a warning.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("s2s", "providers.s2s", cfg.Providers.S2S.Name)
	validateProviderName("llm", "providers.vision", cfg.Providers.Vision.Name)
	validateProviderName("llm", "providers.llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", "providers.contracts", cfg.Providers.Contracts.Name)
	for i, fb := range cfg.Providers.Fallback {
		field := fmt.Sprintf("providers.fallback[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", field))
		}
		validateProviderName("llm", field, fb.Name)
	}
	if cfg.Providers.Vision.Name == "" && (cfg.Providers.LLM.Name != "" || cfg.Providers.Contracts.Name != "") {
		errs = append(errs, errors.New("providers.vision is required when llm or contracts is set"))
	}
	if cfg.Providers.S2S.Name == "" {
		slog.Warn("providers.s2s is empty; voice sessions are unavailable")
	}

	a := cfg.Audio
	for field, v := range map[string]int{
		"capture_rate":      a.CaptureRate,
		"playback_rate":     a.PlaybackRate,
		"frame_size":        a.FrameSize,
		"transcript_window": a.TranscriptWindow,
		"mic_queue":         a.MicQueue,
		"send_queue":        a.SendQueue,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("audio.%s must not be negative, got %d", field, v))
		}
	}
	if a.CaptureRate > 0 && (a.CaptureRate < 8000 || a.CaptureRate > 48000) {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d is out of range [8000, 48000]", a.CaptureRate))
	}
	if a.PlaybackRate > 0 && (a.PlaybackRate < 8000 || a.PlaybackRate > 48000) {
		errs = append(errs, fmt.Errorf("audio.playback_rate %d is out of range [8000, 48000]", a.PlaybackRate))
	}
	if a.FrameSize > 1<<16 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d exceeds 65536 samples", a.FrameSize))
	}

	seen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		id := strings.ToLower(p.ID)
		if prev, ok := seen[id]; ok && id != "" {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of personas[%d]", prefix, p.ID, prev))
		}
		seen[id] = i
	}

	return errors.Join(errs...)
}

func validateProviderName(kind, field, name string) {
	if name == "" {
		return
	}
	known := ValidProviderNames[kind]
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", known,
	)
}
