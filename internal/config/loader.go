// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownConfigField marks strict decode failures caused by keys the
	// schema does not know.
	ErrUnknownConfigField = errors.New("unknown config field")

	// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	overrides       []func(*AppConfig)
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// WithOverride registers a mutation applied after the environment layer, used by
// the CLI to apply explicitly set flags.
func (l *Loader) WithOverride(fn func(*AppConfig)) *Loader {
	l.overrides = append(l.overrides, fn)
	return l
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envSeconds(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return int(ParseDuration(key, time.Duration(defaultVal)*time.Second) / time.Second)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads configuration with precedence: Flags > ENV > File > Defaults.
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	// 1. Set defaults
	cfg := Defaults()

	// 2. Load from file (if provided)
	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	// 3. Override with environment variables
	l.mergeEnvConfig(&cfg)

	// 4. Explicit flags (highest priority)
	for _, fn := range l.overrides {
		fn(&cfg)
	}

	// 5. Headers file is merged under inline headers
	if cfg.Network.HeadersFile != "" {
		headers, err := loadHeadersFile(cfg.Network.HeadersFile)
		if err != nil {
			return cfg, fmt.Errorf("load headers file: %w", err)
		}
		for k, v := range cfg.Network.Headers {
			headers[k] = v
		}
		cfg.Network.Headers = headers
	}

	if abs, err := filepath.Abs(cfg.SaveDir); err == nil {
		cfg.SaveDir = abs
	}
	cfg.Version = l.version

	// 6. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile decodes a YAML or TOML file over cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return decodeYAML(data, cfg)
	case ".toml":
		return decodeTOML(data, cfg)
	default:
		return fmt.Errorf("%w: %s (yaml or toml)", ErrUnsupportedFormat, ext)
	}
}

func decodeYAML(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func decodeTOML(data []byte, cfg *AppConfig) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("strict config parse error: %w: %s", ErrUnknownConfigField, strict.String())
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	return nil
}

func loadHeadersFile(path string) (map[string]string, error) {
	// #nosec G304 -- operator supplied path
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	headers := map[string]string{}
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return headers, nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.SaveDir = l.envString("XSTREAM_SAVE_DIR", cfg.SaveDir)
	cfg.BinariesDir = l.envString("XSTREAM_BINARIES_DIR", cfg.BinariesDir)
	cfg.LogLevel = l.envString("XSTREAM_LOG_LEVEL", cfg.LogLevel)
	cfg.LogConsole = l.envBool("XSTREAM_LOG_CONSOLE", cfg.LogConsole)

	cfg.Network.Proxy = l.envString("XSTREAM_PROXY", cfg.Network.Proxy)
	cfg.Network.HeadersFile = l.envString("XSTREAM_HEADERS_FILE", cfg.Network.HeadersFile)
	cfg.Network.TimeoutSeconds = l.envSeconds("XSTREAM_TIMEOUT", cfg.Network.TimeoutSeconds)
	cfg.Network.LimitPerHost = l.envInt("XSTREAM_LIMIT_PER_HOST", cfg.Network.LimitPerHost)

	cfg.Parse.ServiceLocation = l.envString("XSTREAM_SERVICE_LOCATION", cfg.Parse.ServiceLocation)
	cfg.Parse.AdKeywords = l.envList("XSTREAM_AD_KEYWORDS", cfg.Parse.AdKeywords)
	cfg.Parse.BaseURL = l.envString("XSTREAM_BASE_URL", cfg.Parse.BaseURL)

	cfg.Download.MaxPasses = l.envInt("XSTREAM_MAX_PASSES", cfg.Download.MaxPasses)
	cfg.Download.RateLimit = l.envFloat("XSTREAM_RATE_LIMIT", cfg.Download.RateLimit)
	cfg.Download.RawConcat = l.envBool("XSTREAM_RAW_CONCAT", cfg.Download.RawConcat)

	cfg.Keys.ContentKeys = l.envList("XSTREAM_CONTENT_KEYS", cfg.Keys.ContentKeys)
	cfg.Keys.AESKey = l.envString("XSTREAM_AES_KEY", cfg.Keys.AESKey)
	cfg.Keys.AESIV = l.envString("XSTREAM_AES_IV", cfg.Keys.AESIV)

	cfg.Live.DurationSeconds = l.envSeconds("XSTREAM_LIVE_DURATION", cfg.Live.DurationSeconds)

	cfg.Status.Listen = l.envString("XSTREAM_STATUS_LISTEN", cfg.Status.Listen)

	cfg.Telemetry.Enabled = l.envBool("XSTREAM_TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = l.envString("XSTREAM_TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Exporter = l.envString("XSTREAM_TRACING_EXPORTER", cfg.Telemetry.Exporter)
}
