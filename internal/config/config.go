// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for xstream.
package config

import (
	"time"
)

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version     string `yaml:"-" toml:"-"`
	SaveDir     string `yaml:"save_dir" toml:"save_dir"`
	BinariesDir string `yaml:"binaries_dir" toml:"binaries_dir"`
	LogLevel    string `yaml:"log_level" toml:"log_level"`
	LogConsole  bool   `yaml:"log_console" toml:"log_console"`

	Network   NetworkConfig   `yaml:"network" toml:"network"`
	Parse     ParseConfig     `yaml:"parse" toml:"parse"`
	Download  DownloadConfig  `yaml:"download" toml:"download"`
	Keys      KeysConfig      `yaml:"keys" toml:"keys"`
	Live      LiveConfig      `yaml:"live" toml:"live"`
	Status    StatusConfig    `yaml:"status" toml:"status"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// NetworkConfig is applied uniformly to manifest, key and segment fetches.
type NetworkConfig struct {
	Headers        map[string]string `yaml:"headers" toml:"headers"`
	HeadersFile    string            `yaml:"headers_file" toml:"headers_file"` // JSON object of header name to value
	Proxy          string            `yaml:"proxy" toml:"proxy"`               // http(s):// or socks5://
	TimeoutSeconds int               `yaml:"timeout_seconds" toml:"timeout_seconds"`
	LimitPerHost   int               `yaml:"limit_per_host" toml:"limit_per_host"`
}

// ParseConfig tunes the manifest parsers.
type ParseConfig struct {
	DontSplitDiscontinuity bool     `yaml:"dont_split_discontinuity" toml:"dont_split_discontinuity"`
	AdKeywords             []string `yaml:"ad_keywords" toml:"ad_keywords"`
	ServiceLocation        string   `yaml:"service_location" toml:"service_location"`
	DumpManifest           bool     `yaml:"dump_manifest" toml:"dump_manifest"`
	// BaseURL resolves relative references of local manifest files.
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// DownloadConfig tunes the segment fetch engine.
type DownloadConfig struct {
	MaxPasses      int     `yaml:"max_passes" toml:"max_passes"`
	RetryStatus    []int   `yaml:"retry_status" toml:"retry_status"`
	SpeedUpLeft    int     `yaml:"speed_up_left" toml:"speed_up_left"`
	RateLimit      float64 `yaml:"rate_limit" toml:"rate_limit"` // requests per second, 0 = unlimited
	RawConcat      bool    `yaml:"raw_concat" toml:"raw_concat"`
	DisableConcat  bool    `yaml:"disable_concat" toml:"disable_concat"`
	DeleteSegments bool    `yaml:"delete_segments" toml:"delete_segments"`
	CompareFullURL bool    `yaml:"compare_full_url" toml:"compare_full_url"`
}

// KeysConfig carries content keys supplied by the caller.
type KeysConfig struct {
	ContentKeys   []string `yaml:"content_keys" toml:"content_keys"` // "<kid>:<key>" hex pairs
	AESKey        string   `yaml:"aes_key" toml:"aes_key"`           // base64
	AESIV         string   `yaml:"aes_iv" toml:"aes_iv"`             // hex
	AutoDelete    bool     `yaml:"auto_delete" toml:"auto_delete"`
	DecryptBinary string   `yaml:"decrypt_binary" toml:"decrypt_binary"`
}

// LiveConfig controls live recording.
type LiveConfig struct {
	DurationSeconds int `yaml:"duration_seconds" toml:"duration_seconds"` // 0 = until interrupted
	RefreshSeconds  int `yaml:"refresh_seconds" toml:"refresh_seconds"`   // 0 = derive from manifest
}

// StatusConfig enables the local status endpoint.
type StatusConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" toml:"enabled"`
	Exporter     string  `yaml:"exporter" toml:"exporter"` // grpc or http
	Endpoint     string  `yaml:"endpoint" toml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" toml:"sampling_rate"`
	Environment  string  `yaml:"environment" toml:"environment"`
}

// Timeout returns the network timeout as a duration.
func (n NetworkConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// LiveDuration returns the configured recording limit, zero meaning unbounded.
func (l LiveConfig) LiveDuration() time.Duration {
	return time.Duration(l.DurationSeconds) * time.Second
}

// RefreshInterval returns the fixed refresh interval, zero meaning manifest-driven.
func (l LiveConfig) RefreshInterval() time.Duration {
	return time.Duration(l.RefreshSeconds) * time.Second
}

// Defaults returns the configuration used when neither file nor environment set a value.
func Defaults() AppConfig {
	return AppConfig{
		SaveDir:  "Downloads",
		LogLevel: "info",
		Network: NetworkConfig{
			Headers:        map[string]string{},
			TimeoutSeconds: 30,
			LimitPerHost:   4,
		},
		Download: DownloadConfig{
			MaxPasses:   5,
			RetryStatus: []int{408, 429, 500, 502, 503, 504},
		},
		Keys: KeysConfig{
			DecryptBinary: "mp4decrypt",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "local",
		},
	}
}
