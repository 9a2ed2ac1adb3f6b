// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/xstream/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package.
// Configuration errors fail fast before any network activity begins.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("SaveDir", cfg.SaveDir, false)

	v.LogLevel("LogLevel", cfg.LogLevel)

	if cfg.BinariesDir != "" {
		v.Directory("BinariesDir", cfg.BinariesDir, true)
	}

	if strings.TrimSpace(cfg.Network.Proxy) != "" {
		v.URL("Proxy", cfg.Network.Proxy, []string{"http", "https", "socks5", "socks5h"})
	}
	if cfg.Parse.BaseURL != "" {
		v.URL("Parse.BaseURL", cfg.Parse.BaseURL, []string{"http", "https", "ftp"})
	}
	v.Range("LimitPerHost", cfg.Network.LimitPerHost, 1, 128)
	v.Positive("TimeoutSeconds", cfg.Network.TimeoutSeconds)

	v.Range("MaxPasses", cfg.Download.MaxPasses, 1, 20)
	v.NonNegative("SpeedUpLeft", cfg.Download.SpeedUpLeft)
	if cfg.Download.RateLimit < 0 {
		v.AddError("RateLimit", "value cannot be negative", cfg.Download.RateLimit)
	}
	for _, code := range cfg.Download.RetryStatus {
		if code == 403 || code == 404 || code == 405 {
			v.AddError("RetryStatus", fmt.Sprintf("status %d has a fixed policy and cannot be retried", code), code)
		}
		if code < 100 || code > 599 {
			v.AddError("RetryStatus", "not an HTTP status code", code)
		}
	}

	for i, pair := range cfg.Keys.ContentKeys {
		field := fmt.Sprintf("ContentKeys[%d]", i)
		kid, key, ok := strings.Cut(pair, ":")
		if !ok {
			v.AddError(field, "must be <kid>:<key>", "<redacted>")
			continue
		}
		v.Hex(field+".kid", strings.ReplaceAll(kid, "-", ""), 16)
		v.Hex(field+".key", key, 16)
	}
	if cfg.Keys.AESKey != "" {
		v.Base64("AESKey", cfg.Keys.AESKey, 16)
	}
	if cfg.Keys.AESIV != "" {
		v.Hex("AESIV", strings.TrimPrefix(strings.TrimPrefix(cfg.Keys.AESIV, "0x"), "0X"), 16)
	}

	v.NonNegative("Live.DurationSeconds", cfg.Live.DurationSeconds)
	v.NonNegative("Live.RefreshSeconds", cfg.Live.RefreshSeconds)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("Telemetry.SamplingRate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}
