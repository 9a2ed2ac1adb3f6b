// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package downloader

import "github.com/ManuGH/xstream/internal/config"

func configWithKeys(pairs ...string) config.AppConfig {
	cfg := config.Defaults()
	cfg.Keys.ContentKeys = pairs
	return cfg
}
