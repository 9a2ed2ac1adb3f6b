// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ManuGH/xstream/internal/config"
	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/version"
)

// globalFlags override the configuration file and environment when set.
type globalFlags struct {
	configPath   string
	saveDir      string
	binariesDir  string
	logLevel     string
	logConsole   bool
	headers      []string
	headersFile  string
	proxy        string
	limitPerHost int
	timeout      int
	baseURL      string
	statusListen string
}

type commandContext struct {
	flags globalFlags
	// overrides are registered by subcommands for their own flags. Flags
	// of other subcommands never report as changed.
	overrides []flagOverride

	configOnce sync.Once
	config     config.AppConfig
	configErr  error
}

type flagOverride func(changed func(name string) bool, cfg *config.AppConfig)

func (c *commandContext) override(fn flagOverride) {
	c.overrides = append(c.overrides, fn)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "xstream",
		Short:         "Download HLS, DASH and Smooth Streaming content",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			_, err := ctx.ensureConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	f := rootCmd.PersistentFlags()
	f.StringVarP(&ctx.flags.configPath, "config", "c", "", "Configuration file (YAML or TOML)")
	f.StringVarP(&ctx.flags.saveDir, "save-dir", "o", "", "Directory receiving segments and outputs")
	f.StringVar(&ctx.flags.binariesDir, "binaries-dir", "", "Directory searched for ffmpeg and mp4decrypt before PATH")
	f.StringVar(&ctx.flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.BoolVar(&ctx.flags.logConsole, "log-console", false, "Human readable logs instead of JSON")
	f.StringArrayVarP(&ctx.flags.headers, "header", "H", nil, `Request header "Name: value", repeatable`)
	f.StringVar(&ctx.flags.headersFile, "headers-file", "", "JSON file of request headers")
	f.StringVar(&ctx.flags.proxy, "proxy", "", "http(s) or socks5 proxy URL")
	f.IntVar(&ctx.flags.limitPerHost, "limit-per-host", 0, "Concurrent segment fetches per stream")
	f.IntVar(&ctx.flags.timeout, "timeout", 0, "Request timeout in seconds")
	f.StringVar(&ctx.flags.baseURL, "base-url", "", "Base URL for relative references of local manifests")
	f.StringVar(&ctx.flags.statusListen, "status-listen", "", "Serve /metrics, /healthz and /progress on this address")

	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// ensureConfig loads the configuration once: defaults, file, environment,
// then explicitly set flags.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (config.AppConfig, error) {
	c.configOnce.Do(func() {
		headers, err := parseHeaders(c.flags.headers)
		if err != nil {
			c.configErr = err
			return
		}
		changed := cmd.Flags().Changed
		loader := config.NewLoader(c.flags.configPath, version.Version).WithOverride(func(cfg *config.AppConfig) {
			if changed("save-dir") {
				cfg.SaveDir = c.flags.saveDir
			}
			if changed("binaries-dir") {
				cfg.BinariesDir = c.flags.binariesDir
			}
			if changed("log-level") {
				cfg.LogLevel = c.flags.logLevel
			}
			if changed("log-console") {
				cfg.LogConsole = c.flags.logConsole
			}
			if changed("headers-file") {
				cfg.Network.HeadersFile = c.flags.headersFile
			}
			if changed("proxy") {
				cfg.Network.Proxy = c.flags.proxy
			}
			if changed("limit-per-host") {
				cfg.Network.LimitPerHost = c.flags.limitPerHost
			}
			if changed("timeout") {
				cfg.Network.TimeoutSeconds = c.flags.timeout
			}
			if changed("base-url") {
				cfg.Parse.BaseURL = c.flags.baseURL
			}
			if changed("status-listen") {
				cfg.Status.Listen = c.flags.statusListen
			}
			if cfg.Network.Headers == nil {
				cfg.Network.Headers = map[string]string{}
			}
			for k, v := range headers {
				cfg.Network.Headers[k] = v
			}
		})
		for _, fn := range c.overrides {
			loader.WithOverride(func(cfg *config.AppConfig) { fn(changed, cfg) })
		}

		cfg, err := loader.Load()
		if err != nil {
			c.configErr = err
			return
		}
		log.Configure(log.Config{
			Level:   cfg.LogLevel,
			Console: cfg.LogConsole || isTerminal(os.Stderr),
			Version: version.Version,
		})
		c.config = cfg
	})
	return c.config, c.configErr
}

// parseHeaders turns "Name: value" flags into a map.
func parseHeaders(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: want \"Name: value\"", v)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
