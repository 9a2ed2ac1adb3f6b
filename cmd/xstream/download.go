// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ManuGH/xstream/internal/concat"
	"github.com/ManuGH/xstream/internal/config"
	"github.com/ManuGH/xstream/internal/downloader"
	"github.com/ManuGH/xstream/internal/live"
	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/ManuGH/xstream/internal/selection"
	"github.com/ManuGH/xstream/internal/status"
	"github.com/ManuGH/xstream/internal/telemetry"
	"github.com/ManuGH/xstream/internal/version"
)

// errStreamsFailed is returned when at least one stream did not finish.
var errStreamsFailed = errors.New("some streams failed")

type downloadFlags struct {
	indices     string
	types       []string
	resolution  string
	lang        string
	live        bool
	noProgress  bool
	contentKeys []string
	aesKey      string
	aesIV       string

	maxPasses      int
	rateLimit      float64
	rawConcat      bool
	disableConcat  bool
	deleteSegments bool
	liveDuration   time.Duration
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var f downloadFlags

	cmd := &cobra.Command{
		Use:   "download <uri>",
		Short: "Download the selected streams of a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			return runDownload(cmd.Context(), cmd.OutOrStdout(), cfg, f, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.indices, "select", "s", "", `Stream indices, e.g. "0,2-4"`)
	fl.StringSliceVarP(&f.types, "type", "t", nil, "Select every stream of these types (video, audio, subtitle)")
	fl.StringVar(&f.resolution, "resolution", "", `Preferred video resolution, "1920x1080" or "720"`)
	fl.StringVar(&f.lang, "lang", "", "Preferred audio and subtitle language")
	fl.BoolVar(&f.live, "live", false, "Record as live even if the manifest is not marked live")
	fl.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
	fl.StringArrayVar(&f.contentKeys, "key", nil, `Content key "<kid>:<key>", repeatable`)
	fl.StringVar(&f.aesKey, "aes-key", "", "Base64 AES-128 key replacing the manifest keys")
	fl.StringVar(&f.aesIV, "aes-iv", "", "Hex IV replacing the manifest IVs")
	fl.IntVar(&f.maxPasses, "max-passes", 0, "Download passes before giving up on failing segments")
	fl.Float64Var(&f.rateLimit, "rate-limit", 0, "Segment requests per second, 0 for unlimited")
	fl.BoolVar(&f.rawConcat, "raw-concat", false, "Concatenate bytes instead of remuxing with ffmpeg")
	fl.BoolVar(&f.disableConcat, "disable-concat", false, "Keep the segment files only")
	fl.BoolVar(&f.deleteSegments, "delete-segments", false, "Delete segment files after a successful concat")
	fl.DurationVar(&f.liveDuration, "live-duration", 0, "Stop live recording after this much media")

	ctx.override(func(changed func(string) bool, cfg *config.AppConfig) {
		if changed("key") {
			cfg.Keys.ContentKeys = append(cfg.Keys.ContentKeys, f.contentKeys...)
		}
		if changed("aes-key") {
			cfg.Keys.AESKey = f.aesKey
		}
		if changed("aes-iv") {
			cfg.Keys.AESIV = f.aesIV
		}
		if changed("max-passes") {
			cfg.Download.MaxPasses = f.maxPasses
		}
		if changed("rate-limit") {
			cfg.Download.RateLimit = f.rateLimit
		}
		if changed("raw-concat") {
			cfg.Download.RawConcat = f.rawConcat
		}
		if changed("disable-concat") {
			cfg.Download.DisableConcat = f.disableConcat
		}
		if changed("delete-segments") {
			cfg.Download.DeleteSegments = f.deleteSegments
		}
		if changed("live-duration") {
			cfg.Live.DurationSeconds = int(f.liveDuration / time.Second)
		}
	})
	return cmd
}

func runDownload(ctx context.Context, out io.Writer, cfg config.AppConfig, f downloadFlags, uri string) error {
	jobID := uuid.NewString()
	ctx = log.ContextWithJobID(ctx, jobID)
	logger := log.WithComponentFromContext(ctx, "cli")
	started := time.Now()

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, version.Version)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Msg("telemetry shutdown failed")
			}
		}()
	}

	// Missing binaries and bad keys are reported before the first request.
	var merger downloader.Merger
	if !cfg.Download.DisableConcat {
		pipeline, err := concat.FromConfig(cfg)
		if err != nil {
			return err
		}
		merger = pipeline
	}
	opts, err := downloader.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	streams, err := rt.streams(ctx, uri)
	if err != nil {
		return err
	}
	if len(streams) == 0 {
		return fmt.Errorf("no streams found in %s", uri)
	}

	choices, err := selection.Select(streams, criteria(f))
	if err != nil {
		return err
	}
	for _, ch := range choices {
		logger.Info().
			Int("index", ch.Stream.Index).
			Str(log.FieldStreamKey, ch.Stream.SKey).
			Str("reason", string(ch.Reason)).
			Msg("stream selected")
	}
	selected := selection.Streams(choices)

	tty := !f.noProgress && isTerminal(os.Stderr)
	view := newProgressView(os.Stderr, tty)
	opts.ProgressInterval = view.interval()
	dl := downloader.New(rt.client, merger, opts)
	dl.OnProgress(view.update)

	if cfg.Status.Listen != "" {
		srv, err := status.Start(ctx, cfg.Status.Listen, status.NewRouter(dl.Board(), status.Info{
			Version: version.Version,
			JobID:   jobID,
			Started: started,
		}, status.DefaultRateLimit))
		if err != nil {
			return err
		}
		defer func() {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn().Err(err).Msg("status server shutdown failed")
			}
		}()
	}

	var report downloader.Report
	if f.live || anyLive(selected) {
		lopts := live.OptionsFromConfig(cfg)
		lopts.Force = f.live
		report, err = live.New(rt, dl, lopts).Record(ctx, uri, selected)
	} else {
		report, err = dl.Download(ctx, selected)
	}
	view.close()

	fmt.Fprintln(out, renderReport(report))
	if err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%w: %d of %d", errStreamsFailed, n, len(report.Streams))
	}
	return nil
}

func criteria(f downloadFlags) selection.Criteria {
	c := selection.Criteria{Indices: f.indices, Resolution: f.resolution, Lang: f.lang}
	for _, t := range f.types {
		c.Types = append(c.Types, manifest.StreamType(strings.ToLower(strings.TrimSpace(t))))
	}
	return c
}

func anyLive(streams []*manifest.Stream) bool {
	for _, st := range streams {
		if st.IsLive {
			return true
		}
	}
	return false
}

func renderReport(r downloader.Report) string {
	headers := []string{"Stream", "State", "Segments", "Skipped", "Size", "Time", "Output"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(r.Streams))
	for _, s := range r.Streams {
		state := string(s.State)
		if s.Err != nil {
			state += ": " + s.Err.Error()
		}
		rows = append(rows, []string{
			orDash(s.SKey),
			state,
			fmt.Sprintf("%d/%d", s.Downloaded, s.Total),
			strconv.Itoa(s.Skipped),
			formatBytes(s.Bytes),
			s.Duration.Round(time.Second).String(),
			orDash(s.Output),
		})
	}
	return renderTable(headers, rows, aligns) + "\n" +
		fmt.Sprintf("%s in %s", humanize.Bytes(uint64(r.Bytes())), r.Finished.Sub(r.Started).Round(time.Second))
}
