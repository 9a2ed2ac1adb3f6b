// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ManuGH/xstream/internal/manifest"
)

// streamView is the JSON form of a stream in list output.
type streamView struct {
	Index      int     `json:"index"`
	SKey       string  `json:"skey"`
	Type       string  `json:"type"`
	Codec      string  `json:"codec,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	Bandwidth  int64   `json:"bandwidth,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	Lang       string  `json:"lang,omitempty"`
	Role       string  `json:"role,omitempty"`
	Segments   int     `json:"segments"`
	Duration   float64 `json:"duration_seconds,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	Encrypted  bool    `json:"encrypted,omitempty"`
	Live       bool    `json:"live,omitempty"`
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <uri>",
		Short: "Parse a manifest and print its streams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			streams, err := rt.streams(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(viewStreams(streams))
			}
			if len(streams) == 0 {
				fmt.Fprintln(out, "No streams found.")
				return nil
			}
			fmt.Fprintln(out, renderStreams(streams))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print streams as JSON")
	return cmd
}

func viewStreams(streams []*manifest.Stream) []streamView {
	out := make([]streamView, 0, len(streams))
	for _, st := range streams {
		out = append(out, streamView{
			Index:      st.Index,
			SKey:       st.SKey,
			Type:       string(st.Type),
			Codec:      st.Codec,
			Resolution: st.Resolution,
			Bandwidth:  st.Bandwidth,
			FPS:        st.FPS,
			Lang:       st.Lang,
			Role:       st.Role,
			Segments:   st.MediaCount(),
			Duration:   st.Duration,
			Filesize:   st.Filesize,
			Encrypted:  encrypted(st),
			Live:       st.IsLive,
		})
	}
	return out
}

func renderStreams(streams []*manifest.Stream) string {
	headers := []string{"#", "Type", "Codec", "Resolution", "Bandwidth", "Lang", "Segments", "Duration", "Size", "Flags"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(streams))
	for _, st := range streams {
		rows = append(rows, []string{
			strconv.Itoa(st.Index),
			string(st.Type),
			orDash(st.Codec),
			orDash(st.Resolution),
			formatBandwidth(st.Bandwidth),
			orDash(st.Lang),
			strconv.Itoa(st.MediaCount()),
			formatSeconds(st.Duration),
			formatBytes(st.Filesize),
			flags(st),
		})
	}
	return renderTable(headers, rows, aligns)
}

func encrypted(st *manifest.Stream) bool {
	if len(st.Keys) > 0 {
		return true
	}
	for _, seg := range st.Segments {
		if seg.Key != nil && seg.Key.Method != manifest.MethodNone {
			return true
		}
	}
	return false
}

func flags(st *manifest.Stream) string {
	var f string
	if encrypted(st) {
		f += "enc "
	}
	if st.IsLive {
		f += "live "
	}
	if f == "" {
		return "-"
	}
	return f[:len(f)-1]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatBandwidth(bps int64) string {
	if bps <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(float64(bps), 0, "bps")
}

func formatSeconds(sec float64) string {
	if sec <= 0 {
		return "-"
	}
	return (time.Duration(sec * float64(time.Second))).Round(time.Second).String()
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}
