// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/ManuGH/xstream/internal/downloader"
	"github.com/ManuGH/xstream/internal/log"
)

// progressView renders snapshots as bars on a terminal and as periodic log
// lines otherwise.
type progressView struct {
	mu     sync.Mutex
	out    io.Writer
	tty    bool
	bars   map[string]*progressbar.ProgressBar
	logger zerolog.Logger
}

func newProgressView(out io.Writer, tty bool) *progressView {
	return &progressView{
		out:    out,
		tty:    tty,
		bars:   make(map[string]*progressbar.ProgressBar),
		logger: log.WithComponent("progress"),
	}
}

// interval is the snapshot period suited to the output.
func (p *progressView) interval() time.Duration {
	if p.tty {
		return 500 * time.Millisecond
	}
	return 5 * time.Second
}

func (p *progressView) update(s downloader.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tty {
		p.logger.Info().
			Str(log.FieldStreamKey, s.SKey).
			Int("done", s.Done).
			Int("total", s.Total).
			Int("skipped", s.Skipped).
			Str("percent", fmt.Sprintf("%.1f", s.Percent())).
			Str("speed", humanize.Bytes(uint64(s.Speed))+"/s").
			Msg("download progress")
		return
	}

	total := max(s.TotalBytes, 1)
	bar, ok := p.bars[s.SKey]
	if !ok {
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(s.SKey),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.out) }),
		)
		p.bars[s.SKey] = bar
	}
	bar.ChangeMax64(total)
	_ = bar.Set64(min(s.Bytes, total))
}

func (p *progressView) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for skey, bar := range p.bars {
		_ = bar.Finish()
		delete(p.bars, skey)
	}
}
