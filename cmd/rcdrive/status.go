package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fatih/color"
	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/journal"
	"github.com/srg/rcdrive/internal/notify"
	"github.com/srg/rcdrive/internal/remote"
)

// crlf ends lines; the keyboard source may hold the terminal in raw mode.
const crlf = "\r\n"

// syncWriter serializes writes from the progress, status and command goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// statusPrinter renders feed events as one colored line each.
type statusPrinter struct {
	out  io.Writer
	good *color.Color
	warn *color.Color
	bad  *color.Color
	dim  *color.Color
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{
		out:  out,
		good: color.New(color.FgGreen, color.Bold),
		warn: color.New(color.FgYellow),
		bad:  color.New(color.FgRed),
		dim:  color.New(color.Faint),
	}
}

// Run prints events until ctx ends, then flushes what is still buffered.
func (p *statusPrinter) Run(ctx context.Context, feed *notify.Feed) {
	for {
		select {
		case e := <-feed.C():
			p.Print(e)
		case <-ctx.Done():
			for feed.Len() > 0 {
				p.Print(<-feed.C())
			}
			return
		}
	}
}

// Print renders one event.
func (p *statusPrinter) Print(e notify.Event) {
	ts := p.dim.Sprint(e.Time.Format("15:04:05.000"))
	var line string
	switch e.Kind {
	case notify.KindScan:
		if e.Scanning {
			line = p.warn.Sprintf("scanning for the car (%s)", e.Reason)
		} else {
			line = fmt.Sprintf("scan stopped (%s)", e.Reason)
		}
	case notify.KindConnection:
		line = p.stateColor(e.State).Sprint(e.State)
		if e.Address != "" {
			line += " " + e.Address
		}
		if e.Session != "" {
			line += " " + p.dim.Sprintf("session=%s", e.Session)
		}
	case notify.KindDiscovery:
		line = p.bad.Sprintf("service discovery incomplete")
	default:
		line = e.Kind.String()
	}
	if e.Err != nil {
		line += ": " + p.bad.Sprint(e.Err)
	}
	fmt.Fprint(p.out, ts, " ", line, crlf)
}

func (p *statusPrinter) stateColor(state string) *color.Color {
	switch state {
	case remote.StateReady.String():
		return p.good
	case remote.StateDisconnected.String():
		return p.bad
	default:
		return p.warn
	}
}

// printStats writes the per-channel write counters.
func printStats(out io.Writer, stats map[control.Channel]remote.ChannelStats) {
	channels := make([]control.Channel, 0, len(stats))
	for ch := range stats {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	for _, ch := range channels {
		st := stats[ch]
		fmt.Fprintf(out, "%-8s writes=%d failures=%d last=%d", ch, st.Writes, st.Failures, st.LastValue)
		if st.LastError != nil {
			fmt.Fprintf(out, " error=%q", st.LastError)
		}
		fmt.Fprint(out, crlf)
	}
}

// printJournal dumps the retained writes, oldest first.
func printJournal(out io.Writer, j *journal.Journal) {
	entries := j.Entries()
	fmt.Fprintf(out, "last %d of %d writes:%s", len(entries), j.Total(), crlf)
	for _, e := range entries {
		fmt.Fprint(out, "  ", e, crlf)
	}
}
