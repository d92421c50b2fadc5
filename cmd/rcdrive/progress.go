package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a countdown line while a scan window is open.
//
//	p := NewCountdownPrinter(out, "Scanning for DaddyMobile", 10*time.Second)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Stop must be called to release the
// internal goroutine and is safe to call more than once.
type ProgressPrinter struct {
	out      io.Writer
	prefix   string
	duration time.Duration
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewCountdownPrinter creates a printer counting down from duration.
func NewCountdownPrinter(out io.Writer, prefix string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		out:      out,
		prefix:   prefix,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins redrawing the line in a background goroutine.
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		start := p.now()
		p.print(p.remaining(start))
		go p.loop(start)
	})
}

func (p *ProgressPrinter) loop(start time.Time) {
	defer close(p.done)
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.print(p.remaining(start))
		}
	}
}

// remaining rounds to the nearest second and stops at 0.
func (p *ProgressPrinter) remaining(start time.Time) int {
	left := p.duration - p.now().Sub(start)
	if left <= 0 {
		return 0
	}
	return int(left.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(seconds int) {
	fmt.Fprintf(p.out, "\r%s (%ds left)   ", p.prefix, seconds)
}

// Stop halts the redraw and clears the line.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.startOnce.Do(func() { close(p.done) })
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}
