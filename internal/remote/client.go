// Package remote is the remote-control core: it finds the vehicle, keeps one
// session to it and streams steering and throttle to it at a fixed cadence.
//
// Every component runs on a single event loop. Radio callbacks are posted to
// the loop; the input side only touches the lock-free control.Values.
package remote

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/device"
	"github.com/srg/rcdrive/internal/eventloop"
	"github.com/srg/rcdrive/internal/notify"
)

// Options configures a Client. Zero values select defaults.
type Options struct {
	Identity       Identity
	ScanWindow     time.Duration
	WriteInterval  time.Duration
	ConnectTimeout time.Duration
	Clock          eventloop.Clock
	Notifier       notify.Notifier
	Recorder       Recorder
	Logger         *logrus.Logger
}

// Status is a point-in-time view of the client, safe to use off the loop.
type Status struct {
	State      State
	Scanning   bool
	ScanWindow ScanWindow
	SessionID  string
	Address    string
	Generation uint64
	Channels   map[control.Channel]ChannelStats
}

// Client wires the scan, connection and write components onto one loop.
type Client struct {
	loop      *eventloop.Loop
	values    *control.Values
	scans     *ScanManager
	conns     *ConnectionManager
	scheduler *WriteScheduler
	logger    *logrus.Logger
}

// NewClient creates a Client on central, streaming values.
func NewClient(central device.Central, values *control.Values, opts Options) *Client {
	if opts.Identity == (Identity{}) {
		opts.Identity = DefaultIdentity
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	loop := eventloop.New(opts.Clock, opts.Logger)
	conns := &ConnectionManager{
		loop:     loop,
		central:  central,
		identity: opts.Identity,
		opts:     device.ConnectOptions{ConnectTimeout: opts.ConnectTimeout},
		notifier: opts.Notifier,
		logger:   opts.Logger,
	}
	conns.scans = newScanManager(loop, central, conns, opts.Identity.Name, opts.ScanWindow, opts.Notifier, opts.Logger)
	conns.scheduler = newWriteScheduler(loop, values, opts.WriteInterval, conns.isLive, opts.Recorder, opts.Logger)

	return &Client{
		loop:      loop,
		values:    values,
		scans:     conns.scans,
		conns:     conns,
		scheduler: conns.scheduler,
		logger:    opts.Logger,
	}
}

// Values returns the shared control values the input side writes to.
func (c *Client) Values() *control.Values {
	return c.values
}

// Start opens the first scan window.
func (c *Client) Start() {
	c.loop.Post(c.scans.StartScan)
}

// ToggleScan starts a scan when idle and stops it when running.
func (c *Client) ToggleScan() {
	c.loop.Post(c.scans.StartScan)
}

// Run starts scanning and processes events until ctx is cancelled. It tears
// the session down on the loop before returning ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	loopCtx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		select {
		case <-ctx.Done():
			c.loop.Post(func() {
				c.conns.Shutdown()
				stop()
			})
		case <-loopCtx.Done():
		}
	}()

	c.Start()
	_ = c.loop.Run(loopCtx)
	return ctx.Err()
}

// Shutdown tears the session down. Loop-driven callers such as tests use it
// together with Drain; Run does this on its own.
func (c *Client) Shutdown() {
	c.loop.Post(c.conns.Shutdown)
}

// Status snapshots the client state. Once Run has returned it reads the final
// state directly. It returns false if ctx ends first.
func (c *Client) Status(ctx context.Context) (Status, bool) {
	if c.loop.Closed() {
		return c.snapshot(), true
	}
	var st Status
	ok := c.loop.Do(ctx, func() {
		st = c.snapshot()
	})
	return st, ok
}

func (c *Client) snapshot() Status {
	st := Status{
		State:      StateDisconnected,
		Scanning:   c.scans.Scanning(),
		Generation: c.conns.Generation(),
		Channels:   c.scheduler.Stats(),
	}
	if st.Scanning {
		st.ScanWindow = c.scans.Window()
	}
	if s := c.conns.Session(); s != nil {
		st.State = s.state
		st.SessionID = s.ID
		st.Address = s.Address
	}
	return st
}
