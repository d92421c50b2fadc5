package remote

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/device"
	"github.com/srg/rcdrive/internal/eventloop"
	"golang.org/x/time/rate"
)

// DefaultWriteInterval is the tick period. Each channel is refreshed every
// other tick.
const DefaultWriteInterval = 20 * time.Millisecond

// Recorder receives every write attempt. journal.Journal implements it.
type Recorder interface {
	Record(ch control.Channel, payload []byte, err error)
}

// ChannelStats counts write attempts for one channel.
type ChannelStats struct {
	Writes    uint64
	Failures  uint64
	LastValue byte
	LastError error
}

// WriteScheduler streams the latest control values to a Ready session,
// alternating steering and throttle on each tick. All methods must be called
// on the event loop.
type WriteScheduler struct {
	loop     *eventloop.Loop
	values   *control.Values
	interval time.Duration
	live     func(s *Session, gen uint64) bool
	recorder Recorder
	warn     *rate.Limiter
	logger   *logrus.Logger

	stats map[control.Channel]*ChannelStats
}

func newWriteScheduler(loop *eventloop.Loop, values *control.Values, interval time.Duration,
	live func(*Session, uint64) bool, recorder Recorder, logger *logrus.Logger) *WriteScheduler {
	if interval <= 0 {
		interval = DefaultWriteInterval
	}
	return &WriteScheduler{
		loop:     loop,
		values:   values,
		interval: interval,
		live:     live,
		recorder: recorder,
		warn:     rate.NewLimiter(rate.Every(5*time.Second), 1),
		logger:   logger,
		stats: map[control.Channel]*ChannelStats{
			control.Steering: {},
			control.Throttle: {},
		},
	}
}

// Interval returns the tick period.
func (w *WriteScheduler) Interval() time.Duration {
	return w.interval
}

// Start begins ticking for s. The first tick runs as soon as the loop is free.
func (w *WriteScheduler) Start(s *Session) {
	gen := s.Generation
	s.next = control.Steering
	w.logger.WithFields(logrus.Fields{
		"session":  s.ID,
		"interval": w.interval,
	}).Debug("Write loop started")
	w.loop.Post(func() { w.tick(s, gen) })
}

// Stats returns a copy of the per-channel counters.
func (w *WriteScheduler) Stats() map[control.Channel]ChannelStats {
	out := make(map[control.Channel]ChannelStats, len(w.stats))
	for ch, st := range w.stats {
		out[ch] = *st
	}
	return out
}

func (w *WriteScheduler) tick(s *Session, gen uint64) {
	if !w.live(s, gen) {
		w.logger.WithField("session", s.ID).Debug("Write loop exited")
		return
	}

	ch := s.next
	s.next = ch.Other()

	h := s.Handle(ch)
	payload := control.Encode(w.values.Get(ch))
	err := s.link.Write(h.Char, payload, h.Mode)

	st := w.stats[ch]
	st.Writes++
	st.LastValue = payload[0]
	st.LastError = err
	if w.recorder != nil {
		w.recorder.Record(ch, payload, err)
	}

	if err != nil {
		st.Failures++
		if device.IsCapabilityError(err) {
			w.logger.WithError(err).WithField("channel", ch).Error("Radio refused write, write loop halted until reconnect")
			return
		}
		if w.warn.Allow() {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"channel":  ch,
				"failures": st.Failures,
			}).Warn("Control write failed")
		}
	}

	w.loop.After(w.interval, func() { w.tick(s, gen) })
}
