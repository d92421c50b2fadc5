// Package notify carries display-only status notifications from the core to
// whatever renders them (terminal, log). The core never reads them back.
package notify

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Kind classifies an Event.
type Kind int

const (
	KindScan Kind = iota
	KindConnection
	KindDiscovery
)

func (k Kind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindConnection:
		return "connection"
	case KindDiscovery:
		return "discovery"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Scan reasons
const (
	ReasonStarted  = "started"
	ReasonMatched  = "matched"
	ReasonTimeout  = "timeout"
	ReasonToggled  = "toggled"
	ReasonFailed   = "failed"
	ReasonShutdown = "shutdown"
)

// Event is one status change.
type Event struct {
	Time     time.Time
	Kind     Kind
	Scanning bool   // KindScan: scanner is now listening
	Reason   string // KindScan: why the scan state changed
	State    string // KindConnection: new session state
	Session  string // session ID, empty for scan events
	Address  string
	Err      error
}

// Notifier receives status events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// Discard drops every event.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Event) {}

// Feed is a bounded Notifier with overwrite-oldest semantics: a slow reader
// loses the oldest events, the publisher never blocks.
type Feed struct {
	ch          chan Event
	written     atomic.Int64
	overwritten atomic.Int64
}

// NewFeed creates a Feed holding up to capacity undelivered events.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		panic("notify: capacity must be > 0")
	}
	return &Feed{ch: make(chan Event, capacity)}
}

// Notify publishes e, discarding the oldest buffered event if the feed is full.
func (f *Feed) Notify(e Event) {
	for {
		select {
		case f.ch <- e:
			f.written.Add(1)
			return
		default:
		}
		select {
		case <-f.ch:
			f.overwritten.Add(1)
		default:
		}
	}
}

// C returns the receive side of the feed.
func (f *Feed) C() <-chan Event {
	return f.ch
}

// Len returns the number of buffered events.
func (f *Feed) Len() int {
	return len(f.ch)
}

// Stats returns how many events were published and how many were overwritten.
func (f *Feed) Stats() (written, overwritten int64) {
	return f.written.Load(), f.overwritten.Load()
}

// Fanout delivers every event to each notifier in order.
type Fanout []Notifier

func (fo Fanout) Notify(e Event) {
	for _, n := range fo {
		n.Notify(e)
	}
}
