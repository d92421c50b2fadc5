// Package journal keeps a fixed-size trace of the most recent wire writes.
package journal

import (
	"fmt"
	"sync"

	"github.com/smallnest/ringbuffer"
	"github.com/srg/rcdrive/internal/control"
)

// recordSize is the encoded size of one Entry: channel, payload, flags.
const recordSize = 3

const flagFailed byte = 1 << 0

// Entry is one recorded write.
type Entry struct {
	Channel control.Channel
	Payload byte
	Failed  bool
}

func (e Entry) String() string {
	status := "ok"
	if e.Failed {
		status = "failed"
	}
	return fmt.Sprintf("%s=%d (%s)", e.Channel, e.Payload, status)
}

// Journal stores the last N writes, overwriting the oldest.
type Journal struct {
	mu    sync.Mutex
	buf   *ringbuffer.RingBuffer
	total uint64
}

// New creates a Journal that keeps the last capacity writes.
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 1
	}
	return &Journal{buf: ringbuffer.New(capacity * recordSize)}
}

// Record appends one write outcome.
func (j *Journal) Record(ch control.Channel, payload []byte, err error) {
	rec := [recordSize]byte{byte(ch)}
	if len(payload) > 0 {
		rec[1] = payload[0]
	}
	if err != nil {
		rec[2] |= flagFailed
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.buf.Free() < recordSize {
		var drop [recordSize]byte
		_, _ = j.buf.Read(drop[:])
	}
	_, _ = j.buf.Write(rec[:])
	j.total++
}

// Total returns how many writes were recorded since creation.
func (j *Journal) Total() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total
}

// Entries returns the retained writes, oldest first.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	raw := make([]byte, j.buf.Length())
	if len(raw) == 0 {
		return nil
	}
	n, _ := j.buf.Read(raw)
	raw = raw[:n]
	// Reading consumes; put the records back.
	_, _ = j.buf.Write(raw)

	entries := make([]Entry, 0, len(raw)/recordSize)
	for i := 0; i+recordSize <= len(raw); i += recordSize {
		entries = append(entries, Entry{
			Channel: control.Channel(raw[i]),
			Payload: raw[i+1],
			Failed:  raw[i+2]&flagFailed != 0,
		})
	}
	return entries
}
