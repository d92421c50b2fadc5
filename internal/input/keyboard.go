package input

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/eventloop"
	"golang.org/x/term"
)

// Key is a decoded keyboard command.
type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeyLeft
	KeyRight
	KeyCenter
	KeyRescan
	KeyQuit
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeyCenter:
		return "center"
	case KeyRescan:
		return "rescan"
	case KeyQuit:
		return "quit"
	}
	return "unknown"
}

// ParseKeys decodes raw terminal bytes. Arrow keys arrive as ESC [ A..D (or
// ESC O A..D in application cursor mode); unknown bytes are skipped.
func ParseKeys(b []byte) []Key {
	var keys []Key
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c == 0x1b {
			if i+2 < len(b) && (b[i+1] == '[' || b[i+1] == 'O') {
				if k, ok := arrowKey(b[i+2]); ok {
					keys = append(keys, k)
				}
				i += 2
			}
			continue
		}
		switch c {
		case 'w', 'W':
			keys = append(keys, KeyUp)
		case 's', 'S':
			keys = append(keys, KeyDown)
		case 'a', 'A':
			keys = append(keys, KeyLeft)
		case 'd', 'D':
			keys = append(keys, KeyRight)
		case ' ':
			keys = append(keys, KeyCenter)
		case 'r', 'R':
			keys = append(keys, KeyRescan)
		case 'q', 'Q', 0x03, 0x04: // Ctrl+C, Ctrl+D in raw mode
			keys = append(keys, KeyQuit)
		}
	}
	return keys
}

func arrowKey(c byte) (Key, bool) {
	switch c {
	case 'A':
		return KeyUp, true
	case 'B':
		return KeyDown, true
	case 'C':
		return KeyRight, true
	case 'D':
		return KeyLeft, true
	}
	return 0, false
}

// KeyboardOptions tunes the keyboard source.
type KeyboardOptions struct {
	Step         float64
	ReleaseAfter time.Duration // 0 keeps values until changed
	OnRescan     func()
	Clock        eventloop.Clock
	Logger       *logrus.Logger
}

// Keyboard steps values with arrows or WASD. Terminals report no key
// release, so a channel snaps back to neutral when its keys stop repeating
// for ReleaseAfter.
type Keyboard struct {
	in   io.Reader
	opts KeyboardOptions

	mu      sync.Mutex
	release map[control.Channel]releaseTimer
	armed   uint64
}

// releaseTimer is a pending snap back to neutral. A callback that already
// started when its timer was replaced must not fire, so it checks gen.
type releaseTimer struct {
	timer eventloop.Timer
	gen   uint64
}

// NewKeyboard creates a Keyboard reading from in.
func NewKeyboard(in io.Reader, opts KeyboardOptions) *Keyboard {
	if opts.Clock == nil {
		opts.Clock = eventloop.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Keyboard{in: in, opts: opts, release: make(map[control.Channel]releaseTimer)}
}

// Run reads keys until ctx ends or a quit key, which returns ErrQuit. A
// terminal input is switched to raw mode for the duration.
func (k *Keyboard) Run(ctx context.Context, values *control.Values) error {
	if f, ok := k.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return err
		}
		defer func() {
			if err := term.Restore(int(f.Fd()), state); err != nil {
				k.opts.Logger.WithError(err).Warn("Failed to restore terminal")
			}
		}()
	}

	err := readLoop(ctx, k.in, 64, func(b []byte) error {
		for _, key := range ParseKeys(b) {
			if k.Apply(key, values) {
				return ErrQuit
			}
		}
		return nil
	})

	k.stopTimers()
	values.Center()
	return err
}

// Apply performs one key. It returns true for KeyQuit.
func (k *Keyboard) Apply(key Key, values *control.Values) bool {
	rng := values.Range()
	switch key {
	case KeyUp:
		k.nudge(values, control.Throttle, k.opts.Step, rng)
	case KeyDown:
		k.nudge(values, control.Throttle, -k.opts.Step, rng)
	case KeyRight:
		k.nudge(values, control.Steering, k.opts.Step, rng)
	case KeyLeft:
		k.nudge(values, control.Steering, -k.opts.Step, rng)
	case KeyCenter:
		k.stopTimers()
		values.Center()
	case KeyRescan:
		if k.opts.OnRescan != nil {
			k.opts.OnRescan()
		}
	case KeyQuit:
		return true
	}
	k.opts.Logger.WithFields(logrus.Fields{
		"key":      key,
		"steering": values.Get(control.Steering),
		"throttle": values.Get(control.Throttle),
	}).Debug("Key applied")
	return false
}

func (k *Keyboard) nudge(values *control.Values, ch control.Channel, delta float64, rng control.Range) {
	k.mu.Lock()
	defer k.mu.Unlock()

	values.Set(ch, rng.Clamp(values.Get(ch)+delta))
	if k.opts.ReleaseAfter <= 0 {
		return
	}

	if t, ok := k.release[ch]; ok {
		t.timer.Stop()
	}
	k.armed++
	gen := k.armed
	k.release[ch] = releaseTimer{
		gen: gen,
		timer: k.opts.Clock.AfterFunc(k.opts.ReleaseAfter, func() {
			k.releaseChannel(values, ch, gen, rng.Neutral)
		}),
	}
}

// releaseChannel centers ch unless the timer gen was replaced or stopped.
func (k *Keyboard) releaseChannel(values *control.Values, ch control.Channel, gen uint64, neutral float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t, ok := k.release[ch]; !ok || t.gen != gen {
		return
	}
	delete(k.release, ch)
	values.Set(ch, neutral)
}

func (k *Keyboard) stopTimers() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for ch, t := range k.release {
		t.timer.Stop()
		delete(k.release, ch)
	}
}
