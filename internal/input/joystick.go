package input

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/control"
)

// Linux joystick API event types (linux/joystick.h).
const (
	jsEventButton uint8 = 0x01
	jsEventAxis   uint8 = 0x02
	jsEventInit   uint8 = 0x80
)

// jsEventSize is sizeof(struct js_event).
const jsEventSize = 8

// JoystickEvent is one struct js_event.
type JoystickEvent struct {
	Time   uint32 // ms, driver clock
	Value  int16
	Type   uint8
	Number uint8
}

// IsAxis reports whether e is an axis event, including synthetic init events.
func (e JoystickEvent) IsAxis() bool {
	return e.Type&^jsEventInit == jsEventAxis
}

// IsButton reports whether e is a button event, including synthetic init events.
func (e JoystickEvent) IsButton() bool {
	return e.Type&^jsEventInit == jsEventButton
}

// AxisToValue maps a raw axis position onto rng. invert flips the direction,
// which suits throttle sticks that report forward as negative.
func AxisToValue(raw int16, rng control.Range, invert bool) float64 {
	n := (float64(raw) + 32767) / 65534
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	if invert {
		n = 1 - n
	}
	return rng.Clamp(rng.Min + n*(rng.Max-rng.Min))
}

// JoystickOptions maps joystick axes to channels.
type JoystickOptions struct {
	SteeringAxis   uint8
	ThrottleAxis   uint8
	InvertThrottle bool
	Logger         *logrus.Logger
}

// Joystick reads a Linux joystick device node (/dev/input/jsN).
type Joystick struct {
	path string
	opts JoystickOptions
}

// NewJoystick creates a Joystick reading path.
func NewJoystick(path string, opts JoystickOptions) *Joystick {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Joystick{path: path, opts: opts}
}

// Run opens the device and applies axis events until ctx ends.
func (j *Joystick) Run(ctx context.Context, values *control.Values) error {
	f, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("failed to open joystick %s: %w", j.path, err)
	}
	defer f.Close()

	j.opts.Logger.WithField("path", j.path).Info("Reading joystick")
	err = j.Consume(ctx, f, values)
	values.Center()
	return err
}

// Consume decodes events from r until ctx ends or r is exhausted.
func (j *Joystick) Consume(ctx context.Context, r io.Reader, values *control.Values) error {
	var pending []byte
	return readLoop(ctx, r, jsEventSize*16, func(b []byte) error {
		pending = append(pending, b...)
		for len(pending) >= jsEventSize {
			var e JoystickEvent
			if err := binary.Read(bytes.NewReader(pending[:jsEventSize]), binary.LittleEndian, &e); err != nil {
				return fmt.Errorf("failed to decode joystick event: %w", err)
			}
			pending = pending[jsEventSize:]
			j.Apply(e, values)
		}
		return nil
	})
}

// Apply maps one event onto values. Events for unmapped axes and buttons are ignored.
func (j *Joystick) Apply(e JoystickEvent, values *control.Values) {
	if !e.IsAxis() {
		return
	}
	rng := values.Range()
	switch e.Number {
	case j.opts.SteeringAxis:
		values.SetSteering(AxisToValue(e.Value, rng, false))
	case j.opts.ThrottleAxis:
		values.SetThrottle(AxisToValue(e.Value, rng, j.opts.InvertThrottle))
	default:
		return
	}
	j.opts.Logger.WithFields(logrus.Fields{
		"axis":  e.Number,
		"value": e.Value,
	}).Trace("Joystick axis")
}
