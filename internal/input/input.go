// Package input turns operator input into steering and throttle values.
//
// A Source runs until its context ends, writing into a shared control.Values.
// Sources clamp into the configured range; the wire encoder relies on that.
package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/eventloop"
)

// ErrQuit is returned by a Source when the operator asked to exit.
var ErrQuit = errors.New("quit requested")

const (
	KindKeyboard = "keyboard"
	KindJoystick = "joystick"
	KindNeutral  = "neutral"
)

// Config selects and tunes an input source.
type Config struct {
	Kind           string        `yaml:"kind" default:"keyboard"`
	JoystickPath   string        `yaml:"joystick_path" default:"/dev/input/js0"`
	SteeringAxis   uint8         `yaml:"steering_axis" default:"0"`
	ThrottleAxis   uint8         `yaml:"throttle_axis" default:"1"`
	InvertThrottle bool          `yaml:"invert_throttle" default:"true"`
	Step           float64       `yaml:"step" default:"10"`
	ReleaseAfter   time.Duration `yaml:"release_after" default:"300ms"`
}

// Validate checks the source kind and its tunables.
func (c Config) Validate() error {
	switch c.Kind {
	case KindKeyboard:
		if c.Step <= 0 {
			return fmt.Errorf("keyboard step must be positive, got %v", c.Step)
		}
		if c.ReleaseAfter < 0 {
			return fmt.Errorf("release_after must not be negative, got %s", c.ReleaseAfter)
		}
	case KindJoystick:
		if c.JoystickPath == "" {
			return fmt.Errorf("joystick_path is required for joystick input")
		}
		if c.SteeringAxis == c.ThrottleAxis {
			return fmt.Errorf("steering and throttle must use different axes, both are %d", c.SteeringAxis)
		}
	case KindNeutral:
	default:
		return fmt.Errorf("unknown input kind %q (want %s, %s or %s)", c.Kind, KindKeyboard, KindJoystick, KindNeutral)
	}
	return nil
}

// Source feeds control values until ctx ends or the operator quits.
type Source interface {
	Run(ctx context.Context, values *control.Values) error
}

// Deps carries what sources need from their host.
type Deps struct {
	In       io.Reader // keyboard input, usually os.Stdin
	OnRescan func()    // keyboard rescan key
	Clock    eventloop.Clock
	Logger   *logrus.Logger
}

// New builds the source cfg.Kind names.
func New(cfg Config, deps Deps) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Clock == nil {
		deps.Clock = eventloop.SystemClock{}
	}

	switch cfg.Kind {
	case KindKeyboard:
		if deps.In == nil {
			return nil, fmt.Errorf("keyboard input needs a reader")
		}
		return NewKeyboard(deps.In, KeyboardOptions{
			Step:         cfg.Step,
			ReleaseAfter: cfg.ReleaseAfter,
			OnRescan:     deps.OnRescan,
			Clock:        deps.Clock,
			Logger:       deps.Logger,
		}), nil
	case KindJoystick:
		return NewJoystick(cfg.JoystickPath, JoystickOptions{
			SteeringAxis:   cfg.SteeringAxis,
			ThrottleAxis:   cfg.ThrottleAxis,
			InvertThrottle: cfg.InvertThrottle,
			Logger:         deps.Logger,
		}), nil
	default:
		return Neutral{}, nil
	}
}

// Neutral holds both channels at neutral. The scheduler keeps refreshing
// them, which makes it a keepalive for bench testing.
type Neutral struct{}

func (Neutral) Run(ctx context.Context, values *control.Values) error {
	values.Center()
	<-ctx.Done()
	return ctx.Err()
}
