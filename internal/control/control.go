// Package control holds the two control channels, their current values and
// the one-byte wire encoding.
package control

import (
	"fmt"

	"github.com/cornelk/hashmap"
)

// Channel identifies one of the two control channels.
type Channel uint8

const (
	Steering Channel = iota
	Throttle
)

// Channels lists every channel in transmission order.
var Channels = []Channel{Steering, Throttle}

func (c Channel) String() string {
	switch c {
	case Steering:
		return "steering"
	case Throttle:
		return "throttle"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// Other returns the channel that follows c in strict alternation.
func (c Channel) Other() Channel {
	if c == Steering {
		return Throttle
	}
	return Steering
}

// Range is the bounded scalar domain of a control value.
type Range struct {
	Min     float64 `yaml:"min" default:"0"`
	Max     float64 `yaml:"max" default:"200"`
	Neutral float64 `yaml:"neutral" default:"100"`
}

// DefaultRange is 0..200 with 100 as neutral.
var DefaultRange = Range{Min: 0, Max: 200, Neutral: 100}

// Validate checks Min <= Neutral <= Max and that the range fits in one byte.
func (r Range) Validate() error {
	if r.Min < 0 || r.Max > 255 {
		return fmt.Errorf("control range [%v, %v] does not fit in one byte", r.Min, r.Max)
	}
	if r.Min >= r.Max {
		return fmt.Errorf("control range min %v must be below max %v", r.Min, r.Max)
	}
	if r.Neutral < r.Min || r.Neutral > r.Max {
		return fmt.Errorf("neutral %v outside control range [%v, %v]", r.Neutral, r.Min, r.Max)
	}
	return nil
}

// Clamp bounds v to the range. Input sources call this; the encoder does not.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Values holds the latest value per channel. Setters may be called from any
// goroutine; only the most recent value per channel is kept.
type Values struct {
	rng Range
	m   *hashmap.Map[Channel, float64]
}

// NewValues creates a Values store with both channels at neutral.
func NewValues(rng Range) *Values {
	v := &Values{rng: rng, m: hashmap.New[Channel, float64]()}
	v.Center()
	return v
}

// Range returns the value domain of the store.
func (v *Values) Range() Range {
	return v.rng
}

// Set stores value for ch, replacing whatever was there.
func (v *Values) Set(ch Channel, value float64) {
	v.m.Set(ch, value)
}

// SetSteering is the steering-input setter.
func (v *Values) SetSteering(value float64) {
	v.Set(Steering, value)
}

// SetThrottle is the throttle/brake-input setter.
func (v *Values) SetThrottle(value float64) {
	v.Set(Throttle, value)
}

// Get returns the current value for ch.
func (v *Values) Get(ch Channel) float64 {
	if value, ok := v.m.Get(ch); ok {
		return value
	}
	return v.rng.Neutral
}

// Center resets both channels to neutral.
func (v *Values) Center() {
	for _, ch := range Channels {
		v.m.Set(ch, v.rng.Neutral)
	}
}

// Snapshot copies the current values of both channels.
func (v *Values) Snapshot() map[Channel]float64 {
	out := make(map[Channel]float64, len(Channels))
	for _, ch := range Channels {
		out[ch] = v.Get(ch)
	}
	return out
}

// Encode maps a control value to its one-byte payload by truncating toward
// zero. Values are expected inside the configured Range already.
func Encode(value float64) []byte {
	return []byte{byte(int(value))}
}
