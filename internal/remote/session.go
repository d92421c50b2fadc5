package remote

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/device"
)

// Identity names the peripheral and its control attributes. It is fixed for
// the lifetime of a Client.
type Identity struct {
	Name         string
	ServiceUUID  string
	SteeringUUID string
	ThrottleUUID string
}

// DefaultIdentity is the stock vehicle firmware.
var DefaultIdentity = Identity{
	Name:         "DaddyMobile",
	ServiceUUID:  "00002137-0000-1000-8000-00805f9b34fb",
	SteeringUUID: "00006901-0000-1000-8000-00805f9b34fb",
	ThrottleUUID: "00006902-0000-1000-8000-00805f9b34fb",
}

// CharacteristicUUID returns the characteristic UUID that carries ch.
func (id Identity) CharacteristicUUID(ch control.Channel) string {
	if ch == control.Throttle {
		return id.ThrottleUUID
	}
	return id.SteeringUUID
}

// Validate checks that the name is set and all UUIDs are well-formed.
func (id Identity) Validate() error {
	if id.Name == "" {
		return fmt.Errorf("peripheral name is empty")
	}
	if _, err := device.ValidateUUID(id.ServiceUUID, id.SteeringUUID, id.ThrottleUUID); err != nil {
		return fmt.Errorf("invalid control UUID: %w", err)
	}
	return nil
}

// State is the lifecycle state of a connection session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateServicesDiscovering
	StateReady
	StateTearingDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateServicesDiscovering:
		return "services_discovering"
	case StateReady:
		return "ready"
	case StateTearingDown:
		return "tearing_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ChannelHandle is a resolved control characteristic plus its write mode.
type ChannelHandle struct {
	Char device.Characteristic
	Mode device.WriteMode
}

// Session is one connection attempt and lifetime. It is owned by the event
// loop; nothing outside the loop may read or write it.
type Session struct {
	ID         string
	Generation uint64
	Address    string
	Started    time.Time

	state        State
	link         device.Link
	handles      map[control.Channel]*ChannelHandle
	next         control.Channel
	discoveryErr error
}

func newSession(generation uint64, address string, now time.Time) *Session {
	return &Session{
		ID:         ulid.Make().String(),
		Generation: generation,
		Address:    address,
		Started:    now,
		state:      StateConnecting,
		next:       control.Steering,
	}
}

// State returns the session state.
func (s *Session) State() State {
	return s.state
}

// Handle returns the resolved handle for ch, or nil before discovery succeeds.
func (s *Session) Handle(ch control.Channel) *ChannelHandle {
	if s.handles == nil {
		return nil
	}
	return s.handles[ch]
}

// DiscoveryErr returns why discovery left the session non-operational, if it did.
func (s *Session) DiscoveryErr() error {
	return s.discoveryErr
}

func (s *Session) clearHandles() {
	s.handles = nil
}
