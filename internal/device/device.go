package device

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Capability and operation errors
var (
	// ErrPermissionDenied means the process lacks the Bluetooth capability
	// (missing CAP_NET_ADMIN on Linux, TCC denial on macOS).
	ErrPermissionDenied = errors.New("bluetooth permission denied")
	ErrBluetoothOff     = errors.New("bluetooth is turned off")
	ErrScanInProgress   = errors.New("scan already in progress")
	ErrTimeout          = errors.New("timeout")
	ErrUnsupported      = errors.New("unsupported")
)

// IsCapabilityError reports whether err means the radio cannot be used at all.
func IsCapabilityError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrBluetoothOff)
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ----------------------------
// Radio abstraction
// ----------------------------

// LinkState is the connection state reported by the radio for a Link.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnected
)

func (s LinkState) String() string {
	if s == LinkConnected {
		return "connected"
	}
	return "disconnected"
}

// WriteMode selects acknowledged or unacknowledged characteristic writes.
type WriteMode int

const (
	WriteWithResponse WriteMode = iota
	WriteWithoutResponse
)

func (m WriteMode) String() string {
	if m == WriteWithoutResponse {
		return "without_response"
	}
	return "with_response"
}

// Advertisement is the subset of advertising data the client needs.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
}

// ScanFilter restricts which advertisements reach OnScanResult.
type ScanFilter struct {
	Name string
}

// Match reports whether adv passes the filter. An empty name matches everything.
func (f ScanFilter) Match(adv Advertisement) bool {
	return f.Name == "" || adv.LocalName() == f.Name
}

// EventConsumer receives asynchronous radio callbacks. Implementations must be
// safe to call from any goroutine.
type EventConsumer interface {
	OnScanResult(adv Advertisement)
	OnConnectionStateChanged(link Link, state LinkState, err error)
	OnServicesDiscovered(link Link, profile Profile, err error)
}

// Central is a BLE central role radio. All operations return immediately;
// results arrive through the EventConsumer.
type Central interface {
	// StartScan starts an active scan. It fails with ErrScanInProgress if a
	// scan is already running.
	StartScan(filter ScanFilter, consumer EventConsumer) error
	// StopScan stops the running scan; it is a no-op when idle.
	StopScan() error
	// Connect issues a connection request. The returned Link is not usable
	// until OnConnectionStateChanged reports LinkConnected for it.
	Connect(address string, opts ConnectOptions, consumer EventConsumer) (Link, error)
}

// Link is one GATT connection attempt/lifetime.
type Link interface {
	Address() string
	// RequestHighPriority asks for a short connection interval. Best effort.
	RequestHighPriority() error
	// DiscoverServices starts discovery; the result is delivered through
	// OnServicesDiscovered.
	DiscoverServices() error
	Write(char Characteristic, data []byte, mode WriteMode) error
	Close() error
}

// Profile is the discovered GATT database of a peripheral.
type Profile interface {
	Services() []Service
	// Characteristic returns the characteristic uuid inside service, or a
	// *NotFoundError naming the missing resource.
	Characteristic(service, uuid string) (Characteristic, error)
}

// Service represents a GATT service
type Service interface {
	UUID() string
	Characteristics() []Characteristic
}

// Characteristic represents a GATT characteristic
type Characteristic interface {
	UUID() string
	Properties() Properties
}

// Properties is the characteristic property bit set.
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

// Has reports whether all bits of p2 are set in p.
func (p Properties) Has(p2 Properties) bool { return p&p2 == p2 }

// CanWrite reports whether the characteristic accepts any kind of write.
func (p Properties) CanWrite() bool {
	return p&(PropWrite|PropWriteWithoutResponse) != 0
}

// ConnectOptions defines BLE connection options
type ConnectOptions struct {
	ConnectTimeout time.Duration
}
