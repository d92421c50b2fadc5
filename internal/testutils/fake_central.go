package testutils

import (
	"sync"
	"time"

	"github.com/srg/rcdrive/internal/device"
	"github.com/srg/rcdrive/internal/eventloop"
)

// FakeCentral is a scripted device.Central. Operations only record what was
// asked; the test drives the radio side by calling Advertise, FailScan and
// the FakeLink completion methods.
type FakeCentral struct {
	mu    sync.Mutex
	clock eventloop.Clock

	StartScanErr error
	StopScanErr  error
	ConnectErr   error

	scanning   bool
	filter     device.ScanFilter
	consumer   device.EventConsumer
	scanStarts int
	scanStops  int
	links      []*FakeLink
}

// NewFakeCentral creates a FakeCentral stamping writes with clock.
func NewFakeCentral(clock eventloop.Clock) *FakeCentral {
	if clock == nil {
		clock = eventloop.SystemClock{}
	}
	return &FakeCentral{clock: clock}
}

func (c *FakeCentral) StartScan(filter device.ScanFilter, consumer device.EventConsumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StartScanErr != nil {
		return c.StartScanErr
	}
	if c.scanning {
		return device.ErrScanInProgress
	}
	c.scanning = true
	c.filter = filter
	c.consumer = consumer
	c.scanStarts++
	return nil
}

func (c *FakeCentral) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanning {
		c.scanStops++
	}
	c.scanning = false
	return c.StopScanErr
}

func (c *FakeCentral) Connect(address string, _ device.ConnectOptions, consumer device.EventConsumer) (device.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	link := &FakeLink{address: address, consumer: consumer, clock: c.clock}
	c.links = append(c.links, link)
	return link, nil
}

// Scanning reports whether the radio is listening.
func (c *FakeCentral) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// ScanStarts returns how many scans were started.
func (c *FakeCentral) ScanStarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanStarts
}

// ScanStops returns how many running scans were stopped.
func (c *FakeCentral) ScanStops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanStops
}

// Advertise delivers adv if a scan is running and the filter lets it through.
// It returns whether the advertisement was delivered.
func (c *FakeCentral) Advertise(adv device.Advertisement) bool {
	c.mu.Lock()
	consumer, ok := c.consumer, c.scanning && c.filter.Match(adv)
	c.mu.Unlock()
	if !ok {
		return false
	}
	consumer.OnScanResult(adv)
	return true
}

// FailScan aborts the running scan as a radio would.
func (c *FakeCentral) FailScan(err error) {
	c.mu.Lock()
	consumer := c.consumer
	c.scanning = false
	c.mu.Unlock()
	if f, ok := consumer.(interface{ OnScanFailed(error) }); ok {
		f.OnScanFailed(err)
	}
}

// Links returns every link handed out, oldest first.
func (c *FakeCentral) Links() []*FakeLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FakeLink(nil), c.links...)
}

// LastLink returns the newest link or nil.
func (c *FakeCentral) LastLink() *FakeLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.links) == 0 {
		return nil
	}
	return c.links[len(c.links)-1]
}

// WriteRecord is one write seen by a FakeLink.
type WriteRecord struct {
	At   time.Time
	UUID string
	Data []byte
	Mode device.WriteMode
}

// FakeLink is a scripted device.Link.
type FakeLink struct {
	mu       sync.Mutex
	address  string
	consumer device.EventConsumer
	clock    eventloop.Clock

	writeErr    error
	priorityErr error
	discoverErr error

	writes            []WriteRecord
	priorityRequests  int
	discoveryRequests int
	closed            bool
}

func (l *FakeLink) Address() string { return l.address }

func (l *FakeLink) RequestHighPriority() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.priorityRequests++
	return l.priorityErr
}

func (l *FakeLink) DiscoverServices() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discoveryRequests++
	return l.discoverErr
}

func (l *FakeLink) Write(char device.Characteristic, data []byte, mode device.WriteMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, WriteRecord{
		At:   l.clock.Now(),
		UUID: char.UUID(),
		Data: append([]byte(nil), data...),
		Mode: mode,
	})
	return l.writeErr
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// SetWriteErr makes every following Write return err.
func (l *FakeLink) SetWriteErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
}

// SetPriorityErr makes RequestHighPriority return err.
func (l *FakeLink) SetPriorityErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.priorityErr = err
}

// SetDiscoverErr makes DiscoverServices return err.
func (l *FakeLink) SetDiscoverErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discoverErr = err
}

// Connected reports the link as connected.
func (l *FakeLink) Connected() {
	l.consumer.OnConnectionStateChanged(l, device.LinkConnected, nil)
}

// Disconnected reports the link as dropped with err.
func (l *FakeLink) Disconnected(err error) {
	l.consumer.OnConnectionStateChanged(l, device.LinkDisconnected, err)
}

// Discovered delivers a discovery result.
func (l *FakeLink) Discovered(profile device.Profile, err error) {
	l.consumer.OnServicesDiscovered(l, profile, err)
}

// Writes returns a copy of the recorded writes.
func (l *FakeLink) Writes() []WriteRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]WriteRecord(nil), l.writes...)
}

// PriorityRequests returns how often high priority was requested.
func (l *FakeLink) PriorityRequests() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.priorityRequests
}

// DiscoveryRequests returns how often discovery was requested.
func (l *FakeLink) DiscoveryRequests() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.discoveryRequests
}

// Closed reports whether Close was called.
func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
