package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/device"
	"github.com/srg/rcdrive/internal/journal"
	"github.com/srg/rcdrive/internal/notify"
	"github.com/srg/rcdrive/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const (
	testInterval = 20 * time.Millisecond
	testWindow   = 10 * time.Second
	carAddress   = "AA:BB:CC:DD:EE:01"
)

type ClientTestSuite struct {
	testutils.FakeRadioSuite

	values  *control.Values
	journal *journal.Journal
	client  *Client
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.FakeRadioSuite.SetupTest()
	s.values = control.NewValues(control.DefaultRange)
	s.journal = journal.New(64)
	s.client = NewClient(s.Central, s.values, Options{
		ScanWindow:    testWindow,
		WriteInterval: testInterval,
		Clock:         s.Clock,
		Notifier:      s.Feed,
		Recorder:      s.journal,
		Logger:        s.Logger,
	})
}

// advance moves the clock in 1ms steps, draining the loop after each step
// so timers scheduled by callbacks fire at their own deadline.
func (s *ClientTestSuite) advance(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += time.Millisecond {
		s.Clock.Advance(time.Millisecond)
		s.client.loop.Drain()
	}
}

func (s *ClientTestSuite) drain() {
	s.client.loop.Drain()
}

func (s *ClientTestSuite) status() Status {
	return s.client.snapshot()
}

func (s *ClientTestSuite) advertiseCar() bool {
	return s.Central.Advertise(testutils.CreateMockAdvertisement(DefaultIdentity.Name, carAddress, -40).Build())
}

func (s *ClientTestSuite) controlProfile() *testutils.FakeProfile {
	return testutils.ControlProfile(DefaultIdentity.ServiceUUID, DefaultIdentity.SteeringUUID, DefaultIdentity.ThrottleUUID)
}

// connectReady runs scan, match, connect and discovery without moving time.
func (s *ClientTestSuite) connectReady() *testutils.FakeLink {
	if !s.Central.Scanning() {
		s.client.Start()
		s.drain()
	}
	s.Require().True(s.advertiseCar(), "advertisement MUST reach the client while scanning")
	s.drain()

	link := s.Central.LastLink()
	s.Require().NotNil(link, "match MUST issue a connect request")
	link.Connected()
	s.drain()
	link.Discovered(s.controlProfile(), nil)
	s.drain()
	s.Require().Equal(StateReady, s.status().State)
	return link
}

func (s *ClientTestSuite) connectionStates() []string {
	var states []string
	for _, e := range s.Events() {
		if e.Kind == notify.KindConnection {
			states = append(states, e.State)
		}
	}
	return states
}

func channelOf(uuid string) control.Channel {
	if device.EqualUUID(uuid, DefaultIdentity.ThrottleUUID) {
		return control.Throttle
	}
	return control.Steering
}

func (s *ClientTestSuite) TestDriveSessionScenario() {
	// GOAL: Verify the full scan, connect, stream, disconnect, rescan cycle on the 20ms cadence
	//
	// TEST SCENARIO: Match at t=0 → connected at 50ms → Ready at 150ms → drop at 500ms → no writes after 520ms and a new scan

	s.client.Start()
	s.drain()
	s.Require().True(s.Central.Scanning(), "Start MUST open a scan window")

	s.Require().True(s.advertiseCar())
	s.drain()
	s.False(s.Central.Scanning(), "a match MUST close the scan window")
	link := s.Central.LastLink()
	s.Require().NotNil(link)
	s.Equal(carAddress, link.Address())

	s.advance(50 * time.Millisecond)
	link.Connected()
	s.drain()
	s.Equal(StateServicesDiscovering, s.status().State)
	s.Equal(1, link.PriorityRequests(), "connect MUST request high priority")
	s.Equal(1, link.DiscoveryRequests(), "connect MUST request discovery")

	s.advance(100 * time.Millisecond)
	s.values.SetSteering(30)
	s.values.SetThrottle(170)
	link.Discovered(s.controlProfile(), nil)
	s.drain()
	s.Equal(StateReady, s.status().State)

	s.advance(350 * time.Millisecond) // t=500ms
	link.Disconnected(errors.New("supervision timeout"))
	s.drain()
	s.advance(20 * time.Millisecond) // t=520ms

	writes := link.Writes()
	s.Require().NotEmpty(writes)
	start := testutils.SuiteEpoch.Add(150 * time.Millisecond)
	stop := testutils.SuiteEpoch.Add(500 * time.Millisecond)
	s.Equal(start, writes[0].At, "first write MUST happen when the session becomes Ready")
	s.Len(writes, 18, "ticks at 150..490ms MUST produce one write each")

	for i, w := range writes {
		s.False(w.At.After(stop), "write %d at %s MUST NOT happen after the disconnect", i, w.At)
		s.Equal(device.WriteWithoutResponse, w.Mode, "writes MUST be unacknowledged")
		s.Len(w.Data, 1)
		want := control.Steering
		if i%2 == 1 {
			want = control.Throttle
		}
		s.Equal(want, channelOf(w.UUID), "write %d MUST follow strict alternation", i)
		if want == control.Steering {
			s.Equal(byte(30), w.Data[0])
		} else {
			s.Equal(byte(170), w.Data[0])
		}
	}

	st := s.status()
	s.Equal(StateDisconnected, st.State)
	s.True(st.Scanning, "disconnect MUST resume scanning")
	s.True(s.Central.Scanning())
	s.Equal(2, s.Central.ScanStarts())
	s.True(link.Closed(), "dropped link MUST be released")

	s.Equal([]string{"connecting", "services_discovering", "ready", "disconnected"}, s.connectionStates())
	s.Equal(uint64(18), s.journal.Total())
}

func (s *ClientTestSuite) TestDiscoveryIncomplete() {
	// GOAL: Verify a profile missing the throttle characteristic leaves the session idle
	//
	// TEST SCENARIO: Discovery resolves steering only → no Ready, no writes, link left open

	logger, buf := testutils.CaptureLogger(s.Logger.GetLevel())
	s.client = NewClient(s.Central, s.values, Options{
		ScanWindow:    testWindow,
		WriteInterval: testInterval,
		Clock:         s.Clock,
		Notifier:      s.Feed,
		Logger:        logger,
	})

	s.client.Start()
	s.drain()
	s.Require().True(s.advertiseCar())
	s.drain()
	link := s.Central.LastLink()
	link.Connected()
	s.drain()

	profile := testutils.ControlProfile(DefaultIdentity.ServiceUUID, DefaultIdentity.SteeringUUID, "")
	link.Discovered(profile, nil)
	s.drain()
	s.advance(time.Second)

	s.Empty(link.Writes(), "no writes MUST occur without both channels")
	s.False(link.Closed(), "connection MUST remain open")
	s.Equal(StateServicesDiscovering, s.status().State)
	s.NotContains(s.connectionStates(), "ready")
	s.Contains(buf.String(), ErrDiscoveryIncomplete.Error())

	sess := s.client.conns.Session()
	s.Require().NotNil(sess)
	s.ErrorIs(sess.DiscoveryErr(), ErrDiscoveryIncomplete)
	var nf *device.NotFoundError
	s.Require().ErrorAs(sess.DiscoveryErr(), &nf)
	s.Equal("characteristic", nf.Resource)
}

func (s *ClientTestSuite) TestDiscoveryMissingService() {
	// GOAL: Verify a peripheral without the control service is not driven
	//
	// TEST SCENARIO: Discovery returns an unrelated service → error names the service

	s.connectUntilDiscovery()
	link := s.Central.LastLink()
	link.Discovered(testutils.ControlProfile("180f", "2a19", ""), nil)
	s.drain()

	sess := s.client.conns.Session()
	s.Require().NotNil(sess)
	var nf *device.NotFoundError
	s.Require().ErrorAs(sess.DiscoveryErr(), &nf)
	s.Equal("service", nf.Resource)
	s.Empty(link.Writes())
}

func (s *ClientTestSuite) connectUntilDiscovery() {
	s.client.Start()
	s.drain()
	s.Require().True(s.advertiseCar())
	s.drain()
	s.Central.LastLink().Connected()
	s.drain()
}

func (s *ClientTestSuite) TestStaleGenerationTickWritesNothing() {
	// GOAL: Verify a tick scheduled for a superseded session produces zero writes
	//
	// TEST SCENARIO: Ready → capture session → disconnect → run a tick for the old generation

	link := s.connectReady()
	old := s.client.conns.Session()
	gen := old.Generation
	before := len(link.Writes())

	link.Disconnected(nil)
	s.drain()
	s.client.scheduler.tick(old, gen)
	s.advance(100 * time.Millisecond)

	s.Len(link.Writes(), before, "stale ticks MUST NOT write")
}

func (s *ClientTestSuite) TestAtMostOneReadySession() {
	// GOAL: Verify repeated connect/disconnect cycles never leave two Ready sessions
	//
	// TEST SCENARIO: Three cycles with stray callbacks from old links → Ready and disconnected alternate

	var links []*testutils.FakeLink
	for i := 0; i < 3; i++ {
		link := s.connectReady()
		links = append(links, link)
		s.advance(60 * time.Millisecond)

		// Callbacks replayed from an older link MUST be ignored.
		for _, old := range links[:len(links)-1] {
			old.Connected()
			old.Discovered(s.controlProfile(), nil)
		}
		s.drain()
		s.Equal(StateReady, s.status().State)

		link.Disconnected(nil)
		s.drain()
	}

	ready := 0
	for _, st := range s.connectionStates() {
		switch st {
		case "ready":
			ready++
			s.LessOrEqual(ready, 1, "a second session MUST NOT become Ready before the first one drops")
		case "disconnected":
			ready = 0
		}
	}

	// Old links MUST stop receiving writes after they drop.
	s.advance(200 * time.Millisecond)
	for i, l := range links {
		for _, w := range l.Writes() {
			s.False(w.At.After(testutils.SuiteEpoch.Add(time.Duration(i+1)*60*time.Millisecond)), "link %d wrote after its disconnect", i)
		}
	}
}

func (s *ClientTestSuite) TestSecondAdvertisementIgnoredWhileConnecting() {
	// GOAL: Verify only the first match opens a session
	//
	// TEST SCENARIO: Toggle scan back on during Connecting and advertise again → no second connect

	s.client.Start()
	s.drain()
	s.Require().True(s.advertiseCar())
	s.drain()

	s.client.ToggleScan()
	s.drain()
	s.Require().True(s.advertiseCar())
	s.drain()

	s.Len(s.Central.Links(), 1, "second advertisement MUST NOT open another connection")
}

func (s *ClientTestSuite) TestReadyIgnoresUnrelatedAdvertisements() {
	// GOAL: Verify other peripherals never reach the connection path
	//
	// TEST SCENARIO: Advertise a different name while scanning → filtered out, scan stays open

	s.client.Start()
	s.drain()
	s.False(s.Central.Advertise(testutils.CreateMockAdvertisement("Toaster", "11:22:33:44:55:66", -70).Build()))
	s.drain()
	s.Empty(s.Central.Links())
	s.True(s.status().Scanning)
}

func (s *ClientTestSuite) TestConnectRejected() {
	// GOAL: Verify a rejected connect request leaves the client idle without crashing
	//
	// TEST SCENARIO: Connect returns PermissionDenied → no session, scan closed

	s.Central.ConnectErr = device.ErrPermissionDenied
	s.client.Start()
	s.drain()
	s.Require().True(s.advertiseCar())
	s.drain()

	st := s.status()
	s.Equal(StateDisconnected, st.State)
	s.Empty(st.SessionID)
	s.False(st.Scanning)
	s.Equal(uint64(1), st.Generation)
}

func (s *ClientTestSuite) TestDialFailureRescans() {
	// GOAL: Verify a failed dial counts as a disconnect and resumes scanning
	//
	// TEST SCENARIO: Connect request accepted → radio reports disconnected with an error → scan reopens

	s.client.Start()
	s.drain()
	s.Require().True(s.advertiseCar())
	s.drain()

	s.Central.LastLink().Disconnected(device.ErrTimeout)
	s.drain()

	s.True(s.Central.Scanning())
	s.Equal(2, s.Central.ScanStarts())
	for _, e := range s.Events() {
		if e.Kind == notify.KindConnection && e.State == "disconnected" {
			s.ErrorIs(e.Err, ErrUnexpectedDisconnect)
			s.ErrorIs(e.Err, device.ErrTimeout)
		}
	}
}

func (s *ClientTestSuite) TestDiscoveryRequestRejected() {
	// GOAL: Verify a discovery request failure leaves the session where it was
	//
	// TEST SCENARIO: DiscoverServices fails → state stays Connecting, a later disconnect still rescans

	s.client.Start()
	s.drain()
	s.Require().True(s.advertiseCar())
	s.drain()
	link := s.Central.LastLink()
	link.SetDiscoverErr(device.ErrPermissionDenied)
	link.Connected()
	s.drain()
	s.Equal(StateConnecting, s.status().State)

	link.Disconnected(nil)
	s.drain()
	s.True(s.status().Scanning)
}

func (s *ClientTestSuite) TestHighPriorityFailureIsNonFatal() {
	// GOAL: Verify an unsupported priority request does not block discovery
	//
	// TEST SCENARIO: RequestHighPriority fails → discovery still requested

	s.client.Start()
	s.drain()
	s.Require().True(s.advertiseCar())
	s.drain()
	link := s.Central.LastLink()
	link.SetPriorityErr(device.ErrUnsupported)
	link.Connected()
	s.drain()

	s.Equal(1, link.DiscoveryRequests())
	s.Equal(StateServicesDiscovering, s.status().State)
}

func (s *ClientTestSuite) TestWriteFailuresAreAbsorbed() {
	// GOAL: Verify transient write errors are counted and the loop keeps ticking
	//
	// TEST SCENARIO: Every write fails with a generic error → writes continue at the cadence

	link := s.connectReady()
	link.SetWriteErr(errors.New("queue full"))
	s.advance(200 * time.Millisecond)

	s.GreaterOrEqual(len(link.Writes()), 10)
	st := s.status()
	s.Equal(StateReady, st.State)
	s.Positive(st.Channels[control.Steering].Failures)
	s.Positive(st.Channels[control.Throttle].Failures)
	failed := 0
	for _, e := range s.journal.Entries() {
		if e.Failed {
			failed++
		}
	}
	s.Positive(failed, "journal MUST record failed writes")
}

func (s *ClientTestSuite) TestPermissionLossHaltsWrites() {
	// GOAL: Verify a capability error mid-session stops the write loop until reconnect
	//
	// TEST SCENARIO: Write returns PermissionDenied → no further writes → reconnect resumes streaming

	link := s.connectReady()
	link.SetWriteErr(device.ErrPermissionDenied)
	s.advance(200 * time.Millisecond)
	// One successful write when Ready, one refused write, then nothing.
	s.Len(link.Writes(), 2, "write loop MUST stop after a permission failure")

	link.Disconnected(nil)
	s.drain()
	next := s.connectReady()
	s.advance(100 * time.Millisecond)
	s.NotEmpty(next.Writes(), "new session MUST stream again")
}

func (s *ClientTestSuite) TestStaleValuesAreRetransmitted() {
	// GOAL: Verify unchanged values are still written on every turn
	//
	// TEST SCENARIO: No input changes → neutral bytes keep flowing on both channels

	link := s.connectReady()
	s.advance(200 * time.Millisecond)

	writes := link.Writes()
	s.GreaterOrEqual(len(writes), 10)
	for _, w := range writes {
		s.Equal([]byte{100}, w.Data, "idle input MUST refresh the neutral value")
	}
}

func (s *ClientTestSuite) TestShutdown() {
	// GOAL: Verify shutdown tears the session down and ignores late callbacks
	//
	// TEST SCENARIO: Ready → Shutdown → late disconnect → no rescan, no writes

	link := s.connectReady()
	s.Events()

	s.client.Shutdown()
	s.drain()
	s.True(link.Closed())
	s.Equal([]string{"tearing_down", "disconnected"}, s.connectionStates())

	before := len(link.Writes())
	link.Disconnected(nil)
	s.drain()
	s.advance(100 * time.Millisecond)

	s.Len(link.Writes(), before)
	s.False(s.Central.Scanning(), "shutdown MUST NOT rescan")
	s.Equal(1, s.Central.ScanStarts())
}

func TestClient_RunStopsOnCancel(t *testing.T) {
	central := testutils.NewFakeCentral(nil)
	client := NewClient(central, control.NewValues(control.DefaultRange), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !central.Scanning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !central.Scanning() {
		t.Fatal("Run MUST open a scan window")
	}

	st, ok := client.Status(ctx)
	if !ok || !st.Scanning {
		t.Fatalf("Status MUST report scanning, got %+v ok=%v", st, ok)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run MUST return context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run MUST return after cancel")
	}
	if central.Scanning() {
		t.Fatal("Run MUST stop scanning on shutdown")
	}

	st, ok = client.Status(context.Background())
	if !ok || st.Scanning || st.State != StateDisconnected {
		t.Fatalf("Status after Run MUST report the final idle state, got %+v ok=%v", st, ok)
	}
}
