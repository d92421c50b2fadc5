package remote

import (
	"errors"
	"time"

	"github.com/srg/rcdrive/internal/device"
	"github.com/srg/rcdrive/internal/notify"
	"github.com/srg/rcdrive/internal/testutils"
)

func (s *ClientTestSuite) scanReasons() []string {
	var reasons []string
	for _, e := range s.Events() {
		if e.Kind == notify.KindScan {
			reasons = append(reasons, e.Reason)
		}
	}
	return reasons
}

func (s *ClientTestSuite) TestScanWindowTimesOut() {
	// GOAL: Verify an unanswered scan closes itself after the window
	//
	// TEST SCENARIO: Start scan → no advertisement for 10s → scanner idle

	s.client.Start()
	s.drain()
	st := s.status()
	s.Require().True(st.Scanning)
	s.Equal(testutils.SuiteEpoch.Add(testWindow), st.ScanWindow.Deadline)

	s.advance(testWindow - time.Millisecond)
	s.True(s.Central.Scanning(), "scan MUST stay open until the window elapses")

	s.advance(time.Millisecond)
	s.False(s.Central.Scanning(), "scan MUST stop when the window elapses")
	s.False(s.status().Scanning)
	s.Equal([]string{notify.ReasonStarted, notify.ReasonTimeout}, s.scanReasons())
}

func (s *ClientTestSuite) TestStartScanTogglesOff() {
	// GOAL: Verify calling StartScan while scanning stops the scan instead of opening a second one
	//
	// TEST SCENARIO: Start → Start → radio sees one start and one stop

	s.client.Start()
	s.client.ToggleScan()
	s.drain()

	s.False(s.Central.Scanning())
	s.Equal(1, s.Central.ScanStarts())
	s.Equal(1, s.Central.ScanStops())
	s.Equal([]string{notify.ReasonStarted, notify.ReasonToggled}, s.scanReasons())
	s.Zero(s.Clock.Pending(), "toggle MUST cancel the window timer")
}

func (s *ClientTestSuite) TestStaleWindowTimerDoesNotStopNewScan() {
	// GOAL: Verify the stop timer of a closed window cannot end a later window
	//
	// TEST SCENARIO: Start at 0 → toggle off at 3s → start at 4s → still scanning at 10s → stopped at 14s

	s.client.Start()
	s.drain()
	s.advance(3 * time.Second)
	s.client.ToggleScan()
	s.drain()
	s.advance(time.Second)
	s.client.ToggleScan()
	s.drain()

	s.advance(6*time.Second + 500*time.Millisecond)
	s.True(s.Central.Scanning(), "first window's timer MUST NOT stop the second scan")

	s.advance(3*time.Second + 500*time.Millisecond)
	s.False(s.Central.Scanning())
	s.Equal(uint64(2), s.client.scans.Window().Generation)
}

func (s *ClientTestSuite) TestScanFailureClosesWindow() {
	// GOAL: Verify a radio-side scan abort is absorbed
	//
	// TEST SCENARIO: Scanning → radio aborts → state idle, failure notified, a new scan can start

	s.client.Start()
	s.drain()
	s.Central.FailScan(errors.New("adapter reset"))
	s.drain()

	s.False(s.status().Scanning)
	s.Equal([]string{notify.ReasonStarted, notify.ReasonFailed}, s.scanReasons())

	s.client.ToggleScan()
	s.drain()
	s.True(s.Central.Scanning(), "scan MUST be restartable after a failure")
}

func (s *ClientTestSuite) TestScanPermissionDenied() {
	// GOAL: Verify a scan refused for lack of permission is a logged no-op
	//
	// TEST SCENARIO: StartScan fails with PermissionDenied → not scanning, no timer

	s.Central.StartScanErr = device.ErrPermissionDenied
	s.client.Start()
	s.drain()

	s.False(s.status().Scanning)
	s.Zero(s.Clock.Pending())
	events := s.Events()
	s.Require().Len(events, 1)
	s.Equal(notify.ReasonFailed, events[0].Reason)
	s.ErrorIs(events[0].Err, device.ErrPermissionDenied)
}

func (s *ClientTestSuite) carAdvertisement() device.Advertisement {
	return testutils.CreateMockAdvertisement(DefaultIdentity.Name, carAddress, -40).Build()
}

func (s *ClientTestSuite) TestAdvertisementAfterToggleOffIgnored() {
	// GOAL: Verify a result the radio delivers after the scan was toggled off opens no session
	//
	// TEST SCENARIO: Start → toggle off → late car advertisement → no connect, still idle

	s.client.Start()
	s.drain()
	s.client.ToggleScan()
	s.drain()
	s.Require().False(s.status().Scanning)

	s.client.conns.OnScanResult(s.carAdvertisement())
	s.drain()

	s.Nil(s.Central.LastLink(), "a stopped scan MUST NOT lead to a connection")
	st := s.status()
	s.Equal(StateDisconnected, st.State)
	s.Empty(st.SessionID)
	s.Zero(st.Generation)
	s.Empty(s.connectionStates())
}

func (s *ClientTestSuite) TestAdvertisementAfterTimeoutIgnored() {
	// GOAL: Verify a result queued behind the window timeout leaves the scanner idle
	//
	// TEST SCENARIO: Start → window elapses → late car advertisement → no connect, no rescan

	s.client.Start()
	s.drain()
	s.advance(testWindow)
	s.Require().False(s.Central.Scanning())

	s.client.conns.OnScanResult(s.carAdvertisement())
	s.drain()

	s.Nil(s.Central.LastLink(), "a timed out scan MUST NOT lead to a connection")
	s.False(s.status().Scanning)
	s.Equal(1, s.Central.ScanStarts())
	s.Equal([]string{notify.ReasonStarted, notify.ReasonTimeout}, s.scanReasons())
}

func (s *ClientTestSuite) TestQueuedDuplicatesAfterRejectedConnect() {
	// GOAL: Verify duplicate results queued behind a rejected connect do not retry it
	//
	// TEST SCENARIO: Connect fails → two more queued car advertisements → one attempt reported

	s.Central.ConnectErr = device.ErrPermissionDenied
	s.client.Start()
	s.drain()

	for i := 0; i < 3; i++ {
		s.client.conns.OnScanResult(s.carAdvertisement())
	}
	s.drain()

	s.Equal([]string{"disconnected"}, s.connectionStates(), "only the first result MUST attempt a connection")
	s.Equal(uint64(1), s.status().Generation)
	s.False(s.status().Scanning)
}
