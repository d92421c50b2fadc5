package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/eventloop"
	"github.com/srg/rcdrive/internal/notify"
	"github.com/stretchr/testify/suite"
)

// SuiteEpoch is the ManualClock start time used by FakeRadioSuite.
var SuiteEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeRadioSuite provides a reusable test suite around a scripted radio.
//
// Basic usage:
//
//	type DriveSuite struct {
//	    testutils.FakeRadioSuite
//	}
//
//	func TestDriveSuite(t *testing.T) {
//	    suite.Run(t, new(DriveSuite))
//	}
//
//	func (s *DriveSuite) TestSomething() {
//	    s.Central.Advertise(testutils.NewAdvertisementBuilder().WithName("car").Build())
//	    s.Clock.Advance(20 * time.Millisecond)
//	}
//
// Every test gets a fresh ManualClock, FakeCentral and notification Feed.
type FakeRadioSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Clock   *eventloop.ManualClock
	Central *FakeCentral
	Feed    *notify.Feed
}

// SetupSuite is called once before all tests in the suite.
func (s *FakeRadioSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

// SetupTest resets the radio before each test.
func (s *FakeRadioSuite) SetupTest() {
	s.Clock = eventloop.NewManualClock(SuiteEpoch)
	s.Central = NewFakeCentral(s.Clock)
	s.Feed = notify.NewFeed(1024)
}

// Events drains the notification feed.
func (s *FakeRadioSuite) Events() []notify.Event {
	var out []notify.Event
	for {
		select {
		case e := <-s.Feed.C():
			out = append(out, e)
		default:
			return out
		}
	}
}

// Elapsed returns how far the suite clock has moved since SuiteEpoch.
func (s *FakeRadioSuite) Elapsed() time.Duration {
	return s.Clock.Now().Sub(SuiteEpoch)
}
