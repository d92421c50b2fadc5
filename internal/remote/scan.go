package remote

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/device"
	"github.com/srg/rcdrive/internal/eventloop"
	"github.com/srg/rcdrive/internal/notify"
)

// DefaultScanWindow bounds one discovery attempt.
const DefaultScanWindow = 10 * time.Second

// ScanWindow describes the scan currently in progress.
type ScanWindow struct {
	Generation uint64
	Started    time.Time
	Deadline   time.Time
}

// ScanManager runs time-bounded discovery for the control peripheral.
// All methods must be called on the event loop.
type ScanManager struct {
	loop     *eventloop.Loop
	central  device.Central
	consumer device.EventConsumer
	filter   device.ScanFilter
	window   time.Duration
	notifier notify.Notifier
	logger   *logrus.Logger

	scanning  bool
	gen       uint64
	current   ScanWindow
	stopTimer eventloop.Timer
}

func newScanManager(loop *eventloop.Loop, central device.Central, consumer device.EventConsumer,
	name string, window time.Duration, notifier notify.Notifier, logger *logrus.Logger) *ScanManager {
	if window <= 0 {
		window = DefaultScanWindow
	}
	return &ScanManager{
		loop:     loop,
		central:  central,
		consumer: consumer,
		filter:   device.ScanFilter{Name: name},
		window:   window,
		notifier: notifier,
		logger:   logger,
	}
}

// Scanning reports whether a scan window is open.
func (s *ScanManager) Scanning() bool {
	return s.scanning
}

// Window returns the open scan window. Only meaningful while Scanning.
func (s *ScanManager) Window() ScanWindow {
	return s.current
}

// StartScan toggles scanning: it stops a running scan, otherwise it opens a
// new window that closes itself after the configured duration.
func (s *ScanManager) StartScan() {
	if s.scanning {
		s.StopScan(notify.ReasonToggled)
		return
	}

	if err := s.central.StartScan(s.filter, s.consumer); err != nil {
		s.logStartFailure(err)
		return
	}

	s.gen++
	gen := s.gen
	now := s.loop.Now()
	s.scanning = true
	s.current = ScanWindow{Generation: gen, Started: now, Deadline: now.Add(s.window)}
	s.stopTimer = s.loop.After(s.window, func() {
		// A toggle or a match may have closed this window and opened another.
		if !s.scanning || s.gen != gen {
			return
		}
		s.logger.WithField("window", s.window).Info("Scan window elapsed without a match")
		s.StopScan(notify.ReasonTimeout)
	})

	s.logger.WithFields(logrus.Fields{
		"name":   s.filter.Name,
		"window": s.window,
	}).Info("Scanning for peripheral")
	s.notify(notify.ReasonStarted, nil)
}

// StopScan closes the open window. It is a no-op when idle.
func (s *ScanManager) StopScan(reason string) {
	if !s.scanning {
		return
	}
	s.closeWindow()

	if err := s.central.StopScan(); err != nil {
		s.logger.WithError(err).Warn("Failed to stop scan")
	}
	s.logger.WithField("reason", reason).Debug("Scan stopped")
	s.notify(reason, nil)
}

// scanFailed handles the radio aborting a scan on its own.
func (s *ScanManager) scanFailed(err error) {
	if !s.scanning {
		return
	}
	s.closeWindow()
	s.logger.WithError(err).Warn("Scan aborted by radio")
	s.notify(notify.ReasonFailed, err)
}

func (s *ScanManager) closeWindow() {
	s.scanning = false
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
}

func (s *ScanManager) logStartFailure(err error) {
	switch {
	case errors.Is(err, device.ErrPermissionDenied):
		s.logger.WithError(err).Error("Missing Bluetooth permission, cannot scan")
	case errors.Is(err, device.ErrBluetoothOff):
		s.logger.WithError(err).Error("Bluetooth is off, cannot scan")
	case errors.Is(err, device.ErrScanInProgress):
		s.logger.WithError(err).Warn("Radio reports a scan already running")
	default:
		s.logger.WithError(err).Error("Failed to start scan")
	}
	s.notifier.Notify(notify.Event{
		Time:   s.loop.Now(),
		Kind:   notify.KindScan,
		Reason: notify.ReasonFailed,
		Err:    err,
	})
}

func (s *ScanManager) notify(reason string, err error) {
	s.notifier.Notify(notify.Event{
		Time:     s.loop.Now(),
		Kind:     notify.KindScan,
		Scanning: s.scanning,
		Reason:   reason,
		Err:      err,
	})
}
