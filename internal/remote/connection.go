package remote

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/device"
	"github.com/srg/rcdrive/internal/eventloop"
	"github.com/srg/rcdrive/internal/notify"
)

// ConnectionManager drives the session lifecycle: it connects to the first
// matching advertisement, discovers the control characteristics, hands the
// session to the WriteScheduler and rescans after a disconnect.
//
// The radio callbacks (device.EventConsumer) may arrive on any goroutine;
// each one is posted to the event loop and handled there.
type ConnectionManager struct {
	loop      *eventloop.Loop
	central   device.Central
	identity  Identity
	opts      device.ConnectOptions
	scans     *ScanManager
	scheduler *WriteScheduler
	notifier  notify.Notifier
	logger    *logrus.Logger

	session    *Session
	generation uint64
	closing    bool
}

// Session returns the current session or nil. Loop only.
func (m *ConnectionManager) Session() *Session {
	return m.session
}

// Generation returns the current session generation. Loop only.
func (m *ConnectionManager) Generation() uint64 {
	return m.generation
}

// OnScanResult implements device.EventConsumer.
func (m *ConnectionManager) OnScanResult(adv device.Advertisement) {
	m.loop.Post(func() { m.handleScanResult(adv) })
}

// OnConnectionStateChanged implements device.EventConsumer.
func (m *ConnectionManager) OnConnectionStateChanged(link device.Link, state device.LinkState, err error) {
	m.loop.Post(func() { m.handleLinkState(link, state, err) })
}

// OnServicesDiscovered implements device.EventConsumer.
func (m *ConnectionManager) OnServicesDiscovered(link device.Link, profile device.Profile, err error) {
	m.loop.Post(func() { m.handleDiscovery(link, profile, err) })
}

// OnScanFailed is called by radios that can abort a scan on their own.
func (m *ConnectionManager) OnScanFailed(err error) {
	m.loop.Post(func() { m.scans.scanFailed(err) })
}

// isLive reports whether s is still the Ready session of generation gen.
func (m *ConnectionManager) isLive(s *Session, gen uint64) bool {
	return !m.closing &&
		m.session == s &&
		m.generation == gen &&
		s.Generation == gen &&
		s.state == StateReady
}

func (m *ConnectionManager) handleScanResult(adv device.Advertisement) {
	if m.closing || adv.LocalName() != m.identity.Name {
		return
	}
	if !m.scans.Scanning() {
		m.logger.WithField("address", adv.Addr()).Debug("Ignoring advertisement delivered after the scan stopped")
		return
	}
	if m.session != nil {
		m.logger.WithFields(logrus.Fields{
			"address": adv.Addr(),
			"state":   m.session.state,
		}).Debug("Ignoring advertisement, a session is already active")
		return
	}

	m.scans.StopScan(notify.ReasonMatched)

	m.generation++
	s := newSession(m.generation, adv.Addr(), m.loop.Now())
	logger := m.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"address": s.Address,
		"rssi":    adv.RSSI(),
	})

	link, err := m.central.Connect(s.Address, m.opts, m)
	if err != nil {
		logger.WithError(err).Error("Connection request rejected")
		m.notifyState(s, StateDisconnected, err)
		return
	}
	s.link = link
	m.session = s
	logger.Info("Connecting to peripheral")
	m.notifyState(s, StateConnecting, nil)
}

func (m *ConnectionManager) handleLinkState(link device.Link, state device.LinkState, err error) {
	s := m.session
	if s == nil || s.link != link {
		m.logger.WithFields(logrus.Fields{
			"address": link.Address(),
			"state":   state,
		}).Debug("Ignoring callback for a superseded link")
		if state == device.LinkConnected {
			_ = link.Close()
		}
		return
	}

	switch state {
	case device.LinkConnected:
		m.linkUp(s)
	case device.LinkDisconnected:
		m.linkDown(s, err)
	}
}

func (m *ConnectionManager) linkUp(s *Session) {
	if s.state != StateConnecting {
		return
	}
	logger := m.logger.WithField("session", s.ID)
	logger.Info("Connected to GATT server")

	if err := s.link.RequestHighPriority(); err != nil {
		logger.WithError(err).Debug("High priority connection not available")
	}
	if err := s.link.DiscoverServices(); err != nil {
		logger.WithError(err).Error("Service discovery request rejected")
		return
	}
	s.state = StateServicesDiscovering
	m.notifyState(s, s.state, nil)
}

func (m *ConnectionManager) linkDown(s *Session, err error) {
	cause := err
	if cause == nil {
		cause = ErrUnexpectedDisconnect
	} else {
		cause = fmt.Errorf("%w: %w", ErrUnexpectedDisconnect, err)
	}
	m.logger.WithError(cause).WithFields(logrus.Fields{
		"session": s.ID,
		"state":   s.state,
	}).Warn("Disconnected from GATT server")

	m.retire(s)
	if cerr := s.link.Close(); cerr != nil {
		m.logger.WithError(cerr).Debug("Closing disconnected link failed")
	}
	m.notifyState(s, StateDisconnected, cause)

	if !m.closing && !m.scans.Scanning() {
		m.scans.StartScan()
	}
}

func (m *ConnectionManager) handleDiscovery(link device.Link, profile device.Profile, err error) {
	s := m.session
	if s == nil || s.link != link || s.state != StateServicesDiscovering {
		m.logger.WithField("address", link.Address()).Debug("Ignoring discovery result for a superseded link")
		return
	}
	logger := m.logger.WithField("session", s.ID)

	if err != nil {
		s.discoveryErr = err
		logger.WithError(err).Warn("Service discovery failed")
		m.notifyDiscovery(s, err)
		return
	}

	handles := make(map[control.Channel]*ChannelHandle, len(control.Channels))
	var missing []error
	for _, ch := range control.Channels {
		char, cerr := profile.Characteristic(m.identity.ServiceUUID, m.identity.CharacteristicUUID(ch))
		if cerr != nil {
			missing = append(missing, fmt.Errorf("%s: %w", ch, cerr))
			continue
		}
		if !char.Properties().Has(device.PropWriteWithoutResponse) {
			logger.WithField("channel", ch).Warn("Characteristic does not advertise write without response")
		}
		handles[ch] = &ChannelHandle{Char: char, Mode: device.WriteWithoutResponse}
	}

	if len(missing) > 0 {
		derr := &DiscoveryError{Missing: missing}
		s.discoveryErr = derr
		logger.WithError(derr).Warn("Control characteristics not found")
		m.notifyDiscovery(s, derr)
		return
	}

	s.handles = handles
	s.state = StateReady
	logger.Info("Control channels ready")
	m.notifyDiscovery(s, nil)
	m.notifyState(s, StateReady, nil)
	m.scheduler.Start(s)
}

// Shutdown stops scanning and tears down the session. Callbacks arriving
// afterwards are ignored.
func (m *ConnectionManager) Shutdown() {
	if m.closing {
		return
	}
	m.closing = true
	m.scans.StopScan(notify.ReasonShutdown)

	s := m.session
	if s == nil {
		return
	}
	s.state = StateTearingDown
	m.notifyState(s, StateTearingDown, nil)

	m.retire(s)
	if err := s.link.Close(); err != nil && !errors.Is(err, device.ErrNotConnected) {
		m.logger.WithError(err).Warn("Failed to close link")
	}
	m.logger.WithField("session", s.ID).Info("Disconnected")
	m.notifyState(s, StateDisconnected, nil)
}

// retire invalidates s so pending ticks and callbacks for it become no-ops.
func (m *ConnectionManager) retire(s *Session) {
	m.generation++
	s.state = StateDisconnected
	s.clearHandles()
	m.session = nil
}

func (m *ConnectionManager) notifyState(s *Session, state State, err error) {
	m.notifier.Notify(notify.Event{
		Time:    m.loop.Now(),
		Kind:    notify.KindConnection,
		State:   state.String(),
		Session: s.ID,
		Address: s.Address,
		Err:     err,
	})
}

func (m *ConnectionManager) notifyDiscovery(s *Session, err error) {
	m.notifier.Notify(notify.Event{
		Time:    m.loop.Now(),
		Kind:    notify.KindDiscovery,
		Session: s.ID,
		Address: s.Address,
		Err:     err,
	})
}
