package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/device"
)

// BLELink implements device.Link for one go-ble connection attempt
type BLELink struct {
	address  string
	consumer device.EventConsumer
	central  *BLECentral
	logger   *logrus.Logger

	mu         sync.Mutex
	client     gattClient
	cancelDial context.CancelFunc
	closed     bool
}

func newLink(address string, consumer device.EventConsumer, cancelDial context.CancelFunc, central *BLECentral) *BLELink {
	return &BLELink{
		address:    address,
		consumer:   consumer,
		central:    central,
		logger:     central.logger,
		cancelDial: cancelDial,
	}
}

// attach stores the dialed client. Returns false if the link was closed meanwhile.
func (l *BLELink) attach(client gattClient) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.client = client
	return true
}

// connectedClient returns the live client or ErrNotConnected
func (l *BLELink) connectedClient() (gattClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.client == nil {
		return nil, device.ErrNotConnected
	}
	return l.client, nil
}

func (l *BLELink) Address() string {
	return l.address
}

// RequestHighPriority is not exposed by go-ble on any backend; connection
// interval is left to the platform.
func (l *BLELink) RequestHighPriority() error {
	if _, err := l.connectedClient(); err != nil {
		return err
	}
	return fmt.Errorf("%w: connection priority request", device.ErrUnsupported)
}

// DiscoverServices starts profile discovery; the result arrives via OnServicesDiscovered.
func (l *BLELink) DiscoverServices() error {
	client, err := l.connectedClient()
	if err != nil {
		return err
	}
	l.central.discover(l, client)
	return nil
}

// Write writes data to char. WriteWithoutResponse issues an ATT write command.
func (l *BLELink) Write(char device.Characteristic, data []byte, mode device.WriteMode) error {
	client, err := l.connectedClient()
	if err != nil {
		return err
	}

	bleChar, ok := char.(*BLECharacteristic)
	if !ok || bleChar.BLEChar == nil {
		return fmt.Errorf("characteristic %s is not a live go-ble handle", char.UUID())
	}

	if err := client.WriteCharacteristic(bleChar.BLEChar, data, mode == device.WriteWithoutResponse); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", bleChar.uuid, NormalizeError(err))
	}
	return nil
}

// Close cancels a pending dial or tears down the live connection. Safe to call repeatedly.
func (l *BLELink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	client := l.client
	l.client = nil
	cancel := l.cancelDial
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client == nil {
		return nil
	}

	l.logger.WithField("address", l.address).Info("Disconnecting BLE device...")
	if err := client.CancelConnection(); err != nil {
		err = NormalizeError(err)
		l.logger.WithError(err).Warn("BLE device disconnected with errors")
		return err
	}
	return nil
}
