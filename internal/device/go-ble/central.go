package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/device"
	"github.com/srg/rcdrive/internal/groutine"
)

// DefaultConnectTimeout bounds a single dial when ConnectOptions leaves it unset.
const DefaultConnectTimeout = 30 * time.Second

// bleScanner is the scanning half of ble.Device
type bleScanner interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
}

// gattClient is the part of ble.Client a control link uses
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

type dialFunc func(ctx context.Context, address string) (gattClient, error)

// ScanFailureConsumer is implemented by consumers that want to learn about
// scans that ended with an error instead of through StopScan.
type ScanFailureConsumer interface {
	OnScanFailed(err error)
}

// BLECentral implements device.Central on top of a go-ble device.
// Blocking go-ble calls run on tracked goroutines and report back through
// the EventConsumer.
type BLECentral struct {
	scanner bleScanner
	dial    dialFunc
	stop    func() error
	logger  *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	workers groutine.Group

	mu         sync.Mutex
	scanCancel context.CancelFunc
	scanSeq    uint64
}

// NewCentral creates a BLECentral backed by DeviceFactory.
func NewCentral(logger *logrus.Logger) (*BLECentral, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	dial := func(ctx context.Context, address string) (gattClient, error) {
		client, err := dev.Dial(ctx, ble.NewAddr(address))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return newCentral(dev, dial, dev.Stop, logger), nil
}

func newCentral(scanner bleScanner, dial dialFunc, stop func() error, logger *logrus.Logger) *BLECentral {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BLECentral{
		scanner: scanner,
		dial:    dial,
		stop:    stop,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// StartScan starts a go-ble scan on a background goroutine.
func (c *BLECentral) StartScan(filter device.ScanFilter, consumer device.EventConsumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return fmt.Errorf("central is closed: %w", device.ErrNotInitialized)
	}
	if c.scanCancel != nil {
		return device.ErrScanInProgress
	}

	scanCtx, cancel := context.WithCancel(c.ctx)
	c.scanCancel = cancel
	c.scanSeq++
	seq := c.scanSeq

	c.logger.WithField("name", filter.Name).Debug("Starting go-ble scan")

	c.workers.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		err := c.scanner.Scan(ctx, false, func(a ble.Advertisement) {
			adv := NewBLEAdvertisement(a)
			if filter.Match(adv) {
				consumer.OnScanResult(adv)
			}
		})

		c.mu.Lock()
		if c.scanSeq == seq && c.scanCancel != nil {
			c.scanCancel()
			c.scanCancel = nil
		}
		c.mu.Unlock()

		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		err = NormalizeError(err)
		c.logger.WithError(err).Warn("go-ble scan ended with error")
		if fc, ok := consumer.(ScanFailureConsumer); ok {
			fc.OnScanFailed(err)
		}
	})
	return nil
}

// StopScan cancels the running scan, if any.
func (c *BLECentral) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scanCancel == nil {
		return nil
	}
	c.scanCancel()
	c.scanCancel = nil
	c.logger.Debug("Stopped go-ble scan")
	return nil
}

// Connect dials address on a background goroutine. The outcome is reported
// through consumer.OnConnectionStateChanged, including dial failures.
func (c *BLECentral) Connect(address string, opts device.ConnectOptions, consumer device.EventConsumer) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if c.ctx.Err() != nil {
		return nil, fmt.Errorf("central is closed: %w", device.ErrNotInitialized)
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(c.ctx, timeout)
	link := newLink(address, consumer, cancel, c)

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	c.workers.Go(dialCtx, "ble-dial", func(ctx context.Context) {
		defer cancel()

		client, err := c.dial(ctx, address)
		if err != nil {
			err = NormalizeError(err)
			c.logger.WithFields(logrus.Fields{
				"address": address,
				"error":   err,
			}).Warn("Failed to dial BLE device")
			consumer.OnConnectionStateChanged(link, device.LinkDisconnected, err)
			return
		}

		if !link.attach(client) {
			// Closed while dialing
			_ = client.CancelConnection()
			return
		}
		consumer.OnConnectionStateChanged(link, device.LinkConnected, nil)

		c.workers.Go(c.ctx, "ble-connection-monitor", func(monitorCtx context.Context) {
			select {
			case <-client.Disconnected():
				c.logger.WithField("address", address).Info("BLE stack reported disconnection")
				consumer.OnConnectionStateChanged(link, device.LinkDisconnected, nil)
			case <-monitorCtx.Done():
			}
		})
	})

	return link, nil
}

// discover runs go-ble profile discovery for link off the caller's goroutine.
func (c *BLECentral) discover(link *BLELink, client gattClient) {
	c.workers.Go(c.ctx, "ble-discover", func(ctx context.Context) {
		p, err := client.DiscoverProfile(true)
		if err != nil {
			link.consumer.OnServicesDiscovered(link, nil, NormalizeError(err))
			return
		}
		link.consumer.OnServicesDiscovered(link, NewProfile(p), nil)
	})
}

// Close stops scanning, abandons pending dials, and stops the go-ble device.
func (c *BLECentral) Close() error {
	c.mu.Lock()
	if c.scanCancel != nil {
		c.scanCancel()
		c.scanCancel = nil
	}
	c.mu.Unlock()

	c.cancel()
	c.workers.Wait()

	if c.stop != nil {
		return NormalizeError(c.stop())
	}
	return nil
}
