package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/rcdrive/internal/device"
)

// advertisementSource is the part of ble.Advertisement the scanner reads.
type advertisementSource interface {
	LocalName() string
	Addr() ble.Addr
	RSSI() int
	Connectable() bool
}

// BLEAdvertisement is an immutable snapshot of a go-ble advertisement.
// go-ble reuses advertisement buffers between callbacks, so fields are copied
// before the value crosses into the event loop.
type BLEAdvertisement struct {
	name        string
	addr        string
	rssi        int
	connectable bool
}

// NewBLEAdvertisement snapshots adv into a device.Advertisement
func NewBLEAdvertisement(adv advertisementSource) device.Advertisement {
	return &BLEAdvertisement{
		name:        adv.LocalName(),
		addr:        adv.Addr().String(),
		rssi:        adv.RSSI(),
		connectable: adv.Connectable(),
	}
}

func (a *BLEAdvertisement) LocalName() string { return a.name }
func (a *BLEAdvertisement) Addr() string      { return a.addr }
func (a *BLEAdvertisement) RSSI() int         { return a.rssi }
func (a *BLEAdvertisement) Connectable() bool { return a.connectable }
