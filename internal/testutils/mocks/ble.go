// Package mocks holds testify mocks for the narrow go-ble surfaces the radio
// adapter consumes.
package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockScanner mocks the scanning half of ble.Device.
type MockScanner struct {
	mock.Mock
}

func (m *MockScanner) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

// MockGATTClient mocks the part of ble.Client used by a control link.
type MockGATTClient struct {
	mock.Mock
}

func (m *MockGATTClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *MockGATTClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *MockGATTClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockGATTClient) Disconnected() <-chan struct{} {
	args := m.Called()
	ch, _ := args.Get(0).(chan struct{})
	return ch
}

// MockAdvertisement mocks the fields of ble.Advertisement the scanner reads.
// The embedded interface is nil; calling any other method panics.
type MockAdvertisement struct {
	mock.Mock
	ble.Advertisement
}

func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	addr, _ := m.Called().Get(0).(ble.Addr)
	return addr
}

func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Connectable() bool {
	return m.Called().Bool(0)
}

// NewMockAdvertisement returns an advertisement with every field stubbed.
func NewMockAdvertisement(name, address string, rssi int) *MockAdvertisement {
	adv := &MockAdvertisement{}
	adv.On("LocalName").Return(name)
	adv.On("Addr").Return(ble.NewAddr(address))
	adv.On("RSSI").Return(rssi)
	adv.On("Connectable").Return(true)
	return adv
}
