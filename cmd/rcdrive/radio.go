package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/device"
	goble "github.com/srg/rcdrive/internal/device/go-ble"
)

// radio is the host adapter plus its release hook.
type radio interface {
	device.Central
	Close() error
}

// openRadio opens the platform BLE adapter. Tests replace it with a fake.
var openRadio = func(logger *logrus.Logger) (radio, error) {
	c, err := goble.NewCentral(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open BLE adapter: %w", err)
	}
	return c, nil
}
