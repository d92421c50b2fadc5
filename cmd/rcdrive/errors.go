package main

import (
	"errors"

	"github.com/srg/rcdrive/internal/device"
)

// Command-level errors
var (
	// ErrNoMatch indicates a scan window closed without seeing the target name.
	ErrNoMatch = errors.New("no matching device found")
)

// FormatUserError rewrites radio capability failures into a hint the
// operator can act on. Other errors pass through unchanged.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrPermissionDenied):
		return err.Error() + " (grant Bluetooth access to this terminal, or run with the needed capabilities)"
	case errors.Is(err, device.ErrBluetoothOff):
		return err.Error() + " (turn Bluetooth on and try again)"
	default:
		return err.Error()
	}
}
