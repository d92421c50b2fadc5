// Package device provides the radio abstraction used by the remote-control core.
//
// The core never talks to a BLE stack directly. It drives a Central and a Link
// and receives every result asynchronously through an EventConsumer:
//   - scan results (OnScanResult)
//   - connection state changes (OnConnectionStateChanged)
//   - service discovery completion (OnServicesDiscovered)
//
// The go-ble subpackage implements these interfaces on top of github.com/go-ble/ble.
package device
