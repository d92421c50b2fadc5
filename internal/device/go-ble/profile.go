package goble

import (
	"sort"

	"github.com/go-ble/ble"
	"github.com/srg/rcdrive/internal/device"
)

// ----------------------------
// BLE Profile
// ----------------------------

// BLEProfile indexes a discovered ble.Profile by normalized UUID
type BLEProfile struct {
	services map[string]*BLEService
}

// NewProfile builds a BLEProfile from the go-ble discovery result
func NewProfile(p *ble.Profile) *BLEProfile {
	profile := &BLEProfile{services: make(map[string]*BLEService)}
	if p == nil {
		return profile
	}

	for _, bleSvc := range p.Services {
		svcUUID := device.NormalizeUUID(bleSvc.UUID.String())
		svc, ok := profile.services[svcUUID]
		if !ok {
			svc = &BLEService{
				uuid:            svcUUID,
				characteristics: make(map[string]*BLECharacteristic),
			}
			profile.services[svcUUID] = svc
		}
		for _, bleChar := range bleSvc.Characteristics {
			charUUID := device.NormalizeUUID(bleChar.UUID.String())
			svc.characteristics[charUUID] = &BLECharacteristic{
				uuid:       charUUID,
				properties: convertProperties(bleChar.Property),
				BLEChar:    bleChar,
			}
		}
	}
	return profile
}

// Services returns all discovered services sorted by UUID
func (p *BLEProfile) Services() []device.Service {
	result := make([]device.Service, 0, len(p.services))
	for _, svc := range p.services {
		result = append(result, svc)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UUID() < result[j].UUID()
	})
	return result
}

// Characteristic retrieves a characteristic by service and characteristic UUID.
// Both UUIDs are normalized for consistent lookup.
// Returns a NotFoundError if the service or characteristic is not found.
func (p *BLEProfile) Characteristic(service, uuid string) (device.Characteristic, error) {
	svc, ok := p.services[device.NormalizeUUID(service)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	char, ok := svc.characteristics[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return char, nil
}

// ----------------------------
// BLE Service
// ----------------------------

// BLEService represents a GATT service and its characteristics
type BLEService struct {
	uuid            string
	characteristics map[string]*BLECharacteristic
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) Characteristics() []device.Characteristic {
	result := make([]device.Characteristic, 0, len(s.characteristics))
	for _, char := range s.characteristics {
		result = append(result, char)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UUID() < result[j].UUID()
	})
	return result
}

// ----------------------------
// BLE Characteristic
// ----------------------------

// BLECharacteristic carries the live go-ble handle used for writes
type BLECharacteristic struct {
	uuid       string
	properties device.Properties
	BLEChar    *ble.Characteristic
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) Properties() device.Properties {
	return c.properties
}

// convertProperties maps ble.Property bit flags onto device.Properties
func convertProperties(p ble.Property) device.Properties {
	var props device.Properties
	if p&ble.CharBroadcast != 0 {
		props |= device.PropBroadcast
	}
	if p&ble.CharRead != 0 {
		props |= device.PropRead
	}
	if p&ble.CharWriteNR != 0 {
		props |= device.PropWriteWithoutResponse
	}
	if p&ble.CharWrite != 0 {
		props |= device.PropWrite
	}
	if p&ble.CharNotify != 0 {
		props |= device.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		props |= device.PropIndicate
	}
	if p&ble.CharSignedWrite != 0 {
		props |= device.PropSignedWrite
	}
	if p&ble.CharExtended != 0 {
		props |= device.PropExtended
	}
	return props
}
