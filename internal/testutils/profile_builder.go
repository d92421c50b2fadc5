package testutils

import (
	"fmt"
	"strings"

	"github.com/srg/rcdrive/internal/device"
)

// FakeCharacteristic is a static device.Characteristic.
type FakeCharacteristic struct {
	uuid  string
	props device.Properties
}

func (c *FakeCharacteristic) UUID() string                 { return c.uuid }
func (c *FakeCharacteristic) Properties() device.Properties { return c.props }

// FakeService is a static device.Service.
type FakeService struct {
	uuid  string
	chars []*FakeCharacteristic
}

func (s *FakeService) UUID() string { return s.uuid }

func (s *FakeService) Characteristics() []device.Characteristic {
	out := make([]device.Characteristic, 0, len(s.chars))
	for _, c := range s.chars {
		out = append(out, c)
	}
	return out
}

// FakeProfile is a static device.Profile.
type FakeProfile struct {
	services []*FakeService
}

func (p *FakeProfile) Services() []device.Service {
	out := make([]device.Service, 0, len(p.services))
	for _, s := range p.services {
		out = append(out, s)
	}
	return out
}

// Characteristic looks up by UUID in any textual form.
func (p *FakeProfile) Characteristic(service, uuid string) (device.Characteristic, error) {
	for _, s := range p.services {
		if !device.EqualUUID(s.uuid, service) {
			continue
		}
		for _, c := range s.chars {
			if device.EqualUUID(c.uuid, uuid) {
				return c, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
}

// ProfileBuilder builds fake GATT profiles with a fluent API:
//
//	profile := testutils.NewProfileBuilder().
//	    WithService("2137").
//	    WithCharacteristic("6901", "write,write_without_response").
//	    WithCharacteristic("6902", "write,write_without_response").
//	    Build()
type ProfileBuilder struct {
	profile FakeProfile
	current *FakeService
}

// NewProfileBuilder creates an empty profile builder.
func NewProfileBuilder() *ProfileBuilder {
	return &ProfileBuilder{}
}

// WithService starts a new service. Following WithCharacteristic calls add to it.
func (b *ProfileBuilder) WithService(uuid string) *ProfileBuilder {
	b.current = &FakeService{uuid: uuid}
	b.profile.services = append(b.profile.services, b.current)
	return b
}

// WithCharacteristic adds a characteristic to the current service.
// props is a comma separated list, see ParseProperties.
func (b *ProfileBuilder) WithCharacteristic(uuid, props string) *ProfileBuilder {
	if b.current == nil {
		panic("WithCharacteristic called before WithService")
	}
	b.current.chars = append(b.current.chars, &FakeCharacteristic{uuid: uuid, props: ParseProperties(props)})
	return b
}

// Build returns the profile.
func (b *ProfileBuilder) Build() *FakeProfile {
	p := b.profile
	return &p
}

// ParseProperties converts "read,write,write_without_response,notify,indicate"
// into a property set. Panics on unknown names.
func ParseProperties(s string) device.Properties {
	var props device.Properties
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "":
		case "broadcast":
			props |= device.PropBroadcast
		case "read":
			props |= device.PropRead
		case "write_without_response", "write-without-response", "writenr":
			props |= device.PropWriteWithoutResponse
		case "write":
			props |= device.PropWrite
		case "notify":
			props |= device.PropNotify
		case "indicate":
			props |= device.PropIndicate
		case "signed_write":
			props |= device.PropSignedWrite
		case "extended":
			props |= device.PropExtended
		default:
			panic(fmt.Sprintf("unknown characteristic property %q", name))
		}
	}
	return props
}
