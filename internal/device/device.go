package device

import (
	"errors"
	"fmt"

	"github.com/berfenger/dnake2mqtt/pkg/dnake"
)

type Category string

const (
	CATEGORY_LIGHT   Category = "light"
	CATEGORY_COVER   Category = "cover"
	CATEGORY_CLIMATE Category = "climate"
	CATEGORY_FAN     Category = "fan"
)

var Categories = []Category{CATEGORY_LIGHT, CATEGORY_COVER, CATEGORY_CLIMATE, CATEGORY_FAN}

const (
	MANUFACTURER = "Dnake"
)

var ErrInvalidCommand = errors.New("invalid command")

// Device is the in memory model of one gateway device. Models are not safe
// for concurrent use; they are owned by a single actor.
type Device interface {
	Identity() dnake.Identity
	Category() Category
	UniqueId() string
	Name() string
	Model() string
	// Apply overwrites the model with a polled state and reports whether
	// anything changed. Payloads of another device type are ignored.
	Apply(dnake.StatePayload) bool
	// Command builds the intent of a text command ("set", "position", ...).
	Command(command string, payload string) (*Intent, error)
	// State is a snapshot of the externally visible state.
	State() map[string]any
}

type FollowUp int

const (
	FOLLOW_UP_NONE FollowUp = iota
	// FOLLOW_UP_FAST_POLL tracks a cover until it reaches its target level.
	FOLLOW_UP_FAST_POLL
	// FOLLOW_UP_SETTLE refreshes a stopped cover after the settle delay.
	FOLLOW_UP_SETTLE
	// FOLLOW_UP_POWER_ON powers on a climate unit after the warm-up delay.
	FOLLOW_UP_POWER_ON
)

// Intent is a gateway request together with the local change it implies.
// The change is committed only if the gateway acknowledges the request.
type Intent struct {
	Device   Device
	Request  dnake.Request
	FollowUp FollowUp
	commit   func()
}

// Resolve commits the intent if err is nil and reports whether it did.
func (i *Intent) Resolve(err error) bool {
	if err != nil {
		return false
	}
	if i.commit != nil {
		i.commit()
	}
	return true
}

func (i *Intent) String() string {
	return fmt.Sprintf("%s %s %s", i.Device.UniqueId(), i.Request.Action, i.Request.Cmd)
}

func uniqueId(kind string, id dnake.Identity) string {
	return fmt.Sprintf("dnake_%s_%d_%d", kind, id.Number, id.Channel)
}

// New builds the model of a descriptor. ok is false for unhandled type codes.
func New(d dnake.DeviceDescriptor, freshAirCmd dnake.Cmd) (Device, bool) {
	switch d.Type {
	case dnake.TYPE_LIGHT:
		return NewLight(d), true
	case dnake.TYPE_COVER:
		return NewCover(d), true
	case dnake.TYPE_AIR_CONDITION:
		return NewClimate(d), true
	case dnake.TYPE_FRESH_AIR:
		return NewFreshAir(d, freshAirCmd), true
	}
	return nil, false
}

func parseOnOff(payload string) (bool, error) {
	switch payload {
	case "ON", "on", "1", "true":
		return true, nil
	case "OFF", "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected ON or OFF, got %q", ErrInvalidCommand, payload)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
