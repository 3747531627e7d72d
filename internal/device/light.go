package device

import (
	"fmt"

	"github.com/berfenger/dnake2mqtt/pkg/dnake"
)

type Light struct {
	id   dnake.Identity
	name string
	on   bool
}

func NewLight(d dnake.DeviceDescriptor) *Light {
	l := &Light{
		id:   d.Identity(),
		name: d.Name,
	}
	l.Apply(d.InitialState())
	return l
}

func (l *Light) Identity() dnake.Identity { return l.id }
func (l *Light) Category() Category       { return CATEGORY_LIGHT }
func (l *Light) UniqueId() string         { return uniqueId("light", l.id) }
func (l *Light) Name() string             { return l.name }
func (l *Light) Model() string            { return "Light control" }

func (l *Light) IsOn() bool {
	return l.on
}

func (l *Light) SetPower(on bool) *Intent {
	return &Intent{
		Device:  l,
		Request: dnake.TurnTo(l.id, on),
		commit:  func() { l.on = on },
	}
}

func (l *Light) Apply(p dnake.StatePayload) bool {
	s, ok := p.(dnake.LightState)
	if !ok || s.On == l.on {
		return false
	}
	l.on = s.On
	return true
}

func (l *Light) Command(command string, payload string) (*Intent, error) {
	if command != "set" {
		return nil, fmt.Errorf("%w: light command %q", ErrInvalidCommand, command)
	}
	on, err := parseOnOff(payload)
	if err != nil {
		return nil, err
	}
	return l.SetPower(on), nil
}

func (l *Light) State() map[string]any {
	return map[string]any{
		"state": onOff(l.on),
	}
}
