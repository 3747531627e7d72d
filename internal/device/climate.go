package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/berfenger/dnake2mqtt/pkg/dnake"
)

const (
	CLIMATE_MIN_TEMP  = 16
	CLIMATE_MAX_TEMP  = 32
	CLIMATE_TEMP_STEP = 1
)

// Climate is an air conditioner. The stored mode is kept while the unit is
// powered off but reported as off.
type Climate struct {
	id          dnake.Identity
	name        string
	on          bool
	mode        HvacMode
	fanMode     FanMode
	swingMode   SwingMode
	currentTemp float64
	targetTemp  float64
}

func NewClimate(d dnake.DeviceDescriptor) *Climate {
	c := &Climate{
		id:          d.Identity(),
		name:        d.Name,
		mode:        HVAC_MODE_OFF,
		fanMode:     FAN_MODE_LOW,
		swingMode:   SWING_MODE_OFF,
		currentTemp: dnake.DEFAULT_TEMPERATURE,
		targetTemp:  dnake.DEFAULT_TEMPERATURE,
	}
	c.Apply(d.InitialState())
	return c
}

func (c *Climate) Identity() dnake.Identity { return c.id }
func (c *Climate) Category() Category       { return CATEGORY_CLIMATE }
func (c *Climate) UniqueId() string         { return uniqueId("air_condition", c.id) }
func (c *Climate) Name() string             { return c.name }
func (c *Climate) Model() string            { return "Air condition control" }

func (c *Climate) IsOn() bool                   { return c.on }
func (c *Climate) FanMode() FanMode             { return c.fanMode }
func (c *Climate) SwingMode() SwingMode         { return c.swingMode }
func (c *Climate) CurrentTemperature() float64 { return c.currentTemp }
func (c *Climate) TargetTemperature() float64  { return c.targetTemp }

func (c *Climate) HvacMode() HvacMode {
	if !c.on {
		return HVAC_MODE_OFF
	}
	return c.mode
}

func (c *Climate) SetPower(on bool) *Intent {
	return &Intent{
		Device:  c,
		Request: dnake.AirConditionPower(c.id, on),
		commit:  func() { c.on = on },
	}
}

// SetHvacMode sets the operating mode. Off powers the unit down. Any other
// mode on a powered off unit asks for a delayed power on after the ack.
func (c *Climate) SetHvacMode(mode HvacMode) *Intent {
	if mode == HVAC_MODE_OFF {
		return c.SetPower(false)
	}
	followUp := FOLLOW_UP_NONE
	if !c.on {
		followUp = FOLLOW_UP_POWER_ON
	}
	return &Intent{
		Device:   c,
		Request:  dnake.AirConditionMode(c.id, HvacModes.Code(mode)),
		FollowUp: followUp,
		commit:   func() { c.mode = mode },
	}
}

// SetTemperature does not clamp; the advertised range is 16..32.
func (c *Climate) SetTemperature(temperature int) *Intent {
	return &Intent{
		Device:  c,
		Request: dnake.AirConditionTemperature(c.id, temperature),
		commit:  func() { c.targetTemp = float64(temperature) },
	}
}

func (c *Climate) SetFanMode(mode FanMode) *Intent {
	return &Intent{
		Device:  c,
		Request: dnake.AirConditionFlow(c.id, ClimateFanModes.Code(mode)),
		commit:  func() { c.fanMode = mode },
	}
}

func (c *Climate) SetSwingMode(mode SwingMode) *Intent {
	return &Intent{
		Device:  c,
		Request: dnake.AirConditionSwing(c.id, SwingModes.Code(mode)),
		commit:  func() { c.swingMode = mode },
	}
}

func (c *Climate) Apply(p dnake.StatePayload) bool {
	s, ok := p.(dnake.ClimateState)
	if !ok {
		return false
	}
	next := *c
	next.on = s.On
	next.mode = HvacModes.Value(s.Mode)
	next.fanMode = ClimateFanModes.Value(s.Speed)
	next.swingMode = SwingModes.Value(s.Swing)
	next.currentTemp = s.TempIndoor
	next.targetTemp = s.TempDesire
	if next == *c {
		return false
	}
	*c = next
	return true
}

func (c *Climate) Command(command string, payload string) (*Intent, error) {
	payload = strings.TrimSpace(payload)
	switch command {
	case "power":
		on, err := parseOnOff(payload)
		if err != nil {
			return nil, err
		}
		return c.SetPower(on), nil
	case "mode":
		mode := HvacMode(strings.ToLower(payload))
		if !HvacModes.Contains(mode) {
			return nil, fmt.Errorf("%w: hvac mode %q", ErrInvalidCommand, payload)
		}
		return c.SetHvacMode(mode), nil
	case "temperature":
		t, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: temperature %q", ErrInvalidCommand, payload)
		}
		return c.SetTemperature(int(math.Round(t))), nil
	case "fan_mode":
		mode := FanMode(strings.ToLower(payload))
		if !ClimateFanModes.Contains(mode) {
			return nil, fmt.Errorf("%w: fan mode %q", ErrInvalidCommand, payload)
		}
		return c.SetFanMode(mode), nil
	case "swing_mode":
		mode := SwingMode(strings.ToLower(payload))
		if !SwingModes.Contains(mode) {
			return nil, fmt.Errorf("%w: swing mode %q", ErrInvalidCommand, payload)
		}
		return c.SetSwingMode(mode), nil
	}
	return nil, fmt.Errorf("%w: climate command %q", ErrInvalidCommand, command)
}

func (c *Climate) State() map[string]any {
	return map[string]any{
		"power":               onOff(c.on),
		"mode":                string(c.HvacMode()),
		"fan_mode":            string(c.fanMode),
		"swing_mode":          string(c.swingMode),
		"current_temperature": c.currentTemp,
		"temperature":         c.targetTemp,
	}
}
