package device

import (
	"errors"
	"testing"

	"github.com/berfenger/dnake2mqtt/pkg/dnake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ptr[T any](v T) *T {
	return &v
}

func testDescriptors() []dnake.DeviceDescriptor {
	return []dnake.DeviceDescriptor{
		{Name: "Hall", Number: 1, Channel: 0, Type: dnake.TYPE_LIGHT, State: ptr(1)},
		{Name: "Blind", Number: 2, Channel: 1, Type: dnake.TYPE_COVER, Level: ptr(0)},
		{Name: "Bedroom AC", Number: 1, Channel: 0, Type: dnake.TYPE_AIR_CONDITION},
		{Name: "Unknown", Number: 7, Channel: 0, Type: 9999},
		{Name: "Fresh", Number: 4, Channel: 0, Type: dnake.TYPE_FRESH_AIR, Speed: ptr(2)},
		{Name: "Kitchen", Number: 1, Channel: 1, Type: dnake.TYPE_LIGHT},
	}
}

func ids(devices []Device) []string {
	var r []string
	for _, d := range devices {
		r = append(r, d.UniqueId())
	}
	return r
}

func TestClassifyDeterministic(t *testing.T) {
	assert := assert.New(t)

	r1 := Classify(testDescriptors(), dnake.CMD_AIR_FRESH, zap.NewNop())
	r2 := Classify(testDescriptors(), dnake.CMD_AIR_FRESH, zap.NewNop())

	for _, c := range Categories {
		assert.Equal(ids(r1.Devices(c)), ids(r2.Devices(c)))
	}
	assert.Equal([]string{"dnake_light_1_0", "dnake_light_1_1"}, ids(r1.Devices(CATEGORY_LIGHT)))
	assert.Equal([]string{"dnake_cover_2_1"}, ids(r1.Devices(CATEGORY_COVER)))
	assert.Equal([]string{"dnake_air_condition_1_0"}, ids(r1.Devices(CATEGORY_CLIMATE)))
	assert.Equal([]string{"dnake_fresh_air_4_0"}, ids(r1.Devices(CATEGORY_FAN)))
}

func TestClassifyUnknownType(t *testing.T) {
	assert := assert.New(t)

	r := Classify([]dnake.DeviceDescriptor{{Name: "X", Number: 1, Type: 9999}}, dnake.CMD_AIR_FRESH, zap.NewNop())
	assert.Equal(0, r.Len())
	assert.Empty(r.All())
	_, ok := r.Lookup(dnake.Identity{Number: 1, Type: 9999})
	assert.False(ok)
}

func TestClassifyIdentityUniqueness(t *testing.T) {
	assert := assert.New(t)

	descriptors := append(testDescriptors(), dnake.DeviceDescriptor{Name: "Hall copy", Number: 1, Channel: 0, Type: dnake.TYPE_LIGHT})
	r := Classify(descriptors, dnake.CMD_AIR_FRESH, zap.NewNop())

	for _, c := range Categories {
		seen := map[[2]int]bool{}
		for _, d := range r.Devices(c) {
			key := [2]int{d.Identity().Number, d.Identity().Channel}
			assert.False(seen[key], "duplicated %v", key)
			seen[key] = true
		}
	}
	light, _ := r.ByUniqueId("dnake_light_1_0")
	assert.Equal("Hall", light.Name())
}

func TestRouteMatchesFullIdentity(t *testing.T) {
	assert := assert.New(t)
	r := Classify(testDescriptors(), dnake.CMD_AIR_FRESH, zap.NewNop())

	// light 1_0 and climate 1_0 share number and channel
	changed := r.Route([]dnake.DeviceState{
		{Identity: dnake.Identity{Number: 1, Channel: 0, Type: dnake.TYPE_AIR_CONDITION},
			Payload: dnake.ClimateState{On: true, Mode: 1, TempIndoor: 20, TempDesire: 24}},
		{Identity: dnake.Identity{Number: 9, Channel: 9, Type: dnake.TYPE_LIGHT},
			Payload: dnake.LightState{On: true}},
	})
	require.Len(t, changed, 1)
	assert.Equal("dnake_air_condition_1_0", changed[0].UniqueId())

	light, _ := r.ByUniqueId("dnake_light_1_0")
	assert.True(light.(*Light).IsOn())
	climate, _ := r.ByUniqueId("dnake_air_condition_1_0")
	assert.Equal(HVAC_MODE_HEAT, climate.(*Climate).HvacMode())

	// same state again does not change anything
	assert.Empty(r.Route([]dnake.DeviceState{
		{Identity: dnake.Identity{Number: 1, Channel: 0, Type: dnake.TYPE_AIR_CONDITION},
			Payload: dnake.ClimateState{On: true, Mode: 1, TempIndoor: 20, TempDesire: 24}},
	}))
}

func TestRouteSkipsMovingCover(t *testing.T) {
	assert := assert.New(t)
	r := Classify(testDescriptors(), dnake.CMD_AIR_FRESH, zap.NewNop())
	d, _ := r.ByUniqueId("dnake_cover_2_1")
	cover := d.(*Cover)

	assert.True(cover.SetPosition(100).Resolve(nil))
	assert.True(cover.IsOpening())

	coverState := []dnake.DeviceState{{Identity: cover.Identity(), Payload: dnake.CoverState{Level: 30}}}
	assert.Empty(r.Route(coverState))
	assert.Equal(0, cover.CurrentLevel())

	cover.ApplyLevel(254, false)
	assert.True(cover.Settled())
	assert.Len(r.Route(coverState), 1)
	assert.Equal(30, cover.CurrentLevel())
	assert.Equal(30, cover.TargetLevel())
}

func TestStateCache(t *testing.T) {
	assert := assert.New(t)
	c := NewStateCache()
	s := dnake.DeviceState{
		Identity: dnake.Identity{Number: 1, Channel: 2, Type: dnake.TYPE_LIGHT},
		Raw:      map[string]any{"devNo": 1.0, "devCh": 2.0, "state": 1.0},
	}

	old, changed := c.Observe(s)
	assert.True(changed)
	assert.Nil(old)

	_, changed = c.Observe(s)
	assert.False(changed)

	s2 := s
	s2.Raw = map[string]any{"devNo": 1.0, "devCh": 2.0, "state": 0.0}
	old, changed = c.Observe(s2)
	assert.True(changed)
	assert.Equal(1.0, old["state"])
	assert.Equal(1, c.Len())
}

func TestOptimisticUpdateRule(t *testing.T) {
	assert := assert.New(t)
	r := Classify(testDescriptors(), dnake.CMD_AIR_FRESH, zap.NewNop())
	failure := errors.New("gateway down")

	for _, d := range r.All() {
		before := d.State()
		var intents []*Intent
		switch m := d.(type) {
		case *Light:
			intents = append(intents, m.SetPower(!m.IsOn()))
		case *Cover:
			intents = append(intents, m.SetPosition(50), m.Open(), m.Close(), m.Stop())
		case *Climate:
			intents = append(intents, m.SetPower(true), m.SetHvacMode(HVAC_MODE_COOL), m.SetTemperature(30),
				m.SetFanMode(FAN_MODE_HIGH), m.SetSwingMode(SWING_MODE_VERTICAL))
		case *FreshAir:
			intents = append(intents, m.SetPower(true), m.SetSpeed(FAN_MODE_HIGH), m.SetPercentage(0), m.SetMode(2))
		}
		for _, i := range intents {
			assert.False(i.Resolve(failure))
		}
		assert.Equal(before, d.State(), d.UniqueId())
	}
}

func TestTableFallbacks(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(HVAC_MODE_OFF, HvacModes.Value(42))
	assert.Equal(FAN_MODE_LOW, ClimateFanModes.Value(-1))
	assert.Equal(SWING_MODE_OFF, SwingModes.Value(9))
	assert.Equal(FAN_MODE_LOW, FreshAirSpeeds.Value(0))

	assert.Equal(4, HvacModes.Code(HVAC_MODE_DRY))
	assert.Equal(0, HvacModes.Code("auto"))
	assert.Equal(3, FreshAirSpeeds.Code(FAN_MODE_HIGH))
	assert.Equal(1, FreshAirSpeeds.Code("turbo"))

	for _, table := range []Table[FanMode]{ClimateFanModes, FreshAirSpeeds} {
		for _, v := range table.Values() {
			assert.Equal(v, table.Value(table.Code(v)))
		}
	}
}

func TestCommandParsing(t *testing.T) {
	assert := assert.New(t)
	r := Classify(testDescriptors(), dnake.CMD_FAN, zap.NewNop())

	light, _ := r.ByUniqueId("dnake_light_1_1")
	i, err := light.Command("set", "ON")
	require.NoError(t, err)
	assert.Equal(dnake.CMD_ON, i.Request.Cmd)
	_, err = light.Command("set", "maybe")
	assert.ErrorIs(err, ErrInvalidCommand)

	cover, _ := r.ByUniqueId("dnake_cover_2_1")
	i, err = cover.Command("position", "50")
	require.NoError(t, err)
	assert.Equal(127, *i.Request.Level)
	assert.Equal(FOLLOW_UP_FAST_POLL, i.FollowUp)
	i, err = cover.Command("set", "STOP")
	require.NoError(t, err)
	assert.Equal(FOLLOW_UP_SETTLE, i.FollowUp)
	_, err = cover.Command("position", "101")
	assert.ErrorIs(err, ErrInvalidCommand)

	climate, _ := r.ByUniqueId("dnake_air_condition_1_0")
	i, err = climate.Command("temperature", "22.0")
	require.NoError(t, err)
	assert.Equal(22, *i.Request.Param)
	_, err = climate.Command("mode", "auto")
	assert.ErrorIs(err, ErrInvalidCommand)
	i, err = climate.Command("mode", "off")
	require.NoError(t, err)
	assert.Equal(dnake.OPER_POWER_OFF, i.Request.Oper)

	fan, _ := r.ByUniqueId("dnake_fresh_air_4_0")
	i, err = fan.Command("preset_mode", "high")
	require.NoError(t, err)
	assert.Equal(dnake.CMD_FAN, i.Request.Cmd)
	assert.Equal(3, *i.Request.Param)
	_, err = fan.Command("oscillate", "on")
	assert.ErrorIs(err, ErrInvalidCommand)
}
