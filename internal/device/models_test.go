package device

import (
	"testing"

	"github.com/berfenger/dnake2mqtt/pkg/dnake"
	"github.com/stretchr/testify/assert"
)

func TestCoverPercentRoundTrip(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0, PercentToLevel(0))
	assert.Equal(254, PercentToLevel(100))
	for _, level := range []int{0, 127, 254} {
		p := LevelToPercent(level)
		assert.Equal(p, LevelToPercent(PercentToLevel(p)), "level %d", level)
	}
	assert.Equal(50, LevelToPercent(127))
}

func TestCoverOpenScenario(t *testing.T) {
	assert := assert.New(t)
	c := NewCover(dnake.DeviceDescriptor{Name: "Blind", Number: 2, Channel: 1, Type: dnake.TYPE_COVER, Level: ptr(0)})
	assert.True(c.IsClosed())
	assert.Equal(COVER_STATE_CLOSED, c.MotionState())

	intent := c.SetPosition(100)
	assert.Equal(254, *intent.Request.Level)
	assert.True(intent.Resolve(nil))
	assert.Equal(254, c.TargetLevel())
	assert.True(c.IsOpening())
	assert.Equal(COVER_STATE_OPENING, c.MotionState())

	assert.True(c.ApplyLevel(120, false))
	assert.False(c.Settled())
	assert.True(c.ApplyLevel(254, false))
	assert.True(c.Settled())
	assert.False(c.IsClosed())
	assert.Equal(100, c.Position())
	assert.Equal(COVER_STATE_OPEN, c.MotionState())
}

func TestCoverStopCommitsNothing(t *testing.T) {
	assert := assert.New(t)
	c := NewCover(dnake.DeviceDescriptor{Number: 2, Channel: 1, Type: dnake.TYPE_COVER, Level: ptr(100)})
	c.SetPosition(0).Resolve(nil)
	assert.True(c.IsClosing())

	assert.True(c.Stop().Resolve(nil))
	assert.True(c.IsClosing())

	assert.True(c.Apply(dnake.CoverState{Level: 60}))
	assert.True(c.Settled())
	assert.Equal(60, c.TargetLevel())
}

func TestClimateModeGating(t *testing.T) {
	assert := assert.New(t)
	c := NewClimate(dnake.DeviceDescriptor{Number: 3, Type: dnake.TYPE_AIR_CONDITION, PowerOn: ptr(0), Mode: ptr(2)})

	assert.False(c.IsOn())
	assert.Equal(HVAC_MODE_OFF, c.HvacMode())
	for _, m := range HvacModes.Values() {
		c.SetHvacMode(m).Resolve(nil)
		if m != HVAC_MODE_OFF {
			assert.False(c.IsOn())
		}
		assert.Equal(HVAC_MODE_OFF, c.HvacMode())
	}
	c.Apply(dnake.ClimateState{On: false, Mode: 1, TempIndoor: 20, TempDesire: 20})
	assert.Equal(HVAC_MODE_OFF, c.HvacMode())
	assert.Equal(string(HVAC_MODE_OFF), c.State()["mode"])
}

func TestClimateWarmupSequence(t *testing.T) {
	assert := assert.New(t)
	c := NewClimate(dnake.DeviceDescriptor{Number: 3, Type: dnake.TYPE_AIR_CONDITION})

	mode := c.SetHvacMode(HVAC_MODE_HEAT)
	assert.Equal(dnake.OPER_SET_MODE, mode.Request.Oper)
	assert.Equal(1, *mode.Request.Param)
	assert.Equal(FOLLOW_UP_POWER_ON, mode.FollowUp)
	assert.True(mode.Resolve(nil))
	assert.Equal(HVAC_MODE_OFF, c.HvacMode())

	power := c.SetPower(true)
	assert.Equal(dnake.OPER_POWER_ON, power.Request.Oper)
	assert.True(power.Resolve(nil))
	assert.True(c.IsOn())
	assert.Equal(HVAC_MODE_HEAT, c.HvacMode())

	// no warm-up needed once powered
	assert.Equal(FOLLOW_UP_NONE, c.SetHvacMode(HVAC_MODE_COOL).FollowUp)
}

func TestClimateTemperatureNotClamped(t *testing.T) {
	c := NewClimate(dnake.DeviceDescriptor{Number: 3, Type: dnake.TYPE_AIR_CONDITION})
	i := c.SetTemperature(40)
	assert.Equal(t, 40, *i.Request.Param)
	i.Resolve(nil)
	assert.Equal(t, 40.0, c.TargetTemperature())
}

func TestFreshAirPercentage(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(3, SpeedCount())
	for _, s := range FreshAirSpeeds.Values() {
		assert.Equal(s, PercentageToSpeed(SpeedToPercentage(s)))
	}
	assert.Equal(0, SpeedToPercentage(FAN_MODE_LOW))
	assert.Equal(50, SpeedToPercentage(FAN_MODE_MEDIUM))
	assert.Equal(100, SpeedToPercentage(FAN_MODE_HIGH))
	assert.Equal(FAN_MODE_LOW, PercentageToSpeed(-20))
	assert.Equal(FAN_MODE_HIGH, PercentageToSpeed(250))
	assert.Equal(FAN_MODE_MEDIUM, PercentageToSpeed(60))
}

func TestFreshAirApply(t *testing.T) {
	assert := assert.New(t)
	f := NewFreshAir(dnake.DeviceDescriptor{Number: 4, Type: dnake.TYPE_FRESH_AIR}, dnake.CMD_AIR_FRESH)
	assert.Equal(FAN_MODE_LOW, f.Speed())

	assert.True(f.Apply(dnake.FreshAirState{On: true, Speed: 3, PM25: 18, ErrorCode: 2}))
	assert.False(f.Apply(dnake.FreshAirState{On: true, Speed: 3, PM25: 18, ErrorCode: 2}))
	assert.Equal(FAN_MODE_HIGH, f.Speed())
	assert.Equal(100, f.Percentage())
	assert.Equal(18, f.PM25())
	assert.Equal(2, f.ErrorCode())

	// unknown wire speed falls back to low
	f.Apply(dnake.FreshAirState{On: true, Speed: 7})
	assert.Equal(FAN_MODE_LOW, f.Speed())

	// payloads of other types are ignored
	assert.False(f.Apply(dnake.LightState{On: false}))
	assert.True(f.IsOn())
}
