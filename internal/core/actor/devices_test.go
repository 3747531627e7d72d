package actor

import (
	"net/http"
	"testing"
	"time"

	adactor "github.com/berfenger/dnake2mqtt/internal/adapter/actor"
	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/util"
	"github.com/berfenger/dnake2mqtt/internal/util/actorutil"
	"github.com/berfenger/dnake2mqtt/pkg/dnake"
	"github.com/berfenger/dnake2mqtt/pkg/dnake/dnaketest"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(v int) *int { return &v }

var (
	hallLight  = dnake.DeviceDescriptor{Name: "Hall", Number: 1, Channel: 0, Type: dnake.TYPE_LIGHT, State: intPtr(0)}
	blindCover = dnake.DeviceDescriptor{Name: "Blind", Number: 2, Channel: 1, Type: dnake.TYPE_COVER, Level: intPtr(0)}
	livingAC   = dnake.DeviceDescriptor{Name: "Living AC", Number: 3, Channel: 0, Type: dnake.TYPE_AIR_CONDITION, PowerOn: intPtr(0), Mode: intPtr(1)}
	doorbell   = dnake.DeviceDescriptor{Name: "Doorbell", Number: 4, Channel: 0, Type: 9999}
)

type devicesFixture struct {
	t      *testing.T
	as     *actor.ActorSystem
	gw     *dnaketest.Gateway
	pid    *actor.PID
	events chan any
}

func newDevicesFixture(t *testing.T, descriptors ...dnake.DeviceDescriptor) *devicesFixture {
	gw := dnaketest.NewGateway(descriptors...)
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	client := dnake.NewClient(http.DefaultClient, logger)
	client.BindCredentials(gw.URL(), cfg.Gateway.Username, cfg.Gateway.Password)

	as := actorutil.NewActorSystemWithZapLogger(logger)
	es := &eventstream.EventStream{}
	evs := make(chan any, 1024)
	es.Subscribe(func(evt any) {
		select {
		case evs <- evt:
		default:
		}
	})

	gwProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewGatewayActor(client, cfg.Gateway.RequestTimeout(), logger)
	})
	gwPID := as.Root.Spawn(gwProps)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewDevicesActor(&cfg, gwPID, es, logger)
	})
	pid := as.Root.Spawn(props)

	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Root.Stop(gwPID)
		as.Shutdown()
		gw.Close()
	})
	return &devicesFixture{t: t, as: as, gw: gw, pid: pid, events: evs}
}

func (f *devicesFixture) listDevices() []domain.DeviceSnapshot {
	result, err := f.as.Root.RequestFuture(f.pid, domain.ListDevicesRequest{}, 5*time.Second).Result()
	require.NoError(f.t, err)
	return result.(domain.ListDevicesResponse).Devices
}

func (f *devicesFixture) command(uid, command, payload string) domain.DeviceCommandResponse {
	result, err := f.as.Root.RequestFuture(f.pid, domain.DeviceCommandRequest{
		UniqueId: uid,
		Command:  command,
		Payload:  payload,
	}, 5*time.Second).Result()
	require.NoError(f.t, err)
	return result.(domain.DeviceCommandResponse)
}

// waitForState consumes events until uid publishes a state matching match.
func (f *devicesFixture) waitForState(uid string, timeout time.Duration, match func(map[string]any) bool) map[string]any {
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-f.events:
			if ev, ok := evt.(domain.EntityStateUpdateEvent); ok && ev.EntityId() == uid && match(ev.State) {
				return ev.State
			}
		case <-deadline:
			f.t.Fatalf("no matching state for %s", uid)
			return nil
		}
	}
}

func TestDevicesActorDiscovery(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, hallLight, blindCover, doorbell)

	devices := f.listDevices()
	// unknown type codes are not modelled
	assert.Len(devices, 2)
	assert.Equal("dnake_light_1_0", devices[0].UniqueId)
	assert.Equal("dnake_cover_2_1", devices[1].UniqueId)
	assert.Equal(1, f.gw.ReadAllCount())

	var rebuilt *domain.RegistryRebuiltEvent
	deadline := time.After(2 * time.Second)
	for rebuilt == nil {
		select {
		case evt := <-f.events:
			if ev, ok := evt.(domain.RegistryRebuiltEvent); ok {
				rebuilt = &ev
			}
		case <-deadline:
			t.Fatal("registry not published")
		}
	}
	assert.Len(rebuilt.Devices, 2)

	result, err := f.as.Root.RequestFuture(f.pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	assert.NoError(err)
	health := result.(domain.ActorHealthResponse)
	assert.True(health.Healthy)
	assert.Equal("ready (2 devices)", health.State)
}

func TestDevicesActorLightCommand(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, hallLight)
	f.listDevices()

	resp := f.command("dnake_light_1_0", "set", "ON")
	assert.False(resp.HasResponseError())
	assert.Equal("ON", resp.Device.State["state"])
	assert.True(f.gw.On(hallLight.Identity()))

	f.waitForState("dnake_light_1_0", time.Second, func(s map[string]any) bool { return s["state"] == "ON" })

	cmds := f.gw.Commands()
	assert.Len(cmds, 1)
	assert.Equal(dnake.CMD_ON, cmds[0].Cmd)
}

func TestDevicesActorRejectedCommandKeepsState(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, hallLight)
	f.listDevices()
	f.gw.RejectCommands(true)

	resp := f.command("dnake_light_1_0", "set", "ON")
	assert.ErrorIs(resp.GetResponseError(), dnake.ErrRejected)

	devices := f.listDevices()
	assert.Equal("OFF", devices[0].State["state"])
}

func TestDevicesActorInvalidCommands(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, hallLight, blindCover)
	f.listDevices()

	resp := f.command("dnake_light_9_9", "set", "ON")
	assert.ErrorIs(resp.GetResponseError(), domain.ErrUnknownDevice)

	resp = f.command("dnake_cover_2_1", "position", "140")
	assert.Error(resp.GetResponseError())

	assert.Empty(f.gw.Commands())
}

func TestDevicesActorCoverOpen(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, blindCover)
	f.listDevices()
	f.gw.SetCoverStep(64)

	resp := f.command("dnake_cover_2_1", "set", "OPEN")
	assert.False(resp.HasResponseError())
	assert.Equal("opening", resp.Device.State["state"])

	f.waitForState("dnake_cover_2_1", 2*time.Second, func(s map[string]any) bool {
		return s["state"] == "opening" && s["position"].(int) > 0
	})
	f.waitForState("dnake_cover_2_1", 2*time.Second, func(s map[string]any) bool {
		return s["state"] == "open" && s["position"] == 100
	})
	assert.Equal(dnake.MAX_LEVEL, f.gw.Level(blindCover.Identity()))

	// the fast poll stops once the target is reached
	time.Sleep(200 * time.Millisecond)
	reads := f.gw.ReadDevCount(blindCover.Identity())
	time.Sleep(300 * time.Millisecond)
	assert.Equal(reads, f.gw.ReadDevCount(blindCover.Identity()))
	assert.Equal(1, f.gw.ReadAllCount())
}

func TestDevicesActorCoverStop(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, blindCover)
	f.listDevices()
	f.gw.SetCoverStep(10)

	f.command("dnake_cover_2_1", "position", "100")
	f.waitForState("dnake_cover_2_1", 2*time.Second, func(s map[string]any) bool {
		return s["state"] == "opening" && s["position"].(int) > 0
	})

	resp := f.command("dnake_cover_2_1", "set", "STOP")
	assert.False(resp.HasResponseError())

	settled := f.waitForState("dnake_cover_2_1", 2*time.Second, func(s map[string]any) bool {
		return s["state"] == "open"
	})
	level := f.gw.Level(blindCover.Identity())
	assert.Less(level, dnake.MAX_LEVEL)
	assert.Equal(int(float64(level)*100/dnake.MAX_LEVEL+0.5), settled["position"])

	reads := f.gw.ReadDevCount(blindCover.Identity())
	time.Sleep(300 * time.Millisecond)
	assert.Equal(reads, f.gw.ReadDevCount(blindCover.Identity()))
}

func TestDevicesActorClimateWarmup(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, livingAC)
	f.listDevices()

	resp := f.command("dnake_air_condition_3_0", "mode", "cool")
	assert.False(resp.HasResponseError())
	// still off until the delayed power on
	assert.Equal("off", resp.Device.State["mode"])

	state := f.waitForState("dnake_air_condition_3_0", 2*time.Second, func(s map[string]any) bool {
		return s["power"] == "ON"
	})
	assert.Equal("cool", state["mode"])

	cmds := f.gw.Commands()
	if assert.Len(cmds, 2) {
		assert.Equal(dnake.OPER_SET_MODE, cmds[0].Oper)
		assert.Equal(2, *cmds[0].Param)
		assert.Equal(dnake.OPER_POWER_ON, cmds[1].Oper)
	}
}

func TestDevicesActorClimateModeOffCancelsWarmup(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, livingAC)
	f.listDevices()

	f.command("dnake_air_condition_3_0", "mode", "heat")
	f.command("dnake_air_condition_3_0", "mode", "off")

	time.Sleep(300 * time.Millisecond)
	for _, cmd := range f.gw.Commands() {
		assert.NotEqual(dnake.OPER_POWER_ON, cmd.Oper)
	}
}

func TestDevicesActorRediscover(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, hallLight, blindCover)
	f.listDevices()

	result, err := f.as.Root.RequestFuture(f.pid, domain.RediscoverRequest{}, 5*time.Second).Result()
	assert.NoError(err)
	resp := result.(domain.RediscoverResponse)
	assert.False(resp.HasResponseError())
	assert.Equal(2, resp.Count)
	assert.Len(f.listDevices(), 2)
}

func coverPercent(level int) int {
	return int(float64(level)*100/dnake.MAX_LEVEL + 0.5)
}

func TestDevicesActorRejectedCommandAfterStopStillSettles(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, blindCover)
	f.listDevices()
	f.gw.SetCoverStep(10)

	f.command("dnake_cover_2_1", "position", "100")
	f.waitForState("dnake_cover_2_1", 2*time.Second, func(s map[string]any) bool {
		return s["state"] == "opening" && s["position"].(int) > 0
	})
	resp := f.command("dnake_cover_2_1", "set", "STOP")
	assert.False(resp.HasResponseError())

	f.gw.RejectCommands(true)
	resp = f.command("dnake_cover_2_1", "position", "20")
	assert.ErrorIs(resp.GetResponseError(), dnake.ErrRejected)

	// the pending settle read of the stop survives the rejected command
	settled := f.waitForState("dnake_cover_2_1", 2*time.Second, func(s map[string]any) bool {
		return s["state"] == "open"
	})
	assert.Equal(coverPercent(f.gw.Level(blindCover.Identity())), settled["position"])
}

func TestDevicesActorSettleRetriesFailedRead(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, blindCover)
	f.listDevices()
	f.gw.SetCoverStep(10)

	f.command("dnake_cover_2_1", "position", "100")
	f.waitForState("dnake_cover_2_1", 2*time.Second, func(s map[string]any) bool {
		return s["state"] == "opening" && s["position"].(int) > 0
	})
	f.gw.FailReads(true)
	resp := f.command("dnake_cover_2_1", "set", "STOP")
	assert.False(resp.HasResponseError())

	// several settle delays pass without a successful read
	time.Sleep(350 * time.Millisecond)
	assert.Equal("opening", f.listDevices()[0].State["state"])

	f.gw.FailReads(false)
	settled := f.waitForState("dnake_cover_2_1", 2*time.Second, func(s map[string]any) bool {
		return s["state"] == "open"
	})
	assert.Equal(coverPercent(f.gw.Level(blindCover.Identity())), settled["position"])

	reads := f.gw.ReadDevCount(blindCover.Identity())
	time.Sleep(300 * time.Millisecond)
	assert.Equal(reads, f.gw.ReadDevCount(blindCover.Identity()))
}

func TestDevicesActorClimateWarmupSurvivesOtherCommands(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, livingAC)
	f.listDevices()

	resp := f.command("dnake_air_condition_3_0", "mode", "heat")
	assert.False(resp.HasResponseError())
	resp = f.command("dnake_air_condition_3_0", "temperature", "24")
	assert.False(resp.HasResponseError())

	f.waitForState("dnake_air_condition_3_0", 2*time.Second, func(s map[string]any) bool {
		return s["power"] == "ON"
	})

	cmds := f.gw.Commands()
	if assert.Len(cmds, 3) {
		assert.Equal(dnake.OPER_SET_MODE, cmds[0].Oper)
		assert.Equal(dnake.OPER_SET_TEMP, cmds[1].Oper)
		assert.Equal(24, *cmds[1].Param)
		assert.Equal(dnake.OPER_POWER_ON, cmds[2].Oper)
	}
	assert.True(f.gw.On(livingAC.Identity()))
}

func TestDevicesActorPollDuringRediscoveryIsRepeated(t *testing.T) {

	assert := assert.New(t)

	f := newDevicesFixture(t, hallLight)
	f.listDevices()
	assert.Equal(1, f.gw.ReadAllCount())

	f.gw.SetOn(hallLight.Identity(), true)
	f.gw.SetDeviceListDelay(300 * time.Millisecond)

	future := f.as.Root.RequestFuture(f.pid, domain.RediscoverRequest{}, 5*time.Second)
	// the tick lands while the device list is in flight, so its poll
	// answers after the new registry is installed
	time.Sleep(100 * time.Millisecond)
	f.as.Root.Send(f.pid, globalPollTick{})

	result, err := future.Result()
	assert.NoError(err)
	assert.False(result.(domain.RediscoverResponse).HasResponseError())

	assert.Eventually(func() bool {
		return f.listDevices()[0].State["state"] == "ON"
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(3, f.gw.ReadAllCount())
}
