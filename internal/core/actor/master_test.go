package actor

import (
	"net/http"
	"testing"
	"time"

	adactor "github.com/berfenger/dnake2mqtt/internal/adapter/actor"
	"github.com/berfenger/dnake2mqtt/internal/config"
	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/mqtt"
	"github.com/berfenger/dnake2mqtt/internal/util"
	"github.com/berfenger/dnake2mqtt/pkg/dnake"
	"github.com/berfenger/dnake2mqtt/pkg/dnake/dnaketest"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func spawnMaster(t *testing.T, cfg config.Config, gw *dnaketest.Gateway) (*actor.ActorSystem, *actor.PID) {
	as := actor.NewActorSystem()

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	client := dnake.NewClient(http.DefaultClient, logger)
	client.BindCredentials(gw.URL(), cfg.Gateway.Username, cfg.Gateway.Password)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.GatewayActor {
			return adactor.NewGatewayActor(client, cfg.Gateway.RequestTimeout(), logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	return as, pid
}

func masterHealth(as *actor.ActorSystem, pid *actor.PID) (domain.ActorHealthResponse, bool) {
	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return domain.ActorHealthResponse{}, false
	}
	resp, ok := res.(domain.ActorHealthResponse)
	return resp, ok
}

func TestMasterActor(t *testing.T) {

	assert := assert.New(t)

	gw := dnaketest.NewGateway(hallLight, blindCover)
	defer gw.Close()

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = true
	as, pid := spawnMaster(t, cfg, gw)

	// requests for the devices actor are forwarded
	res, err := as.Root.RequestFuture(pid, domain.ListDevicesRequest{}, 5*time.Second).Result()
	assert.NoError(err)
	assert.Len(res.(domain.ListDevicesResponse).Devices, 2)

	assert.Eventually(func() bool {
		resp, ok := masterHealth(as, pid)
		return ok && resp.Healthy
	}, 5*time.Second, 100*time.Millisecond)

	// MQTT commands reach the devices
	as.Root.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		Component: domain.COMPONENT_LIGHT,
		DeviceId:  "dnake_light_1_0",
		Command:   mqtt.COMMAND_SET,
		Payload:   mqtt.MQTT_PAYLOAD_ON,
	}})
	assert.Eventually(func() bool {
		return gw.On(hallLight.Identity())
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMasterActorDiscoveryFailure(t *testing.T) {

	assert := assert.New(t)

	gw := dnaketest.NewGateway(hallLight)
	defer gw.Close()
	gw.FailIotInfo(true)

	cfg := util.LoadTestConfig()
	as, pid := spawnMaster(t, cfg, gw)

	var health domain.ActorHealthResponse
	assert.Eventually(func() bool {
		resp, ok := masterHealth(as, pid)
		health = resp
		return ok && !resp.Healthy && resp.State == "unhealthy: devices"
	}, 5*time.Second, 100*time.Millisecond)
	assert.False(health.Healthy)
}
