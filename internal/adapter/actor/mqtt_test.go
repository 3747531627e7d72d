package actor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/mqtt"
	"github.com/berfenger/dnake2mqtt/internal/util"
	"github.com/berfenger/dnake2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, &es, logger) })
	pid := context.Spawn(props)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(resp.Healthy)

	es.Publish(domain.EntityStateUpdateEvent{
		EntityUpdateEventMixIn: domain.EntityUpdateEventMixIn{Id: "dnake_light_1_0"},
		Component:              domain.COMPONENT_LIGHT,
		State:                  map[string]any{"state": "ON"},
	})
	es.Publish(domain.BridgeStateUpdateEvent{Value: true})
	// not mapped to MQTT
	es.Publish(domain.RegistryRebuiltEvent{})

	assert.Eventually(func() bool {
		result, err := context.RequestFuture(pid, PublishedCountRequest{}, time.Second).Result()
		return err == nil && result.(PublishedCountResponse).Count == 2
	}, 2*time.Second, 20*time.Millisecond)

	context.Stop(pid)
	as.Shutdown()
}

func TestEvent2MQTTMessage(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	act := NewTestMQTTActor(&cfg, nil, zap.NewNop())
	act.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	raw := act.event2MQTTMessage(domain.EntityStateUpdateEvent{
		EntityUpdateEventMixIn: domain.EntityUpdateEventMixIn{Id: "dnake_cover_2_1"},
		Component:              domain.COMPONENT_COVER,
		State:                  map[string]any{"state": "opening", "position": 40},
	})
	if assert.NotNil(raw) {
		assert.Equal("dnake/cover/dnake_cover_2_1/state", raw.topic)
		assert.True(raw.retain)
		var decoded map[string]any
		assert.NoError(json.Unmarshal([]byte(raw.message), &decoded))
		assert.Equal("opening", decoded["state"])
		assert.EqualValues(40, decoded["position"])
	}

	raw = act.event2MQTTMessage(domain.BridgeStateUpdateEvent{Value: false})
	if assert.NotNil(raw) {
		assert.Equal("dnake/bridge/state", raw.topic)
		assert.Equal(mqtt.MQTT_PAYLOAD_OFFLINE, raw.message)
	}

	assert.Nil(act.event2MQTTMessage("unrelated"))
}

func TestDiscoveryMessages(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	client := mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	bridge := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	light := domain.SnapshotEntity(bridge, domain.DeviceSnapshot{
		UniqueId: "dnake_light_1_0", Name: "Hall", Component: domain.COMPONENT_LIGHT,
	})
	gone := domain.SnapshotEntity(bridge, domain.DeviceSnapshot{
		UniqueId: "dnake_light_5_0", Name: "Old", Component: domain.COMPONENT_LIGHT,
	})

	messages, err := discoveryMessages(client, domain.PublishDiscoveryRequest{
		Sensors:  domain.BridgeSensors(bridge),
		Entities: []domain.GenericEntity{light},
		Removed:  []domain.GenericEntity{gone},
	})
	assert.NoError(err)
	if assert.Len(messages, 3) {
		assert.Contains(messages[0].topic, "homeassistant/binary_sensor/")
		assert.Equal("homeassistant/light/dnake_light_1_0/config", messages[1].topic)
		assert.NotEmpty(messages[1].message)
		assert.Equal("homeassistant/light/dnake_light_5_0/config", messages[2].topic)
		assert.Empty(messages[2].message)
		assert.True(messages[2].retain)
	}
}
