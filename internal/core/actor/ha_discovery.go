package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/dnake2mqtt/internal/config"
	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes Home Assistant discovery configs for the bridge
// and every device in the registry, and clears the configs of devices that
// disappear on rediscovery.
type HADiscoveryActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	devicesActor   *actor.PID
	mqttActor      *actor.PID
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription

	entities map[string]domain.GenericEntity
	sensors  map[string]domain.GenericSensor

	logger *zap.Logger
}

type registryUpdate struct {
	devices []domain.DeviceSnapshot
}

func NewHADiscoveryActor(config *config.Config, devicesActor *actor.PID, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:       config,
		devicesActor: devicesActor,
		mqttActor:    mqttActor,
		eventStream:  eventStream,
		behavior:     actor.NewBehavior(),
		stash:        &actorutil.Stash{},
		entities:     map[string]domain.GenericEntity{},
		sensors:      map[string]domain.GenericSensor{},
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// discovery is useless without a broker
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}

		self := ctx.Self()
		system := ctx.ActorSystem()
		state.eventStreamSub = state.eventStream.Subscribe(func(evt any) {
			if ev, ok := evt.(domain.RegistryRebuiltEvent); ok {
				system.Root.Send(self, registryUpdate{devices: ev.Devices})
			}
		})

		// the registry may be installed already; the devices actor answers
		// once its first discovery completes
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.devicesActor, domain.ListDevicesRequest{}, 2*time.Minute), func(err error) any {
			return domain.ListDevicesResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ListDevicesResponse:
		if msg.HasResponseError() {
			state.logger.Warn("hadiscovery@default could not list devices", zap.Error(msg.GetResponseError()))
			return
		}
		state.publish(ctx, msg.Devices)
	case registryUpdate:
		state.publish(ctx, msg.devices)
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@default discovery not published", zap.Error(msg.GetResponseError()))
		}
	case *actor.Stopping:
		state.stop()
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("hadiscovery@default: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) publish(ctx actor.Context, devices []domain.DeviceSnapshot) {
	req := state.discoveryRequest(devices)
	state.logger.Info("publishing discovery", zap.Int("entities", len(req.Entities)),
		zap.Int("sensors", len(req.Sensors)), zap.Int("removed", len(req.Removed)))
	ctx.Request(state.mqttActor, req)
}

// discoveryRequest builds the discovery for a registry and remembers what
// was published so the next registry can clear what it dropped.
func (state *HADiscoveryActor) discoveryRequest(devices []domain.DeviceSnapshot) domain.PublishDiscoveryRequest {
	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)

	req := domain.PublishDiscoveryRequest{
		Sensors: domain.BridgeSensors(bridgeDevice),
	}
	entities := map[string]domain.GenericEntity{}
	sensors := map[string]domain.GenericSensor{}
	for _, snapshot := range devices {
		entity := domain.SnapshotEntity(bridgeDevice, snapshot)
		req.Entities = append(req.Entities, entity)
		entities[entity.UniqueId] = entity
		if entity.Component == domain.COMPONENT_FAN {
			for _, sensor := range domain.FreshAirSensors(entity) {
				req.Sensors = append(req.Sensors, sensor)
				sensors[sensor.UniqueId] = sensor
			}
		}
	}

	for id, entity := range state.entities {
		if _, ok := entities[id]; !ok {
			req.Removed = append(req.Removed, entity)
		}
	}
	for id, sensor := range state.sensors {
		if _, ok := sensors[id]; !ok {
			req.RemovedSensors = append(req.RemovedSensors, sensor)
		}
	}
	state.entities = entities
	state.sensors = sensors
	return req
}

func (state *HADiscoveryActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
