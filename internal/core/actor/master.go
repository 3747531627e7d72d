package actor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	adactor "github.com/berfenger/dnake2mqtt/internal/adapter/actor"
	"github.com/berfenger/dnake2mqtt/internal/config"
	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/core/events"
	cron "github.com/berfenger/dnake2mqtt/internal/scheduler"
	. "github.com/berfenger/dnake2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

type GatewayActorProvider func() *adactor.GatewayActor

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash
	timers   *scheduler.TimerScheduler

	currentHealthCheck   healthCheckResult
	eventStream          *eventstream.EventStream
	gatewayActor         *actor.PID
	devicesActor         *actor.PID
	mqttActor            *actor.PID
	haDiscoveryActor     *actor.PID
	gatewayActorProvider GatewayActorProvider
	mqttActorProvider    MQTTActorProvider
	devicesFailed        bool
	rediscovery          *cron.CronSchedule
	rediscoveryCancel    scheduler.CancelFunc
	logger               *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

type rediscoveryTick struct{}

const healthCheckCount = 3

func NewMasterOfPuppetsActor(config config.Config, gatewayActorProvider GatewayActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:               config,
		behavior:             actor.NewBehavior(),
		stash:                &Stash{},
		logger:               ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:          &eventstream.EventStream{},
		gatewayActorProvider: gatewayActorProvider,
		mqttActorProvider:    mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

// EventStream is the stream every child publishes on.
func (state *MasterOfPuppetsActor) EventStream() *eventstream.EventStream {
	return state.eventStream
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()
		state.timers = scheduler.NewTimerScheduler(ctx)

		// start gateway child
		gatewayActorPID, err := state.startGatewayActor(ctx)
		if err != nil {
			panic(err)
		}
		state.gatewayActor = gatewayActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start devices child
		devicesActorPID, err := state.startDevicesActor(ctx)
		if err != nil {
			panic(err)
		}
		state.devicesActor = devicesActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			haDiscPID, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
			state.haDiscoveryActor = haDiscPID
		}

		state.scheduleRediscovery(ctx)

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		state.requestHealth(ctx, state.gatewayActor, domain.ACTOR_ID_GATEWAY)
		state.requestHealth(ctx, state.mqttActor, domain.ACTOR_ID_MQTT)
		if state.devicesFailed {
			// stopped for good, nothing to ask
			ctx.Send(ctx.Self(), domain.ActorHealthResponse{Id: domain.ACTOR_ID_DEVICES, State: "terminated"})
		} else {
			state.requestHealth(ctx, state.devicesActor, domain.ACTOR_ID_DEVICES)
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// route MQTT commands to the devices actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			ctx.Send(state.devicesActor, ParsedMQTTCommandToRequest(*msg.Command))
		}
	case domain.DevicesRequest:
		ctx.Forward(state.devicesActor)
	case rediscoveryTick:
		state.rediscover(ctx)
		state.scheduleRediscovery(ctx)
	case *actor.Terminated:
		if state.devicesActor != nil && msg.Who.Id == state.devicesActor.Id {
			state.logger.Error("master@default devices actor terminated, bridge unhealthy")
			state.devicesFailed = true
			state.cancelRediscovery()
			state.eventStream.Publish(events.BridgeStateUpdateEvent(false))
		}
	case *actor.Stopping:
		state.cancelRediscovery()
	default:
		state.logger.Debug("master@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.finishHealthCheck(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id),
			zap.Bool("healthy", msg.Healthy), zap.String("state", msg.State))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {
			state.finishHealthCheck(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) finishHealthCheck(ctx actor.Context) {
	ctx.CancelReceiveTimeout()
	state.currentHealthCheck.respond(ctx)
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *MasterOfPuppetsActor) requestHealth(ctx actor.Context, pid *actor.PID, id string) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
		}
	})
}

// Rediscovery

func (state *MasterOfPuppetsActor) scheduleRediscovery(ctx actor.Context) {
	if state.config.Gateway.RediscoveryCron == "" || state.devicesFailed {
		return
	}
	if state.rediscovery == nil {
		schedule, err := cron.ParseCron(state.config.Gateway.RediscoveryCron)
		if err != nil {
			state.logger.Error("invalid rediscovery schedule, rediscovery disabled", zap.Error(err))
			state.config.Gateway.RediscoveryCron = ""
			return
		}
		state.rediscovery = schedule
	}
	delay, err := state.rediscovery.Delay(time.Now())
	if err != nil {
		state.logger.Error("could not compute next rediscovery", zap.Error(err))
		return
	}
	state.logger.Debug("next rediscovery", zap.Duration("in", delay), zap.String("cron", state.rediscovery.String()))
	state.rediscoveryCancel = state.timers.SendOnce(delay, ctx.Self(), rediscoveryTick{})
}

func (state *MasterOfPuppetsActor) cancelRediscovery() {
	if state.rediscoveryCancel != nil {
		state.rediscoveryCancel()
		state.rediscoveryCancel = nil
	}
}

func (state *MasterOfPuppetsActor) rediscover(ctx actor.Context) {
	if state.devicesFailed {
		return
	}
	state.logger.Info("scheduled rediscovery")
	RequestReenter(ctx, state.devicesActor, domain.RediscoverRequest{}, 2*time.Minute,
		func(resp domain.RediscoverResponse, err error) {
			if err != nil {
				state.logger.Warn("scheduled rediscovery failed", zap.Error(err))
				return
			}
			state.logger.Info("scheduled rediscovery done", zap.Int("devices", resp.Count))
		})
}

// Children

func (state *MasterOfPuppetsActor) startGatewayActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	gatewayProps := actor.PropsFromProducer(func() actor.Actor {
		return state.gatewayActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(gatewayProps, domain.ACTOR_ID_GATEWAY)
}

func (state *MasterOfPuppetsActor) startDevicesActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		if err, ok := reason.(error); ok && errors.Is(err, ErrDiscoveryFailed) {
			state.logger.Error("devices actor failed discovery", zap.Error(err))
			return actor.StopDirective
		}
		state.logger.Warn("devices actor failure, restarting", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	devicesProps := actor.PropsFromProducer(func() actor.Actor {
		return NewDevicesActor(&state.config, state.gatewayActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(devicesProps, domain.ACTOR_ID_DEVICES)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(30*time.Second, 2*time.Second)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.devicesActor, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.checksReceived = 0
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= healthCheckCount
}

func (state *healthCheckResult) unhealthy() []string {
	var ids []string
	for _, id := range []string{domain.ACTOR_ID_GATEWAY, domain.ACTOR_ID_DEVICES, domain.ACTOR_ID_MQTT} {
		if !state.healthy[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	failing := state.unhealthy()
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: len(failing) == 0,
		State:   "healthy",
	}
	if !resp.Healthy {
		resp.State = "unhealthy: " + strings.Join(failing, ", ")
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
