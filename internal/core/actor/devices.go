package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/dnake2mqtt/internal/adapter/actor"
	"github.com/berfenger/dnake2mqtt/internal/config"
	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/core/events"
	"github.com/berfenger/dnake2mqtt/internal/device"
	. "github.com/berfenger/dnake2mqtt/internal/util/actorutil"
	"github.com/berfenger/dnake2mqtt/pkg/dnake"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

var ErrDiscoveryFailed = errors.New("device discovery failed")

// DevicesActor owns the device registry. It polls the gateway, applies
// commands and publishes every model change on the event stream. Gateway
// I/O goes through the gateway actor so this actor never blocks.
type DevicesActor struct {
	config       *config.Config
	states       *ActorWithStates
	stash        *Stash
	timers       *scheduler.TimerScheduler
	gatewayActor *actor.PID
	eventStream  *eventstream.EventStream

	registry    *device.Registry
	cache       *device.StateCache
	registryGen uint64
	polling     bool
	pollCancel  scheduler.CancelFunc
	slots       map[string]*timerSlot
	slotGen     uint64

	logger *zap.Logger
}

// timerSlot is a cancellable timer owned by one device. Ticks carry the
// generation they were armed with; a tick whose generation no longer
// matches its slot is stale and ignored.
type timerSlot struct {
	gen      uint64
	cancel   scheduler.CancelFunc
	inFlight bool
}

type globalPollTick struct{}

type fastPollTick struct {
	uid string
	gen uint64
}

type settleTick struct {
	uid string
	gen uint64
}

type warmupTick struct {
	uid string
	gen uint64
}

func NewDevicesActor(config *config.Config, gatewayActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *DevicesActor {
	act := &DevicesActor{
		config:       config,
		stash:        &Stash{},
		gatewayActor: gatewayActor,
		eventStream:  eventStream,
		cache:        device.NewStateCache(),
		slots:        make(map[string]*timerSlot),
		logger:       ActorLogger(domain.ACTOR_ID_DEVICES, logger),
	}
	act.states = NewActorWithStates(State("discovering", act.StartingReceive))
	return act
}

func (state *DevicesActor) Receive(context actor.Context) {
	state.states.Receive(context)
}

func (state *DevicesActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("devices@starting started")
		state.timers = scheduler.NewTimerScheduler(ctx)
		state.discover(ctx)
	case *actor.Stopping:
		state.stop()
	case *actor.Restarting:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(state.health())
	default:
		state.logger.Debug("devices@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DevicesActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("devices@default: ActorHealthRequest")
		ctx.Respond(state.health())
	case globalPollTick:
		state.globalPoll(ctx, nil)
	case fastPollTick:
		state.fastPoll(ctx, msg)
	case settleTick:
		state.settle(ctx, msg)
	case warmupTick:
		state.warmup(ctx, msg)
	case domain.ListDevicesRequest:
		state.logger.Debug("devices@default: ListDevicesRequest")
		ForRequest(msg).Respond(ctx, domain.ListDevicesResponse{
			Devices: events.RegistrySnapshots(state.registry),
		})
	case domain.DeviceCommandRequest:
		state.logger.Debug("devices@default: DeviceCommandRequest", zap.String("device", msg.UniqueId),
			zap.String("command", msg.Command), zap.String("payload", msg.Payload))
		state.command(ctx, msg)
	case domain.RediscoverRequest:
		state.logger.Debug("devices@default: RediscoverRequest")
		state.rediscover(ctx, ForRequest(msg).ReplyTo(ctx))
	case *actor.Stopping:
		state.stop()
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("devices@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Discovery

func (state *DevicesActor) discover(ctx actor.Context) {
	RequestReenter(ctx, state.gatewayActor, domain.QueryIotInfoRequest{}, state.requestTimeout(),
		func(resp domain.QueryIotInfoResponse, err error) {
			if err != nil {
				state.logger.Error("could not query iot info", zap.Error(err))
				panic(fmt.Errorf("%w: %w", ErrDiscoveryFailed, err))
			}
			state.queryRegistry(ctx, func(registry *device.Registry, err error) {
				if err != nil {
					state.logger.Error("could not discover devices", zap.Error(err))
					panic(err)
				}
				state.installRegistry(registry)
				state.globalPoll(ctx, func() {
					state.publishAll()
					period := state.config.Gateway.ScanPeriod()
					state.pollCancel = state.timers.SendRepeatedly(period, period, ctx.Self(), globalPollTick{})
					state.logger.Info("devices ready", zap.Int("devices", registry.Len()), zap.Duration("scan_period", period))
					state.states.Become(State("ready", state.DefaultReceive))
					state.stash.UnstashAll(ctx)
				})
			})
		})
}

func (state *DevicesActor) queryRegistry(ctx actor.Context, fn func(*device.Registry, error)) {
	RequestReenter(ctx, state.gatewayActor, domain.QueryDeviceListRequest{}, state.requestTimeout(),
		func(resp domain.QueryDeviceListResponse, err error) {
			if err != nil {
				fn(nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err))
				return
			}
			if len(resp.Devices) == 0 {
				fn(nil, fmt.Errorf("%w: empty device list", ErrDiscoveryFailed))
				return
			}
			fn(device.Classify(resp.Devices, state.config.Gateway.FreshAirCmd(), state.logger), nil)
		})
}

func (state *DevicesActor) installRegistry(registry *device.Registry) {
	state.disarmAll()
	state.registryGen++
	state.registry = registry
	state.eventStream.Publish(domain.RegistryRebuiltEvent{
		Devices: events.RegistrySnapshots(registry),
	})
}

func (state *DevicesActor) rediscover(ctx actor.Context, replyTo *actor.PID) {
	state.queryRegistry(ctx, func(registry *device.Registry, err error) {
		if err != nil {
			// keep serving the current registry
			state.logger.Warn("rediscovery failed", zap.Error(err))
			reply(ctx, replyTo, domain.RediscoverResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
			return
		}
		state.installRegistry(registry)
		state.publishAll()
		state.globalPoll(ctx, nil)
		state.logger.Info("devices rediscovered", zap.Int("devices", registry.Len()))
		reply(ctx, replyTo, domain.RediscoverResponse{Count: registry.Len()})
	})
}

// Polling

// globalPoll refreshes every device. A tick while a poll is in flight is
// skipped. A result for a replaced registry is dropped and the poll issued
// again. done, if set, runs after the poll whatever its outcome.
func (state *DevicesActor) globalPoll(ctx actor.Context, done func()) {
	if state.polling {
		state.logger.Debug("global poll in flight, skipping tick")
		return
	}
	state.polling = true
	gen := state.registryGen
	RequestReenter(ctx, state.gatewayActor, domain.ReadAllDevStateRequest{}, state.requestTimeout(),
		func(resp domain.ReadAllDevStateResponse, err error) {
			state.polling = false
			switch {
			case err != nil:
				state.logger.Warn("global poll failed", zap.Error(err))
			case gen != state.registryGen:
				state.logger.Debug("dropping global poll of a replaced registry, polling again")
				state.globalPoll(ctx, nil)
			default:
				state.applyStates(resp.States)
			}
			if done != nil {
				done()
			}
		})
}

func (state *DevicesActor) applyStates(states []dnake.DeviceState) {
	for _, s := range states {
		if old, changed := state.cache.Observe(s); changed {
			state.logger.Debug("device state changed", zap.String("device", s.Key()),
				zap.Any("old", old), zap.Any("new", s.Raw))
		}
	}
	for _, d := range state.registry.Route(states) {
		state.notify(d)
	}
}

func (state *DevicesActor) startFastPoll(ctx actor.Context, cover *device.Cover) {
	uid := cover.UniqueId()
	period := state.config.Gateway.FastPollPeriod()
	state.arm(fastPollKey(uid), func(gen uint64) scheduler.CancelFunc {
		return state.timers.SendRepeatedly(period, period, ctx.Self(), fastPollTick{uid: uid, gen: gen})
	})
	state.logger.Debug("fast poll started", zap.String("device", uid))
}

func (state *DevicesActor) fastPoll(ctx actor.Context, tick fastPollTick) {
	key := fastPollKey(tick.uid)
	slot, ok := state.armed(key, tick.gen)
	if !ok || slot.inFlight {
		return
	}
	cover, ok := state.cover(tick.uid)
	if !ok {
		state.disarm(key)
		return
	}
	slot.inFlight = true
	state.readCover(ctx, cover, func(level int) {
		if current, ok := state.armed(key, tick.gen); ok {
			current.inFlight = false
		} else {
			return
		}
		if cover.ApplyLevel(level, false) {
			state.notify(cover)
		}
		if cover.Settled() {
			state.disarm(key)
			state.logger.Debug("fast poll done", zap.String("device", tick.uid), zap.Int("level", level))
		}
	}, func() {
		if current, ok := state.armed(key, tick.gen); ok {
			current.inFlight = false
		}
	})
}

func (state *DevicesActor) armSettle(ctx actor.Context, uid string) {
	delay := state.config.Gateway.CoverSettleDelay()
	state.arm(settleKey(uid), func(gen uint64) scheduler.CancelFunc {
		return state.timers.SendOnce(delay, ctx.Self(), settleTick{uid: uid, gen: gen})
	})
}

// settle resynchronizes a stopped cover. The slot stays armed while the
// read is in flight so a newer command can still cancel it. A failed read
// is retried after another settle delay.
func (state *DevicesActor) settle(ctx actor.Context, tick settleTick) {
	key := settleKey(tick.uid)
	slot, ok := state.armed(key, tick.gen)
	if !ok || slot.inFlight {
		return
	}
	cover, ok := state.cover(tick.uid)
	if !ok {
		state.disarm(key)
		return
	}
	slot.inFlight = true
	state.readCover(ctx, cover, func(level int) {
		if _, ok := state.armed(key, tick.gen); !ok {
			return
		}
		state.disarm(key)
		if cover.ApplyLevel(level, true) {
			state.notify(cover)
		}
	}, func() {
		if _, ok := state.armed(key, tick.gen); ok {
			state.logger.Debug("settle read failed, retrying", zap.String("device", tick.uid))
			state.armSettle(ctx, tick.uid)
		}
	})
}

// readCover reads the level of one cover. onLevel is dropped if the
// registry was replaced meanwhile.
func (state *DevicesActor) readCover(ctx actor.Context, cover *device.Cover, onLevel func(int), onError func()) {
	gen := state.registryGen
	RequestReenter(ctx, state.gatewayActor, domain.ReadDevStateRequest{Identity: cover.Identity()}, state.requestTimeout(),
		func(resp domain.ReadDevStateResponse, err error) {
			if gen != state.registryGen {
				return
			}
			if err != nil {
				state.logger.Warn("could not read cover", zap.String("device", cover.UniqueId()), zap.Error(err))
				if onError != nil {
					onError()
				}
				return
			}
			cs, ok := resp.State.Payload.(dnake.CoverState)
			if !ok {
				state.logger.Warn("unexpected cover state", zap.String("device", cover.UniqueId()), zap.Any("state", resp.State.Raw))
				if onError != nil {
					onError()
				}
				return
			}
			onLevel(cs.Level)
		})
}

// Commands

func (state *DevicesActor) command(ctx actor.Context, msg domain.DeviceCommandRequest) {
	replyTo := ForRequest(msg).ReplyTo(ctx)
	dev, ok := state.registry.ByUniqueId(msg.UniqueId)
	if !ok {
		reply(ctx, replyTo, domain.DeviceCommandResponse{
			ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("%w: %s", domain.ErrUnknownDevice, msg.UniqueId)),
		})
		return
	}
	intent, err := dev.Command(msg.Command, msg.Payload)
	if err != nil {
		state.logger.Warn("invalid command", zap.String("device", msg.UniqueId), zap.String("command", msg.Command), zap.Error(err))
		reply(ctx, replyTo, domain.DeviceCommandResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
		return
	}

	state.execute(ctx, intent, func(err error) {
		if err != nil {
			reply(ctx, replyTo, domain.DeviceCommandResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
			return
		}
		snapshot := events.DeviceSnapshot(intent.Device)
		reply(ctx, replyTo, domain.DeviceCommandResponse{Device: &snapshot})
	})
}

// execute sends the request of an intent and, once acknowledged, commits
// it, notifies the change and starts its follow up.
func (state *DevicesActor) execute(ctx actor.Context, intent *device.Intent, done func(error)) {
	gen := state.registryGen
	state.logger.Debug("executing", zap.Stringer("intent", intent))
	RequestReenter(ctx, state.gatewayActor, domain.ExecuteRequest{Request: intent.Request}, state.requestTimeout(),
		func(_ domain.ExecuteResponse, err error) {
			if !intent.Resolve(err) {
				state.logger.Warn("command failed", zap.Stringer("intent", intent), zap.Error(err))
				done(err)
				return
			}
			if gen == state.registryGen {
				state.notify(intent.Device)
				state.supersede(intent)
				state.followUp(ctx, intent)
			}
			done(nil)
		})
}

// supersede cancels the delayed work an acknowledged intent replaces. Any
// cover command replaces a pending settle read or fast poll. Only a power
// command replaces a pending climate warm up.
func (state *DevicesActor) supersede(intent *device.Intent) {
	uid := intent.Device.UniqueId()
	switch intent.Device.(type) {
	case *device.Cover:
		state.disarm(settleKey(uid))
		state.disarm(fastPollKey(uid))
	case *device.Climate:
		switch intent.Request.Oper {
		case dnake.OPER_POWER_ON, dnake.OPER_POWER_OFF:
			state.disarm(warmupKey(uid))
		}
	}
}

func (state *DevicesActor) followUp(ctx actor.Context, intent *device.Intent) {
	uid := intent.Device.UniqueId()
	switch intent.FollowUp {
	case device.FOLLOW_UP_FAST_POLL:
		if cover, ok := intent.Device.(*device.Cover); ok && !cover.Settled() {
			state.startFastPoll(ctx, cover)
		}
	case device.FOLLOW_UP_SETTLE:
		state.armSettle(ctx, uid)
	case device.FOLLOW_UP_POWER_ON:
		delay := state.config.Gateway.ClimateWarmupDelay()
		state.arm(warmupKey(uid), func(gen uint64) scheduler.CancelFunc {
			return state.timers.SendOnce(delay, ctx.Self(), warmupTick{uid: uid, gen: gen})
		})
		state.logger.Debug("power on scheduled", zap.String("device", uid), zap.Duration("delay", delay))
	}
}

func (state *DevicesActor) warmup(ctx actor.Context, tick warmupTick) {
	key := warmupKey(tick.uid)
	if _, ok := state.armed(key, tick.gen); !ok {
		return
	}
	state.disarm(key)
	dev, ok := state.registry.ByUniqueId(tick.uid)
	if !ok {
		return
	}
	climate, ok := dev.(*device.Climate)
	if !ok || climate.IsOn() {
		return
	}
	state.execute(ctx, climate.SetPower(true), func(err error) {
		if err == nil {
			state.logger.Info("climate powered on after mode change", zap.String("device", tick.uid))
		}
	})
}

// Timers

func (state *DevicesActor) arm(key string, start func(gen uint64) scheduler.CancelFunc) {
	state.disarm(key)
	state.slotGen++
	gen := state.slotGen
	state.slots[key] = &timerSlot{
		gen:    gen,
		cancel: start(gen),
	}
}

func (state *DevicesActor) armed(key string, gen uint64) (*timerSlot, bool) {
	slot, ok := state.slots[key]
	if !ok || slot.gen != gen {
		return nil, false
	}
	return slot, true
}

func (state *DevicesActor) disarm(key string) {
	if slot, ok := state.slots[key]; ok {
		slot.cancel()
		delete(state.slots, key)
	}
}

func (state *DevicesActor) disarmAll() {
	for key := range state.slots {
		state.disarm(key)
	}
}

func fastPollKey(uid string) string { return "fast_poll:" + uid }
func settleKey(uid string) string   { return "settle:" + uid }
func warmupKey(uid string) string   { return "warmup:" + uid }

// Helpers

func (state *DevicesActor) cover(uid string) (*device.Cover, bool) {
	dev, ok := state.registry.ByUniqueId(uid)
	if !ok {
		return nil, false
	}
	cover, ok := dev.(*device.Cover)
	return cover, ok
}

func (state *DevicesActor) notify(d device.Device) {
	state.eventStream.Publish(events.DeviceStateUpdateEvent(d))
}

func (state *DevicesActor) publishAll() {
	for _, ev := range events.DevicesStateUpdateEvents(state.registry.All()) {
		state.eventStream.Publish(ev)
	}
}

// requestTimeout bounds a gateway request including the time it may wait
// queued behind others in the gateway actor.
func (state *DevicesActor) requestTimeout() time.Duration {
	timeout := state.config.Gateway.RequestTimeout()
	if timeout <= 0 {
		timeout = adactor.DEFAULT_GATEWAY_TIMEOUT
	}
	return 2 * timeout
}

func (state *DevicesActor) health() domain.ActorHealthResponse {
	count := 0
	if state.registry != nil {
		count = state.registry.Len()
	}
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_DEVICES,
		Healthy: true,
		State:   fmt.Sprintf("%s (%d devices)", state.states.StateName(), count),
	}
}

func (state *DevicesActor) stop() {
	state.disarmAll()
	if state.pollCancel != nil {
		state.pollCancel()
		state.pollCancel = nil
	}
}

func reply(ctx actor.Context, replyTo *actor.PID, resp domain.ActorResponse) {
	if replyTo != nil {
		ctx.Send(replyTo, resp)
	}
}
