package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/util/actorutil"
	"github.com/berfenger/dnake2mqtt/pkg/dnake"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const DEFAULT_GATEWAY_TIMEOUT = 30 * time.Second

// GatewayClient is the blocking gateway API served by the gateway actor.
type GatewayClient interface {
	QueryIotInfo(ctx context.Context) (*dnake.IotInfo, error)
	BindIotInfo(fromDevice, toDevice string)
	QueryDeviceList(ctx context.Context) ([]dnake.DeviceDescriptor, error)
	ReadAllDevState(ctx context.Context) ([]dnake.DeviceState, error)
	ReadDevState(ctx context.Context, id dnake.Identity) (*dnake.DeviceState, error)
	Execute(ctx context.Context, data dnake.Request) error
}

var _ GatewayClient = (*dnake.Client)(nil)

// GatewayActor runs one gateway request at a time. Requests received while
// busy are queued and run in arrival order.
type GatewayActor struct {
	states  *actorutil.ActorWithStates
	stash   *actorutil.Stash
	queue   []gatewayJob
	client  GatewayClient
	timeout time.Duration
	served  uint64
	failed  uint64
	logger  *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

// gatewayJob starts the background task of one request. The reply target
// is bound when the request is received.
type gatewayJob func(ctx actor.Context)

func NewGatewayActor(client GatewayClient, timeout time.Duration, logger *zap.Logger) *GatewayActor {
	if timeout <= 0 {
		timeout = DEFAULT_GATEWAY_TIMEOUT
	}
	act := &GatewayActor{
		client:  client,
		timeout: timeout,
		stash:   &actorutil.Stash{},
		logger:  actorutil.ActorLogger(domain.ACTOR_ID_GATEWAY, logger),
	}
	act.states = actorutil.NewActorWithStates(actorutil.State("starting", act.StartingReceive))
	return act
}

func (state *GatewayActor) Receive(context actor.Context) {
	state.states.Receive(context)
}

func (state *GatewayActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("gateway@starting started")
		state.queue = nil
		state.states.Become(actorutil.State("idle", state.DefaultReceive))
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("gateway@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *GatewayActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("gateway@default: ActorHealthRequest")
		ctx.Respond(state.health())
	default:
		job := state.job(ctx, msg)
		if job == nil {
			state.logger.Debug("gateway@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
			return
		}
		job(ctx)
		state.states.BecomeStacked(actorutil.State("busy", state.WaitingGateway))
	}
}

func (state *GatewayActor) WaitingGateway(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("gateway@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if resp, ok := msg.message.(domain.ActorResponse); ok && resp.HasResponseError() {
			state.failed++
			state.logger.Warn("gateway request failed", zap.Error(resp.GetResponseError()))
		} else {
			state.served++
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		if len(state.queue) > 0 {
			next := state.queue[0]
			state.queue = state.queue[1:]
			next(ctx)
		} else {
			state.states.UnbecomeStacked()
		}
	case domain.ActorHealthRequest:
		ctx.Respond(state.health())
	default:
		job := state.job(ctx, msg)
		if job == nil {
			state.logger.Debug("gateway@waiting default recv", zap.String("type", fmt.Sprintf("%T", msg)))
			return
		}
		state.logger.Debug("gateway@waiting queued", zap.String("type", fmt.Sprintf("%T", msg)), zap.Int("queued", len(state.queue)+1))
		state.queue = append(state.queue, job)
	}
}

// job maps a gateway request to the task serving it, nil for anything else.
func (state *GatewayActor) job(ctx actor.Context, message any) gatewayJob {
	switch msg := message.(type) {
	case domain.QueryIotInfoRequest:
		replyTo := actorutil.ForRequest(msg).ReplyTo(ctx)
		return func(ctx actor.Context) {
			runGatewayTask(state, ctx, replyTo, state.queryIotInfo,
				func(err error) domain.QueryIotInfoResponse {
					return domain.QueryIotInfoResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
				})
		}
	case domain.QueryDeviceListRequest:
		replyTo := actorutil.ForRequest(msg).ReplyTo(ctx)
		return func(ctx actor.Context) {
			runGatewayTask(state, ctx, replyTo, state.queryDeviceList,
				func(err error) domain.QueryDeviceListResponse {
					return domain.QueryDeviceListResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
				})
		}
	case domain.ReadAllDevStateRequest:
		replyTo := actorutil.ForRequest(msg).ReplyTo(ctx)
		return func(ctx actor.Context) {
			runGatewayTask(state, ctx, replyTo, state.readAllDevState,
				func(err error) domain.ReadAllDevStateResponse {
					return domain.ReadAllDevStateResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
				})
		}
	case domain.ReadDevStateRequest:
		state.logger.Debug("gateway: ReadDevStateRequest", zap.Stringer("device", msg.Identity))
		replyTo := actorutil.ForRequest(msg).ReplyTo(ctx)
		id := msg.Identity
		return func(ctx actor.Context) {
			runGatewayTask(state, ctx, replyTo,
				func(c context.Context) (*domain.ReadDevStateResponse, error) {
					return state.readDevState(c, id)
				},
				func(err error) domain.ReadDevStateResponse {
					return domain.ReadDevStateResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
				})
		}
	case domain.ExecuteRequest:
		state.logger.Debug("gateway: ExecuteRequest", zap.String("action", string(msg.Request.Action)))
		replyTo := actorutil.ForRequest(msg).ReplyTo(ctx)
		req := msg.Request
		return func(ctx actor.Context) {
			runGatewayTask(state, ctx, replyTo,
				func(c context.Context) (*domain.ExecuteResponse, error) {
					return &domain.ExecuteResponse{}, state.client.Execute(c, req)
				},
				func(err error) domain.ExecuteResponse {
					return domain.ExecuteResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
				})
		}
	}
	return nil
}

func (state *GatewayActor) health() domain.ActorHealthResponse {
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_GATEWAY,
		Healthy: true,
		State:   fmt.Sprintf("%s (served %d, failed %d)", state.states.StateName(), state.served, state.failed),
	}
}

// runGatewayTask runs fn off the actor. Its result, or the mapped error,
// comes back to the actor as a backgroundTaskResult for replyTo.
func runGatewayTask[T any](state *GatewayActor, ctx actor.Context, replyTo *actor.PID,
	fn func(context.Context) (*T, error), onError func(error) T) {
	actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, fn),
		mapTaskResult[T](replyTo)).Recover(func(err error) backgroundTaskResult {
		return backgroundTaskResult{
			message: onError(err),
			replyTo: replyTo,
		}
	}).WithTimeout(state.timeout).PipeTo(ctx.Self())
}

func (a *GatewayActor) queryIotInfo(ctx context.Context) (*domain.QueryIotInfoResponse, error) {
	info, err := a.client.QueryIotInfo(ctx)
	if err != nil {
		a.logger.Error("could not query iot info", zap.Error(err))
		return nil, err
	}
	a.client.BindIotInfo(info.IotDeviceName, info.GwIotName)
	a.logger.Info("gateway bound", zap.String("from", info.IotDeviceName), zap.String("to", info.GwIotName))
	return &domain.QueryIotInfoResponse{
		Info: info,
	}, nil
}

func (a *GatewayActor) queryDeviceList(ctx context.Context) (*domain.QueryDeviceListResponse, error) {
	devices, err := a.client.QueryDeviceList(ctx)
	if err != nil {
		a.logger.Error("could not query device list", zap.Error(err))
		return nil, err
	}
	return &domain.QueryDeviceListResponse{
		Devices: devices,
	}, nil
}

func (a *GatewayActor) readAllDevState(ctx context.Context) (*domain.ReadAllDevStateResponse, error) {
	states, err := a.client.ReadAllDevState(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.ReadAllDevStateResponse{
		States: states,
	}, nil
}

func (a *GatewayActor) readDevState(ctx context.Context, id dnake.Identity) (*domain.ReadDevStateResponse, error) {
	st, err := a.client.ReadDevState(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.New("empty device state")
	}
	return &domain.ReadDevStateResponse{
		State: st,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
