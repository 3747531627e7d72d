package actorutil

import (
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/dnake2mqtt/internal/core/domain"
)

type forRequest struct {
	req domain.ActorRequest
}

type ExtendedRequest interface {
	Respond(ctx actor.Context, resp domain.ActorResponse)
	ReplyTo(ctx actor.Context) *actor.PID
}

func ForRequest(r domain.ActorRequest) ExtendedRequest {
	return forRequest{req: r}
}

func (r forRequest) Respond(ctx actor.Context, resp domain.ActorResponse) {
	if r.req.ReplyTo() != nil {
		ctx.Send((*actor.PID)(r.req.ReplyTo()), resp)
	} else {
		ctx.Respond(resp)
	}
}

func (r forRequest) ReplyTo(ctx actor.Context) *actor.PID {
	if r.req.ReplyTo() != nil {
		return (*actor.PID)(r.req.ReplyTo())
	}
	return ctx.Sender()
}

// RequestReenter sends req to pid and runs fn inside the calling actor once
// the response arrives. Timeouts, unexpected replies and response errors are
// all reported through err.
func RequestReenter[T domain.ActorResponse](ctx actor.Context, pid *actor.PID, req any, timeout time.Duration, fn func(T, error)) {
	future := ctx.RequestFuture(pid, req, timeout)
	ctx.ReenterAfter(future, func(msg any, err error) {
		var zero T
		if err != nil {
			fn(zero, err)
			return
		}
		resp, ok := msg.(T)
		if !ok {
			fn(zero, fmt.Errorf("unexpected response %T", msg))
			return
		}
		if resp.HasResponseError() {
			fn(resp, resp.GetResponseError())
			return
		}
		fn(resp, nil)
	})
}
