package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash holds messages received while an actor is busy, keeping the
// original sender so they can be replayed later.
type Stash struct {
	stash []stashElem
}

type stashElem struct {
	msg    any
	sender *actor.PID
}

func (stash *Stash) Stash(ctx actor.Context, msg any) {
	stash.stash = append(stash.stash, stashElem{
		msg:    msg,
		sender: ctx.Sender(),
	})
}

func (stash *Stash) UnstashAll(ctx actor.Context) {
	elems := stash.stash
	stash.stash = nil
	for _, elem := range elems {
		stash.replay(ctx, elem)
	}
}

func (stash *Stash) replay(ctx actor.Context, elem stashElem) {
	if elem.sender != nil {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
	} else {
		ctx.Send(ctx.Self(), elem.msg)
	}
}
