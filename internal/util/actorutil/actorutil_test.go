package actorutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
)

type taskOutcome struct {
	value int
	err   string
}

// runTask spawns an actor that pipes one background task to itself and
// forwards the outcome.
func runTask(t *testing.T, timeout time.Duration, fn func(context.Context) (*int, error)) taskOutcome {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)

	out := make(chan taskOutcome, 1)
	props := actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			MapBackgroundTask(NewBackgroundTask(ctx, fn), func(v *int) *taskOutcome {
				return &taskOutcome{value: *v}
			}).Recover(func(err error) taskOutcome {
				return taskOutcome{err: err.Error()}
			}).WithTimeout(timeout).PipeTo(ctx.Self())
		case taskOutcome:
			out <- msg
		}
	})
	as.Root.Spawn(props)

	select {
	case o := <-out:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("task result not delivered")
		return taskOutcome{}
	}
}

func TestBackgroundTask(t *testing.T) {

	assert := assert.New(t)

	o := runTask(t, time.Second, func(context.Context) (*int, error) {
		v := 42
		return &v, nil
	})
	assert.Equal(taskOutcome{value: 42}, o)

	o = runTask(t, time.Second, func(context.Context) (*int, error) {
		return nil, errors.New("gateway down")
	})
	assert.Equal("gateway down", o.err)

	o = runTask(t, 50*time.Millisecond, func(c context.Context) (*int, error) {
		<-c.Done()
		return nil, c.Err()
	})
	assert.NotEmpty(o.err)
}

type openStash struct{}

func TestStashReplaysInOrderToOriginalSender(t *testing.T) {

	assert := assert.New(t)

	as := actor.NewActorSystem()
	defer as.Shutdown()

	stash := &Stash{}
	open := false
	props := actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case openStash:
			open = true
			stash.UnstashAll(ctx)
		case string:
			if !open {
				stash.Stash(ctx, msg)
				return
			}
			ctx.Respond(msg + "!")
		}
	})
	pid := as.Root.Spawn(props)

	first := as.Root.RequestFuture(pid, "a", 2*time.Second)
	second := as.Root.RequestFuture(pid, "b", 2*time.Second)
	as.Root.Send(pid, openStash{})

	res, err := first.Result()
	assert.NoError(err)
	assert.Equal("a!", res)
	res, err = second.Result()
	assert.NoError(err)
	assert.Equal("b!", res)
}
