package cmdbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchRoutesToWiredHandler(t *testing.T) {
	called := false
	d := NewDispatcher(Handlers{
		Status: func() Response {
			called = true
			return Response{OK: true, Message: "ok"}
		},
	})
	resp := d.Dispatch(Request{Command: CmdStatus})
	assert.True(t, called)
	assert.True(t, resp.OK)
}

func TestDispatchPassesArgsToOneArgHandlers(t *testing.T) {
	var seen string
	d := NewDispatcher(Handlers{
		Mode: func(args string) Response {
			seen = args
			return Response{OK: true}
		},
	})
	d.Dispatch(Request{Command: CmdMode, Args: "full_auto"})
	assert.Equal(t, "full_auto", seen)
}

func TestDispatchUnwiredHandlerReturnsFailure(t *testing.T) {
	d := NewDispatcher(Handlers{})
	resp := d.Dispatch(Request{Command: CmdBuy, Args: "ABC 10"})
	assert.False(t, resp.OK)
}

func TestDispatchHelpListsEveryCommand(t *testing.T) {
	d := NewDispatcher(Handlers{})
	resp := d.Dispatch(Request{Command: CmdHelp})
	assert.True(t, resp.OK)
	list, ok := resp.Data.([]commandInfo)
	if assert.True(t, ok) {
		assert.Len(t, list, 20)
	}
}

func TestDispatchUnknownCommandReturnsFailure(t *testing.T) {
	d := NewDispatcher(Handlers{})
	resp := d.Dispatch(Request{Command: Command("bogus")})
	assert.False(t, resp.OK)
}
