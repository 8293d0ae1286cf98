// Package filter compiles and evaluates per-connection event stream filters.
package filter

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/tcriess/lightspeed-rooms/types"
)

/*
Env is the environment the stream filter expressions are evaluated against.
Once this struct is fixed, it should not be changed, otherwise filters stored by
clients may not compile any more (f.e. if properties are renamed etc.)
*/
type Env struct {
	RoomId   string
	EventId  string
	Type     string
	Sender   string
	StateKey string
	OriginTs int64
	IsState  bool
}

// EnvOf maps an event into the filter environment.
func EnvOf(ev *types.Event) Env {
	env := Env{
		RoomId:   ev.RoomId,
		EventId:  ev.Id,
		Type:     ev.Type,
		Sender:   ev.Sender,
		OriginTs: ev.OriginTs,
		IsState:  ev.IsState(),
	}
	if ev.StateKey != nil {
		env.StateKey = *ev.StateKey
	}
	return env
}

// Compile compiles a filter expression. The expression must evaluate to a bool.
func Compile(expression string) (*vm.Program, error) {
	return expr.Compile(expression, expr.Env(Env{}), expr.AsBool())
}

// Match evaluates a compiled filter against an event. A nil program matches
// everything, an evaluation error drops the event.
func Match(program *vm.Program, ev *types.Event) bool {
	if program == nil {
		return true
	}
	res, err := expr.Run(program, EnvOf(ev))
	if err != nil {
		return false
	}
	match, ok := res.(bool)
	return ok && match
}
