package routing

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/policy"
)

// DefaultAction is the action used by endpoints that leave Action empty.
const DefaultAction = "call"

// Action executes one unit of work. The result may be nil, a parcel.Message,
// a map, a slice of messages or parcels, or any JSON-encodable value.
type Action func(ctx context.Context, input any) (any, error)

// Handler exposes named actions.
type Handler interface {
	Action(name string) (Action, bool)
}

// Actions is a Handler backed by a map of named actions.
type Actions map[string]Action

// Action returns the named action.
func (a Actions) Action(name string) (Action, bool) {
	fn, ok := a[name]
	return fn, ok && fn != nil
}

// HandlerFunc is a Handler with a single action answering to any name.
type HandlerFunc func(ctx context.Context, input any) (any, error)

// Action returns f regardless of name.
func (f HandlerFunc) Action(string) (Action, bool) {
	return Action(f), f != nil
}

// Typed adapts a function over a concrete input type into an Action. Pair it
// with a parser producing T.
func Typed[T any](fn func(ctx context.Context, input T) (any, error)) Action {
	return func(ctx context.Context, input any) (any, error) {
		typed, ok := input.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("parcelflow: action expects %T, got %T", zero, input)
		}
		return fn(ctx, typed)
	}
}

// Endpoint binds a matched route to the work it executes.
type Endpoint struct {
	// Name identifies the endpoint in logs and metrics.
	Name string
	// Handler provides the action to run.
	Handler Handler
	// Action selects the handler action. Defaults to DefaultAction.
	Action string
	// Parser turns the parcel into the action input. Defaults to MessageParser.
	Parser Parser
	// Policies replace the registry default chain when non-empty.
	Policies []policy.Policy
}

// ActionName returns the effective action selector.
func (e Endpoint) ActionName() string {
	if e.Action == "" {
		return DefaultAction
	}
	return e.Action
}

// Label returns Name, falling back to the action selector.
func (e Endpoint) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ActionName()
}

// Validate checks that the endpoint can be invoked.
func (e Endpoint) Validate() error {
	if e.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if _, ok := e.Handler.Action(e.ActionName()); !ok {
		return fmt.Errorf("%w: %q", errspkg.ErrActionRequired, e.ActionName())
	}
	return nil
}

// Invoke parses the parcel and runs the selected action.
func (e Endpoint) Invoke(ctx context.Context, p parcel.Parcel) (any, error) {
	if e.Handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	action, ok := e.Handler.Action(e.ActionName())
	if !ok {
		return nil, fmt.Errorf("%w: %q", errspkg.ErrActionRequired, e.ActionName())
	}

	parser := e.Parser
	if parser == nil {
		parser = MessageParser()
	}
	input, err := parser.Parse(p)
	if err != nil {
		return nil, fmt.Errorf("parse %s input: %w", e.Label(), err)
	}
	return action(ctx, input)
}
