// Package script exposes output action lists to Lua scripts.
package script

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"
	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
)

// World is the part of the entity registry scripts can reach.
type World interface {
	With(h entity.Handle, output string, fn func(*action.List) error) error
	FindByName(name string) (entity.Handle, bool)
	Fire(h entity.Handle, output string, req action.FireRequest, sink action.Sink) (int, error)
	Spawn(def entity.Def) (entity.Handle, error)
}

// Option configures a Host.
type Option func(*Host)

// WithLogger routes script print output and diagnostics to logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithEventSink receives the events produced by FireEntityOutput.
func WithEventSink(sink action.Sink) Option {
	return func(h *Host) { h.sink = sink }
}

// Host owns one Lua state. Lua states are not goroutine-safe, so every run
// holds the host lock.
type Host struct {
	mu     sync.Mutex
	state  *lua.State
	world  World
	logger *log.Logger
	sink   action.Sink
}

// NewHost creates a Lua state with the standard libraries and the output
// natives registered as globals.
func NewHost(world World, opts ...Option) *Host {
	h := &Host{
		world:  world,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.state = lua.NewState()
	lua.OpenLibraries(h.state)
	h.state.PushGlobalTable()
	lua.SetFunctions(h.state, h.natives(), 0)
	h.state.Pop(1)
	return h
}

// RunString executes a chunk. name labels the chunk in error messages.
func (h *Host) RunString(ctx context.Context, name, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := lua.LoadBuffer(h.state, source, name, "text"); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if err := h.state.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// RunFile executes a Lua source file.
func (h *Host) RunFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := lua.LoadFile(h.state, path, ""); err != nil {
		return fmt.Errorf("load lua: %w", err)
	}
	if err := h.state.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("run lua: %w", err)
	}
	return nil
}

func (h *Host) natives() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		{Name: "GetOutputActionCount", Function: h.getCount},
		{Name: "GetOutputActionTarget", Function: h.getField(action.FieldTarget)},
		{Name: "GetOutputActionTargetInput", Function: h.getField(action.FieldTargetInput)},
		{Name: "GetOutputActionParameter", Function: h.getField(action.FieldParameter)},
		{Name: "SetOutputActionTarget", Function: h.setField(action.FieldTarget)},
		{Name: "SetOutputActionTargetInput", Function: h.setField(action.FieldTargetInput)},
		{Name: "SetOutputActionParameter", Function: h.setField(action.FieldParameter)},
		{Name: "GetOutputActionDelay", Function: h.getDelay},
		{Name: "SetOutputActionDelay", Function: h.setDelay},
		{Name: "GetOutputActionTimesToFire", Function: h.getTimesToFire},
		{Name: "SetOutputActionTimesToFire", Function: h.setTimesToFire},
		{Name: "InsertOutputAction", Function: h.insert},
		{Name: "RemoveOutputAction", Function: h.remove},
		{Name: "FindEntityByName", Function: h.findByName},
		{Name: "FireEntityOutput", Function: h.fire},
		{Name: "SpawnEntity", Function: h.spawn},
		{Name: "print", Function: h.print},
	}
}

// withList resolves the (entity, output) arguments at stack slots 1 and 2.
// It reports false when the operation should yield its not-found sentinel
// and raises a Lua error for invalid entities and exhausted pools.
func (h *Host) withList(state *lua.State, fn func(*action.List) error) bool {
	ent := entity.Handle(lua.CheckInteger(state, 1))
	output := lua.CheckString(state, 2)
	err := h.world.With(ent, output, fn)
	return h.check(state, ent, err)
}

func (h *Host) check(state *lua.State, ent entity.Handle, err error) bool {
	if err == nil {
		return true
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeNotFound, apperrors.CodeOutputNotFound:
		return false
	case apperrors.CodeEntityNotFound:
		lua.Errorf(state, "Invalid Entity index %d", int(ent))
	default:
		lua.Errorf(state, "%s", err.Error())
	}
	return false
}

func (h *Host) getCount(state *lua.State) int {
	count := 0
	h.withList(state, func(l *action.List) error {
		count = l.Count()
		return nil
	})
	state.PushInteger(count)
	return 1
}

func (h *Host) getField(field action.Field) lua.Function {
	return func(state *lua.State) int {
		index := lua.CheckInteger(state, 3)
		var value string
		ok := h.withList(state, func(l *action.List) error {
			var err error
			value, err = l.Field(index, field)
			return err
		})
		if !ok {
			state.PushNil()
			return 1
		}
		state.PushString(value)
		return 1
	}
}

func (h *Host) setField(field action.Field) lua.Function {
	return func(state *lua.State) int {
		index := lua.CheckInteger(state, 3)
		value := lua.CheckString(state, 4)
		ok := h.withList(state, func(l *action.List) error {
			return l.SetField(index, field, value)
		})
		state.PushBoolean(ok)
		return 1
	}
}

func (h *Host) getDelay(state *lua.State) int {
	index := lua.CheckInteger(state, 3)
	delay := float32(-1)
	h.withList(state, func(l *action.List) error {
		d, err := l.Delay(index)
		if err == nil {
			delay = d
		}
		return err
	})
	state.PushNumber(float64(delay))
	return 1
}

func (h *Host) setDelay(state *lua.State) int {
	index := lua.CheckInteger(state, 3)
	delay := lua.CheckNumber(state, 4)
	ok := h.withList(state, func(l *action.List) error {
		return l.SetDelay(index, float32(delay))
	})
	state.PushBoolean(ok)
	return 1
}

func (h *Host) getTimesToFire(state *lua.State) int {
	index := lua.CheckInteger(state, 3)
	times := 0
	h.withList(state, func(l *action.List) error {
		n, err := l.TimesToFire(index)
		if err == nil {
			times = n
		}
		return err
	})
	state.PushInteger(times)
	return 1
}

func (h *Host) setTimesToFire(state *lua.State) int {
	index := lua.CheckInteger(state, 3)
	times := lua.CheckInteger(state, 4)
	ok := h.withList(state, func(l *action.List) error {
		return l.SetTimesToFire(index, times)
	})
	state.PushBoolean(ok)
	return 1
}

// insert implements InsertOutputAction(ent, output, target, input,
// parameter, delay, times [, after [, index]]).
func (h *Host) insert(state *lua.State) int {
	a := action.Action{
		Target:      lua.CheckString(state, 3),
		TargetInput: lua.CheckString(state, 4),
		Parameter:   lua.OptString(state, 5, ""),
		Delay:       float32(lua.OptNumber(state, 6, 0)),
		TimesToFire: lua.OptInteger(state, 7, action.FireAlways),
	}
	placement := action.Prepend
	if state.ToBoolean(8) {
		placement = action.After
	}
	index := lua.OptInteger(state, 9, 0)

	var stamp int
	ok := h.withList(state, func(l *action.List) error {
		var err error
		stamp, err = l.InsertAt(index, a, placement)
		return err
	})
	if !ok {
		state.PushBoolean(false)
		return 1
	}
	state.PushInteger(stamp)
	return 1
}

func (h *Host) remove(state *lua.State) int {
	index := lua.CheckInteger(state, 3)
	ok := h.withList(state, func(l *action.List) error {
		return l.RemoveAt(index)
	})
	state.PushBoolean(ok)
	return 1
}

func (h *Host) findByName(state *lua.State) int {
	name := lua.CheckString(state, 1)
	ent, ok := h.world.FindByName(name)
	if !ok {
		ent = entity.Invalid
	}
	state.PushInteger(int(ent))
	return 1
}

// fire implements FireEntityOutput(ent, output [, delay [, value]]).
func (h *Host) fire(state *lua.State) int {
	ent := entity.Handle(lua.CheckInteger(state, 1))
	output := lua.CheckString(state, 2)
	req := action.FireRequest{
		Delay:  float32(lua.OptNumber(state, 3, 0)),
		Value:  lua.OptString(state, 4, ""),
		Caller: int(ent),
	}
	fired, err := h.world.Fire(ent, output, req, h.emit)
	if !h.check(state, ent, err) {
		fired = 0
	}
	state.PushInteger(fired)
	return 1
}

func (h *Host) emit(e action.Event) {
	if h.sink != nil {
		h.sink(e)
		return
	}
	h.logger.Printf("fire %s.%s(%q) in %.2fs", e.Target, e.TargetInput, e.Parameter, e.Delay)
}

func (h *Host) print(state *lua.State) int {
	top := state.Top()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		s, _ := lua.ToStringMeta(state, i)
		parts = append(parts, s)
		state.Pop(1)
	}
	h.logger.Print(strings.Join(parts, "\t"))
	return 0
}
