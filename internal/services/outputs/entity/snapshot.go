package entity

import (
	"fmt"
	"slices"
	"strings"

	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
)

// World is the saved state of a registry.
type World struct {
	Entities []State
}

// State is the saved state of one entity.
type State struct {
	Handle  Handle
	Class   string
	Name    string
	Fields  map[string]string
	Outputs []OutputState
}

// OutputState is the saved action chain of one output, head first.
type OutputState struct {
	Name    string
	Actions []action.Action
}

// Snapshot captures every entity and action chain. Each output is locked
// while it is copied.
func (r *Registry) Snapshot() World {
	r.mu.RLock()
	entities := make([]*entity, 0, len(r.entities))
	for _, ent := range r.entities {
		entities = append(entities, ent)
	}
	r.mu.RUnlock()
	slices.SortFunc(entities, func(a, b *entity) int { return int(a.handle - b.handle) })

	world := World{Entities: make([]State, 0, len(entities))}
	for _, ent := range entities {
		info := ent.info()
		state := State{
			Handle: ent.handle,
			Class:  ent.class,
			Name:   ent.name,
			Fields: info.Fields,
		}
		for _, out := range sortedOutputs(ent) {
			out.mu.Lock()
			state.Outputs = append(state.Outputs, OutputState{Name: out.name, Actions: out.list.Snapshot()})
			out.mu.Unlock()
		}
		world.Entities = append(world.Entities, state)
	}
	return world
}

// Restore replaces every entity with the saved world, keeping handles and
// ID stamps. On failure the registry is left as it was.
func (r *Registry) Restore(world World) error {
	restored := make(map[Handle]*entity, len(world.Entities))
	var last Handle
	fail := func(err error) error {
		for _, ent := range restored {
			release(ent)
		}
		return err
	}
	for _, state := range world.Entities {
		if state.Handle <= 0 {
			return fail(fmt.Errorf("restore entity %q: invalid handle %d", state.Name, int(state.Handle)))
		}
		if _, dup := restored[state.Handle]; dup {
			return fail(fmt.Errorf("restore entity %q: duplicate handle %d", state.Name, int(state.Handle)))
		}
		ent := &entity{
			handle:  state.Handle,
			class:   state.Class,
			name:    state.Name,
			fields:  make(map[string]string, len(state.Fields)),
			outputs: make(map[string]*output, len(state.Outputs)),
		}
		for key, value := range state.Fields {
			ent.fields[key] = value
		}
		names := make([]string, 0, len(state.Outputs))
		for _, saved := range state.Outputs {
			names = append(names, saved.Name)
		}
		if err := checkOutputNames(names); err != nil {
			return fail(fmt.Errorf("restore entity %d: %w", int(state.Handle), err))
		}
		restored[state.Handle] = ent
		for _, saved := range state.Outputs {
			list := r.newList()
			ent.outputs[outputKey(saved.Name)] = &output{name: saved.Name, list: list}
			if err := list.Restore(saved.Actions); err != nil {
				return fail(fmt.Errorf("restore entity %d output %s: %w", int(state.Handle), saved.Name, err))
			}
		}
		if state.Handle > last {
			last = state.Handle
		}
	}

	r.mu.Lock()
	previous := r.entities
	r.entities = restored
	r.last = last
	r.mu.Unlock()

	for _, ent := range previous {
		release(ent)
	}
	return nil
}

func sortedOutputs(ent *entity) []*output {
	outs := make([]*output, 0, len(ent.outputs))
	for _, out := range ent.outputs {
		outs = append(outs, out)
	}
	slices.SortFunc(outs, func(a, b *output) int { return strings.Compare(a.name, b.name) })
	return outs
}
