// Package entity owns the world's entities and resolves (entity, output)
// pairs to their action lists.
package entity

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	"github.com/louisbranch/outputinfo/internal/services/outputs/intern"
	"github.com/louisbranch/outputinfo/internal/services/outputs/pool"
)

// Handle identifies a spawned entity. Valid handles are positive.
type Handle int

// Invalid is returned by lookups that find no entity.
const Invalid Handle = -1

// Config sizes the shared action pool.
type Config struct {
	BlocksPerBlob int
	Grow          pool.GrowMode
	// Report receives pool diagnostics. Defaults to log.Printf.
	Report pool.ReportFunc
}

// Def describes an entity to spawn. Outputs maps an output name to the
// keyvalue form of its actions; an output with no actions is still declared.
// Fields holds the remaining keyvalues.
type Def struct {
	Class   string
	Name    string
	Outputs map[string][]string
	Fields  map[string]string
}

// Info is a read-only view of an entity.
type Info struct {
	Handle  Handle
	Class   string
	Name    string
	Outputs []string
	Fields  map[string]string
}

// FieldKind tells outputs apart from plain keyvalues.
type FieldKind int

const (
	KindKeyValue FieldKind = iota + 1
	KindOutput
)

type output struct {
	mu      sync.Mutex
	name    string
	list    *action.List
	removed bool
}

type entity struct {
	handle  Handle
	class   string
	name    string
	fields  map[string]string
	outputs map[string]*output
}

// Registry holds every entity of a world. Each output list has its own lock
// that is held for the duration of every list operation.
type Registry struct {
	mu       sync.RWMutex
	entities map[Handle]*entity
	last     Handle

	actions *pool.Locked[action.Node]
	strings *intern.Pool
	stamps  *action.Stamper
}

// NewRegistry creates an empty registry with its action pool and string pool.
func NewRegistry(cfg Config) (*Registry, error) {
	p, err := pool.New[action.Node](pool.Config{
		BlocksPerBlob: cfg.BlocksPerBlob,
		Grow:          cfg.Grow,
		Owner:         "output actions",
		Report:        cfg.Report,
	})
	if err != nil {
		return nil, fmt.Errorf("create action pool: %w", err)
	}
	return &Registry{
		entities: make(map[Handle]*entity),
		actions:  pool.NewLocked(p),
		strings:  intern.NewPool(),
		stamps:   &action.Stamper{},
	}, nil
}

// Spawn creates an entity from def and returns its handle. Nothing is kept
// when any action fails to parse or allocate.
func (r *Registry) Spawn(def Def) (Handle, error) {
	ent, err := r.build(def)
	if err != nil {
		return Invalid, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	ent.handle = r.last
	r.entities[ent.handle] = ent
	return ent.handle, nil
}

// Remove destroys an entity and frees its actions.
func (r *Registry) Remove(h Handle) error {
	r.mu.Lock()
	ent, ok := r.entities[h]
	if ok {
		delete(r.entities, h)
	}
	r.mu.Unlock()
	if !ok {
		return entityNotFound(h)
	}
	release(ent)
	return nil
}

// Lookup returns a view of the entity.
func (r *Registry) Lookup(h Handle) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[h]
	if !ok {
		return Info{}, entityNotFound(h)
	}
	return ent.info(), nil
}

// FindByName returns the first entity, by handle order, with the given
// name. Names compare case-insensitively.
func (r *Registry) FindByName(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	found := Invalid
	for h, ent := range r.entities {
		if strings.EqualFold(ent.name, name) && (found == Invalid || h < found) {
			found = h
		}
	}
	return found, found != Invalid
}

// Entities lists every entity ordered by handle.
func (r *Registry) Entities() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.entities))
	for _, ent := range r.entities {
		infos = append(infos, ent.info())
	}
	slices.SortFunc(infos, func(a, b Info) int { return int(a.Handle - b.Handle) })
	return infos
}

// Kind reports whether field is an output or a plain keyvalue of the entity.
func (r *Registry) Kind(h Handle, field string) (FieldKind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[h]
	if !ok {
		return 0, entityNotFound(h)
	}
	if _, ok := ent.outputs[outputKey(field)]; ok {
		return KindOutput, nil
	}
	if _, ok := ent.fields[field]; ok {
		return KindKeyValue, nil
	}
	return 0, outputNotFound(h, field, "no such field")
}

// With resolves the output list of an entity and runs fn while holding the
// output's lock. The list must not be retained after fn returns.
func (r *Registry) With(h Handle, name string, fn func(*action.List) error) error {
	out, err := r.resolve(h, name)
	if err != nil {
		return err
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.removed {
		return entityNotFound(h)
	}
	return fn(out.list)
}

// Fire fires an output and returns how many actions ran. The events reach
// sink after the output's lock is released.
func (r *Registry) Fire(h Handle, name string, req action.FireRequest, sink action.Sink) (int, error) {
	var events []action.Event
	err := r.With(h, name, func(l *action.List) error {
		l.Fire(req, func(e action.Event) { events = append(events, e) })
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sink != nil {
		for _, e := range events {
			sink(e)
		}
	}
	return len(events), nil
}

// Stats reports usage of the shared action pool.
func (r *Registry) Stats() pool.Stats {
	return r.actions.Stats()
}

// InternedStrings returns the number of distinct strings held by the
// registry's string pool.
func (r *Registry) InternedStrings() int {
	return r.strings.Len()
}

func (r *Registry) resolve(h Handle, name string) (*output, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entities[h]
	if !ok {
		return nil, entityNotFound(h)
	}
	out, ok := ent.outputs[outputKey(name)]
	if !ok {
		reason := "no such field"
		if _, isField := ent.fields[name]; isField {
			reason = "field is not an output"
		}
		return nil, outputNotFound(h, name, reason)
	}
	return out, nil
}

func (r *Registry) newList() *action.List {
	return action.NewList(r.actions, r.strings, r.stamps)
}

func (r *Registry) build(def Def) (*entity, error) {
	ent := &entity{
		class:   def.Class,
		name:    def.Name,
		fields:  make(map[string]string, len(def.Fields)),
		outputs: make(map[string]*output, len(def.Outputs)),
	}
	for key, value := range def.Fields {
		ent.fields[key] = value
	}
	if err := checkOutputNames(slices.Sorted(maps.Keys(def.Outputs))); err != nil {
		return nil, err
	}
	for name, raws := range def.Outputs {
		list := r.newList()
		ent.outputs[outputKey(name)] = &output{name: name, list: list}
		for _, raw := range raws {
			a, err := action.ParseEventAction(raw)
			if err == nil {
				_, err = list.Append(a)
			}
			if err != nil {
				release(ent)
				return nil, fmt.Errorf("output %s: %w", name, err)
			}
		}
	}
	return ent, nil
}

func release(ent *entity) {
	for _, out := range ent.outputs {
		out.mu.Lock()
		out.list.Clear()
		out.removed = true
		out.mu.Unlock()
	}
}

func (e *entity) info() Info {
	names := make([]string, 0, len(e.outputs))
	for _, out := range e.outputs {
		names = append(names, out.name)
	}
	slices.Sort(names)
	fields := make(map[string]string, len(e.fields))
	for key, value := range e.fields {
		fields[key] = value
	}
	return Info{
		Handle:  e.handle,
		Class:   e.class,
		Name:    e.name,
		Outputs: names,
		Fields:  fields,
	}
}

func outputKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// checkOutputNames rejects names that resolve to the same output.
func checkOutputNames(names []string) error {
	seen := make(map[string]string, len(names))
	for _, name := range names {
		key := outputKey(name)
		if prev, ok := seen[key]; ok {
			return apperrors.WithMetadata(apperrors.CodeInvalidArgument,
				fmt.Sprintf("outputs %q and %q name the same output", prev, name),
				map[string]string{"Output": name, "Reason": "output names compare case-insensitively"})
		}
		seen[key] = name
	}
	return nil
}

func entityNotFound(h Handle) error {
	return apperrors.WithMetadata(apperrors.CodeEntityNotFound,
		fmt.Sprintf("invalid entity index %d", int(h)),
		map[string]string{"Entity": strconv.Itoa(int(h))})
}

func outputNotFound(h Handle, name, reason string) error {
	return apperrors.WithMetadata(apperrors.CodeOutputNotFound,
		fmt.Sprintf("entity %d has no output %q: %s", int(h), name, reason),
		map[string]string{"Entity": strconv.Itoa(int(h)), "Output": name, "Reason": reason})
}
