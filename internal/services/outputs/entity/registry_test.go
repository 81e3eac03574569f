package entity

import (
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	"github.com/louisbranch/outputinfo/internal/services/outputs/pool"
)

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	if cfg.BlocksPerBlob == 0 {
		cfg.BlocksPerBlob = 8
		cfg.Grow = pool.GrowFast
	}
	if cfg.Report == nil {
		cfg.Report = func(string, ...any) {}
	}
	r, err := NewRegistry(cfg)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return r
}

func spawnButton(t *testing.T, r *Registry) Handle {
	t.Helper()
	h, err := r.Spawn(Def{
		Class: "func_button",
		Name:  "button1",
		Outputs: map[string][]string{
			"OnPressed": {"door1,Open,,0,-1", "lamp,TurnOn,,1.5,1"},
			"OnDamaged": nil,
		},
		Fields: map[string]string{"speed": "5"},
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	return h
}

func TestNewRegistryRejectsBadConfig(t *testing.T) {
	_, err := NewRegistry(Config{BlocksPerBlob: 0})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestSpawnParsesOutputs(t *testing.T) {
	r := newTestRegistry(t, Config{})
	h := spawnButton(t, r)

	err := r.With(h, "onpressed", func(l *action.List) error {
		if got := l.Count(); got != 2 {
			t.Fatalf("expected 2 actions, got %d", got)
		}
		a, err := l.Get(1)
		if err != nil {
			return err
		}
		if a.Target != "lamp" || a.TargetInput != "TurnOn" || a.Delay != 1.5 || a.TimesToFire != 1 {
			t.Fatalf("unexpected action %+v", a)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with: %v", err)
	}
	if got := r.Stats().Count; got != 2 {
		t.Fatalf("expected 2 pooled actions, got %d", got)
	}
}

func TestSpawnMalformedKeepsNothing(t *testing.T) {
	r := newTestRegistry(t, Config{})
	_, err := r.Spawn(Def{
		Name:    "broken",
		Outputs: map[string][]string{"OnTrigger": {"a,b", "nope"}},
	})
	if apperrors.CodeOf(err) != apperrors.CodeEventActionMalformed {
		t.Fatalf("expected malformed action, got %v", err)
	}
	if got := len(r.Entities()); got != 0 {
		t.Fatalf("expected no entities, got %d", got)
	}
	if got := r.Stats().Count; got != 0 {
		t.Fatalf("expected no pooled actions, got %d", got)
	}
}

func TestSpawnRejectsOutputsDifferingByCase(t *testing.T) {
	r := newTestRegistry(t, Config{})
	_, err := r.Spawn(Def{
		Name: "twin",
		Outputs: map[string][]string{
			"OnTrigger": {"door1,Open,,0,-1"},
			"ontrigger": {"door2,Close,,0,-1", "lamp,TurnOff,,0,1"},
		},
	})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if got := len(r.Entities()); got != 0 {
		t.Fatalf("expected no entities, got %d", got)
	}
	if got := r.Stats().Count; got != 0 {
		t.Fatalf("expected no pooled actions, got %d", got)
	}
}

func TestResolveErrors(t *testing.T) {
	r := newTestRegistry(t, Config{})
	h := spawnButton(t, r)
	noop := func(*action.List) error { return nil }

	if err := r.With(h+100, "OnPressed", noop); apperrors.CodeOf(err) != apperrors.CodeEntityNotFound {
		t.Fatalf("expected entity not found, got %v", err)
	}
	err := r.With(h, "speed", noop)
	if apperrors.CodeOf(err) != apperrors.CodeOutputNotFound {
		t.Fatalf("expected output not found, got %v", err)
	}
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) || domainErr.Metadata["Reason"] != "field is not an output" {
		t.Fatalf("expected non-output reason, got %v", err)
	}
	if err := r.With(h, "OnMissing", noop); apperrors.CodeOf(err) != apperrors.CodeOutputNotFound {
		t.Fatalf("expected output not found, got %v", err)
	}
}

func TestKind(t *testing.T) {
	r := newTestRegistry(t, Config{})
	h := spawnButton(t, r)
	if kind, err := r.Kind(h, "OnDamaged"); err != nil || kind != KindOutput {
		t.Fatalf("expected output kind, got %v (%v)", kind, err)
	}
	if kind, err := r.Kind(h, "speed"); err != nil || kind != KindKeyValue {
		t.Fatalf("expected keyvalue kind, got %v (%v)", kind, err)
	}
	if _, err := r.Kind(h, "unknown"); apperrors.CodeOf(err) != apperrors.CodeOutputNotFound {
		t.Fatalf("expected output not found, got %v", err)
	}
}

func TestFindByNameAndEntities(t *testing.T) {
	r := newTestRegistry(t, Config{})
	first := spawnButton(t, r)
	second := spawnButton(t, r)

	got, ok := r.FindByName("BUTTON1")
	if !ok || got != first {
		t.Fatalf("expected %d, got %d (%v)", first, got, ok)
	}
	if _, ok := r.FindByName("missing"); ok {
		t.Fatal("expected missing name to fail")
	}
	infos := r.Entities()
	if len(infos) != 2 || infos[0].Handle != first || infos[1].Handle != second {
		t.Fatalf("unexpected entities %+v", infos)
	}
	if want := []string{"OnDamaged", "OnPressed"}; len(infos[0].Outputs) != 2 || infos[0].Outputs[0] != want[0] || infos[0].Outputs[1] != want[1] {
		t.Fatalf("expected outputs %v, got %v", want, infos[0].Outputs)
	}
}

func TestRemoveFreesActions(t *testing.T) {
	r := newTestRegistry(t, Config{})
	h := spawnButton(t, r)
	if err := r.Remove(h); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := r.Stats().Count; got != 0 {
		t.Fatalf("expected no pooled actions, got %d", got)
	}
	if _, err := r.Lookup(h); apperrors.CodeOf(err) != apperrors.CodeEntityNotFound {
		t.Fatalf("expected entity not found, got %v", err)
	}
	if err := r.Remove(h); apperrors.CodeOf(err) != apperrors.CodeEntityNotFound {
		t.Fatalf("expected entity not found, got %v", err)
	}
}

func TestFire(t *testing.T) {
	r := newTestRegistry(t, Config{})
	h := spawnButton(t, r)

	var targets []string
	fired, err := r.Fire(h, "OnPressed", action.FireRequest{Caller: int(h)}, func(e action.Event) {
		targets = append(targets, e.Target)
	})
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if fired != 2 || len(targets) != 2 || targets[0] != "door1" || targets[1] != "lamp" {
		t.Fatalf("unexpected firing %d %v", fired, targets)
	}
	fired, err = r.Fire(h, "OnPressed", action.FireRequest{}, nil)
	if err != nil || fired != 1 {
		t.Fatalf("expected the one-shot action to be spent, got %d (%v)", fired, err)
	}
}

func TestFireReleasesOutputBeforeSink(t *testing.T) {
	r := newTestRegistry(t, Config{})
	h := spawnButton(t, r)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		var once sync.Once
		_, err := r.Fire(h, "OnPressed", action.FireRequest{}, func(action.Event) {
			once.Do(func() { close(entered) })
			<-unblock
		})
		done <- err
	}()
	<-entered

	counted := make(chan int, 1)
	go func() {
		_ = r.With(h, "OnPressed", func(l *action.List) error {
			counted <- l.Count()
			return nil
		})
	}()
	select {
	case got := <-counted:
		if got != 1 {
			t.Fatalf("expected the one-shot action to be spent, got %d", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("output stayed locked while the sink was blocked")
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("fire: %v", err)
	}
}

func TestConcurrentInsertsOnOneOutput(t *testing.T) {
	r := newTestRegistry(t, Config{BlocksPerBlob: 4, Grow: pool.GrowSlow})
	h := spawnButton(t, r)

	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				err := r.With(h, "OnDamaged", func(l *action.List) error {
					_, err := l.InsertAt(0, action.Action{Target: "relay", TargetInput: "Trigger", TimesToFire: action.FireAlways}, action.Prepend)
					return err
				})
				if err != nil {
					t.Errorf("insert: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	err := r.With(h, "OnDamaged", func(l *action.List) error {
		if got := l.Count(); got != workers*perWorker {
			t.Fatalf("expected %d actions, got %d", workers*perWorker, got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with: %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	r := newTestRegistry(t, Config{})
	h := spawnButton(t, r)
	world := r.Snapshot()

	other := newTestRegistry(t, Config{})
	spawnButton(t, other)
	spawnButton(t, other)
	if err := other.Restore(world); err != nil {
		t.Fatalf("restore: %v", err)
	}
	infos := other.Entities()
	if len(infos) != 1 || infos[0].Handle != h || infos[0].Fields["speed"] != "5" {
		t.Fatalf("unexpected entities %+v", infos)
	}
	if got := other.Stats().Count; got != 2 {
		t.Fatalf("expected 2 pooled actions, got %d", got)
	}
	next, err := other.Spawn(Def{Name: "later"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if next <= h {
		t.Fatalf("expected handle above %d, got %d", h, next)
	}
}

func TestRestoreFailureKeepsWorld(t *testing.T) {
	r := newTestRegistry(t, Config{BlocksPerBlob: 3, Grow: pool.GrowNone})
	h := spawnButton(t, r)

	world := World{Entities: []State{{
		Handle: 1,
		Name:   "big",
		Outputs: []OutputState{{Name: "OnTrigger", Actions: []action.Action{
			{Target: "a"}, {Target: "b"}, {Target: "c"},
		}}},
	}}}
	if err := r.Restore(world); !errors.Is(err, pool.ErrAllocationExhausted) {
		t.Fatalf("expected allocation exhausted, got %v", err)
	}
	if _, err := r.Lookup(h); err != nil {
		t.Fatalf("expected original entity to survive: %v", err)
	}
	if got := r.Stats().Count; got != 2 {
		t.Fatalf("expected 2 pooled actions, got %d", got)
	}
}

func TestRestoreRejectsOutputsDifferingByCase(t *testing.T) {
	r := newTestRegistry(t, Config{})
	h := spawnButton(t, r)

	world := World{Entities: []State{{
		Handle: 1,
		Name:   "twin",
		Outputs: []OutputState{
			{Name: "OnTrigger", Actions: []action.Action{{Target: "a"}}},
			{Name: " ONTRIGGER", Actions: []action.Action{{Target: "b"}, {Target: "c"}}},
		},
	}}}
	if err := r.Restore(world); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := r.Lookup(h); err != nil {
		t.Fatalf("expected original entity to survive: %v", err)
	}
	if got := r.Stats().Count; got != 2 {
		t.Fatalf("expected 2 pooled actions, got %d", got)
	}
}
