package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlitemigrate "github.com/louisbranch/outputinfo/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
	"github.com/louisbranch/outputinfo/internal/services/outputs/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outputinfo.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func sampleWorld() entity.World {
	return entity.World{Entities: []entity.State{
		{
			Handle: 1,
			Class:  "func_button",
			Name:   "button1",
			Fields: map[string]string{"speed": "5", "wait": "-1"},
			Outputs: []entity.OutputState{
				{Name: "OnDamaged"},
				{Name: "OnPressed", Actions: []action.Action{
					{Target: "door1", TargetInput: "Open", Delay: 2, TimesToFire: 1, IDStamp: 4},
					{Target: "hud", TargetInput: "SetText", Parameter: "pressed", TimesToFire: action.FireAlways, IDStamp: 9},
				}},
			},
		},
		{
			Handle: 3,
			Class:  "func_door",
			Name:   "door1",
			Fields: map[string]string{},
		},
	}}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	applied, err := sqlitemigrate.Applied(context.Background(), store.sqlDB)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if len(applied) != 1 || applied[0] != "001_world.sql" {
		t.Fatalf("applied = %v, want [001_world.sql]", applied)
	}
}

func TestLoadWorldBeforeSaveIsNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.LoadWorld(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("load error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestSaveLoadWorldRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	savedAt := time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return savedAt }

	want := sampleWorld()
	if err := store.SaveWorld(context.Background(), want); err != nil {
		t.Fatalf("save world: %v", err)
	}
	got, err := store.LoadWorld(context.Background())
	if err != nil {
		t.Fatalf("load world: %v", err)
	}
	if len(got.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(got.Entities))
	}
	button := got.Entities[0]
	if button.Handle != 1 || button.Class != "func_button" || button.Fields["wait"] != "-1" {
		t.Fatalf("unexpected entity %+v", button)
	}
	if len(button.Outputs) != 2 || button.Outputs[0].Name != "OnDamaged" || len(button.Outputs[0].Actions) != 0 {
		t.Fatalf("unexpected outputs %+v", button.Outputs)
	}
	pressed := button.Outputs[1].Actions
	if len(pressed) != 2 {
		t.Fatalf("actions = %d, want 2", len(pressed))
	}
	for i := range pressed {
		if pressed[i] != want.Entities[0].Outputs[1].Actions[i] {
			t.Fatalf("action %d = %+v, want %+v", i, pressed[i], want.Entities[0].Outputs[1].Actions[i])
		}
	}
	if got.Entities[1].Handle != 3 || len(got.Entities[1].Outputs) != 0 {
		t.Fatalf("unexpected entity %+v", got.Entities[1])
	}

	info, err := store.LastSave(context.Background())
	if err != nil {
		t.Fatalf("last save: %v", err)
	}
	if !info.SavedAt.Equal(savedAt) || info.EntityCount != 2 || info.ActionCount != 2 {
		t.Fatalf("unexpected save info %+v", info)
	}
}

func TestSaveWorldReplacesPrevious(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if err := store.SaveWorld(context.Background(), sampleWorld()); err != nil {
		t.Fatalf("save world: %v", err)
	}
	smaller := entity.World{Entities: []entity.State{{Handle: 7, Name: "relay"}}}
	if err := store.SaveWorld(context.Background(), smaller); err != nil {
		t.Fatalf("save world: %v", err)
	}
	got, err := store.LoadWorld(context.Background())
	if err != nil {
		t.Fatalf("load world: %v", err)
	}
	if len(got.Entities) != 1 || got.Entities[0].Handle != 7 {
		t.Fatalf("unexpected world %+v", got)
	}
}

func TestRegistryRoundTripThroughStore(t *testing.T) {
	t.Parallel()

	registry, err := entity.NewRegistry(entity.Config{BlocksPerBlob: 4, Report: func(string, ...any) {}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	h, err := registry.Spawn(entity.Def{
		Name:    "button1",
		Outputs: map[string][]string{"OnPressed": {"door1,Open,,2,1"}},
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	store := openTempStore(t)
	if err := store.SaveWorld(context.Background(), registry.Snapshot()); err != nil {
		t.Fatalf("save world: %v", err)
	}
	world, err := store.LoadWorld(context.Background())
	if err != nil {
		t.Fatalf("load world: %v", err)
	}

	restored, err := entity.NewRegistry(entity.Config{BlocksPerBlob: 4, Report: func(string, ...any) {}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if err := restored.Restore(world); err != nil {
		t.Fatalf("restore: %v", err)
	}
	err = restored.With(h, "OnPressed", func(l *action.List) error {
		a, err := l.Get(0)
		if err != nil {
			return err
		}
		if a.Target != "door1" || a.Delay != 2 || a.TimesToFire != 1 {
			t.Fatalf("unexpected action %+v", a)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with: %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.SaveWorld(ctx, sampleWorld()); !errors.Is(err, context.Canceled) {
		t.Fatalf("save error = %v, want %v", err, context.Canceled)
	}
}
