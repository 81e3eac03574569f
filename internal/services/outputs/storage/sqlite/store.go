// Package sqlite provides a SQLite-backed world store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/outputinfo/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
	"github.com/louisbranch/outputinfo/internal/services/outputs/storage"
	"github.com/louisbranch/outputinfo/internal/services/outputs/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists world snapshots in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite world store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveWorld replaces the stored world in one transaction.
func (s *Store) SaveWorld(ctx context.Context, world entity.World) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"output_actions", "entity_outputs", "entity_fields", "entities"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	actionCount := 0
	for _, state := range world.Entities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities (handle, class, name) VALUES (?, ?, ?)`,
			int64(state.Handle), state.Class, state.Name,
		); err != nil {
			return fmt.Errorf("save entity %d: %w", int(state.Handle), err)
		}
		for key, value := range state.Fields {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO entity_fields (handle, key, value) VALUES (?, ?, ?)`,
				int64(state.Handle), key, value,
			); err != nil {
				return fmt.Errorf("save entity %d field %s: %w", int(state.Handle), key, err)
			}
		}
		for _, out := range state.Outputs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO entity_outputs (handle, name) VALUES (?, ?)`,
				int64(state.Handle), out.Name,
			); err != nil {
				return fmt.Errorf("save entity %d output %s: %w", int(state.Handle), out.Name, err)
			}
			for position, a := range out.Actions {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO output_actions (
					   handle, output, position,
					   target, target_input, parameter,
					   delay, times_to_fire, id_stamp
					 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					int64(state.Handle), out.Name, position,
					a.Target, a.TargetInput, a.Parameter,
					float64(a.Delay), a.TimesToFire, a.IDStamp,
				); err != nil {
					return fmt.Errorf("save entity %d output %s action %d: %w", int(state.Handle), out.Name, position, err)
				}
				actionCount++
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO world_saves (id, saved_at, entity_count, action_count) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   saved_at = excluded.saved_at,
		   entity_count = excluded.entity_count,
		   action_count = excluded.action_count`,
		toMillis(s.now()), len(world.Entities), actionCount,
	); err != nil {
		return fmt.Errorf("record save: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// LoadWorld returns the stored world, or storage.ErrNotFound when nothing
// has been saved.
func (s *Store) LoadWorld(ctx context.Context) (entity.World, error) {
	if err := ctx.Err(); err != nil {
		return entity.World{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.World{}, fmt.Errorf("storage is not configured")
	}
	if _, err := s.LastSave(ctx); err != nil {
		return entity.World{}, err
	}

	states, err := s.loadEntities(ctx)
	if err != nil {
		return entity.World{}, err
	}
	byHandle := make(map[entity.Handle]*entity.State, len(states))
	for i := range states {
		byHandle[states[i].Handle] = &states[i]
	}
	if err := s.loadFields(ctx, byHandle); err != nil {
		return entity.World{}, err
	}
	if err := s.loadOutputs(ctx, byHandle); err != nil {
		return entity.World{}, err
	}
	return entity.World{Entities: states}, nil
}

// LastSave describes the stored world.
func (s *Store) LastSave(ctx context.Context) (storage.SaveInfo, error) {
	if err := ctx.Err(); err != nil {
		return storage.SaveInfo{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SaveInfo{}, fmt.Errorf("storage is not configured")
	}
	var info storage.SaveInfo
	var savedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT saved_at, entity_count, action_count FROM world_saves WHERE id = 1`,
	).Scan(&savedAt, &info.EntityCount, &info.ActionCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SaveInfo{}, storage.ErrNotFound
		}
		return storage.SaveInfo{}, fmt.Errorf("get last save: %w", err)
	}
	info.SavedAt = fromMillis(savedAt)
	return info, nil
}

func (s *Store) loadEntities(ctx context.Context) ([]entity.State, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT handle, class, name FROM entities ORDER BY handle ASC`)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	defer rows.Close()

	var states []entity.State
	for rows.Next() {
		var state entity.State
		var handle int64
		if err := rows.Scan(&handle, &state.Class, &state.Name); err != nil {
			return nil, fmt.Errorf("load entities: %w", err)
		}
		state.Handle = entity.Handle(handle)
		state.Fields = map[string]string{}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	return states, nil
}

func (s *Store) loadFields(ctx context.Context, byHandle map[entity.Handle]*entity.State) error {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT handle, key, value FROM entity_fields`)
	if err != nil {
		return fmt.Errorf("load entity fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var handle int64
		var key, value string
		if err := rows.Scan(&handle, &key, &value); err != nil {
			return fmt.Errorf("load entity fields: %w", err)
		}
		if state, ok := byHandle[entity.Handle(handle)]; ok {
			state.Fields[key] = value
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load entity fields: %w", err)
	}
	return nil
}

func (s *Store) loadOutputs(ctx context.Context, byHandle map[entity.Handle]*entity.State) error {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT o.handle, o.name,
		        a.target, a.target_input, a.parameter,
		        a.delay, a.times_to_fire, a.id_stamp
		   FROM entity_outputs o
		   LEFT JOIN output_actions a ON a.handle = o.handle AND a.output = o.name
		  ORDER BY o.handle ASC, o.name ASC, a.position ASC`,
	)
	if err != nil {
		return fmt.Errorf("load outputs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			handle      int64
			name        string
			target      sql.NullString
			targetInput sql.NullString
			parameter   sql.NullString
			delay       sql.NullFloat64
			times       sql.NullInt64
			stamp       sql.NullInt64
		)
		if err := rows.Scan(&handle, &name, &target, &targetInput, &parameter, &delay, &times, &stamp); err != nil {
			return fmt.Errorf("load outputs: %w", err)
		}
		state, ok := byHandle[entity.Handle(handle)]
		if !ok {
			continue
		}
		if n := len(state.Outputs); n == 0 || state.Outputs[n-1].Name != name {
			state.Outputs = append(state.Outputs, entity.OutputState{Name: name})
		}
		if !target.Valid {
			continue
		}
		out := &state.Outputs[len(state.Outputs)-1]
		out.Actions = append(out.Actions, action.Action{
			Target:      target.String,
			TargetInput: targetInput.String,
			Parameter:   parameter.String,
			Delay:       float32(delay.Float64),
			TimesToFire: int(times.Int64),
			IDStamp:     int(stamp.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load outputs: %w", err)
	}
	for _, state := range byHandle {
		slices.SortFunc(state.Outputs, func(a, b entity.OutputState) int { return strings.Compare(a.Name, b.Name) })
	}
	return nil
}

var _ storage.WorldStore = (*Store)(nil)
