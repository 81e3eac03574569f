// Package storage defines persistence contracts for world state.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
)

// ErrNotFound indicates no world has been saved yet.
var ErrNotFound = errors.New("record not found")

// SaveInfo describes the most recent save.
type SaveInfo struct {
	SavedAt     time.Time
	EntityCount int
	ActionCount int
}

// WorldStore persists whole-world snapshots. A save replaces the previous one.
type WorldStore interface {
	SaveWorld(ctx context.Context, world entity.World) error
	LoadWorld(ctx context.Context) (entity.World, error)
	LastSave(ctx context.Context) (SaveInfo, error)
}
