// Package script runs one Lua file against a saved world.
package script

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/outputinfo/internal/platform/cmd"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
	"github.com/louisbranch/outputinfo/internal/services/outputs/pool"
	"github.com/louisbranch/outputinfo/internal/services/outputs/script"
	"github.com/louisbranch/outputinfo/internal/services/outputs/storage"
	outputssqlite "github.com/louisbranch/outputinfo/internal/services/outputs/storage/sqlite"
)

// Config holds script command configuration.
type Config struct {
	DBPath     string        `env:"OUTPUTINFO_DB_PATH"        envDefault:"data/outputinfo.db"`
	Script     string        `env:"OUTPUTINFO_SCRIPT_FILE"`
	Save       bool          `env:"OUTPUTINFO_SCRIPT_SAVE"`
	Verbose    bool          `env:"OUTPUTINFO_SCRIPT_VERBOSE"`
	Timeout    time.Duration `env:"OUTPUTINFO_SCRIPT_TIMEOUT" envDefault:"30s"`
	PoolBlocks int           `env:"OUTPUTINFO_POOL_BLOCKS"    envDefault:"256"`
	PoolGrow   string        `env:"OUTPUTINFO_POOL_GROW"      envDefault:"fast"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite world store path; empty runs against an empty world")
	fs.StringVar(&cfg.Script, "script", cfg.Script, "path to the Lua file")
	fs.BoolVar(&cfg.Save, "save", cfg.Save, "write the world back to the store after the script")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "log every fired event")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "maximum run time")
	fs.IntVar(&cfg.PoolBlocks, "pool-blocks", cfg.PoolBlocks, "Actions per pool blob")
	fs.StringVar(&cfg.PoolGrow, "pool-grow", cfg.PoolGrow, "Pool growth: fast, slow or none")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run loads the world, runs the script and optionally saves the result.
// Script print output goes to out; diagnostics go to errOut.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if strings.TrimSpace(cfg.Script) == "" {
		return errors.New("script path is required")
	}
	grow, err := pool.ParseGrowMode(cfg.PoolGrow)
	if err != nil {
		return err
	}
	logger := log.New(errOut, "", 0)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	registry, err := entity.NewRegistry(entity.Config{BlocksPerBlob: cfg.PoolBlocks, Grow: grow, Report: logger.Printf})
	if err != nil {
		return err
	}

	var store *outputssqlite.Store
	if strings.TrimSpace(cfg.DBPath) != "" {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create storage dir: %w", err)
			}
		}
		store, err = outputssqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open world store: %w", err)
		}
		defer store.Close()

		world, err := store.LoadWorld(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			logger.Printf("no saved world in %s; starting empty", cfg.DBPath)
		case err != nil:
			return fmt.Errorf("load world: %w", err)
		default:
			if err := registry.Restore(world); err != nil {
				return fmt.Errorf("restore world: %w", err)
			}
		}
	}

	sink := func(action.Event) {}
	if cfg.Verbose {
		sink = func(e action.Event) {
			logger.Printf("fire %s.%s(%q) in %.2fs", e.Target, e.TargetInput, e.Parameter, e.Delay)
		}
	}
	host := script.NewHost(registry, script.WithLogger(log.New(out, "", 0)), script.WithEventSink(sink))
	if err := host.RunFile(ctx, cfg.Script); err != nil {
		return err
	}

	if cfg.Save {
		if store == nil {
			return errors.New("save requested without a world store")
		}
		if err := store.SaveWorld(ctx, registry.Snapshot()); err != nil {
			return fmt.Errorf("save world: %w", err)
		}
		stats := registry.Stats()
		logger.Printf("saved world: %d actions, peak %d", stats.Count, stats.PeakCount)
	}
	return nil
}
