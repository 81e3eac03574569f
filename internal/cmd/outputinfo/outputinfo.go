// Package outputinfo parses server flags and launches the output action service.
package outputinfo

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/outputinfo/internal/platform/cmd"
	server "github.com/louisbranch/outputinfo/internal/services/outputs/app"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
	"github.com/louisbranch/outputinfo/internal/services/outputs/pool"
)

// Config holds server command configuration.
type Config struct {
	Port       int    `env:"OUTPUTINFO_PORT"        envDefault:"8095"`
	Addr       string `env:"OUTPUTINFO_LISTEN_ADDR"`
	DBPath     string `env:"OUTPUTINFO_DB_PATH"     envDefault:"data/outputinfo.db"`
	ScriptsDir string `env:"OUTPUTINFO_SCRIPTS_DIR"`
	PoolBlocks int    `env:"OUTPUTINFO_POOL_BLOCKS" envDefault:"256"`
	PoolGrow   string `env:"OUTPUTINFO_POOL_GROW"   envDefault:"fast"`
	// StrictPool caps the action pool at its first blob, whatever PoolGrow says.
	StrictPool bool `env:"OUTPUTINFO_STRICT_POOL"`
	NoSave     bool `env:"OUTPUTINFO_NO_SAVE"`
	FeedAddr   string `env:"OUTPUTINFO_FEED_ADDR"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The output action gRPC server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Full listen address; overrides -port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite world store path; empty disables persistence")
	fs.StringVar(&cfg.ScriptsDir, "scripts", cfg.ScriptsDir, "Directory of *.lua files run at startup")
	fs.IntVar(&cfg.PoolBlocks, "pool-blocks", cfg.PoolBlocks, "Actions per pool blob")
	fs.StringVar(&cfg.PoolGrow, "pool-grow", cfg.PoolGrow, "Pool growth: fast, slow or none")
	fs.BoolVar(&cfg.StrictPool, "strict-pool", cfg.StrictPool, "Never grow the action pool past its first blob")
	fs.BoolVar(&cfg.NoSave, "no-save", cfg.NoSave, "Skip saving the world on shutdown")
	fs.StringVar(&cfg.FeedAddr, "feed-addr", cfg.FeedAddr, "Listen address for the fired-event websocket feed; empty disables it")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ServerConfig converts the command configuration into the server's.
func (c Config) ServerConfig() (server.Config, error) {
	grow, err := pool.ParseGrowMode(c.PoolGrow)
	if err != nil {
		return server.Config{}, err
	}
	if c.StrictPool {
		grow = pool.GrowNone
	}
	addr := c.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", c.Port)
	}
	return server.Config{
		Addr:           addr,
		DBPath:         c.DBPath,
		ScriptsDir:     c.ScriptsDir,
		Pool:           entity.Config{BlocksPerBlob: c.PoolBlocks, Grow: grow},
		SaveOnShutdown: !c.NoSave,
		FeedAddr:       c.FeedAddr,
	}, nil
}

// Run starts the output action gRPC service.
func Run(ctx context.Context, cfg Config) error {
	serverCfg, err := cfg.ServerConfig()
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceOutputs, func(ctx context.Context) error {
		return server.Run(ctx, serverCfg)
	})
}
