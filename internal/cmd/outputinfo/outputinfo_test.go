package outputinfo

import (
	"flag"
	"testing"

	"github.com/louisbranch/outputinfo/internal/platform/discovery"
	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
	"github.com/louisbranch/outputinfo/internal/services/outputs/pool"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("outputinfo", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != discovery.GRPCPort(discovery.ServiceOutputs) {
		t.Fatalf("expected default port %d, got %d", discovery.GRPCPort(discovery.ServiceOutputs), cfg.Port)
	}
	if cfg.DBPath != "data/outputinfo.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.PoolBlocks != 256 || cfg.PoolGrow != "fast" {
		t.Fatalf("expected default pool 256/fast, got %d/%s", cfg.PoolBlocks, cfg.PoolGrow)
	}

	serverCfg, err := cfg.ServerConfig()
	if err != nil {
		t.Fatalf("server config: %v", err)
	}
	if serverCfg.Addr != ":8095" {
		t.Fatalf("expected addr :8095, got %q", serverCfg.Addr)
	}
	if serverCfg.Pool.Grow != pool.GrowFast || !serverCfg.SaveOnShutdown {
		t.Fatalf("unexpected server config %+v", serverCfg)
	}
}

func TestParseConfigEnvAndFlagOverrides(t *testing.T) {
	t.Setenv("OUTPUTINFO_POOL_GROW", "slow")
	t.Setenv("OUTPUTINFO_SCRIPTS_DIR", "/env/scripts")

	fs := flag.NewFlagSet("outputinfo", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "9001", "-pool-blocks", "8", "-strict-pool", "-no-save", "-feed-addr", "127.0.0.1:9002"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ScriptsDir != "/env/scripts" {
		t.Fatalf("expected env scripts dir, got %q", cfg.ScriptsDir)
	}

	serverCfg, err := cfg.ServerConfig()
	if err != nil {
		t.Fatalf("server config: %v", err)
	}
	if serverCfg.Addr != ":9001" {
		t.Fatalf("expected addr :9001, got %q", serverCfg.Addr)
	}
	if serverCfg.Pool.BlocksPerBlob != 8 {
		t.Fatalf("expected 8 blocks per blob, got %d", serverCfg.Pool.BlocksPerBlob)
	}
	if serverCfg.Pool.Grow != pool.GrowNone {
		t.Fatalf("strict pool should force none, got %s", serverCfg.Pool.Grow)
	}
	if serverCfg.SaveOnShutdown {
		t.Fatal("expected save on shutdown to be disabled")
	}
	if serverCfg.FeedAddr != "127.0.0.1:9002" {
		t.Fatalf("expected feed addr flag, got %q", serverCfg.FeedAddr)
	}
}

func TestServerConfigRejectsUnknownGrowMode(t *testing.T) {
	cfg := Config{Port: 1, PoolBlocks: 4, PoolGrow: "sideways"}
	_, err := cfg.ServerConfig()
	if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestServerConfigAddrOverridesPort(t *testing.T) {
	cfg := Config{Port: 1, Addr: "127.0.0.1:0", PoolBlocks: 4, PoolGrow: "none"}
	serverCfg, err := cfg.ServerConfig()
	if err != nil {
		t.Fatalf("server config: %v", err)
	}
	if serverCfg.Addr != "127.0.0.1:0" {
		t.Fatalf("expected explicit addr, got %q", serverCfg.Addr)
	}
}
