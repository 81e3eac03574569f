// Package main runs a Lua script against the saved outputinfo world.
package main

import (
	"context"
	"os"

	scriptcmd "github.com/louisbranch/outputinfo/internal/cmd/script"
	entrypoint "github.com/louisbranch/outputinfo/internal/platform/cmd"
)

func main() {
	entrypoint.Main(entrypoint.ServiceScript, scriptcmd.ParseConfig, func(ctx context.Context, cfg scriptcmd.Config) error {
		return scriptcmd.Run(ctx, cfg, os.Stdout, os.Stderr)
	})
}
