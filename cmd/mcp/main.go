// Package main starts the MCP adapter on stdio or HTTP. Logs stay on stderr
// so they never mix with the stdio transport.
package main

import (
	mcpcmd "github.com/louisbranch/outputinfo/internal/cmd/mcp"
	entrypoint "github.com/louisbranch/outputinfo/internal/platform/cmd"
)

func main() {
	entrypoint.Main(entrypoint.ServiceMCP, mcpcmd.ParseConfig, mcpcmd.Run)
}
