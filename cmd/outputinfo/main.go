// Package main starts the output action gRPC service.
package main

import (
	outputinfocmd "github.com/louisbranch/outputinfo/internal/cmd/outputinfo"
	entrypoint "github.com/louisbranch/outputinfo/internal/platform/cmd"
)

func main() {
	entrypoint.Main(entrypoint.ServiceOutputs, outputinfocmd.ParseConfig, outputinfocmd.Run)
}
