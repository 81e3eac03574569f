// Package timeouts holds the durations shared by the outputinfo binaries.
package timeouts

import "time"

// GRPCDial caps the wait for the output action service to accept a
// connection and report SERVING.
const GRPCDial = 2 * time.Second

// GRPCRequest caps a single call from an adapter to the output action service.
const GRPCRequest = 2 * time.Second

// Shutdown bounds graceful stop of the gRPC server and the final world save.
const Shutdown = 5 * time.Second

// ReadHeader limits how long the MCP HTTP transport waits for request headers.
const ReadHeader = 5 * time.Second
