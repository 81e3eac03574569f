package domain

import "github.com/louisbranch/outputinfo/internal/platform/timeouts"

// grpcCallTimeout caps a single gRPC call made by a tool or resource handler.
const grpcCallTimeout = timeouts.GRPCRequest
