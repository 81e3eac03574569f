// Package service runs the MCP adapter for the output action service.
//
// It dials the gRPC API, registers the domain tools and resources and serves
// them over stdio or streamable HTTP.
package service
