// Package domain maps MCP tool calls onto the output action service.
//
// Each tool parses its JSON input, calls the gRPC client with a bounded
// context and returns a structured result MCP clients can render.
package domain
