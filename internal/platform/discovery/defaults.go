// Package discovery holds the default addresses of the outputinfo services.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceOutputs is the output action gRPC service identity.
	ServiceOutputs = "outputinfo"
	// ServiceMCP is the MCP adapter identity.
	ServiceMCP = "mcp"
	// ServiceScript is the one-shot script runner identity.
	ServiceScript = "script"
)

var grpcPorts = map[string]int{
	ServiceOutputs: 8095,
}

var httpPorts = map[string]int{
	ServiceMCP: 8096,
}

// GRPCPort returns the conventional gRPC port of a service, or 0.
func GRPCPort(service string) int {
	return grpcPorts[strings.TrimSpace(service)]
}

// HTTPPort returns the conventional HTTP port of a service, or 0.
func HTTPPort(service string) int {
	return httpPorts[strings.TrimSpace(service)]
}

// DefaultGRPCAddr returns the in-network gRPC address for a service.
func DefaultGRPCAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), strings.TrimSpace(service), grpcPorts)
}

// LocalHTTPAddr returns the loopback HTTP listen address for a service.
func LocalHTTPAddr(service string) string {
	return defaultAddr("localhost", strings.TrimSpace(service), httpPorts)
}

// OrDefaultGRPCAddr returns value when set, otherwise the service convention.
func OrDefaultGRPCAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return DefaultGRPCAddr(service)
}

// OrLocalHTTPAddr returns value when set, otherwise the loopback convention.
func OrLocalHTTPAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return LocalHTTPAddr(service)
}

func defaultAddr(host, service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return host + ":" + strconv.Itoa(port)
}
