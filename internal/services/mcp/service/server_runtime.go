package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/louisbranch/outputinfo/internal/platform/discovery"
	platformgrpc "github.com/louisbranch/outputinfo/internal/platform/grpc"
	"github.com/louisbranch/outputinfo/internal/platform/timeouts"
	outputs "github.com/louisbranch/outputinfo/internal/services/outputs/api/grpc/outputs"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const healthCheckInterval = 30 * time.Second

// Run dials the output action service and serves MCP until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}

	switch cfg.Transport {
	case TransportStdio:
		return runWithTransport(ctx, cfg, &mcp.StdioTransport{})
	case TransportHTTP:
		return runWithHTTPTransport(ctx, cfg)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// runWithTransport creates a server and serves it over the provided transport.
func runWithTransport(ctx context.Context, cfg Config, transport mcp.Transport) error {
	conn, err := dialOutputs(ctx, cfg)
	if err != nil {
		return err
	}
	server, err := newServer(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	return server.serveWithTransport(ctx, transport)
}

// runWithHTTPTransport serves streamable HTTP, with every session sharing
// one MCP server and one gRPC connection.
func runWithHTTPTransport(ctx context.Context, cfg Config) error {
	addr := discovery.OrLocalHTTPAddr(cfg.HTTPAddr, discovery.ServiceMCP)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	conn, err := dialOutputs(ctx, cfg)
	if err != nil {
		_ = listener.Close()
		return err
	}
	server, err := newServer(conn)
	if err != nil {
		_ = conn.Close()
		_ = listener.Close()
		return err
	}
	defer server.Close()

	healthCtx, healthCancel := context.WithCancel(ctx)
	defer healthCancel()
	go server.monitorHealth(healthCtx, healthCheckInterval)

	return server.serveHTTP(ctx, listener)
}

// serveHTTP serves the streamable HTTP handler on listener until ctx ends.
func (s *Server) serveHTTP(ctx context.Context, listener net.Listener) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcpServer }, nil)
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	log.Printf("MCP HTTP transport listening at %s", listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown MCP HTTP: %w", err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve MCP HTTP: %w", err)
	}
}

// monitorHealth logs when the output action service stops reporting SERVING.
// Tool calls still surface their own errors; this only makes outages visible.
func (s *Server) monitorHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.conn == nil {
				log.Printf("gRPC connection is nil, health check skipped")
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
			response, err := grpc_health_v1.NewHealthClient(s.conn).Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: outputs.ServiceName})
			cancel()
			if err != nil {
				log.Printf("outputs health check failed: %v", err)
			} else if response.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
				log.Printf("outputs health check status: %s", response.GetStatus())
			}
		}
	}
}

// Serve starts the MCP server on stdio and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// Close releases the gRPC connection held by the server.
func (s *Server) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return err
	}
	s.conn = nil
	return nil
}

// serveWithTransport runs the MCP session and closes the gRPC connection on
// every exit path.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	closeErr := s.Close()
	if closeErr != nil {
		if err == nil {
			return fmt.Errorf("close gRPC connection: %w", closeErr)
		}
		return fmt.Errorf("serve MCP: %v; close gRPC connection: %w", err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func dialOutputs(ctx context.Context, cfg Config) (*grpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	addr := discovery.OrDefaultGRPCAddr(cfg.GRPCAddr, discovery.ServiceOutputs)
	conn, err := platformgrpc.DialWithHealth(ctx, platformgrpc.DialConfig{
		Addr:          addr,
		Timeout:       timeouts.GRPCDial,
		HealthService: outputs.ServiceName,
		Locale:        cfg.Locale,
		Logf: func(format string, args ...any) {
			log.Printf("outputs %s", fmt.Sprintf(format, args...))
		},
	}, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		var dialErr *platformgrpc.DialError
		if errors.As(err, &dialErr) && dialErr.Stage == platformgrpc.DialStageConnect {
			return nil, fmt.Errorf("connect to output action service at %s: %w", addr, dialErr.Err)
		}
		return nil, err
	}
	return conn, nil
}
