// Package server wires the outputinfo runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/outputinfo/internal/platform/requestctx"
	"github.com/louisbranch/outputinfo/internal/platform/timeouts"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	outputsservice "github.com/louisbranch/outputinfo/internal/services/outputs/api/grpc/outputs"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
	"github.com/louisbranch/outputinfo/internal/services/outputs/feed"
	"github.com/louisbranch/outputinfo/internal/services/outputs/script"
	"github.com/louisbranch/outputinfo/internal/services/outputs/storage"
	outputssqlite "github.com/louisbranch/outputinfo/internal/services/outputs/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Config configures a Server.
type Config struct {
	// Addr is the gRPC listen address.
	Addr string
	// DBPath is the SQLite world store. Empty disables persistence.
	DBPath string
	// ScriptsDir holds *.lua files run once at startup, in name order.
	ScriptsDir string
	// Pool sizes the shared action pool.
	Pool entity.Config
	// SaveOnShutdown writes the world back to the store when serving stops.
	SaveOnShutdown bool
	// FeedAddr, when set, serves the fired-event websocket feed at /events.
	FeedAddr string
}

// Server hosts the output action gRPC API, the script host and the world
// store lifecycle.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	registry   *entity.Registry
	scripts    *script.Host
	store      storage.WorldStore
	closer     func() error
	save       bool

	feed         *feed.Hub
	feedListener net.Listener
	feedServer   *http.Server
}

// New creates a configured server. The world is restored from the store,
// then startup scripts run against it.
func New(ctx context.Context, cfg Config) (*Server, error) {
	registry, err := entity.NewRegistry(cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("create entity registry: %w", err)
	}

	s := &Server{registry: registry, save: cfg.SaveOnShutdown}
	if strings.TrimSpace(cfg.DBPath) != "" {
		store, err := openWorldStore(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		s.store = store
		s.closer = store.Close
		if err := s.loadWorld(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	if strings.TrimSpace(cfg.FeedAddr) != "" {
		if err := s.listenFeed(cfg.FeedAddr); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.scripts = script.NewHost(registry, script.WithEventSink(s.publish))
	if err := runScripts(ctx, s.scripts, cfg.ScriptsDir); err != nil {
		s.Close()
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	s.listener = listener

	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(requestctx.LocaleUnaryInterceptor()),
	)
	outputsservice.RegisterServer(s.grpcServer, outputsservice.NewService(registry, outputsservice.WithEventSink(s.publish)))
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(outputsservice.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return s, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// FeedAddr returns the fired-event feed address, or "" when the feed is off.
func (s *Server) FeedAddr() string {
	if s == nil || s.feedListener == nil {
		return ""
	}
	return s.feedListener.Addr().String()
}

// Registry returns the live entity registry.
func (s *Server) Registry() *entity.Registry {
	return s.registry
}

// Run creates and serves a server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("outputinfo server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()
	if s.feedServer != nil {
		feedServer, feedListener := s.feedServer, s.feedListener
		log.Printf("fired-event feed listening at %v", feedListener.Addr())
		go func() {
			if err := feedServer.Serve(feedListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("serve event feed: %v", err)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		s.stopGracefully()
		err = <-serveErr
	case err = <-serveErr:
	}
	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}
	if s.save {
		// The serving context is done by now.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
		defer cancel()
		if err := s.SaveWorld(saveCtx); err != nil {
			return err
		}
	}
	return nil
}

// stopGracefully drains in-flight calls, forcing a stop after timeouts.Shutdown.
func (s *Server) stopGracefully() {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	timer := time.NewTimer(timeouts.Shutdown)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		log.Printf("graceful stop timed out after %v; forcing stop", timeouts.Shutdown)
		s.grpcServer.Stop()
		<-done
	}
}

// SaveWorld writes the current world to the store.
func (s *Server) SaveWorld(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	world := s.registry.Snapshot()
	if err := s.store.SaveWorld(ctx, world); err != nil {
		return fmt.Errorf("save world: %w", err)
	}
	stats := s.registry.Stats()
	log.Printf("saved %d entities (%d actions, peak %d)", len(world.Entities), stats.Count, stats.PeakCount)
	return nil
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.feed != nil {
		s.feed.Close()
	}
	if s.feedServer != nil {
		_ = s.feedServer.Close()
	}
	if s.feedListener != nil {
		_ = s.feedListener.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.closer != nil {
		if err := s.closer(); err != nil {
			log.Printf("close world store: %v", err)
		}
		s.closer = nil
	}
}

func (s *Server) loadWorld(ctx context.Context) error {
	world, err := s.store.LoadWorld(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("no saved world; starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load world: %w", err)
	}
	if err := s.registry.Restore(world); err != nil {
		return fmt.Errorf("restore world: %w", err)
	}
	log.Printf("restored %d entities", len(world.Entities))
	return nil
}

func openWorldStore(ctx context.Context, path string) (*outputssqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := outputssqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open world sqlite store: %w", err)
	}
	return store, nil
}

func runScripts(ctx context.Context, host *script.Host, dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return fmt.Errorf("list scripts: %w", err)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := host.RunFile(ctx, path); err != nil {
			return fmt.Errorf("startup script %s: %w", filepath.Base(path), err)
		}
		log.Printf("ran startup script %s", filepath.Base(path))
	}
	return nil
}

func (s *Server) listenFeed(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen feed on %s: %w", addr, err)
	}
	s.feed = feed.NewHub(log.Default())
	mux := http.NewServeMux()
	mux.Handle("/events", s.feed)
	s.feedListener = listener
	s.feedServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return nil
}

func (s *Server) publish(e action.Event) {
	logEvent(e)
	if s.feed != nil {
		s.feed.Publish(e)
	}
}

func logEvent(e action.Event) {
	log.Printf("fire %s.%s(%q) in %.2fs (stamp %d)", e.Target, e.TargetInput, e.Parameter, e.Delay, e.IDStamp)
}
