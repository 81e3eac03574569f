// Package grpc holds client-side helpers for reaching the output action service.
package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/outputinfo/internal/platform/requestctx"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dialer opens a client connection.
type Dialer interface {
	DialContext(ctx context.Context, addr string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)
}

// DialerFunc adapts a dial function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)

// DialContext implements Dialer for DialerFunc.
func (fn DialerFunc) DialContext(ctx context.Context, addr string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	return fn(ctx, addr, opts...)
}

// DialStage describes where a dial attempt failed.
type DialStage string

const (
	// DialStageConnect indicates the connection could not be opened.
	DialStageConnect DialStage = "connect"
	// DialStageHealth indicates the peer never reported SERVING.
	DialStageHealth DialStage = "health"
)

// DialError wraps dial and health check failures with the stage that failed.
type DialError struct {
	Addr  string
	Stage DialStage
	Err   error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e == nil {
		return "gRPC dial error"
	}
	if e.Addr == "" {
		return fmt.Sprintf("gRPC %s error: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("gRPC %s error for %s: %v", e.Stage, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DialConfig describes one DialWithHealth attempt.
type DialConfig struct {
	Addr string
	// Timeout bounds both the connect and the health wait. Zero leaves ctx alone.
	Timeout time.Duration
	// HealthService is the name passed to the health check; empty checks the whole server.
	HealthService string
	// Locale, when set, is attached to every outgoing call as x-locale.
	Locale string
	Logf   func(string, ...any)
	// Dialer defaults to grpc.DialContext.
	Dialer Dialer
}

// DefaultClientDialOptions returns insecure blocking dial options with the
// OTel client handler so outbound calls carry trace context.
func DefaultClientDialOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithBlock(),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// LocaleUnaryClientInterceptor sends the context locale, or locale when the
// context has none, as x-locale metadata.
func LocaleUnaryClientInterceptor(locale string) gogrpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *gogrpc.ClientConn, invoker gogrpc.UnaryInvoker, opts ...gogrpc.CallOption) error {
		chosen := requestctx.LocaleFromContext(ctx)
		if chosen == "" {
			chosen = locale
		}
		return invoker(requestctx.OutgoingLocale(ctx, chosen), method, req, reply, cc, opts...)
	}
}

// DialWithHealth dials cfg.Addr and waits for the health check to serve.
// It closes the connection if the health check fails.
func DialWithHealth(ctx context.Context, cfg DialConfig, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = DialerFunc(gogrpc.DialContext)
	}
	if cfg.Locale != "" {
		opts = append(opts, gogrpc.WithChainUnaryInterceptor(LocaleUnaryClientInterceptor(cfg.Locale)))
	}

	dialCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	conn, err := dialer.DialContext(dialCtx, cfg.Addr, opts...)
	if err != nil {
		return nil, &DialError{Addr: cfg.Addr, Stage: DialStageConnect, Err: err}
	}
	if err := WaitForHealth(dialCtx, conn, cfg.HealthService, cfg.Logf); err != nil {
		_ = conn.Close()
		return nil, &DialError{Addr: cfg.Addr, Stage: DialStageHealth, Err: err}
	}
	return conn, nil
}
