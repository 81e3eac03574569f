package grpc

import (
	"context"
	"errors"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthFirstBackoff = 200 * time.Millisecond
	healthMaxBackoff   = time.Second
	healthCallTimeout  = time.Second
)

// ErrNoConnection is returned by WaitForHealth when conn is nil.
var ErrNoConnection = errors.New("gRPC connection is not configured")

// WaitForHealth polls the health service until service reports SERVING or
// ctx ends. Polls back off from 200ms to one second.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return ErrNoConnection
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	client := grpc_health_v1.NewHealthClient(conn)
	wait := healthFirstBackoff
	for {
		status, err := checkHealth(ctx, client, service)
		switch {
		case err != nil:
			logf("waiting for %s health: %v", serviceLabel(service), err)
		case status == grpc_health_v1.HealthCheckResponse_SERVING:
			logf("%s health is SERVING", serviceLabel(service))
			return nil
		default:
			logf("waiting for %s health: status %s", serviceLabel(service), status)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &healthWaitError{service: serviceLabel(service), err: ctx.Err()}
		case <-timer.C:
		}
		wait = min(wait*2, healthMaxBackoff)
	}
}

func checkHealth(ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, healthCallTimeout)
	defer cancel()
	resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func serviceLabel(service string) string {
	if service == "" {
		return "server"
	}
	return service
}

type healthWaitError struct {
	service string
	err     error
}

func (e *healthWaitError) Error() string {
	return "wait for " + e.service + " health: " + e.err.Error()
}

func (e *healthWaitError) Unwrap() error { return e.err }
