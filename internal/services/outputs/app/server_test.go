package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	outputsservice "github.com/louisbranch/outputinfo/internal/services/outputs/api/grpc/outputs"
	"github.com/gorilla/websocket"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
	"github.com/louisbranch/outputinfo/internal/services/outputs/feed"
	"github.com/louisbranch/outputinfo/internal/services/outputs/pool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const setupScript = `
SpawnEntity("func_button", "button1", { OnPressed = { "door1,Open,,2,-1" } })
`

func testConfig(t *testing.T, dbPath, scriptsDir string) Config {
	t.Helper()
	return Config{
		Addr:           "127.0.0.1:0",
		DBPath:         dbPath,
		ScriptsDir:     scriptsDir,
		Pool:           entity.Config{BlocksPerBlob: 16, Grow: pool.GrowFast, Report: func(string, ...any) {}},
		SaveOnShutdown: true,
	}
}

func startServer(t *testing.T, cfg Config) (*Server, func()) {
	t.Helper()
	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	stop := func() {
		runCancel()
		select {
		case serveErr := <-serveDone:
			if serveErr != nil {
				t.Fatalf("serve: %v", serveErr)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for server shutdown")
		}
	}
	return srv, stop
}

func dial(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial outputinfo server: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := conn.Close(); closeErr != nil {
			t.Fatalf("close gRPC connection: %v", closeErr)
		}
	})
	return conn
}

func TestServerRunsScriptsServesAndPersists(t *testing.T) {
	dir := t.TempDir()
	scriptsDir := filepath.Join(dir, "scripts")
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(scriptsDir, "01_setup.lua"), []byte(setupScript), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	dbPath := filepath.Join(dir, "data", "outputinfo.db")

	srv, stop := startServer(t, testConfig(t, dbPath, scriptsDir))
	conn := dial(t, srv.Addr())

	healthResp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: outputsservice.ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if healthResp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("health status = %v, want SERVING", healthResp.GetStatus())
	}

	client := outputsservice.NewClient(conn)
	page, err := client.ListEntities(context.Background(), 0, "", `name = "button1"`)
	if err != nil {
		t.Fatalf("list entities: %v", err)
	}
	if len(page.Entities) != 1 {
		t.Fatalf("entities = %+v, want button1", page.Entities)
	}
	ref := outputsservice.OutputRef{Entity: int(page.Entities[0].Handle), Output: "OnPressed"}
	if _, _, err := client.InsertAction(context.Background(), outputsservice.ActionInsert{
		OutputRef: ref,
		Action:    action.Action{Target: "lamp", TargetInput: "TurnOn", TimesToFire: action.FireAlways},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	stop()

	// Restart without scripts: the world comes back from the store.
	srv, stop = startServer(t, testConfig(t, dbPath, ""))
	defer stop()
	handle, ok := srv.Registry().FindByName("button1")
	if !ok {
		t.Fatal("expected button1 to be restored")
	}
	err = srv.Registry().With(handle, "OnPressed", func(l *action.List) error {
		if got := l.Count(); got != 2 {
			t.Fatalf("restored count = %d, want 2", got)
		}
		head, err := l.Get(0)
		if err != nil {
			return err
		}
		if head.Target != "lamp" {
			t.Fatalf("restored head = %+v, want lamp", head)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with: %v", err)
	}
}

func TestNewFailsOnBrokenScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.lua"), []byte("this is not lua"), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if _, err := New(context.Background(), testConfig(t, "", dir)); err == nil {
		t.Fatal("expected startup script error")
	}
}

func TestNewRejectsBadPoolConfig(t *testing.T) {
	cfg := testConfig(t, "", "")
	cfg.Pool.BlocksPerBlob = 0
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected pool config error")
	}
}

func TestFiredEventsReachFeed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "01_setup.lua"), []byte(setupScript), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	cfg := testConfig(t, "", dir)
	cfg.FeedAddr = "127.0.0.1:0"
	srv, stop := startServer(t, cfg)
	defer stop()
	if srv.FeedAddr() == "" {
		t.Fatal("expected feed address")
	}

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+srv.FeedAddr()+"/events", nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("dial feed: %v", err)
	}
	defer ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for srv.feed.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("feed subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	client := outputsservice.NewClient(dial(t, srv.Addr()))
	handle, ok := srv.Registry().FindByName("button1")
	if !ok {
		t.Fatal("expected button1")
	}
	result, err := client.FireOutput(context.Background(), outputsservice.OutputRef{Entity: int(handle), Output: "OnPressed"}, "", 0, 0)
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if result.Fired != 1 {
		t.Fatalf("fired = %d, want 1", result.Fired)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read feed frame: %v", err)
	}
	var msg feed.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode feed frame: %v", err)
	}
	if msg.Type != feed.TypeFire || msg.Target != "door1" || msg.TargetInput != "Open" || msg.Delay != 2 {
		t.Fatalf("feed frame = %+v, want door1.Open after 2s", msg)
	}
}
