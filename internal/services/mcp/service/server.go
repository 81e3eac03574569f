package service

import (
	"fmt"

	"github.com/louisbranch/outputinfo/internal/services/mcp/domain"
	outputs "github.com/louisbranch/outputinfo/internal/services/outputs/api/grpc/outputs"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
)

const (
	serverName    = "outputinfo MCP"
	serverVersion = "0.1.0"
)

// TransportKind selects how MCP messages reach the server.
type TransportKind string

const (
	// TransportStdio serves one client over stdin/stdout.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP serves the streamable HTTP transport.
	TransportHTTP TransportKind = "http"
)

// Config configures the MCP adapter.
type Config struct {
	// GRPCAddr is the output action service address. Defaults to the
	// discovery convention.
	GRPCAddr  string
	Transport TransportKind
	// HTTPAddr is the listen address for TransportHTTP. Defaults to the loopback
	// discovery convention.
	HTTPAddr string
	// Locale is sent with every call so tool errors come back translated.
	Locale string
}

// Server is an MCP server backed by one gRPC connection.
type Server struct {
	mcpServer *mcp.Server
	conn      *grpc.ClientConn
}

type registrationModule struct {
	name     string
	register func(*mcp.Server, domain.OutputActionClient) error
}

func registrationModules() []registrationModule {
	return []registrationModule{
		{name: "output-action-tools", register: registerOutputActionTools},
		{name: "entity-tools", register: registerEntityTools},
		{name: "entity-resources", register: registerEntityResources},
	}
}

func registerOutputActionTools(server *mcp.Server, client domain.OutputActionClient) error {
	mcp.AddTool(server, domain.OutputActionCountTool(), domain.OutputActionCountHandler(client))
	mcp.AddTool(server, domain.OutputActionListTool(), domain.OutputActionListHandler(client))
	mcp.AddTool(server, domain.OutputActionGetTool(), domain.OutputActionGetHandler(client))
	mcp.AddTool(server, domain.OutputActionUpdateTool(), domain.OutputActionUpdateHandler(client))
	mcp.AddTool(server, domain.OutputActionInsertTool(), domain.OutputActionInsertHandler(client))
	mcp.AddTool(server, domain.OutputActionRemoveTool(), domain.OutputActionRemoveHandler(client))
	return nil
}

func registerEntityTools(server *mcp.Server, client domain.OutputActionClient) error {
	mcp.AddTool(server, domain.EntityOutputFireTool(), domain.EntityOutputFireHandler(client))
	mcp.AddTool(server, domain.EntityListTool(), domain.EntityListHandler(client))
	return nil
}

func registerEntityResources(server *mcp.Server, client domain.OutputActionClient) error {
	server.AddResource(domain.EntitiesResource(), domain.EntitiesResourceHandler(client))
	return nil
}

// newServer registers every module against a client built on conn.
func newServer(conn *grpc.ClientConn) (*Server, error) {
	return newServerWithClient(conn, outputs.NewClient(conn))
}

func newServerWithClient(conn *grpc.ClientConn, client domain.OutputActionClient) (*Server, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	for _, module := range registrationModules() {
		if err := module.register(mcpServer, client); err != nil {
			return nil, fmt.Errorf("register MCP module %q: %w", module.name, err)
		}
	}
	return &Server{mcpServer: mcpServer, conn: conn}, nil
}
