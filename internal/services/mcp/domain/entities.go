package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/outputinfo/internal/platform/filter"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// EntitiesResourceURI addresses the full entity listing.
const EntitiesResourceURI = "outputinfo://entities"

// entityResourcePageSize is the page size used while walking every entity.
const entityResourcePageSize = 100

// EntityListInput filters and pages the entity listing.
type EntityListInput struct {
	PageSize  int    `json:"page_size,omitempty" jsonschema:"maximum entities per page (default 50, max 200)"`
	PageToken string `json:"page_token,omitempty" jsonschema:"next_page_token from a previous call"`
	Name      string `json:"name,omitempty" jsonschema:"only entities with exactly this name"`
	Filter    string `json:"filter,omitempty" jsonschema:"AIP-160 filter over handle, class and name, e.g. class = \"func_door\" AND handle > 3"`
}

// EntityEntry describes one entity.
type EntityEntry struct {
	Handle  int               `json:"handle" jsonschema:"entity handle used by the output tools"`
	Class   string            `json:"class" jsonschema:"entity class name"`
	Name    string            `json:"name,omitempty" jsonschema:"targetname"`
	Outputs []string          `json:"outputs" jsonschema:"output names, lowercased"`
	Fields  map[string]string `json:"fields,omitempty" jsonschema:"plain keyvalues"`
}

// EntityListResult is one page of entities.
type EntityListResult struct {
	Entities      []EntityEntry `json:"entities"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// EntityListTool defines the MCP tool schema for listing entities.
func EntityListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "entity_list",
		Description: "Lists spawned entities with their handles and output names.",
	}
}

// EntityListHandler lists one page of entities.
func EntityListHandler(client OutputActionClient) mcp.ToolHandlerFor[EntityListInput, EntityListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EntityListInput) (*mcp.CallToolResult, EntityListResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		query := input.Filter
		if input.Name != "" {
			query = filter.Equals("name", input.Name, input.Filter)
		}
		page, err := client.ListEntities(runCtx, input.PageSize, input.PageToken, query)
		if err != nil {
			return nil, EntityListResult{}, fmt.Errorf("entity list failed: %w", err)
		}
		result := EntityListResult{Entities: make([]EntityEntry, 0, len(page.Entities)), NextPageToken: page.NextPageToken}
		for _, info := range page.Entities {
			result.Entities = append(result.Entities, EntityEntry{
				Handle:  int(info.Handle),
				Class:   info.Class,
				Name:    info.Name,
				Outputs: info.Outputs,
				Fields:  info.Fields,
			})
		}
		return nil, result, nil
	}
}

// EntitiesResource describes the entity listing resource.
func EntitiesResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "entities",
		Title:       "Entities",
		Description: "Every spawned entity with its outputs, as JSON.",
		MIMEType:    "application/json",
		URI:         EntitiesResourceURI,
	}
}

// EntitiesResourceHandler reads every page of entities into one JSON document.
func EntitiesResourceHandler(client OutputActionClient) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if client == nil {
			return nil, fmt.Errorf("entity list client is not configured")
		}
		uri := EntitiesResourceURI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}

		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		payload := EntityListResult{Entities: []EntityEntry{}}
		token := ""
		for {
			page, err := client.ListEntities(runCtx, entityResourcePageSize, token, "")
			if err != nil {
				return nil, fmt.Errorf("entity list failed: %w", err)
			}
			for _, info := range page.Entities {
				payload.Entities = append(payload.Entities, EntityEntry{
					Handle:  int(info.Handle),
					Class:   info.Class,
					Name:    info.Name,
					Outputs: info.Outputs,
					Fields:  info.Fields,
				})
			}
			if page.NextPageToken == "" {
				break
			}
			token = page.NextPageToken
		}

		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal entity list: %w", err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: "application/json", Text: string(data)},
			},
		}, nil
	}
}
