package domain

import (
	"context"
	"fmt"

	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	outputs "github.com/louisbranch/outputinfo/internal/services/outputs/api/grpc/outputs"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// OutputActionClient is the slice of the gRPC client the tools need.
type OutputActionClient interface {
	CountActions(ctx context.Context, ref outputs.OutputRef) (int, error)
	ListActions(ctx context.Context, ref outputs.OutputRef) ([]outputs.IndexedAction, float64, error)
	GetAction(ctx context.Context, ref outputs.OutputRef, index int) (outputs.IndexedAction, error)
	UpdateAction(ctx context.Context, update outputs.ActionUpdate) (outputs.UpdateResult, error)
	InsertAction(ctx context.Context, insert outputs.ActionInsert) (stamp, count int, err error)
	RemoveAction(ctx context.Context, ref outputs.OutputRef, index int) (int, error)
	FireOutput(ctx context.Context, ref outputs.OutputRef, value string, delay float64, activator int) (outputs.FireResult, error)
	ListEntities(ctx context.Context, pageSize int, pageToken, filter string) (outputs.EntityPage, error)
}

// ActionEntry is one action as rendered to MCP clients.
type ActionEntry struct {
	Index       int     `json:"index" jsonschema:"zero-based position in the output chain"`
	Target      string  `json:"target" jsonschema:"target entity name"`
	TargetInput string  `json:"target_input" jsonschema:"input invoked on the target"`
	Parameter   string  `json:"parameter,omitempty" jsonschema:"parameter override; empty passes the fired value through"`
	Delay       float64 `json:"delay" jsonschema:"seconds to wait before the input runs"`
	TimesToFire int     `json:"times_to_fire" jsonschema:"remaining firings, -1 for unlimited"`
	IDStamp     int     `json:"id_stamp" jsonschema:"stamp assigned when the action was created"`
}

func actionEntry(a outputs.IndexedAction) ActionEntry {
	return ActionEntry{
		Index:       a.Index,
		Target:      a.Target,
		TargetInput: a.TargetInput,
		Parameter:   a.Parameter,
		Delay:       float64(a.Delay),
		TimesToFire: a.TimesToFire,
		IDStamp:     a.IDStamp,
	}
}

// OutputActionCountInput names an entity output.
type OutputActionCountInput struct {
	Entity int    `json:"entity" jsonschema:"entity handle"`
	Output string `json:"output" jsonschema:"output name, for example OnPressed"`
}

// OutputActionCountResult reports the chain length.
type OutputActionCountResult struct {
	Count int `json:"count" jsonschema:"number of actions on the output"`
}

// OutputActionCountTool defines the MCP tool schema for counting actions.
func OutputActionCountTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "output_action_count",
		Description: "Returns how many actions are attached to an entity output.",
	}
}

// OutputActionCountHandler counts the actions on one output.
func OutputActionCountHandler(client OutputActionClient) mcp.ToolHandlerFor[OutputActionCountInput, OutputActionCountResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input OutputActionCountInput) (*mcp.CallToolResult, OutputActionCountResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		count, err := client.CountActions(runCtx, outputs.OutputRef{Entity: input.Entity, Output: input.Output})
		if err != nil {
			return nil, OutputActionCountResult{}, fmt.Errorf("output action count failed: %w", err)
		}
		return nil, OutputActionCountResult{Count: count}, nil
	}
}

// OutputActionListInput names an entity output.
type OutputActionListInput struct {
	Entity int    `json:"entity" jsonschema:"entity handle"`
	Output string `json:"output" jsonschema:"output name"`
}

// OutputActionListResult lists an output chain in firing order.
type OutputActionListResult struct {
	Actions  []ActionEntry `json:"actions" jsonschema:"actions in firing order"`
	MaxDelay float64       `json:"max_delay" jsonschema:"largest delay in the chain"`
}

// OutputActionListTool defines the MCP tool schema for listing actions.
func OutputActionListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "output_action_list",
		Description: "Lists every action on an entity output in firing order.",
	}
}

// OutputActionListHandler lists the actions on one output.
func OutputActionListHandler(client OutputActionClient) mcp.ToolHandlerFor[OutputActionListInput, OutputActionListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input OutputActionListInput) (*mcp.CallToolResult, OutputActionListResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		actions, maxDelay, err := client.ListActions(runCtx, outputs.OutputRef{Entity: input.Entity, Output: input.Output})
		if err != nil {
			return nil, OutputActionListResult{}, fmt.Errorf("output action list failed: %w", err)
		}
		result := OutputActionListResult{Actions: make([]ActionEntry, 0, len(actions)), MaxDelay: maxDelay}
		for _, a := range actions {
			result.Actions = append(result.Actions, actionEntry(a))
		}
		return nil, result, nil
	}
}

// OutputActionGetInput addresses one action.
type OutputActionGetInput struct {
	Entity int    `json:"entity" jsonschema:"entity handle"`
	Output string `json:"output" jsonschema:"output name"`
	Index  int    `json:"index" jsonschema:"zero-based action index"`
}

// OutputActionGetTool defines the MCP tool schema for reading one action.
func OutputActionGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "output_action_get",
		Description: "Reads the action at an index of an entity output.",
	}
}

// OutputActionGetHandler reads one action.
func OutputActionGetHandler(client OutputActionClient) mcp.ToolHandlerFor[OutputActionGetInput, ActionEntry] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input OutputActionGetInput) (*mcp.CallToolResult, ActionEntry, error) {
		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		a, err := client.GetAction(runCtx, outputs.OutputRef{Entity: input.Entity, Output: input.Output}, input.Index)
		if err != nil {
			return nil, ActionEntry{}, fmt.Errorf("output action get failed: %w", err)
		}
		return nil, actionEntry(a), nil
	}
}

// OutputActionUpdateInput changes the fields that are present.
type OutputActionUpdateInput struct {
	Entity      int      `json:"entity" jsonschema:"entity handle"`
	Output      string   `json:"output" jsonschema:"output name"`
	Index       int      `json:"index" jsonschema:"zero-based action index"`
	Target      *string  `json:"target,omitempty" jsonschema:"new target entity name"`
	TargetInput *string  `json:"target_input,omitempty" jsonschema:"new target input"`
	Parameter   *string  `json:"parameter,omitempty" jsonschema:"new parameter override"`
	Delay       *float64 `json:"delay,omitempty" jsonschema:"new delay in seconds"`
	TimesToFire *int     `json:"times_to_fire,omitempty" jsonschema:"new remaining firings; 0 removes the action"`
}

// OutputActionUpdateResult reports the updated action, or that it was removed.
type OutputActionUpdateResult struct {
	Action  *ActionEntry `json:"action,omitempty" jsonschema:"action after the update"`
	Removed bool         `json:"removed" jsonschema:"true when times_to_fire 0 removed the action"`
}

// OutputActionUpdateTool defines the MCP tool schema for updating an action.
func OutputActionUpdateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "output_action_update",
		Description: "Updates fields of one action. Setting times_to_fire to 0 removes it.",
	}
}

// OutputActionUpdateHandler updates one action.
func OutputActionUpdateHandler(client OutputActionClient) mcp.ToolHandlerFor[OutputActionUpdateInput, OutputActionUpdateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input OutputActionUpdateInput) (*mcp.CallToolResult, OutputActionUpdateResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		updated, err := client.UpdateAction(runCtx, outputs.ActionUpdate{
			OutputRef:   outputs.OutputRef{Entity: input.Entity, Output: input.Output},
			Index:       input.Index,
			Target:      input.Target,
			TargetInput: input.TargetInput,
			Parameter:   input.Parameter,
			Delay:       input.Delay,
			TimesToFire: input.TimesToFire,
		})
		if err != nil {
			return nil, OutputActionUpdateResult{}, fmt.Errorf("output action update failed: %w", err)
		}
		result := OutputActionUpdateResult{Removed: updated.Removed}
		if updated.Action != nil {
			entry := actionEntry(*updated.Action)
			result.Action = &entry
		}
		return nil, result, nil
	}
}

// OutputActionInsertInput describes a new action.
type OutputActionInsertInput struct {
	Entity      int     `json:"entity" jsonschema:"entity handle"`
	Output      string  `json:"output" jsonschema:"output name"`
	Target      string  `json:"target" jsonschema:"target entity name"`
	TargetInput string  `json:"target_input" jsonschema:"input invoked on the target"`
	Parameter   string  `json:"parameter,omitempty" jsonschema:"parameter override"`
	Delay       float64 `json:"delay,omitempty" jsonschema:"delay in seconds"`
	TimesToFire *int    `json:"times_to_fire,omitempty" jsonschema:"firings before removal; omitted or -1 fires forever"`
	After       bool    `json:"after,omitempty" jsonschema:"insert after the action at index instead of at the head"`
	Index       int     `json:"index,omitempty" jsonschema:"action index used when after is true"`
}

// OutputActionInsertResult reports the new action's stamp and the chain length.
type OutputActionInsertResult struct {
	IDStamp int `json:"id_stamp" jsonschema:"stamp assigned to the new action"`
	Count   int `json:"count" jsonschema:"number of actions after the insert"`
}

// OutputActionInsertTool defines the MCP tool schema for inserting an action.
func OutputActionInsertTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "output_action_insert",
		Description: "Adds an action to an entity output, at the head or after an existing index.",
	}
}

// OutputActionInsertHandler inserts one action.
func OutputActionInsertHandler(client OutputActionClient) mcp.ToolHandlerFor[OutputActionInsertInput, OutputActionInsertResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input OutputActionInsertInput) (*mcp.CallToolResult, OutputActionInsertResult, error) {
		times := action.FireAlways
		if input.TimesToFire != nil {
			times = *input.TimesToFire
		}

		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		stamp, count, err := client.InsertAction(runCtx, outputs.ActionInsert{
			OutputRef: outputs.OutputRef{Entity: input.Entity, Output: input.Output},
			Action: action.Action{
				Target:      input.Target,
				TargetInput: input.TargetInput,
				Parameter:   input.Parameter,
				Delay:       float32(input.Delay),
				TimesToFire: times,
			},
			After: input.After,
			Index: input.Index,
		})
		if err != nil {
			return nil, OutputActionInsertResult{}, fmt.Errorf("output action insert failed: %w", err)
		}
		return nil, OutputActionInsertResult{IDStamp: stamp, Count: count}, nil
	}
}

// OutputActionRemoveInput addresses the action to remove.
type OutputActionRemoveInput struct {
	Entity int    `json:"entity" jsonschema:"entity handle"`
	Output string `json:"output" jsonschema:"output name"`
	Index  int    `json:"index" jsonschema:"zero-based action index"`
}

// OutputActionRemoveResult reports the chain length after removal.
type OutputActionRemoveResult struct {
	Count int `json:"count" jsonschema:"number of actions left on the output"`
}

// OutputActionRemoveTool defines the MCP tool schema for removing an action.
func OutputActionRemoveTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "output_action_remove",
		Description: "Removes the action at an index of an entity output.",
	}
}

// OutputActionRemoveHandler removes one action.
func OutputActionRemoveHandler(client OutputActionClient) mcp.ToolHandlerFor[OutputActionRemoveInput, OutputActionRemoveResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input OutputActionRemoveInput) (*mcp.CallToolResult, OutputActionRemoveResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		count, err := client.RemoveAction(runCtx, outputs.OutputRef{Entity: input.Entity, Output: input.Output}, input.Index)
		if err != nil {
			return nil, OutputActionRemoveResult{}, fmt.Errorf("output action remove failed: %w", err)
		}
		return nil, OutputActionRemoveResult{Count: count}, nil
	}
}

// EntityOutputFireInput fires an output.
type EntityOutputFireInput struct {
	Entity    int     `json:"entity" jsonschema:"entity handle"`
	Output    string  `json:"output" jsonschema:"output name"`
	Value     string  `json:"value,omitempty" jsonschema:"value passed to actions without a parameter"`
	Delay     float64 `json:"delay,omitempty" jsonschema:"extra delay added to every action"`
	Activator int     `json:"activator,omitempty" jsonschema:"handle of the entity that caused the firing"`
}

// FiredEvent is one event produced by firing an output.
type FiredEvent struct {
	Target      string  `json:"target"`
	TargetInput string  `json:"target_input"`
	Parameter   string  `json:"parameter,omitempty"`
	Delay       float64 `json:"delay"`
	IDStamp     int     `json:"id_stamp"`
}

// EntityOutputFireResult lists the events scheduled by the firing.
type EntityOutputFireResult struct {
	Fired  int          `json:"fired" jsonschema:"number of actions that fired"`
	Events []FiredEvent `json:"events" jsonschema:"events in chain order"`
}

// EntityOutputFireTool defines the MCP tool schema for firing an output.
func EntityOutputFireTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "entity_output_fire",
		Description: "Fires an entity output. Limited actions count down and are removed when spent.",
	}
}

// EntityOutputFireHandler fires one output.
func EntityOutputFireHandler(client OutputActionClient) mcp.ToolHandlerFor[EntityOutputFireInput, EntityOutputFireResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EntityOutputFireInput) (*mcp.CallToolResult, EntityOutputFireResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, grpcCallTimeout)
		defer cancel()

		fired, err := client.FireOutput(runCtx, outputs.OutputRef{Entity: input.Entity, Output: input.Output}, input.Value, input.Delay, input.Activator)
		if err != nil {
			return nil, EntityOutputFireResult{}, fmt.Errorf("entity output fire failed: %w", err)
		}
		result := EntityOutputFireResult{Fired: fired.Fired, Events: make([]FiredEvent, 0, len(fired.Events))}
		for _, e := range fired.Events {
			result.Events = append(result.Events, FiredEvent{
				Target:      e.Target,
				TargetInput: e.TargetInput,
				Parameter:   e.Parameter,
				Delay:       float64(e.Delay),
				IDStamp:     e.IDStamp,
			})
		}
		return nil, result, nil
	}
}
