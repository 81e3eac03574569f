package outputs

import (
	"context"

	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// OutputRef names one output of one entity.
type OutputRef struct {
	Entity int
	Output string
}

// IndexedAction is an action together with its position in the chain.
type IndexedAction struct {
	Index int
	action.Action
}

// ActionUpdate lists the fields to change; nil fields are left alone.
type ActionUpdate struct {
	OutputRef
	Index       int
	Target      *string
	TargetInput *string
	Parameter   *string
	Delay       *float64
	TimesToFire *int
}

// UpdateResult reports the action after an update, or that it was removed.
type UpdateResult struct {
	Action  *IndexedAction
	Removed bool
}

// ActionInsert describes a new action and where to link it.
type ActionInsert struct {
	OutputRef
	Action action.Action
	After  bool
	Index  int
}

// FireResult lists the events produced by firing an output.
type FireResult struct {
	Fired  int
	Events []action.Event
}

// EntityPage is one page of ListEntities.
type EntityPage struct {
	Entities      []entity.Info
	NextPageToken string
}

// Client calls OutputActionService with typed requests. Errors carry the
// server's domain code; use apperrors.CodeOf to inspect it.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client on cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// CountActions returns the number of actions on an output.
func (c *Client) CountActions(ctx context.Context, ref OutputRef) (int, error) {
	out, err := c.invoke(ctx, MethodCountActions, refFields(ref))
	if err != nil {
		return 0, err
	}
	return intField(out, fieldCount, 0)
}

// ListActions returns every action of an output and the largest delay.
func (c *Client) ListActions(ctx context.Context, ref OutputRef) ([]IndexedAction, float64, error) {
	out, err := c.invoke(ctx, MethodListActions, refFields(ref))
	if err != nil {
		return nil, 0, err
	}
	var actions []IndexedAction
	for _, s := range structList(out, fieldActions) {
		a, index, err := actionFromStruct(s)
		if err != nil {
			return nil, 0, err
		}
		actions = append(actions, IndexedAction{Index: index, Action: a})
	}
	maxDelay, err := numberField(out, fieldMaxDelay, 0)
	return actions, maxDelay, err
}

// GetAction returns the action at index.
func (c *Client) GetAction(ctx context.Context, ref OutputRef, index int) (IndexedAction, error) {
	in := refFields(ref)
	in[fieldIndex] = index
	out, err := c.invoke(ctx, MethodGetAction, in)
	if err != nil {
		return IndexedAction{}, err
	}
	a, i, err := actionFromStruct(out.GetFields()[fieldAction].GetStructValue())
	return IndexedAction{Index: i, Action: a}, err
}

// UpdateAction changes the fields set in update.
func (c *Client) UpdateAction(ctx context.Context, update ActionUpdate) (UpdateResult, error) {
	in := refFields(update.OutputRef)
	in[fieldIndex] = update.Index
	if update.Target != nil {
		in[fieldTarget] = *update.Target
	}
	if update.TargetInput != nil {
		in[fieldTargetInput] = *update.TargetInput
	}
	if update.Parameter != nil {
		in[fieldParameter] = *update.Parameter
	}
	if update.Delay != nil {
		in[fieldDelay] = *update.Delay
	}
	if update.TimesToFire != nil {
		in[fieldTimesToFire] = *update.TimesToFire
	}
	out, err := c.invoke(ctx, MethodUpdateAction, in)
	if err != nil {
		return UpdateResult{}, err
	}
	removed, err := boolField(out, fieldRemoved)
	if err != nil || removed {
		return UpdateResult{Removed: removed}, err
	}
	a, i, err := actionFromStruct(out.GetFields()[fieldAction].GetStructValue())
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Action: &IndexedAction{Index: i, Action: a}}, nil
}

// InsertAction links a new action and returns its ID stamp and the new count.
func (c *Client) InsertAction(ctx context.Context, insert ActionInsert) (stamp, count int, err error) {
	in := refFields(insert.OutputRef)
	in[fieldTarget] = insert.Action.Target
	in[fieldTargetInput] = insert.Action.TargetInput
	in[fieldParameter] = insert.Action.Parameter
	in[fieldDelay] = float64(insert.Action.Delay)
	in[fieldTimesToFire] = insert.Action.TimesToFire
	in[fieldAfter] = insert.After
	in[fieldIndex] = insert.Index
	out, err := c.invoke(ctx, MethodInsertAction, in)
	if err != nil {
		return 0, 0, err
	}
	if stamp, err = intField(out, fieldIDStamp, 0); err != nil {
		return 0, 0, err
	}
	count, err = intField(out, fieldCount, 0)
	return stamp, count, err
}

// RemoveAction unlinks the action at index and returns the new count.
func (c *Client) RemoveAction(ctx context.Context, ref OutputRef, index int) (int, error) {
	in := refFields(ref)
	in[fieldIndex] = index
	out, err := c.invoke(ctx, MethodRemoveAction, in)
	if err != nil {
		return 0, err
	}
	return intField(out, fieldCount, 0)
}

// FireOutput fires an output.
func (c *Client) FireOutput(ctx context.Context, ref OutputRef, value string, delay float64, activator int) (FireResult, error) {
	in := refFields(ref)
	in[fieldValue] = value
	in[fieldDelay] = delay
	in[fieldActivator] = activator
	out, err := c.invoke(ctx, MethodFireOutput, in)
	if err != nil {
		return FireResult{}, err
	}
	fired, err := intField(out, fieldFired, 0)
	if err != nil {
		return FireResult{}, err
	}
	result := FireResult{Fired: fired}
	for _, s := range structList(out, fieldEvents) {
		e, err := eventFromStruct(s)
		if err != nil {
			return FireResult{}, err
		}
		result.Events = append(result.Events, e)
	}
	return result, nil
}

// ListEntities returns one page of entities. An empty filter matches all.
func (c *Client) ListEntities(ctx context.Context, pageSize int, pageToken, filter string) (EntityPage, error) {
	out, err := c.invoke(ctx, MethodListEntities, map[string]any{
		fieldPageSize:  pageSize,
		fieldPageToken: pageToken,
		fieldFilter:    filter,
	})
	if err != nil {
		return EntityPage{}, err
	}
	var page EntityPage
	for _, s := range structList(out, fieldEntities) {
		info, err := entityFromStruct(s)
		if err != nil {
			return EntityPage{}, err
		}
		page.Entities = append(page.Entities, info)
	}
	page.NextPageToken, err = stringField(out, fieldNextPageToken)
	return page, err
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidArgument, "encode request", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, apperrors.FromGRPCStatus(err)
	}
	return out, nil
}

func refFields(ref OutputRef) map[string]any {
	return map[string]any{
		fieldEntity: ref.Entity,
		fieldOutput: ref.Output,
	}
}
