package outputs

import (
	"context"

	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
	"github.com/louisbranch/outputinfo/internal/platform/filter"
	"github.com/louisbranch/outputinfo/internal/platform/grpc/pagination"
	platformotel "github.com/louisbranch/outputinfo/internal/platform/otel"
	"github.com/louisbranch/outputinfo/internal/platform/requestctx"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultListEntitiesPageSize = 50
	maxListEntitiesPageSize     = 200
)

// EntityFilter declares the identifiers a ListEntities filter may use.
var EntityFilter = filter.MustSchema(filter.Fields{
	"handle": filter.FieldInt,
	"class":  filter.FieldString,
	"name":   filter.FieldString,
})

// World is the entity registry surface the service needs.
type World interface {
	With(h entity.Handle, output string, fn func(*action.List) error) error
	Fire(h entity.Handle, output string, req action.FireRequest, sink action.Sink) (int, error)
	Entities() []entity.Info
}

// Service exposes outputinfo.v1 gRPC operations.
type Service struct {
	world  World
	tracer trace.Tracer
	sink   action.Sink
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEventSink also delivers fired events to sink, e.g. an event queue.
func WithEventSink(sink action.Sink) ServiceOption {
	return func(s *Service) { s.sink = sink }
}

// NewService creates an output action service backed by world.
func NewService(world World, opts ...ServiceOption) *Service {
	s := &Service{
		world:  world,
		tracer: platformotel.Tracer("outputinfo/api/grpc/outputs"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CountActions returns the number of actions on an output.
func (s *Service) CountActions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var count int
	err := s.withOutput(ctx, MethodCountActions, in, func(_ context.Context, l *action.List) error {
		count = l.Count()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response(map[string]any{fieldCount: count})
}

// ListActions returns every action of an output, head first.
func (s *Service) ListActions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actions := []any{}
	var maxDelay float32
	err := s.withOutput(ctx, MethodListActions, in, func(_ context.Context, l *action.List) error {
		for i, a := range l.All() {
			actions = append(actions, actionValue(i, a))
		}
		maxDelay = l.MaxDelay()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response(map[string]any{
		fieldActions:  actions,
		fieldMaxDelay: float64(maxDelay),
	})
}

// GetAction returns the action at an index.
func (s *Service) GetAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var value map[string]any
	err := s.withOutput(ctx, MethodGetAction, in, func(_ context.Context, l *action.List) error {
		index, err := intField(in, fieldIndex, 0)
		if err != nil {
			return err
		}
		a, err := l.Get(index)
		if err != nil {
			return err
		}
		value = actionValue(index, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response(map[string]any{fieldAction: value})
}

// UpdateAction changes the fields present in the request. Setting
// times_to_fire to 0 removes the action.
func (s *Service) UpdateAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	result := map[string]any{fieldRemoved: false}
	err := s.withOutput(ctx, MethodUpdateAction, in, func(_ context.Context, l *action.List) error {
		index, err := intField(in, fieldIndex, 0)
		if err != nil {
			return err
		}
		// Validate everything before the first mutation.
		if _, err := l.Get(index); err != nil {
			return err
		}
		strs := map[action.Field]string{}
		for field, key := range map[action.Field]string{
			action.FieldTarget:      fieldTarget,
			action.FieldTargetInput: fieldTargetInput,
			action.FieldParameter:   fieldParameter,
		} {
			if !hasField(in, key) {
				continue
			}
			value, err := stringField(in, key)
			if err != nil {
				return err
			}
			strs[field] = value
		}
		var delay float64
		if hasField(in, fieldDelay) {
			if delay, err = numberField(in, fieldDelay, 0); err != nil {
				return err
			}
		}
		var times int
		if hasField(in, fieldTimesToFire) {
			if times, err = intField(in, fieldTimesToFire, 0); err != nil {
				return err
			}
		}

		for field, value := range strs {
			if err := l.SetField(index, field, value); err != nil {
				return err
			}
		}
		if hasField(in, fieldDelay) {
			if err := l.SetDelay(index, float32(delay)); err != nil {
				return err
			}
		}
		if hasField(in, fieldTimesToFire) {
			if err := l.SetTimesToFire(index, times); err != nil {
				return err
			}
			if times == 0 {
				result[fieldRemoved] = true
				return nil
			}
		}
		a, err := l.Get(index)
		if err != nil {
			return err
		}
		result[fieldAction] = actionValue(index, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response(result)
}

// InsertAction links a new action at the head, or after index when after
// is set.
func (s *Service) InsertAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var stamp, count int
	err := s.withOutput(ctx, MethodInsertAction, in, func(_ context.Context, l *action.List) error {
		a, index, err := actionFromStruct(in)
		if err != nil {
			return err
		}
		if a.Target == "" || a.TargetInput == "" {
			return invalidField(fieldTarget, "and target_input are required")
		}
		after, err := boolField(in, fieldAfter)
		if err != nil {
			return err
		}
		placement := action.Prepend
		if after {
			placement = action.After
		}
		stamp, err = l.InsertAt(index, a, placement)
		if err != nil {
			return err
		}
		count = l.Count()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response(map[string]any{fieldIDStamp: stamp, fieldCount: count})
}

// RemoveAction unlinks the action at an index.
func (s *Service) RemoveAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var count int
	err := s.withOutput(ctx, MethodRemoveAction, in, func(_ context.Context, l *action.List) error {
		index, err := intField(in, fieldIndex, 0)
		if err != nil {
			return err
		}
		if err := l.RemoveAt(index); err != nil {
			return err
		}
		count = l.Count()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response(map[string]any{fieldCount: count})
}

// FireOutput fires an output and returns the events it produced.
func (s *Service) FireOutput(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "OutputActionService."+MethodFireOutput)
	defer span.End()

	h, output, err := outputRef(in)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	span.SetAttributes(attribute.Int("outputinfo.entity", int(h)), attribute.String("outputinfo.output", output))

	req := action.FireRequest{Caller: int(h)}
	if req.Value, err = stringField(in, fieldValue); err != nil {
		return nil, s.fail(ctx, span, err)
	}
	delay, err := numberField(in, fieldDelay, 0)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	req.Delay = float32(delay)
	if req.Activator, err = intField(in, fieldActivator, 0); err != nil {
		return nil, s.fail(ctx, span, err)
	}

	events := []any{}
	fired, err := s.world.Fire(h, output, req, func(e action.Event) {
		events = append(events, eventValue(e))
		if s.sink != nil {
			s.sink(e)
		}
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	span.SetAttributes(attribute.Int("outputinfo.fired", fired))
	return response(map[string]any{fieldFired: fired, fieldEvents: events})
}

// ListEntities returns a page of entities ordered by handle, narrowed by an
// optional AIP-160 filter over handle, class and name.
func (s *Service) ListEntities(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "OutputActionService."+MethodListEntities)
	defer span.End()

	size, err := intField(in, fieldPageSize, 0)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	pageSize := pagination.ClampPageSize(int32(size), pagination.PageSizeConfig{
		Default: defaultListEntitiesPageSize,
		Max:     maxListEntitiesPageSize,
	})
	token, err := stringField(in, fieldPageToken)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	after, hasCursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, s.fail(ctx, span, apperrors.WithMetadata(apperrors.CodeInvalidArgument, err.Error(),
			map[string]string{"Reason": "page_token is invalid"}))
	}
	filterStr, err := stringField(in, fieldFilter)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	match, err := EntityFilter.Parse(filterStr)
	if err != nil {
		return nil, s.fail(ctx, span, apperrors.WithMetadata(apperrors.CodeInvalidArgument, err.Error(),
			map[string]string{"Reason": "filter is invalid"}))
	}

	page := []any{}
	next := ""
	last := 0
	for _, info := range s.world.Entities() {
		if hasCursor && int(info.Handle) <= after {
			continue
		}
		ok, err := match.Match(entityResolver(info))
		if err != nil {
			return nil, s.fail(ctx, span, apperrors.WithMetadata(apperrors.CodeInvalidArgument, err.Error(),
				map[string]string{"Reason": "filter is invalid"}))
		}
		if !ok {
			continue
		}
		if len(page) == pageSize {
			next = pagination.EncodeCursor(last)
			break
		}
		page = append(page, entityValue(info))
		last = int(info.Handle)
	}
	return response(map[string]any{fieldEntities: page, fieldNextPageToken: next})
}

func entityResolver(info entity.Info) filter.Resolver {
	return func(name string) (any, bool) {
		switch name {
		case "handle":
			return int(info.Handle), true
		case "class":
			return info.Class, true
		case "name":
			return info.Name, true
		default:
			return nil, false
		}
	}
}

// withOutput resolves the request's (entity, output) pair and runs fn under
// the output lock inside a span.
func (s *Service) withOutput(ctx context.Context, method string, in *structpb.Struct, fn func(context.Context, *action.List) error) error {
	if s == nil || s.world == nil {
		return status.Error(codes.Internal, "entity registry is not configured")
	}
	ctx, span := s.tracer.Start(ctx, "OutputActionService."+method)
	defer span.End()

	h, output, err := outputRef(in)
	if err != nil {
		return s.fail(ctx, span, err)
	}
	span.SetAttributes(attribute.Int("outputinfo.entity", int(h)), attribute.String("outputinfo.output", output))
	if err := s.world.With(h, output, func(l *action.List) error { return fn(ctx, l) }); err != nil {
		return s.fail(ctx, span, err)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	span.SetAttributes(attribute.String("outputinfo.error_code", string(apperrors.CodeOf(err))))
	locale := requestctx.LocaleFromContext(ctx)
	if locale == "" {
		locale = apperrors.DefaultLocale
	}
	return apperrors.HandleError(err, locale)
}

func response(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

var _ Server = (*Service)(nil)
