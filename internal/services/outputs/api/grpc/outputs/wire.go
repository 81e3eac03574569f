package outputs

import (
	"fmt"
	"math"

	apperrors "github.com/louisbranch/outputinfo/internal/platform/errors"
	"github.com/louisbranch/outputinfo/internal/services/outputs/action"
	"github.com/louisbranch/outputinfo/internal/services/outputs/entity"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names shared by requests and responses.
const (
	fieldEntity        = "entity"
	fieldOutput        = "output"
	fieldIndex         = "index"
	fieldTarget        = "target"
	fieldTargetInput   = "target_input"
	fieldParameter     = "parameter"
	fieldDelay         = "delay"
	fieldTimesToFire   = "times_to_fire"
	fieldIDStamp       = "id_stamp"
	fieldAfter         = "after"
	fieldCount         = "count"
	fieldAction        = "action"
	fieldActions       = "actions"
	fieldMaxDelay      = "max_delay"
	fieldRemoved       = "removed"
	fieldValue         = "value"
	fieldActivator     = "activator"
	fieldFired         = "fired"
	fieldEvents        = "events"
	fieldPageSize      = "page_size"
	fieldPageToken     = "page_token"
	fieldNextPageToken = "next_page_token"
	fieldEntities      = "entities"
	fieldHandle        = "handle"
	fieldClass         = "class"
	fieldName          = "name"
	fieldFilter        = "filter"
	fieldOutputs       = "outputs"
	fieldCaller        = "caller"
)

func hasField(s *structpb.Struct, key string) bool {
	if s == nil {
		return false
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return false
	}
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	return !isNull
}

func stringField(s *structpb.Struct, key string) (string, error) {
	v := s.GetFields()[key]
	switch kind := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return "", nil
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	default:
		return "", invalidField(key, "must be a string")
	}
}

func numberField(s *structpb.Struct, key string, fallback float64) (float64, error) {
	v := s.GetFields()[key]
	switch kind := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return fallback, nil
	case *structpb.Value_NumberValue:
		if math.IsNaN(kind.NumberValue) || math.IsInf(kind.NumberValue, 0) {
			return 0, invalidField(key, "must be finite")
		}
		return kind.NumberValue, nil
	default:
		return 0, invalidField(key, "must be a number")
	}
}

func intField(s *structpb.Struct, key string, fallback int) (int, error) {
	n, err := numberField(s, key, float64(fallback))
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, invalidField(key, "must be a 32-bit integer")
	}
	return int(n), nil
}

func boolField(s *structpb.Struct, key string) (bool, error) {
	v := s.GetFields()[key]
	switch kind := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return false, nil
	case *structpb.Value_BoolValue:
		return kind.BoolValue, nil
	default:
		return false, invalidField(key, "must be a boolean")
	}
}

func invalidField(key, reason string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument,
		fmt.Sprintf("field %s %s", key, reason),
		map[string]string{"Reason": fmt.Sprintf("%s %s", key, reason)})
}

// outputRef reads the (entity, output) pair every list request carries.
func outputRef(s *structpb.Struct) (entity.Handle, string, error) {
	if !hasField(s, fieldEntity) {
		return 0, "", invalidField(fieldEntity, "is required")
	}
	h, err := intField(s, fieldEntity, 0)
	if err != nil {
		return 0, "", err
	}
	output, err := stringField(s, fieldOutput)
	if err != nil {
		return 0, "", err
	}
	if output == "" {
		return 0, "", invalidField(fieldOutput, "is required")
	}
	return entity.Handle(h), output, nil
}

func actionValue(index int, a action.Action) map[string]any {
	return map[string]any{
		fieldIndex:       index,
		fieldTarget:      a.Target,
		fieldTargetInput: a.TargetInput,
		fieldParameter:   a.Parameter,
		fieldDelay:       float64(a.Delay),
		fieldTimesToFire: a.TimesToFire,
		fieldIDStamp:     a.IDStamp,
	}
}

func actionFromStruct(s *structpb.Struct) (action.Action, int, error) {
	var a action.Action
	var err error
	if a.Target, err = stringField(s, fieldTarget); err != nil {
		return a, 0, err
	}
	if a.TargetInput, err = stringField(s, fieldTargetInput); err != nil {
		return a, 0, err
	}
	if a.Parameter, err = stringField(s, fieldParameter); err != nil {
		return a, 0, err
	}
	delay, err := numberField(s, fieldDelay, 0)
	if err != nil {
		return a, 0, err
	}
	a.Delay = float32(delay)
	if a.TimesToFire, err = intField(s, fieldTimesToFire, action.FireAlways); err != nil {
		return a, 0, err
	}
	if a.IDStamp, err = intField(s, fieldIDStamp, 0); err != nil {
		return a, 0, err
	}
	index, err := intField(s, fieldIndex, 0)
	return a, index, err
}

func eventValue(e action.Event) map[string]any {
	return map[string]any{
		fieldTarget:      e.Target,
		fieldTargetInput: e.TargetInput,
		fieldParameter:   e.Parameter,
		fieldDelay:       float64(e.Delay),
		fieldActivator:   e.Activator,
		fieldCaller:      e.Caller,
		fieldIDStamp:     e.IDStamp,
	}
}

func eventFromStruct(s *structpb.Struct) (action.Event, error) {
	a, _, err := actionFromStruct(s)
	if err != nil {
		return action.Event{}, err
	}
	activator, err := intField(s, fieldActivator, 0)
	if err != nil {
		return action.Event{}, err
	}
	caller, err := intField(s, fieldCaller, 0)
	if err != nil {
		return action.Event{}, err
	}
	return action.Event{
		Target:      a.Target,
		TargetInput: a.TargetInput,
		Parameter:   a.Parameter,
		Delay:       a.Delay,
		Activator:   activator,
		Caller:      caller,
		IDStamp:     a.IDStamp,
	}, nil
}

func entityValue(info entity.Info) map[string]any {
	outputs := make([]any, 0, len(info.Outputs))
	for _, name := range info.Outputs {
		outputs = append(outputs, name)
	}
	return map[string]any{
		fieldHandle:  int(info.Handle),
		fieldClass:   info.Class,
		fieldName:    info.Name,
		fieldOutputs: outputs,
	}
}

func entityFromStruct(s *structpb.Struct) (entity.Info, error) {
	h, err := intField(s, fieldHandle, 0)
	if err != nil {
		return entity.Info{}, err
	}
	info := entity.Info{Handle: entity.Handle(h)}
	if info.Class, err = stringField(s, fieldClass); err != nil {
		return entity.Info{}, err
	}
	if info.Name, err = stringField(s, fieldName); err != nil {
		return entity.Info{}, err
	}
	for _, v := range s.GetFields()[fieldOutputs].GetListValue().GetValues() {
		info.Outputs = append(info.Outputs, v.GetStringValue())
	}
	return info, nil
}

func structList(s *structpb.Struct, key string) []*structpb.Struct {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]*structpb.Struct, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStructValue())
	}
	return out
}
