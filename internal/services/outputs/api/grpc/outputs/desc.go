// Package outputs exposes output action lists over gRPC.
//
// Messages are google.protobuf.Struct values so the service can be
// registered without generated stubs; wire.go documents the field names.
package outputs

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "outputinfo.v1.OutputActionService"

const (
	MethodCountActions = "CountActions"
	MethodListActions  = "ListActions"
	MethodGetAction    = "GetAction"
	MethodUpdateAction = "UpdateAction"
	MethodInsertAction = "InsertAction"
	MethodRemoveAction = "RemoveAction"
	MethodFireOutput   = "FireOutput"
	MethodListEntities = "ListEntities"
)

// Server is the server API for OutputActionService.
type Server interface {
	CountActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InsertAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FireOutput(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEntities(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(Server, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(Server), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(Server), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes OutputActionService for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodCountActions, Server.CountActions),
		unaryMethod(MethodListActions, Server.ListActions),
		unaryMethod(MethodGetAction, Server.GetAction),
		unaryMethod(MethodUpdateAction, Server.UpdateAction),
		unaryMethod(MethodInsertAction, Server.InsertAction),
		unaryMethod(MethodRemoveAction, Server.RemoveAction),
		unaryMethod(MethodFireOutput, Server.FireOutput),
		unaryMethod(MethodListEntities, Server.ListEntities),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "outputinfo/v1/output_action.proto",
}

// RegisterServer registers srv on s.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}
