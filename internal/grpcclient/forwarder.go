package grpcclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// SendDataMethod es el método unario del forwarder. Request y response
// viajan como google.protobuf.Struct:
//
//	request:  {"device_id": string, "payload": string}
//	response: {"success": bool}
const SendDataMethod = "/forwarder.Forwarder/SendData"

type ForwarderServer interface {
	SendData(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterForwarderServer(s grpc.ServiceRegistrar, srv ForwarderServer) {
	s.RegisterService(&forwarderServiceDesc, srv)
}

var forwarderServiceDesc = grpc.ServiceDesc{
	ServiceName: "forwarder.Forwarder",
	HandlerType: (*ForwarderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendData", Handler: sendDataHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "forwarder.proto",
}

func sendDataHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForwarderServer).SendData(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SendDataMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ForwarderServer).SendData(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
