// Package grpcbackend carries the signing service API over gRPC.
package grpcbackend

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "xdao.digidoc.backend.v1.Backend"

// BackendServer is the server API for the signing service.
//
// Messages are protobuf well-known types so the package needs no protoc
// toolchain. Structured requests and replies travel as structpb.Struct;
// binary fields inside them are base64 text.
type BackendServer interface {
	OpenSession(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	CreateContainer(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	AddFile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PrepareSignature(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FinalizeSignature(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveSignature(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetContents(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	CloseSession(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// UnimplementedBackendServer can be embedded to have forward compatible implementations.
type UnimplementedBackendServer struct{}

func (UnimplementedBackendServer) OpenSession(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method OpenSession not implemented")
}
func (UnimplementedBackendServer) CreateContainer(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateContainer not implemented")
}
func (UnimplementedBackendServer) AddFile(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method AddFile not implemented")
}
func (UnimplementedBackendServer) PrepareSignature(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method PrepareSignature not implemented")
}
func (UnimplementedBackendServer) FinalizeSignature(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method FinalizeSignature not implemented")
}
func (UnimplementedBackendServer) RemoveSignature(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveSignature not implemented")
}
func (UnimplementedBackendServer) GetContents(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetContents not implemented")
}
func (UnimplementedBackendServer) CloseSession(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method CloseSession not implemented")
}

// RegisterBackendServer registers the signing service on a gRPC server.
func RegisterBackendServer(s grpc.ServiceRegistrar, srv BackendServer) {
	s.RegisterService(&Backend_ServiceDesc, srv)
}

// BackendClient is the client API for the signing service.
type BackendClient interface {
	OpenSession(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	CreateContainer(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	AddFile(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	PrepareSignature(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	FinalizeSignature(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	RemoveSignature(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetContents(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	CloseSession(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type backendClient struct{ cc grpc.ClientConnInterface }

func NewBackendClient(cc grpc.ClientConnInterface) BackendClient { return &backendClient{cc: cc} }

func invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Out, error) {
	out := new(Out)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *backendClient) OpenSession(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "OpenSession", in, opts)
}

func (c *backendClient) CreateContainer(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "CreateContainer", in, opts)
}

func (c *backendClient) AddFile(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "AddFile", in, opts)
}

func (c *backendClient) PrepareSignature(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "PrepareSignature", in, opts)
}

func (c *backendClient) FinalizeSignature(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "FinalizeSignature", in, opts)
}

func (c *backendClient) RemoveSignature(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "RemoveSignature", in, opts)
}

func (c *backendClient) GetContents(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, "GetContents", in, opts)
}

func (c *backendClient) CloseSession(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "CloseSession", in, opts)
}

// unaryHandler adapts a typed server method to grpc.MethodDesc.
func unaryHandler[In any, Out any](method string, call func(BackendServer, context.Context, *In) (Out, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BackendServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(BackendServer), ctx, req.(*In))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Backend_ServiceDesc is the grpc.ServiceDesc for the signing service.
var Backend_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenSession", Handler: unaryHandler("OpenSession", BackendServer.OpenSession)},
		{MethodName: "CreateContainer", Handler: unaryHandler("CreateContainer", BackendServer.CreateContainer)},
		{MethodName: "AddFile", Handler: unaryHandler("AddFile", BackendServer.AddFile)},
		{MethodName: "PrepareSignature", Handler: unaryHandler("PrepareSignature", BackendServer.PrepareSignature)},
		{MethodName: "FinalizeSignature", Handler: unaryHandler("FinalizeSignature", BackendServer.FinalizeSignature)},
		{MethodName: "RemoveSignature", Handler: unaryHandler("RemoveSignature", BackendServer.RemoveSignature)},
		{MethodName: "GetContents", Handler: unaryHandler("GetContents", BackendServer.GetContents)},
		{MethodName: "CloseSession", Handler: unaryHandler("CloseSession", BackendServer.CloseSession)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "backend.proto",
}
