package remote

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName mirrors a REAPI-shaped fully-qualified gRPC service name.
const serviceName = "moon.remote.v1.RemoteExecution"

// Server is the gRPC-side interface a remote CAS endpoint implements.
// internal/remote ships an in-memory Server (server.go) for tests; a real
// deployment points Client at an external Bazel-REAPI-compatible service
// instead.
type Server interface {
	GetCapabilities(context.Context, *CapabilitiesRequest) (*CapabilitiesResponse, error)
	BatchUpdateBlobs(context.Context, *BatchUpdateBlobsRequest) (*BatchUpdateBlobsResponse, error)
	FindMissingBlobs(context.Context, *FindMissingBlobsRequest) (*FindMissingBlobsResponse, error)
	BatchReadBlobs(context.Context, *BatchReadBlobsRequest) (*BatchReadBlobsResponse, error)
	PushBlob(context.Context, *PushBlobRequest) (*PushBlobResponse, error)
	FetchBlob(context.Context, *FetchBlobRequest) (*FetchBlobResponse, error)
}

func methodFullName(method string) string {
	return "/" + serviceName + "/" + method
}

// RegisterServer registers srv against gs, in the same spirit as a
// generated RegisterXServer function.
func RegisterServer(gs grpc.ServiceRegistrar, srv Server) {
	gs.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCapabilities", Handler: handleGetCapabilities},
		{MethodName: "BatchUpdateBlobs", Handler: handleBatchUpdateBlobs},
		{MethodName: "FindMissingBlobs", Handler: handleFindMissingBlobs},
		{MethodName: "BatchReadBlobs", Handler: handleBatchReadBlobs},
		{MethodName: "PushBlob", Handler: handlePushBlob},
		{MethodName: "FetchBlob", Handler: handleFetchBlob},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/remote/service.go",
}

func handleGetCapabilities(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CapabilitiesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).GetCapabilities(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("GetCapabilities")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).GetCapabilities(ctx, req.(*CapabilitiesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func handleBatchUpdateBlobs(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BatchUpdateBlobsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).BatchUpdateBlobs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("BatchUpdateBlobs")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).BatchUpdateBlobs(ctx, req.(*BatchUpdateBlobsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func handleFindMissingBlobs(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FindMissingBlobsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).FindMissingBlobs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("FindMissingBlobs")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).FindMissingBlobs(ctx, req.(*FindMissingBlobsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func handleBatchReadBlobs(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BatchReadBlobsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).BatchReadBlobs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("BatchReadBlobs")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).BatchReadBlobs(ctx, req.(*BatchReadBlobsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func handlePushBlob(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PushBlobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).PushBlob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("PushBlob")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).PushBlob(ctx, req.(*PushBlobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func handleFetchBlob(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FetchBlobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).FetchBlob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("FetchBlob")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).FetchBlob(ctx, req.(*FetchBlobRequest))
	}
	return interceptor(ctx, in, info, handler)
}
