// Package livecodev1 describes the livecode.v1.Bridge gRPC service. Message
// bodies are google.protobuf.Struct values, so the service is registered
// from a hand-written descriptor instead of generated stubs.
package livecodev1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "livecode.v1.Bridge"

// Method names.
const (
	MethodExecute    = "Execute"
	MethodCompile    = "Compile"
	MethodClearCache = "ClearCache"
)

// FullMethod returns "/livecode.v1.Bridge/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// BridgeServer is implemented by the bridge server.
type BridgeServer interface {
	Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Compile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ClearCache(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterBridgeServer registers srv on s.
func RegisterBridgeServer(s grpc.ServiceRegistrar, srv BridgeServer) {
	s.RegisterService(&bridgeDesc, srv)
}

type unaryCall func(BridgeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var bridgeDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodExecute, Handler: unary(MethodExecute, BridgeServer.Execute)},
		{MethodName: MethodCompile, Handler: unary(MethodCompile, BridgeServer.Compile)},
		{MethodName: MethodClearCache, Handler: unary(MethodClearCache, BridgeServer.ClearCache)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "livecode/v1/bridge.proto",
}

func unary(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BridgeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BridgeServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Invoke calls method on conn.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode converts a JSON-encodable value into a Struct using its JSON
// field names.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from s, ignoring fields v does not declare.
func Decode(s *structpb.Struct, v any) error {
	return decode(s, v, false)
}

// DecodeStrict fills v from s and rejects unknown fields.
func DecodeStrict(s *structpb.Struct, v any) error {
	return decode(s, v, true)
}

func decode(s *structpb.Struct, v any, strict bool) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
