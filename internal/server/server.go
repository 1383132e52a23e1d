// Package server exposes a livecode service over gRPC as livecode.v1.Bridge.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	livecodev1 "github.com/ppiankov/livecode/api/livecode/v1"
	"github.com/ppiankov/livecode/internal/executor"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/service"
)

// Server implements the Bridge gRPC service.
type Server struct {
	svc        *service.Service
	logger     *slog.Logger
	grpcServer *grpc.Server
}

// New creates a gRPC server around svc. The caller owns svc.
func New(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{svc: svc, logger: logger}
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))
	livecodev1.RegisterBridgeServer(s.grpcServer, s)
	return s
}

// Serve starts the gRPC server on addr. Blocks until stopped.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.grpcServer.Serve(lis)
}

// ServeOn starts the gRPC server on the given listener. For testing.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Execute implements the Execute RPC.
func (s *Server) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req executor.Request
	if err := livecodev1.DecodeStrict(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid execute request: %v", err)
	}
	res := s.svc.Execute(ctx, req)
	res.Result = model.Portable(res.Result)
	return encode(res)
}

// Compile implements the Compile RPC.
func (s *Server) Compile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req executor.Request
	if err := livecodev1.DecodeStrict(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid compile request: %v", err)
	}
	res := s.svc.Compile(ctx, req)
	out := compileResponse{CompilationResult: res, ErrorMessage: res.ErrorMessage()}
	if res.Module != nil {
		out.Imports = res.Module.Imports
	}
	return encode(out)
}

// ClearCache implements the ClearCache RPC.
func (s *Server) ClearCache(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	exec := s.svc.Executor()
	n := exec.CacheStats().Entries
	exec.ClearCache()
	return encode(ClearCacheResponse{Cleared: n})
}

// compileResponse adds the derived fields a remote caller cannot compute.
type compileResponse struct {
	model.CompilationResult
	ErrorMessage string   `json:"errorMessage,omitempty"`
	Imports      []string `json:"imports,omitempty"`
}

// ClearCacheResponse is the ClearCache reply body.
type ClearCacheResponse struct {
	Cleared int `json:"cleared"`
}

func encode(v any) (*structpb.Struct, error) {
	out, err := livecodev1.Encode(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc", "method", info.FullMethod, "duration", time.Since(start), "code", status.Code(err).String())
	return resp, err
}
