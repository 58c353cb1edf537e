// Package grpcserver implements the AllocationService gRPC server.
//
// It delegates all business logic to the allocation service and handles
// only the gRPC transport concerns: metadata extraction, error mapping,
// and type conversion between the domain model and well-known protobuf
// messages. The service descriptor is declared by hand so no generated
// code is needed; requests and responses use the types in
// google.golang.org/protobuf/types/known.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"jobmate/allocation-service/internal/allocation"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "allocation.v1.AllocationService"

// Allocator is the business layer behind the RPCs.
type Allocator interface {
	Start() bool
	Accept(offerID string) error
	Reject(offerID string) error
	Snapshot() allocation.Snapshot
	Statistics() allocation.Statistics
}

// AllocationServer is the server API of ServiceName.
type AllocationServer interface {
	Start(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	Accept(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Reject(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Statistics(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Server implements AllocationServer.
type Server struct {
	alloc  Allocator
	logger *slog.Logger
}

// NewServer constructs a gRPC Server backed by alloc.
func NewServer(alloc Allocator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{alloc: alloc, logger: logger}
}

// Register mounts srv on s.
func Register(s *grpc.Server, srv AllocationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// Start locks preferences and runs the first round of every category.
// The reply is false when allocation had already started.
func (s *Server) Start(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	started := s.alloc.Start()
	s.logger.Info("start requested", "caller", callerFromCtx(ctx), "started", started)
	return wrapperspb.Bool(started), nil
}

// Accept confirms an offer and returns its final state.
func (s *Server) Accept(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	return s.resolve(ctx, req.GetValue(), s.alloc.Accept)
}

// Reject declines an offer and returns its final state.
func (s *Server) Reject(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	return s.resolve(ctx, req.GetValue(), s.alloc.Reject)
}

// Statistics returns the global statistics.
func (s *Server) Statistics(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.alloc.Statistics())
}

// Snapshot returns candidates, positions, slots, offers and groups.
func (s *Server) Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.alloc.Snapshot())
}

func (s *Server) resolve(ctx context.Context, offerID string, fn func(string) error) (*structpb.Struct, error) {
	if offerID == "" {
		return nil, status.Error(codes.InvalidArgument, "offer id is required")
	}
	if err := fn(offerID); err != nil {
		return nil, toGRPCError(err)
	}
	s.logger.Debug("offer resolved", "offer", offerID, "caller", callerFromCtx(ctx))
	for _, o := range s.alloc.Snapshot().Offers {
		if o.ID == offerID {
			return toStruct(o)
		}
	}
	return nil, status.Error(codes.NotFound, "offer not found")
}

// ─── Interceptors ────────────────────────────────────────────────────────────

// LoggingInterceptor logs every unary call with its status code and latency.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed", time.Since(start),
		)
		return resp, err
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// callerFromCtx returns the x-user-id value forwarded by the Gateway via
// gRPC metadata, or "anonymous".
func callerFromCtx(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "anonymous"
	}
	if vals := md.Get("x-user-id"); len(vals) > 0 && vals[0] != "" {
		return vals[0]
	}
	return "anonymous"
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	if errors.Is(err, allocation.ErrNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	if errors.Is(err, allocation.ErrInvalidTransition) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	var ve *allocation.ValidationError
	if errors.As(err, &ve) {
		return status.Error(codes.InvalidArgument, ve.Msg)
	}
	return status.Error(codes.Internal, "internal server error")
}

// toStruct converts any JSON-serialisable value into a protobuf Struct,
// keeping the JSON field names used by the REST API.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return s, nil
}
