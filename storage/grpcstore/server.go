package grpcstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/acttoken/keyutil"
	"xdao.co/acttoken/storage"
)

// Server exposes a storage.Backend over the Store gRPC service.
type Server struct {
	UnimplementedStoreServer
	Backend storage.Backend

	// Logger receives request-level diagnostics. Nil disables logging.
	Logger *slog.Logger
}

func (s *Server) Set(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	var env setEnvelope
	if err := cbor.Unmarshal(in.GetValue(), &env); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed set envelope")
	}
	key, err := keyutil.Parse(env.Key)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidKey.Error())
	}
	ttl := time.Duration(env.TTLMillis) * time.Millisecond
	if err := s.Backend.Set(ctx, key, env.Data, ttl); err != nil {
		return nil, s.mapErr(ctx, "set", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	key, err := keyutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidKey.Error())
	}
	data, err := s.Backend.Get(ctx, key)
	if err != nil {
		return nil, s.mapErr(ctx, "get", err)
	}
	return wrapperspb.Bytes(data), nil
}

func (s *Server) Delete(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	key, err := keyutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidKey.Error())
	}
	existed, err := s.Backend.Delete(ctx, key)
	if err != nil {
		return nil, s.mapErr(ctx, "delete", err)
	}
	return wrapperspb.Bool(existed), nil
}

func (s *Server) Sweep(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	n, err := s.Backend.SweepExpired(ctx)
	if err != nil {
		return nil, s.mapErr(ctx, "sweep", err)
	}
	if s.Logger != nil && n > 0 {
		s.Logger.InfoContext(ctx, "swept expired records", "removed", n)
	}
	return wrapperspb.Int64(int64(n)), nil
}

func (s *Server) mapErr(ctx context.Context, op string, err error) error {
	switch {
	case storage.IsNotFound(err):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case storage.IsUnavailable(err):
		return status.Error(codes.Unavailable, storage.ErrUnavailable.Error())
	default:
		if s.Logger != nil {
			s.Logger.ErrorContext(ctx, "backend failure", "op", op, "err", err)
		}
		return status.Error(codes.Internal, err.Error())
	}
}
