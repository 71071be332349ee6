package grpcstore

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/acttoken/storage"
)

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		return storage.ErrInvalidKey
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted:
		// Transient; the caller may retry with backoff.
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("%w: rpc %s: %v", storage.ErrUnavailable, st.Code(), st.Message())
	}
}
