package grpcstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/acttoken/storage"
)

// Client implements storage.Backend over the Store gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client StoreClient

	// Timeout applies per RPC when non-zero, in addition to any
	// deadline already on the caller's context.
	Timeout time.Duration
}

var _ storage.Backend = (*Client)(nil)

// DialOptions configures Dial.
type DialOptions struct {
	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

// Dial connects to a Store service.
func Dial(target string, opts DialOptions) (*Client, error) {
	cc, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpcstore: dial %s: %w", target, err)
	}
	return &Client{cc: cc, client: NewStoreClient(cc), Timeout: opts.Timeout}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Set(ctx context.Context, key cid.Cid, data []byte, ttl time.Duration) error {
	if !key.Defined() {
		return storage.ErrInvalidKey
	}
	body, err := cbor.Marshal(setEnvelope{
		Key:       key.Bytes(),
		Data:      data,
		TTLMillis: ttl.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("grpcstore: set envelope: %w", err)
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()
	if _, err := c.client.Set(ctx, wrapperspb.Bytes(body)); err != nil {
		return mapRPC(err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key cid.Cid) ([]byte, error) {
	if !key.Defined() {
		return nil, storage.ErrInvalidKey
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Get(ctx, wrapperspb.Bytes(key.Bytes()))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) Delete(ctx context.Context, key cid.Cid) (bool, error) {
	if !key.Defined() {
		return false, storage.ErrInvalidKey
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Delete(ctx, wrapperspb.Bytes(key.Bytes()))
	if err != nil {
		return false, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) SweepExpired(ctx context.Context) (int, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.Sweep(ctx, &emptypb.Empty{})
	if err != nil {
		return 0, mapRPC(err)
	}
	return int(reply.GetValue()), nil
}

func (c *Client) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return context.WithCancel(ctx)
}
