package logstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Remote is a Client talking to a lognode over gRPC.
type Remote struct {
	cc       *grpc.ClientConn
	health   healthpb.HealthClient
	endpoint string
}

// NewRemote connects to a grpc://host:port endpoint. The connection is
// established lazily; the first call reports unreachable nodes.
func NewRemote(_ context.Context, endpoint string, opts ...grpc.DialOption) (*Remote, error) {
	target := strings.TrimPrefix(endpoint, "grpc://")
	if target == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEndpoint, endpoint)
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Remote{cc: cc, health: healthpb.NewHealthClient(cc), endpoint: endpoint}, nil
}

func (r *Remote) invoke(ctx context.Context, method string, in, out interface{}) error {
	return fromStatus(r.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out))
}

func (r *Remote) Append(ctx context.Context, key string, value []byte, maxLen int) (string, error) {
	var out AppendResponse
	if err := r.invoke(ctx, "Append", &AppendRequest{Key: key, Value: value, MaxLen: maxLen}, &out); err != nil {
		return "", err
	}
	return out.Position, nil
}

func (r *Remote) AppendBatch(ctx context.Context, recs []Record) ([]string, error) {
	var out AppendBatchResponse
	if err := r.invoke(ctx, "AppendBatch", &AppendBatchRequest{Records: recs}, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

func (r *Remote) Tail(ctx context.Context, key, from string, fn func(Entry) error) error {
	stream, err := r.cc.NewStream(ctx, &LogStore_ServiceDesc.Streams[0], "/"+ServiceName+"/Tail")
	if err != nil {
		return fromStatus(err)
	}
	if err := stream.SendMsg(&TailRequest{Key: key, From: from}); err != nil {
		return fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return fromStatus(err)
	}
	for {
		var e Entry
		if err := stream.RecvMsg(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fromStatus(err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func (r *Remote) RangeLast(ctx context.Context, key string, n int) ([]Entry, error) {
	var out EntriesResponse
	if err := r.invoke(ctx, "RangeLast", &RangeLastRequest{Key: key, N: n}, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (r *Remote) ReadAt(ctx context.Context, key, position string) (Entry, error) {
	var out Entry
	err := r.invoke(ctx, "ReadAt", &ReadAtRequest{Key: key, Position: position}, &out)
	return out, err
}

func (r *Remote) Exists(ctx context.Context, key string) (bool, error) {
	var out ExistsResponse
	err := r.invoke(ctx, "Exists", &KeyRequest{Key: key}, &out)
	return out.Exists, err
}

func (r *Remote) Len(ctx context.Context, key string) (int64, error) {
	var out LenResponse
	err := r.invoke(ctx, "Len", &KeyRequest{Key: key}, &out)
	return out.Len, err
}

func (r *Remote) Delete(ctx context.Context, key string) error {
	return r.invoke(ctx, "Delete", &KeyRequest{Key: key}, &Empty{})
}

func (r *Remote) LastPosition(ctx context.Context, key string) (string, error) {
	var out PositionResponse
	err := r.invoke(ctx, "LastPosition", &KeyRequest{Key: key}, &out)
	return out.Position, err
}

// Ping runs the standard gRPC health check against the node.
func (r *Remote) Ping(ctx context.Context) error {
	resp, err := r.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName}, grpc.CallContentSubtype("proto"))
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("lognode %s: %s", r.endpoint, resp.GetStatus())
	}
	return nil
}

func (r *Remote) Endpoint() string { return r.endpoint }

func (r *Remote) Close() error { return r.cc.Close() }
