package logstore

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully-qualified lognode service name.
const ServiceName = "rtm.logstore.v1.LogStore"

type AppendRequest struct {
	Key    string `json:"key"`
	Value  []byte `json:"value"`
	MaxLen int    `json:"max_len"`
}

type AppendResponse struct {
	Position string `json:"position"`
}

type AppendBatchRequest struct {
	Records []Record `json:"records"`
}

type AppendBatchResponse struct {
	Positions []string `json:"positions"`
}

type TailRequest struct {
	Key  string `json:"key"`
	From string `json:"from"`
}

type RangeLastRequest struct {
	Key string `json:"key"`
	N   int    `json:"n"`
}

type EntriesResponse struct {
	Entries []Entry `json:"entries"`
}

type ReadAtRequest struct {
	Key      string `json:"key"`
	Position string `json:"position"`
}

type KeyRequest struct {
	Key string `json:"key"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type LenResponse struct {
	Len int64 `json:"len"`
}

type PositionResponse struct {
	Position string `json:"position"`
}

type Empty struct{}

// LogStoreServer is the server API of the lognode service.
type LogStoreServer interface {
	Append(context.Context, *AppendRequest) (*AppendResponse, error)
	AppendBatch(context.Context, *AppendBatchRequest) (*AppendBatchResponse, error)
	Tail(*TailRequest, LogStore_TailServer) error
	RangeLast(context.Context, *RangeLastRequest) (*EntriesResponse, error)
	ReadAt(context.Context, *ReadAtRequest) (*Entry, error)
	Exists(context.Context, *KeyRequest) (*ExistsResponse, error)
	Len(context.Context, *KeyRequest) (*LenResponse, error)
	Delete(context.Context, *KeyRequest) (*Empty, error)
	LastPosition(context.Context, *KeyRequest) (*PositionResponse, error)
}

// LogStore_TailServer is the server side of the Tail stream.
type LogStore_TailServer interface {
	Send(*Entry) error
	grpc.ServerStream
}

type logStoreTailServer struct{ grpc.ServerStream }

func (x *logStoreTailServer) Send(m *Entry) error { return x.ServerStream.SendMsg(m) }

// RegisterLogStoreServer registers srv on s.
func RegisterLogStoreServer(s grpc.ServiceRegistrar, srv LogStoreServer) {
	s.RegisterService(&LogStore_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](call func(LogStoreServer, context.Context, *Req) (*Resp, error), method string) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LogStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LogStoreServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func tailHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(TailRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LogStoreServer).Tail(in, &logStoreTailServer{stream})
}

// LogStore_ServiceDesc describes the lognode service.
var LogStore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LogStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Append", Handler: unaryHandler(LogStoreServer.Append, "Append")},
		{MethodName: "AppendBatch", Handler: unaryHandler(LogStoreServer.AppendBatch, "AppendBatch")},
		{MethodName: "RangeLast", Handler: unaryHandler(LogStoreServer.RangeLast, "RangeLast")},
		{MethodName: "ReadAt", Handler: unaryHandler(LogStoreServer.ReadAt, "ReadAt")},
		{MethodName: "Exists", Handler: unaryHandler(LogStoreServer.Exists, "Exists")},
		{MethodName: "Len", Handler: unaryHandler(LogStoreServer.Len, "Len")},
		{MethodName: "Delete", Handler: unaryHandler(LogStoreServer.Delete, "Delete")},
		{MethodName: "LastPosition", Handler: unaryHandler(LogStoreServer.LastPosition, "LastPosition")},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Tail", Handler: tailHandler, ServerStreams: true},
	},
}

// ToStatus maps client errors onto gRPC status errors.
func ToStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidPosition):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus maps gRPC status errors back onto client errors.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.InvalidArgument:
		return ErrInvalidPosition
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return err
}
