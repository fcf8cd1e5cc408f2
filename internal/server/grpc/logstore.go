package grpcserver

import (
	"context"

	"github.com/rzbill/rtm/internal/logstore"
	logpkg "github.com/rzbill/rtm/pkg/log"
)

type logStoreSvc struct {
	store  logstore.Client
	logger logpkg.Logger
}

func (s *logStoreSvc) Append(ctx context.Context, req *logstore.AppendRequest) (*logstore.AppendResponse, error) {
	pos, err := s.store.Append(ctx, req.Key, req.Value, req.MaxLen)
	if err != nil {
		return nil, logstore.ToStatus(err)
	}
	return &logstore.AppendResponse{Position: pos}, nil
}

func (s *logStoreSvc) AppendBatch(ctx context.Context, req *logstore.AppendBatchRequest) (*logstore.AppendBatchResponse, error) {
	pos, err := s.store.AppendBatch(ctx, req.Records)
	if err != nil {
		return nil, logstore.ToStatus(err)
	}
	return &logstore.AppendBatchResponse{Positions: pos}, nil
}

func (s *logStoreSvc) Tail(req *logstore.TailRequest, stream logstore.LogStore_TailServer) error {
	if !logstore.ValidatePosition(req.From) {
		return logstore.ToStatus(logstore.ErrInvalidPosition)
	}
	s.logger.Debug("tail opened", logpkg.Str("key", req.Key), logpkg.Str("from", req.From))
	err := s.store.Tail(stream.Context(), req.Key, req.From, func(e logstore.Entry) error {
		return stream.Send(&e)
	})
	if err != nil && stream.Context().Err() != nil {
		return nil
	}
	return logstore.ToStatus(err)
}

func (s *logStoreSvc) RangeLast(ctx context.Context, req *logstore.RangeLastRequest) (*logstore.EntriesResponse, error) {
	entries, err := s.store.RangeLast(ctx, req.Key, req.N)
	if err != nil {
		return nil, logstore.ToStatus(err)
	}
	return &logstore.EntriesResponse{Entries: entries}, nil
}

func (s *logStoreSvc) ReadAt(ctx context.Context, req *logstore.ReadAtRequest) (*logstore.Entry, error) {
	e, err := s.store.ReadAt(ctx, req.Key, req.Position)
	if err != nil {
		return nil, logstore.ToStatus(err)
	}
	return &e, nil
}

func (s *logStoreSvc) Exists(ctx context.Context, req *logstore.KeyRequest) (*logstore.ExistsResponse, error) {
	ok, err := s.store.Exists(ctx, req.Key)
	if err != nil {
		return nil, logstore.ToStatus(err)
	}
	return &logstore.ExistsResponse{Exists: ok}, nil
}

func (s *logStoreSvc) Len(ctx context.Context, req *logstore.KeyRequest) (*logstore.LenResponse, error) {
	n, err := s.store.Len(ctx, req.Key)
	if err != nil {
		return nil, logstore.ToStatus(err)
	}
	return &logstore.LenResponse{Len: n}, nil
}

func (s *logStoreSvc) Delete(ctx context.Context, req *logstore.KeyRequest) (*logstore.Empty, error) {
	if err := s.store.Delete(ctx, req.Key); err != nil {
		return nil, logstore.ToStatus(err)
	}
	return &logstore.Empty{}, nil
}

func (s *logStoreSvc) LastPosition(ctx context.Context, req *logstore.KeyRequest) (*logstore.PositionResponse, error) {
	pos, err := s.store.LastPosition(ctx, req.Key)
	if err != nil {
		return nil, logstore.ToStatus(err)
	}
	return &logstore.PositionResponse{Position: pos}, nil
}
