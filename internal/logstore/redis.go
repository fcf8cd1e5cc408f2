package logstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisValueField = "json"
	redisBlock      = time.Second
)

// Redis is a Client over Redis Streams.
type Redis struct {
	rdb      *redis.Client
	endpoint string
}

// NewRedis connects to a redis:// URL and pings it.
func NewRedis(ctx context.Context, endpoint string) (*Redis, error) {
	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		return nil, err
	}
	r := &Redis{rdb: redis.NewClient(opts), endpoint: endpoint}
	if err := r.Ping(ctx); err != nil {
		_ = r.rdb.Close()
		return nil, err
	}
	return r, nil
}

func xaddArgs(key string, value []byte, maxLen int) *redis.XAddArgs {
	args := &redis.XAddArgs{Stream: key, Values: map[string]interface{}{redisValueField: value}}
	if maxLen > 0 {
		args.MaxLen = int64(maxLen)
		// exact trimming for single-entry kv streams
		args.Approx = maxLen > 1
	}
	return args
}

func (r *Redis) Append(ctx context.Context, key string, value []byte, maxLen int) (string, error) {
	return r.rdb.XAdd(ctx, xaddArgs(key, value, maxLen)).Result()
}

func (r *Redis) AppendBatch(ctx context.Context, recs []Record) ([]string, error) {
	cmds, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range recs {
			pipe.XAdd(ctx, xaddArgs(rec.Key, rec.Value, rec.MaxLen))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		if sc, ok := c.(*redis.StringCmd); ok {
			out = append(out, sc.Val())
		}
	}
	return out, nil
}

func (r *Redis) Tail(ctx context.Context, key, from string, fn func(Entry) error) error {
	last := from
	if IsLatest(from) {
		var err error
		if last, err = r.LastPosition(ctx, key); err != nil {
			return err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, last},
			Count:   tailBatch,
			Block:   redisBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		for _, s := range res {
			for _, m := range s.Messages {
				if err := fn(redisEntry(m)); err != nil {
					return err
				}
				last = m.ID
			}
		}
	}
}

func (r *Redis) RangeLast(ctx context.Context, key string, n int) ([]Entry, error) {
	msgs, err := r.rdb.XRevRangeN(ctx, key, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, redisEntry(m))
	}
	return out, nil
}

func (r *Redis) ReadAt(ctx context.Context, key, position string) (Entry, error) {
	if !positionPattern.MatchString(position) {
		return Entry{}, ErrInvalidPosition
	}
	msgs, err := r.rdb.XRange(ctx, key, position, position).Result()
	if err != nil {
		return Entry{}, err
	}
	if len(msgs) == 0 {
		return Entry{}, ErrNotFound
	}
	return redisEntry(msgs[0]), nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *Redis) Len(ctx context.Context, key string) (int64, error) {
	return r.rdb.XLen(ctx, key).Result()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *Redis) LastPosition(ctx context.Context, key string) (string, error) {
	msgs, err := r.rdb.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return ZeroPosition, nil
	}
	return msgs[0].ID, nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *Redis) Endpoint() string { return r.endpoint }

func (r *Redis) Close() error { return r.rdb.Close() }

func redisEntry(m redis.XMessage) Entry {
	e := Entry{Position: m.ID}
	switch v := m.Values[redisValueField].(type) {
	case string:
		e.Value = []byte(v)
	case []byte:
		e.Value = v
	}
	return e
}
