// Package kv is a last-write-wins register per channel built on the log
// store: a write appends and trims the channel to one entry, a read returns
// the newest entry (or the one at a given position), a delete drops the log.
package kv

import (
	"context"
	"errors"

	"github.com/rzbill/rtm/internal/logstore"
	"github.com/rzbill/rtm/internal/publisher"
)

// Store routes kv operations through the publisher pool, so they share the
// channel affinity and the connection lock of pub/sub traffic.
type Store struct {
	pool *publisher.Pool
}

func New(pool *publisher.Pool) *Store { return &Store{pool: pool} }

// Write stores value under channel and returns its position.
func (s *Store) Write(ctx context.Context, tenant, channel string, value []byte) (string, error) {
	return s.pool.PublishNow(ctx, publisher.Job{Tenant: tenant, Channel: channel, Payload: value}, 1)
}

// Read returns the newest value of channel, or the value at position when
// one is given. found is false for an absent key, an empty log or an unknown
// position.
func (s *Store) Read(ctx context.Context, tenant, channel, position string) (value []byte, found bool, err error) {
	key := publisher.Job{Tenant: tenant, Channel: channel}.Key()
	err = s.pool.Do(ctx, tenant, channel, func(c logstore.Client) error {
		if logstore.IsLatest(position) {
			entries, err := c.RangeLast(ctx, key, 1)
			if err != nil || len(entries) == 0 {
				return err
			}
			value, found = entries[0].Value, true
			return nil
		}
		e, err := c.ReadAt(ctx, key, position)
		if errors.Is(err, logstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, found = e.Value, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Delete removes the whole log of channel.
func (s *Store) Delete(ctx context.Context, tenant, channel string) error {
	key := publisher.Job{Tenant: tenant, Channel: channel}.Key()
	return s.pool.Do(ctx, tenant, channel, func(c logstore.Client) error {
		return c.Delete(ctx, key)
	})
}
