package logstore

import (
	"context"
	"errors"
	"regexp"

	"github.com/rzbill/rtm/pkg/id"
)

var (
	// ErrNotFound is returned by ReadAt when no entry exists at a position.
	ErrNotFound = errors.New("logstore: entry not found")
	// ErrInvalidPosition is returned for malformed cursors.
	ErrInvalidPosition = errors.New("logstore: invalid position")
	// ErrUnsupportedEndpoint is returned by the dialer for unknown schemes.
	ErrUnsupportedEndpoint = errors.New("logstore: unsupported endpoint")
)

const (
	// Latest starts a tail after the newest entry.
	Latest = "$"
	// LatestAlias is the spelled-out form accepted from clients.
	LatestAlias = "latest"
	// ZeroPosition is the position before any entry.
	ZeroPosition = "0-0"
)

// Entry is one stored value and its position.
type Entry struct {
	Position string `json:"position"`
	Value    []byte `json:"value"`
}

// Record is one append of a pipelined batch.
type Record struct {
	Key    string `json:"key"`
	Value  []byte `json:"value"`
	MaxLen int    `json:"max_len"`
}

// Client is a connection to one log store endpoint.
type Client interface {
	// Append adds value to the stream at key, trimming it to maxLen entries
	// (maxLen <= 0 disables trimming), and returns the new position.
	Append(ctx context.Context, key string, value []byte, maxLen int) (string, error)
	// AppendBatch appends every record in one round trip.
	AppendBatch(ctx context.Context, recs []Record) ([]string, error)
	// Tail calls fn for every entry after from until ctx is done or fn
	// returns an error. from may be a position, Latest or empty.
	Tail(ctx context.Context, key, from string, fn func(Entry) error) error
	// RangeLast returns up to n newest entries, newest first.
	RangeLast(ctx context.Context, key string, n int) ([]Entry, error)
	// ReadAt returns the entry at exactly position.
	ReadAt(ctx context.Context, key, position string) (Entry, error)
	Exists(ctx context.Context, key string) (bool, error)
	Len(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	// LastPosition returns the newest position of key, or ZeroPosition.
	LastPosition(ctx context.Context, key string) (string, error)
	Ping(ctx context.Context) error
	Endpoint() string
	Close() error
}

var positionPattern = regexp.MustCompile(`^[0-9]+-[0-9]+$`)

// ValidatePosition accepts an absent position, Latest, LatestAlias or
// "<ms>-<seq>" where both parts fit in a uint64.
func ValidatePosition(p string) bool {
	if IsLatest(p) {
		return true
	}
	if !positionPattern.MatchString(p) {
		return false
	}
	_, err := id.Parse(p)
	return err == nil
}

// IsLatest reports whether p asks for a tail from the newest entry.
func IsLatest(p string) bool {
	return p == "" || p == Latest || p == LatestAlias
}
