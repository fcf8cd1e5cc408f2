package id

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Position identifies an entry in a stream: a millisecond timestamp and a
// sequence within that millisecond. The 16-byte big-endian encoding
// [8 bytes ms][8 bytes seq] sorts in append order.
type Position struct {
	Ms  uint64
	Seq uint64
}

// Zero is the position before any entry ("0-0").
var Zero = Position{}

// ErrInvalidPosition is returned by Parse for malformed input.
var ErrInvalidPosition = errors.New("id: invalid position")

// Bytes returns the 16-byte sortable representation.
func (p Position) Bytes() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], p.Ms)
	binary.BigEndian.PutUint64(b[8:16], p.Seq)
	return b
}

// FromBytes decodes a 16-byte representation.
func FromBytes(b []byte) (Position, bool) {
	if len(b) != 16 {
		return Position{}, false
	}
	return Position{Ms: binary.BigEndian.Uint64(b[0:8]), Seq: binary.BigEndian.Uint64(b[8:16])}, true
}

// String renders "<ms>-<seq>".
func (p Position) String() string {
	return strconv.FormatUint(p.Ms, 10) + "-" + strconv.FormatUint(p.Seq, 10)
}

// IsZero reports whether p is "0-0".
func (p Position) IsZero() bool { return p.Ms == 0 && p.Seq == 0 }

// Compare returns -1, 0, 1.
func (p Position) Compare(other Position) int {
	switch {
	case p.Ms < other.Ms:
		return -1
	case p.Ms > other.Ms:
		return 1
	case p.Seq < other.Seq:
		return -1
	case p.Seq > other.Seq:
		return 1
	}
	return 0
}

// Next returns the smallest position strictly greater than p.
func (p Position) Next() Position {
	if p.Seq == math.MaxUint64 {
		return Position{Ms: p.Ms + 1}
	}
	return Position{Ms: p.Ms, Seq: p.Seq + 1}
}

// Parse accepts "<ms>-<seq>" and a bare "<ms>" (sequence 0).
func Parse(s string) (Position, error) {
	msPart, seqPart, hasSeq := strings.Cut(s, "-")
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return Position{}, ErrInvalidPosition
	}
	var seq uint64
	if hasSeq {
		seq, err = strconv.ParseUint(seqPart, 10, 64)
		if err != nil {
			return Position{}, ErrInvalidPosition
		}
	}
	return Position{Ms: ms, Seq: seq}, nil
}

// Generator produces strictly increasing positions per stream.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Observe advances the generator so that the next position is after p.
// Used when reopening a stream whose last position was persisted.
func (g *Generator) Observe(p Position) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if int64(p.Ms) > g.lastMs || (int64(p.Ms) == g.lastMs && p.Seq > g.sequence) {
		g.lastMs = int64(p.Ms)
		g.sequence = p.Seq
	}
}

// Next returns a new Position. If the clock goes backwards it keeps lastMs and
// increments the sequence; if the sequence would overflow it waits for the
// next millisecond.
func (g *Generator) Next() Position {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.sequence == math.MaxUint64 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return Position{Ms: uint64(ms), Seq: g.sequence}
}
