package eventlog

import (
	"encoding/binary"

	"github.com/rzbill/rtm/pkg/id"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - s/{len_be4}{stream}/m
// - s/{len_be4}{stream}/e/{ms_be8}{seq_be8}
//
// The stream name is length-prefixed so that no stream's key range can
// contain another stream's keys (channel names may contain '/').

var (
	streamPrefix = []byte("s/")
	metaSuffix   = []byte("/m")
	entrySeg     = []byte("/e/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyStreamPrefix is the common prefix of every key of a stream.
func KeyStreamPrefix(stream string) []byte {
	k := make([]byte, 0, len(stream)+8)
	k = append(k, streamPrefix...)
	k = appendBE4(k, uint32(len(stream)))
	k = append(k, stream...)
	return k
}

// KeyStreamEnd is the exclusive upper bound of a stream's key range.
func KeyStreamEnd(stream string) []byte {
	k := KeyStreamPrefix(stream)
	return append(k, 0xff)
}

// KeyStreamMeta builds the stream metadata key.
func KeyStreamMeta(stream string) []byte {
	return append(KeyStreamPrefix(stream), metaSuffix...)
}

// KeyStreamEntry builds the entry key for a position.
func KeyStreamEntry(stream string, pos id.Position) []byte {
	k := KeyStreamPrefix(stream)
	k = append(k, entrySeg...)
	k = appendBE8(k, pos.Ms)
	k = appendBE8(k, pos.Seq)
	return k
}

// entryBounds returns [low, high) covering every entry of a stream.
func entryBounds(stream string) ([]byte, []byte) {
	low := KeyStreamPrefix(stream)
	low = append(low, entrySeg...)
	high := append([]byte(nil), low...)
	high[len(high)-1]++
	return low, high
}

// positionFromKey decodes the trailing 16 bytes of an entry key.
func positionFromKey(k []byte) id.Position {
	p, _ := id.FromBytes(k[len(k)-16:])
	return p
}
