package eventlog

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// A stored channel entry is
//
//	format(1) | uvarint len(header) | header | uvarint len(payload) | payload | crc32c
//
// where the checksum covers everything before it.
const entryFormat byte = 2

var (
	errShortEntry  = errors.New("eventlog: truncated entry")
	errEntryFormat = errors.New("eventlog: unknown entry format")
	errChecksum    = errors.New("eventlog: entry checksum mismatch")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeEntry(header, payload []byte) []byte {
	out := make([]byte, 0, 1+2*binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = append(out, entryFormat)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = binary.AppendUvarint(out, uint64(len(payload)))
	out = append(out, payload...)
	return binary.BigEndian.AppendUint32(out, crc32.Checksum(out, castagnoli))
}

// decodeEntry returns copies of the header and payload stored in b.
func decodeEntry(b []byte) (header, payload []byte, err error) {
	if len(b) < 1+2+4 {
		return nil, nil, errShortEntry
	}
	if b[0] != entryFormat {
		return nil, nil, errEntryFormat
	}
	body, sum := b[:len(b)-4], binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(body, castagnoli) != sum {
		return nil, nil, errChecksum
	}
	rest := body[1:]
	if header, rest, err = chunk(rest); err != nil {
		return nil, nil, err
	}
	if payload, rest, err = chunk(rest); err != nil {
		return nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, errShortEntry
	}
	return header, payload, nil
}

func chunk(b []byte) (field, rest []byte, err error) {
	n, w := binary.Uvarint(b)
	if w <= 0 || n > uint64(len(b)-w) {
		return nil, nil, errShortEntry
	}
	end := w + int(n)
	return append([]byte(nil), b[w:end]...), b[end:], nil
}
