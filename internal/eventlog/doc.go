// Package eventlog implements the append-only per-stream log used by the
// embedded log store and the lognode.
//
// # Overview
//
// Each stream (a "tenant::channel" key) is persisted in Pebble. Keys are
// lexicographically ordered for efficient range scans:
//   - s/{len_be4}{stream}/m                    (metadata: last position, length)
//   - s/{len_be4}{stream}/e/{ms_be8}{seq_be8}  (entries)
//
// Records are stored as: version | varint headerLen | header | payload | crc32c.
//
// API surface (internal)
//
//	s := NewStore(db)
//	l, _ := s.Open("app::chat")
//	// Append atomically, trimming to at most 1000 entries
//	pos, _ := l.Append(ctx, []AppendRecord{{Payload: p}}, 1000)
//
//	// Read forward after a position, or newest-first
//	items, next, _ := l.Read(ReadOptions{After: pos[0], Limit: 100})
//	last, _ := l.Last(1)
//
//	// Blocking wait/notify; Store shares one Log per stream so appends
//	// through any handle wake every waiter.
//	woke := l.WaitForAppend(ctx, 200*time.Millisecond)
package eventlog
