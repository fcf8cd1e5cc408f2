// Package id provides stream positions and their generator.
//
// # Format
//
// A Position is a millisecond timestamp plus a sequence, rendered as
// "<ms>-<seq>" on the wire and stored as 16 bytes big-endian
// [8 bytes ms][8 bytes seq] so that byte-wise comparison preserves append
// order.
//
// # Monotonicity
//
// The Generator ensures per-stream monotonicity:
//   - If the system clock regresses, it pins to the last seen millisecond and
//     increments the sequence.
//   - If the sequence would overflow within a millisecond, it waits for the
//     next millisecond.
//   - Observe seeds the generator from a persisted last position.
//
// Usage
//
//	g := id.NewGenerator()
//	p := g.Next()
//	s := p.String()      // "1700000000000-0"
//	q, _ := id.Parse(s)  // q == p
package id
