package capture

import (
	"fmt"
	"sync/atomic"
)

// Frame is one acquisition burst of 16-bit PCM samples. Samples beyond
// Count are stale; Timestamp is device uptime in milliseconds at capture
// time.
type Frame struct {
	Samples   []int16
	Count     int
	Timestamp uint32
}

// Cell is the single-producer/single-consumer hand-off between the capture
// source and the processing loop. The producer publishes into one of two
// fixed-capacity frames and flips an atomic ready word; the consumer
// observes the word, clears it immediately, and copies the frame out. If
// the producer publishes before the previous frame was taken, the older
// frame is silently replaced (drop-oldest) and an overrun is counted —
// never a blocked producer, never an out-of-bounds write.
//
// Each slot carries a version word in seqlock style: odd while the producer
// is writing it, bumped again when the write completes. A consumer stalled
// mid-copy long enough for the producer to lap back onto its slot sees the
// version change and discards the torn frame as an overrun.
type Cell struct {
	frames   [2]Frame
	versions [2]atomic.Uint32
	write    int          // producer-owned ping-pong index
	ready    atomic.Int32 // index of the published frame, -1 when empty
	overruns atomic.Uint64
	capacity int
}

// NewCell creates a cell whose frames hold up to capacity samples. The
// capacity must match the capture source's maximum burst size; publishing
// more is truncated, never written out of bounds.
func NewCell(capacity int) (*Cell, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("capacity must be at least 1 sample, got %d", capacity)
	}

	c := &Cell{capacity: capacity}
	for i := range c.frames {
		c.frames[i].Samples = make([]int16, capacity)
	}
	c.ready.Store(-1)
	return c, nil
}

// Capacity returns the fixed per-frame sample capacity.
func (c *Cell) Capacity() int { return c.capacity }

// Publish copies samples into the back frame and marks it ready. It never
// blocks and never allocates, so it is safe to call from the capture
// callback context. The frame is fully written before the ready word is
// flipped (write-then-publish ordering).
func (c *Cell) Publish(samples []int16, timestamp uint32) {
	f := &c.frames[c.write]
	v := &c.versions[c.write]

	v.Add(1) // odd: slot write in progress
	n := copy(f.Samples, samples)
	f.Count = n
	f.Timestamp = timestamp
	v.Add(1) // even: slot stable

	if prev := c.ready.Swap(int32(c.write)); prev >= 0 {
		c.overruns.Add(1)
	}
	c.write ^= 1
}

// TryTake copies the published frame into dst and clears the ready word.
// The clear happens before the copy-out completes as far as the producer is
// concerned: a capture finishing mid-copy publishes into the other frame
// and is observed on the next poll rather than silently lost. If the
// producer laps all the way back onto the slot being copied, the slot
// version no longer matches and the torn frame is discarded as an overrun.
// Returns false when no intact new frame is available. dst must have been
// sized by the caller to at least the cell capacity.
func (c *Cell) TryTake(dst *Frame) bool {
	idx := c.ready.Swap(-1)
	if idx < 0 {
		return false
	}

	src := &c.frames[idx]
	ver := &c.versions[idx]

	v := ver.Load()
	count := src.Count
	if v&1 != 0 || count < 0 || count > len(src.Samples) {
		// Producer is rewriting the slot right now; the header fields may
		// already be torn.
		c.overruns.Add(1)
		return false
	}

	dst.Count = copy(dst.Samples, src.Samples[:count])
	dst.Timestamp = src.Timestamp

	if ver.Load() != v {
		c.overruns.Add(1)
		return false
	}
	return true
}

// Overruns returns how many published frames were replaced before the
// consumer took them, plus any frames discarded because the producer
// lapped the consumer mid-copy.
func (c *Cell) Overruns() uint64 {
	return c.overruns.Load()
}
