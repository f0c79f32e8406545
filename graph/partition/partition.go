// Package partition implements the index-range splitting strategies
// the parallel algorithm skeletons in graph/algo build on: Static, in
// which each worker owns a precomputed disjoint slice, and Dynamic, in
// which all workers claim chunks competitively off a shared atomic
// cursor.
package partition

import "sync/atomic"

// Kind selects a Partitioner's splitting strategy.
type Kind int

const (
	Static Kind = iota
	Dynamic
)

// Partitioner classifies how to split an index range of length N among
// W workers. The zero value is a Static partitioner whose ChunkSize
// reports 0; the loops treat that as a chunk size of 1.
type Partitioner struct {
	kind      Kind
	chunkSize int
}

// New constructs a Partitioner of the given kind. chunkSize is the
// minimum granularity of one work item assignment; a value below 1 is
// treated as 1.
func New(kind Kind, chunkSize int) Partitioner {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return Partitioner{kind: kind, chunkSize: chunkSize}
}

// NewWithFloor is New, but raises chunkSize to floor if it is smaller.
// min_element/max_element use this with floor 2 so the two-element
// seed step always has a valid pair to read.
func NewWithFloor(kind Kind, chunkSize, floor int) Partitioner {
	if chunkSize < floor {
		chunkSize = floor
	}
	return New(kind, chunkSize)
}

// Kind reports whether p is Static or Dynamic.
func (p Partitioner) Kind() Kind { return p.kind }

// ChunkSize returns the minimum granularity of one work item
// assignment.
func (p Partitioner) ChunkSize() int { return p.chunkSize }

// AdjustedChunkSize returns the chunk length worker w should take next
// given a Static partitioner over a range of length n split among w
// workers. Deterministic. When the chunk size is 1, or no worker's share
// exceeds it, the sum of AdjustedChunkSize(n, w, i) over every i in
// [0,w) equals n; otherwise each larger share is capped at the chunk
// size and the sum is smaller than n.
func (p Partitioner) AdjustedChunkSize(n, w, worker int) int {
	if w <= 0 {
		return n
	}
	base := n / w
	rem := n % w
	size := base
	if worker < rem {
		size++
	}
	if p.chunkSize > 1 && size > p.chunkSize {
		// Cap sub-chunks at the configured chunk size; the caller's
		// Loop advances across multiple sub-chunks to cover the full
		// per-worker span.
		return p.chunkSize
	}
	return size
}

// workerSpan returns [begin,end) of the slice statically owned by
// worker out of w workers over a range of length n.
func workerSpan(n, w, worker int) (int, int) {
	if w <= 0 {
		return 0, n
	}
	base := n / w
	rem := n % w
	begin := worker*base + min(worker, rem)
	end := begin + base
	if worker < rem {
		end++
	}
	return begin, end
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// WorkerSpan returns [begin,end) of the slice statically owned by
// worker out of w workers over a range of length n. Exposed so a
// static reduction can claim its starting position before entering the
// chunk loop (see graph/algo's min_element/max_element).
func (p Partitioner) WorkerSpan(n, w, worker int) (int, int) {
	return workerSpan(n, w, worker)
}

// loopRange iterates [begin,end) in sub-chunks no larger than
// p.ChunkSize(), invoking body(b, e) for each.
func (p Partitioner) loopRange(begin, end int, body func(b, e int)) {
	cursor := begin
	for cursor < end {
		size := p.chunkSize
		if size < 1 {
			size = 1
		}
		if cursor+size > end {
			size = end - cursor
		}
		body(cursor, cursor+size)
		cursor += size
	}
}

// LoopStatic iterates worker's statically assigned slice of [0,n) in
// sub-chunks no larger than p.ChunkSize(), invoking body(begin, end)
// for each. It returns the end of the last sub-chunk processed
// (== the worker's span end), which the caller threads forward as the
// next worker's expectation in diagnostics or chained scheduling.
func (p Partitioner) LoopStatic(n, w, worker int, body func(begin, end int)) int {
	begin, end := workerSpan(n, w, worker)
	p.loopRange(begin, end, body)
	return end
}

// LoopStaticFrom is LoopStatic, but resumes at from instead of
// worker's span begin and stops at the given end, both supplied by the
// caller. Used to continue a static reduction's chunk loop after
// seeding the local extremum from the first two elements of the
// worker's span.
func (p Partitioner) LoopStaticFrom(from, end int, body func(begin, end int)) {
	p.loopRange(from, end, body)
}

// LoopUntilStatic is LoopStatic, but body returns true to end iteration
// immediately (used for find-style early termination). Returns true if
// body ever returned true.
func (p Partitioner) LoopUntilStatic(n, w, worker int, body func(begin, end int) bool) bool {
	begin, end := workerSpan(n, w, worker)
	cursor := begin
	for cursor < end {
		size := p.chunkSize
		if size < 1 {
			size = 1
		}
		if cursor+size > end {
			size = end - cursor
		}
		if body(cursor, cursor+size) {
			return true
		}
		cursor += size
	}
	return false
}

// LoopDynamic claims successive chunks of [0,n) by fetch-adding
// atomicNext, invoking body(begin, end) for each claimed chunk until
// the range is exhausted.
func (p Partitioner) LoopDynamic(n int, atomicNext *atomic.Int64, body func(begin, end int)) {
	size := int64(p.chunkSize)
	if size < 1 {
		size = 1
	}
	for {
		begin := atomicNext.Add(size) - size
		if begin >= int64(n) {
			return
		}
		end := begin + size
		if end > int64(n) {
			end = int64(n)
		}
		body(int(begin), int(end))
	}
}

// LoopUntilDynamic is LoopDynamic, but body returns true to end
// iteration immediately. Returns true if body ever returned true.
func (p Partitioner) LoopUntilDynamic(n int, atomicNext *atomic.Int64, body func(begin, end int) bool) bool {
	size := int64(p.chunkSize)
	if size < 1 {
		size = 1
	}
	for {
		begin := atomicNext.Add(size) - size
		if begin >= int64(n) {
			return false
		}
		end := begin + size
		if end > int64(n) {
			end = int64(n)
		}
		if body(int(begin), int(end)) {
			return true
		}
	}
}
