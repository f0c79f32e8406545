// Package algo implements the parallel algorithm skeleton on top of
// graph.Runtime and graph/partition: find_if, find_if_not, min_element,
// and max_element, each following the same shared preamble — serial
// fallback below a size threshold, a preemption guard around the
// parallel section, and a fan-out of worker-count sub-tasks joined by
// a barrier.
package algo

import (
	"sync"
	"sync/atomic"

	"github.com/arkeus/taskgraph/graph"
	"github.com/arkeus/taskgraph/graph/partition"
)

// fanOut spawns w-1 copies of body via rt.SilentAsync and runs the
// w'th copy inline, then blocks until all w copies have returned. It
// is a WaitGroup-based shared-lifetime finalizer sized to the worker
// count, an alternative to a reference-counted handle.
func fanOut(rt graph.Runtime, w int, body func(worker int)) {
	var wg sync.WaitGroup
	wg.Add(w)
	for worker := 1; worker < w; worker++ {
		worker := worker
		rt.SilentAsync(func() {
			defer wg.Done()
			body(worker)
		})
	}
	body(0)
	wg.Done()
	wg.Wait()
}

// atomicMin performs a lock-free compare-exchange loop storing the
// minimum of dst's current value and v.
func atomicMin(dst *atomic.Int64, v int64) {
	for {
		cur := dst.Load()
		if v >= cur {
			return
		}
		if dst.CompareAndSwap(cur, v) {
			return
		}
	}
}

func clamp(w, n int) int {
	if n < w {
		return n
	}
	return w
}

// MakeFindIfTask returns a closure that, run under a Runtime, sets
// *result to the index of the first element in data for which
// predicate returns true, or len(data) if none does.
func MakeFindIfTask[T any](data []T, result *int, predicate func(T) bool, p partition.Partitioner) func(rt graph.Runtime) error {
	return makeFindTask(data, result, predicate, p)
}

// MakeFindIfNotTask returns a closure that, run under a Runtime, sets
// *result to the index of the first element in data for which
// predicate returns false, or len(data) if none does.
func MakeFindIfNotTask[T any](data []T, result *int, predicate func(T) bool, p partition.Partitioner) func(rt graph.Runtime) error {
	return makeFindTask(data, result, func(v T) bool { return !predicate(v) }, p)
}

func makeFindTask[T any](data []T, result *int, matches func(T) bool, p partition.Partitioner) func(rt graph.Runtime) error {
	return func(rt graph.Runtime) error {
		n := len(data)

		findSerial := func(lo, hi int) int {
			for i := lo; i < hi; i++ {
				if matches(data[i]) {
					return i
				}
			}
			return hi
		}

		w := rt.Executor().NumWorkers()
		if w <= 1 || n <= p.ChunkSize() {
			*result = findSerial(0, n)
			return nil
		}

		node := rt.EnclosingNode()
		guard := graph.AcquirePreemption(node)
		defer guard.Release()

		w = clamp(w, n)

		var offset atomic.Int64
		offset.Store(int64(n))

		chunkBody := func(worker int) func(begin, end int) bool {
			return func(begin, end int) bool {
				if node.IsCancelled() {
					return true
				}
				if int64(begin) >= offset.Load() {
					return true
				}
				for i := begin; i < end; i++ {
					if matches(data[i]) {
						atomicMin(&offset, int64(i))
						return true
					}
				}
				return false
			}
		}

		var next atomic.Int64 // shared across workers; only used by Dynamic

		fanOut(rt, w, func(worker int) {
			defer func() {
				if r := recover(); r != nil {
					node.CaptureException(recoveredErr(r))
				}
			}()
			if p.Kind() == partition.Dynamic {
				p.LoopUntilDynamic(n, &next, chunkBody(worker))
			} else {
				p.LoopUntilStatic(n, w, worker, chunkBody(worker))
			}
		})

		*result = int(offset.Load())
		if *result > n {
			*result = n
		}
		return node.RethrowException()
	}
}

// MakeMinElementTask returns a closure that, run under a Runtime, sets
// *result to the index of the element in data that is smallest under
// comp (comp(a, b) reports whether a sorts before b).
func MakeMinElementTask[T any](data []T, result *int, comp func(a, b T) bool, p partition.Partitioner) func(rt graph.Runtime) error {
	return makeExtremeTask(data, result, comp, false, p)
}

// MakeMaxElementTask returns a closure that, run under a Runtime, sets
// *result to the index of the element in data that is largest under
// comp (comp(a, b) reports whether a sorts before b).
func MakeMaxElementTask[T any](data []T, result *int, comp func(a, b T) bool, p partition.Partitioner) func(rt graph.Runtime) error {
	return makeExtremeTask(data, result, comp, true, p)
}

func makeExtremeTask[T any](data []T, result *int, comp func(a, b T) bool, wantMax bool, p partition.Partitioner) func(rt graph.Runtime) error {
	// beats reports whether candidate strictly improves on current
	// under the requested orientation.
	beats := func(candidate, current T) bool {
		if wantMax {
			return comp(current, candidate)
		}
		return comp(candidate, current)
	}

	p = partition.NewWithFloor(p.Kind(), p.ChunkSize(), 2)

	return func(rt graph.Runtime) error {
		n0 := len(data)
		if n0 == 0 {
			*result = 0
			return nil
		}

		serial := func(lo, hi int) int {
			best := lo
			for i := lo + 1; i < hi; i++ {
				if beats(data[i], data[best]) {
					best = i
				}
			}
			return best
		}

		w := rt.Executor().NumWorkers()
		if w <= 1 || n0 <= p.ChunkSize() {
			*result = serial(0, n0)
			return nil
		}

		node := rt.EnclosingNode()
		guard := graph.AcquirePreemption(node)
		defer guard.Release()

		w = clamp(w, n0)

		// Seed result at index 0, then treat the remaining n0-1
		// elements as the range the workers reduce over, offset by one.
		var mu sync.Mutex
		result0 := 0
		n := n0 - 1
		base := 1

		var next atomic.Int64 // shared dynamic cursor, only used by Dynamic

		// merge folds localBest into result0 under mu, once per worker.
		merge := func(localBest int) {
			mu.Lock()
			if beats(data[localBest], data[result0]) {
				result0 = localBest
			}
			mu.Unlock()
		}

		// seedAndReduce seeds a local extremum from the two elements at
		// b0/b0+1, then runs remainder over whatever chunks it claims
		// (via loopRemainder), folding the local result into result0
		// under mu exactly once at the end.
		seedAndReduce := func(b0 int, loopRemainder func(remainder func(begin, end int))) {
			b1 := b0 + 1
			localBest := b0
			if beats(data[b1], data[b0]) {
				localBest = b1
			}
			loopRemainder(func(begin, end int) {
				if node.IsCancelled() {
					return
				}
				bb, ee := base+begin, base+end
				for i := bb; i < ee; i++ {
					if beats(data[i], data[localBest]) {
						localBest = i
					}
				}
			})
			merge(localBest)
		}

		// reduceWorker claims a starting position s0 — Dynamic:
		// next.fetch_add(2) against the shared cursor, checked against
		// the global range (a dynamic race can put s0 past the end);
		// Static: the worker's own precomputed, disjoint span, checked
		// against that span's own size (spans never overlap, so no
		// race is possible, but an evenly split span can still be
		// empty or hold exactly one element). A one-element claim is
		// merged directly under the mutex without seeding a pair.
		reduceWorker := func(worker int) {
			if node.IsCancelled() {
				return
			}

			if p.Kind() == partition.Dynamic {
				s0 := int(next.Add(2) - 2)
				if s0 >= n {
					return
				}
				b0 := base + s0
				if n-s0 == 1 {
					merge(b0)
					return
				}
				seedAndReduce(b0, func(remainder func(begin, end int)) {
					p.LoopDynamic(n, &next, remainder)
				})
				return
			}

			begin, end := p.WorkerSpan(n, w, worker)
			if begin >= end {
				return
			}
			b0 := base + begin
			if end-begin == 1 {
				merge(b0)
				return
			}
			seedAndReduce(b0, func(remainder func(begin, end int)) {
				p.LoopStaticFrom(begin+2, end, remainder)
			})
		}

		fanOut(rt, w, func(worker int) {
			defer func() {
				if r := recover(); r != nil {
					node.CaptureException(recoveredErr(r))
				}
			}()
			reduceWorker(worker)
		})

		*result = result0
		return node.RethrowException()
	}
}

type panicError struct{ v any }

func (e panicError) Error() string { return "panic: " + errString(e.v) }

func errString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}

func recoveredErr(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return panicError{v: v}
}
