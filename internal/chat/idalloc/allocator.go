// Package idalloc issues small integer identifiers and recycles released ones,
// always preferring the smallest released id over a never used one.
package idalloc

import (
	"container/heap"
	"sync"
)

// Allocator - thread-safe id allocator.
// The zero value is not ready for use, build it with New.
type Allocator struct {
	mu       sync.Mutex
	next     int
	released minHeap
	isFree   map[int]struct{}
}

// New - builds allocator which starts issuing ids from 0.
func New() *Allocator {
	return &Allocator{isFree: make(map[int]struct{})}
}

// Allocate - returns the smallest released id, or the next never used one.
func (a *Allocator) Allocate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released.Len() > 0 {
		id := heap.Pop(&a.released).(int)
		delete(a.isFree, id)
		return id
	}
	id := a.next
	a.next++
	return id
}

// Free - returns id to the pool.
// Ids which were never allocated or are already free are ignored and reported with false.
func (a *Allocator) Free(id int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 || id >= a.next {
		return false
	}
	if _, ok := a.isFree[id]; ok {
		return false
	}
	a.isFree[id] = struct{}{}
	heap.Push(&a.released, id)
	return true
}

// InUse - number of ids currently allocated.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - a.released.Len()
}

type minHeap []int

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) {
	*h = append(*h, x.(int))
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
