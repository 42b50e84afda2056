package idalloc

import (
	"sync"
	"testing"
)

func TestAllocator_Sequence(test *testing.T) {
	a := New()
	for expected := 0; expected < 3; expected++ {
		if id := a.Allocate(); id != expected {
			test.Errorf("Allocate: expected %d, got %d", expected, id)
		}
	}
	if !a.Free(1) {
		test.Error("Free(1): expected true")
	}
	if id := a.Allocate(); id != 1 {
		test.Error("Allocate after Free(1): expected 1, got", id)
	}
	if id := a.Allocate(); id != 3 {
		test.Error("Allocate with empty pool: expected 3, got", id)
	}
}

func TestAllocator_SmallestFirst(test *testing.T) {
	a := New()
	for i := 0; i < 10; i++ {
		a.Allocate()
	}
	for _, id := range []int{7, 2, 9, 4} {
		a.Free(id)
	}
	for _, expected := range []int{2, 4, 7, 9, 10} {
		if id := a.Allocate(); id != expected {
			test.Errorf("Allocate: expected %d, got %d", expected, id)
		}
	}
}

func TestAllocator_InvalidFree(test *testing.T) {
	a := New()
	a.Allocate() // 0
	a.Allocate() // 1

	if a.Free(5) {
		test.Error("Free of never allocated id must be ignored")
	}
	if a.Free(-1) {
		test.Error("Free of negative id must be ignored")
	}
	if !a.Free(0) {
		test.Error("Free(0): expected true")
	}
	if a.Free(0) {
		test.Error("double Free(0) must be ignored")
	}
	if n := a.InUse(); n != 1 {
		test.Error("InUse: expected 1, got", n)
	}
	if id := a.Allocate(); id != 0 {
		test.Error("Allocate: expected 0, got", id)
	}
	// the duplicate free did not leave a second copy of 0 in the pool
	if id := a.Allocate(); id != 2 {
		test.Error("Allocate: expected 2, got", id)
	}
}

func TestAllocator_Concurrent(test *testing.T) {
	a := New()
	const workers, rounds = 8, 200

	mu := sync.Mutex{}
	live := map[int]bool{}
	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				id := a.Allocate()
				mu.Lock()
				if live[id] {
					test.Errorf("id %d is handed out twice", id)
				}
				live[id] = true
				mu.Unlock()

				mu.Lock()
				delete(live, id)
				mu.Unlock()
				a.Free(id)
			}
		}()
	}
	wg.Wait()
	if n := a.InUse(); n != 0 {
		test.Error("InUse after all frees: expected 0, got", n)
	}
	// every worker holds at most one id at a time
	if id := a.Allocate(); id >= workers {
		test.Errorf("expected recycled id below %d, got %d", workers, id)
	}
}
