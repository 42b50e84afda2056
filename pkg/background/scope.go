// Package background groups goroutines which share one cancellation signal
// and are waited for together.
package background

import (
	"context"
	"sync"
	"time"
)

// Scope - abstract concurrency scope
type Scope struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	mu        sync.Mutex
	members   sync.WaitGroup
}

// NewScope - concurrency scope builder.
// Returned cancel func expires the scope context and waits for all members.
func NewScope() (scope *Scope, cancel func()) {
	ctx, cancelFunc := context.WithCancel(context.Background())
	s := &Scope{
		ctx:       ctx,
		ctxCancel: cancelFunc,
	}
	return s,
		func() {
			s.expire()
			s.members.Wait()
		}
}

// Context - return background context
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Expired - reports whether the scope context is already canceled.
func (s *Scope) Expired() bool {
	return s.ctx.Err() != nil
}

// Go - runs f in a new goroutine as a scope member.
// Returns false and does not run f when the scope has expired.
func (s *Scope) Go(f func(ctx context.Context)) bool {
	// mu orders members.Add against expire, so Wait never races with a late Add
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.members.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.members.Done()
		f(s.ctx)
	}()
	return true
}

// Wait - waits for all members but not longer than timeout.
// Non-positive timeout waits without limit. Returns true if all members are done.
func (s *Scope) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.members.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Scope) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxCancel()
}
