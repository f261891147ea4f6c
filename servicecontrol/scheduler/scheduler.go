// The MIT License (MIT)

// Copyright (c) 2017-2020 Uber Technologies Inc.

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package scheduler is a priority timer queue: actions are entered with a
// delay and a priority, and Run drains due actions in (dueTime, priority)
// order. The queue's lock is released while an action runs, so an action
// is free to call Enter again to reschedule itself.
package scheduler

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
	"go.uber.org/atomic"

	"github.com/svcctl/aggregator/common/clock"
)

// Action is scheduled work. It receives no arguments; closures carry
// whatever state they need.
type Action func()

type event struct {
	dueTime  time.Time
	priority int
	action   Action
	seq      uint64
}

func compareEvents(a, b interface{}) int {
	ea, eb := a.(*event), b.(*event)
	switch {
	case ea.dueTime.Before(eb.dueTime):
		return -1
	case ea.dueTime.After(eb.dueTime):
		return 1
	case ea.priority < eb.priority:
		return -1
	case ea.priority > eb.priority:
		return 1
	case ea.seq < eb.seq:
		return -1
	case ea.seq > eb.seq:
		return 1
	default:
		return 0
	}
}

// Observer is notified once per scheduling quantum: ran is true when an
// action was popped and run, false when RunBlocking found nothing due
// (spec section 4.6/9's scheduler runs/skips counters).
type Observer func(ran bool)

// Scheduler is a (dueTime, priority) min-heap of scheduled Actions.
type Scheduler struct {
	mu      sync.Mutex
	heap    *binaryheap.Heap
	clock   clock.TimeSource
	nextSeq uint64
	stopped atomic.Bool

	observe Observer
}

// New constructs a Scheduler driven by ts. A nil TimeSource uses the real
// wall clock. observe may be nil, in which case runs and skips are not
// reported anywhere.
func New(ts clock.TimeSource, observe Observer) *Scheduler {
	if ts == nil {
		ts = clock.NewRealTimeSource()
	}
	return &Scheduler{
		heap:    binaryheap.NewWith(compareEvents),
		clock:   ts,
		observe: observe,
	}
}

// Stop marks the scheduler stopped; Run returns without running any
// further actions once observed, though an action already in flight
// completes naturally.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// Enter schedules action to run at (now + delta). Lower priority values
// run first among actions due at the same time.
func (s *Scheduler) Enter(action Action, delta time.Duration, priority int) {
	s.mu.Lock()
	s.nextSeq++
	s.heap.Push(&event{
		dueTime:  s.clock.Now().Add(delta),
		priority: priority,
		action:   action,
		seq:      s.nextSeq,
	})
	s.mu.Unlock()
}

// Run drains the queue. Shorthand for RunBlocking(true).
func (s *Scheduler) Run() {
	s.RunBlocking(true)
}

// RunBlocking drains every currently-due action, then either sleeps until
// the next one is due (block=true) or returns immediately (block=false),
// looping until the queue is empty.
func (s *Scheduler) RunBlocking(block bool) {
	for {
		if s.stopped.Load() {
			return
		}

		s.mu.Lock()
		raw, ok := s.heap.Peek()
		if !ok {
			s.mu.Unlock()
			return
		}
		head := raw.(*event)
		now := s.clock.Now()

		if head.dueTime.After(now) {
			s.mu.Unlock()
			if s.observe != nil {
				s.observe(false)
			}
			if !block {
				return
			}
			s.clock.Sleep(head.dueTime.Sub(now))
			continue
		}

		s.heap.Pop()
		s.mu.Unlock()

		head.action()
		if s.observe != nil {
			s.observe(true)
		}
	}
}

// Len reports the number of pending events, for tests and diagnostics.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Size()
}
