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

// Package reportaggregator holds a bounded, ordered set of report slots
// keyed by fingerprint. Incoming operations are merged into the slot they
// target before that slot's recency is bumped; slots evicted for capacity
// are queued rather than dropped, so a flush never loses data.
package reportaggregator

import (
	"container/list"
	"sync"
	"time"

	"github.com/svcctl/aggregator/common/scerrors"
	"github.com/svcctl/aggregator/servicecontrol"
	"github.com/svcctl/aggregator/servicecontrol/metricvalue"
	"github.com/svcctl/aggregator/servicecontrol/signing"
)

// NonCaching is the FlushIntervalMillis sentinel returned when the
// aggregator is disabled by a non-positive NumEntries.
const NonCaching time.Duration = -1

// Config configures an Aggregator (spec section 6).
type Config struct {
	NumEntries            int
	FlushIntervalMillis   time.Duration
	MaxOperationsPerBatch int
}

type slot struct {
	fingerprint servicecontrol.Fingerprint
	operation   servicecontrol.Operation
}

// Aggregator merges incoming report operations into bounded, mergeable
// slots pending flush to the Transport.
type Aggregator struct {
	mu          sync.Mutex
	serviceName string
	numEntries  int
	flushEvery  time.Duration
	batchSize   int

	ll             *list.List
	items          map[servicecontrol.Fingerprint]*list.Element
	pendingEvicted []servicecontrol.Operation
}

// New constructs an Aggregator for serviceName.
func New(serviceName string, cfg Config) *Aggregator {
	return &Aggregator{
		serviceName: serviceName,
		numEntries:  cfg.NumEntries,
		flushEvery:  cfg.FlushIntervalMillis,
		batchSize:   cfg.MaxOperationsPerBatch,
		ll:          list.New(),
		items:       make(map[servicecontrol.Fingerprint]*list.Element),
	}
}

func (a *Aggregator) enabled() bool { return a.numEntries > 0 }

// FlushIntervalMillis returns the configured flush cadence, or NonCaching
// when the aggregator is disabled.
func (a *Aggregator) FlushIntervalMillis() time.Duration {
	if !a.enabled() {
		return NonCaching
	}
	return a.flushEvery
}

// Report attempts to merge every operation in req into its matching slot.
// It returns merged=true only if every operation merged; otherwise the
// whole request is declined and the caller must send it directly.
// Operations that merged successfully before a later operation in the same
// request was declined remain merged — the caller resending the whole
// request risks a duplicate that at-most-once report delivery accepts.
func (a *Aggregator) Report(req servicecontrol.ReportRequest) (bool, error) {
	if req.ServiceName != a.serviceName {
		return false, scerrors.NewInvalidRequest("service name mismatch: got " + req.ServiceName + ", want " + a.serviceName)
	}
	if !a.enabled() {
		return false, nil
	}
	for _, op := range req.Operations {
		if op.Importance == servicecontrol.High {
			return false, nil
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, op := range req.Operations {
		fp := signing.SignReportSlot(op)
		if el, ok := a.items[fp]; ok {
			s := el.Value.(*slot)
			merged, ok := metricvalue.Merge(s.operation, op)
			if !ok {
				return false, nil
			}
			s.operation = merged
			a.ll.MoveToFront(el)
			continue
		}

		el := a.ll.PushFront(&slot{fingerprint: fp, operation: op.Clone()})
		a.items[fp] = el
		if a.ll.Len() > a.numEntries {
			a.evictOldestLocked()
		}
	}
	return true, nil
}

func (a *Aggregator) evictOldestLocked() {
	el := a.ll.Back()
	if el == nil {
		return
	}
	s := el.Value.(*slot)
	a.ll.Remove(el)
	delete(a.items, s.fingerprint)
	a.pendingEvicted = append(a.pendingEvicted, s.operation)
}

// Flush atomically removes every slot (and any queued eviction victim) and
// packages them into one or more ReportRequests, each holding at most the
// configured MaxOperationsPerBatch operations.
func (a *Aggregator) Flush() []servicecontrol.ReportRequest {
	return a.drain()
}

// Clear behaves exactly like Flush, but is called at shutdown: the caller
// does not schedule any further flush after it.
func (a *Aggregator) Clear() []servicecontrol.ReportRequest {
	return a.drain()
}

func (a *Aggregator) drain() []servicecontrol.ReportRequest {
	a.mu.Lock()
	ops := make([]servicecontrol.Operation, 0, a.ll.Len()+len(a.pendingEvicted))
	for el := a.ll.Back(); el != nil; el = el.Prev() {
		ops = append(ops, el.Value.(*slot).operation)
	}
	ops = append(ops, a.pendingEvicted...)
	a.ll.Init()
	a.items = make(map[servicecontrol.Fingerprint]*list.Element)
	a.pendingEvicted = nil
	a.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	batchSize := a.batchSize
	if batchSize <= 0 {
		batchSize = len(ops)
	}

	var out []servicecontrol.ReportRequest
	for start := 0; start < len(ops); start += batchSize {
		end := start + batchSize
		if end > len(ops) {
			end = len(ops)
		}
		out = append(out, servicecontrol.ReportRequest{
			ServiceName: a.serviceName,
			Operations:  ops[start:end],
		})
	}
	return out
}
