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

// Package checkaggregator caches CheckResponses keyed by request
// fingerprint, with TTL-after-write expiry, an approximate-LRU capacity
// cap, and an unconditional bypass for HIGH-importance operations.
package checkaggregator

import (
	"container/list"
	"sync"
	"time"

	"github.com/svcctl/aggregator/common/clock"
	"github.com/svcctl/aggregator/common/scerrors"
	"github.com/svcctl/aggregator/servicecontrol"
	"github.com/svcctl/aggregator/servicecontrol/signing"
)

// NonCaching is the ExpirationMillis sentinel returned when caching has
// been disabled by a non-positive NumEntries.
const NonCaching time.Duration = -1

// Config configures an Aggregator (spec section 6).
type Config struct {
	NumEntries int
	// ExpirationMillis is the TTL applied after each write. A negative
	// value means entries never expire by time, only by capacity.
	ExpirationMillis time.Duration
}

type entry struct {
	fingerprint     servicecontrol.Fingerprint
	response        servicecontrol.CheckResponse
	lastRefreshTime time.Time
	isFlushing      bool
}

// Aggregator is a fingerprint-indexed cache of CheckResponses. It performs
// no I/O of its own; callers populate it after a successful upstream call.
type Aggregator struct {
	mu          sync.Mutex
	serviceName string
	numEntries  int
	ttl         time.Duration
	clock       clock.TimeSource

	ll    *list.List
	items map[servicecontrol.Fingerprint]*list.Element
}

// New constructs an Aggregator for serviceName. A nil TimeSource uses the
// real wall clock.
func New(serviceName string, cfg Config, ts clock.TimeSource) *Aggregator {
	if ts == nil {
		ts = clock.NewRealTimeSource()
	}
	return &Aggregator{
		serviceName: serviceName,
		numEntries:  cfg.NumEntries,
		ttl:         cfg.ExpirationMillis,
		clock:       ts,
		ll:          list.New(),
		items:       make(map[servicecontrol.Fingerprint]*list.Element),
	}
}

func (a *Aggregator) enabled() bool { return a.numEntries > 0 }

// ExpirationMillis returns the configured TTL, or NonCaching when the
// cache is disabled.
func (a *Aggregator) ExpirationMillis() time.Duration {
	if !a.enabled() {
		return NonCaching
	}
	return a.ttl
}

// Check returns the cached response for req, if present, unexpired, and
// the operation's importance is LOW. HIGH-importance requests always miss.
func (a *Aggregator) Check(req servicecontrol.CheckRequest) (servicecontrol.CheckResponse, bool, error) {
	if err := a.validate(req); err != nil {
		return servicecontrol.CheckResponse{}, false, err
	}
	if !a.enabled() || req.Operation.Importance == servicecontrol.High {
		return servicecontrol.CheckResponse{}, false, nil
	}

	fp := signing.SignCheck(req)

	a.mu.Lock()
	defer a.mu.Unlock()

	el, ok := a.items[fp]
	if !ok {
		return servicecontrol.CheckResponse{}, false, nil
	}
	e := el.Value.(*entry)
	if a.expired(e.lastRefreshTime) {
		a.removeElement(el)
		return servicecontrol.CheckResponse{}, false, nil
	}
	a.ll.MoveToFront(el)
	return e.response, true, nil
}

// AddResponse inserts or overwrites the cache entry for req, resetting its
// TTL clock and clearing any isFlushing hint.
func (a *Aggregator) AddResponse(req servicecontrol.CheckRequest, resp servicecontrol.CheckResponse) error {
	if err := a.validate(req); err != nil {
		return err
	}
	if !a.enabled() {
		return nil
	}

	fp := signing.SignCheck(req)
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if el, ok := a.items[fp]; ok {
		e := el.Value.(*entry)
		e.response = resp
		e.lastRefreshTime = now
		e.isFlushing = false
		a.ll.MoveToFront(el)
		return nil
	}

	el := a.ll.PushFront(&entry{fingerprint: fp, response: resp, lastRefreshTime: now})
	a.items[fp] = el
	if a.ll.Len() > a.numEntries {
		a.removeOldest()
	}
	return nil
}

// Clear drops every cached entry.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ll.Init()
	a.items = make(map[servicecontrol.Fingerprint]*list.Element)
}

func (a *Aggregator) expired(lastRefreshTime time.Time) bool {
	return a.ttl >= 0 && a.clock.Now().After(lastRefreshTime.Add(a.ttl))
}

func (a *Aggregator) removeOldest() {
	if el := a.ll.Back(); el != nil {
		a.removeElement(el)
	}
}

func (a *Aggregator) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	a.ll.Remove(el)
	delete(a.items, e.fingerprint)
}

func (a *Aggregator) validate(req servicecontrol.CheckRequest) error {
	if req.Operation.OperationName == "" {
		return scerrors.NewInvalidRequest("missing operation name")
	}
	if req.Operation.ConsumerID == "" {
		return scerrors.NewInvalidRequest("missing consumer id")
	}
	if req.ServiceName != a.serviceName {
		return scerrors.NewInvalidRequest("service name mismatch: got " + req.ServiceName + ", want " + a.serviceName)
	}
	return nil
}
