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

// Package quotaaggregator caches AllocateQuotaResponses keyed by request
// fingerprint. Each cache hit deducts the requested amounts from the
// entry's remaining allowance; once a metric would go negative the entry
// is marked refreshing and the caller falls back to a synchronous upstream
// call.
package quotaaggregator

import (
	"container/list"
	"sync"
	"time"

	"github.com/svcctl/aggregator/common/clock"
	"github.com/svcctl/aggregator/common/scerrors"
	"github.com/svcctl/aggregator/servicecontrol"
	"github.com/svcctl/aggregator/servicecontrol/signing"
)

// Config configures an Aggregator (spec section 6).
type Config struct {
	NumEntries       int
	ExpirationMillis time.Duration
	RefreshMillis    time.Duration
}

type accumulated struct {
	amounts map[string]int64
}

func (a *accumulated) add(amounts map[string]int64) {
	if a.amounts == nil {
		a.amounts = make(map[string]int64, len(amounts))
	}
	for name, v := range amounts {
		a.amounts[name] += v
	}
}

type entry struct {
	fingerprint          servicecontrol.Fingerprint
	req                  servicecontrol.AllocateQuotaRequest
	response             servicecontrol.AllocateQuotaResponse
	remainingAmounts     map[string]int64
	lastRefreshTime      time.Time
	isRefreshing         bool
	consumedSinceRefresh accumulated
}

// Aggregator is a fingerprint-indexed cache of quota allocation responses.
type Aggregator struct {
	mu          sync.Mutex
	serviceName string
	numEntries  int
	ttl         time.Duration
	refresh     time.Duration
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
		refresh:     cfg.RefreshMillis,
		clock:       ts,
		ll:          list.New(),
		items:       make(map[servicecontrol.Fingerprint]*list.Element),
	}
}

func (a *Aggregator) enabled() bool { return a.numEntries > 0 }

// AllocateQuota deducts req's requested amounts from the cached allowance
// and returns the (unmodified) cached response on success. On a metric
// that would go negative it marks the entry refreshing; an expired entry
// is dropped. In those cases, and on a cold cache, it returns miss so the
// caller performs a synchronous upstream call.
func (a *Aggregator) AllocateQuota(req servicecontrol.AllocateQuotaRequest) (servicecontrol.AllocateQuotaResponse, bool, error) {
	if err := a.validate(req); err != nil {
		return servicecontrol.AllocateQuotaResponse{}, false, err
	}
	if !a.enabled() || req.Operation.Importance == servicecontrol.High {
		return servicecontrol.AllocateQuotaResponse{}, false, nil
	}

	fp := signing.SignQuota(req)

	a.mu.Lock()
	defer a.mu.Unlock()

	el, ok := a.items[fp]
	if !ok {
		return servicecontrol.AllocateQuotaResponse{}, false, nil
	}
	e := el.Value.(*entry)
	if a.ttl >= 0 && a.clock.Now().After(e.lastRefreshTime.Add(a.ttl)) {
		a.removeElement(el)
		return servicecontrol.AllocateQuotaResponse{}, false, nil
	}
	if !e.response.Allowed() {
		a.ll.MoveToFront(el)
		return e.response, true, nil
	}

	for metric, amount := range req.RequestedAmounts {
		if e.remainingAmounts[metric]-amount < 0 {
			e.isRefreshing = true
			return servicecontrol.AllocateQuotaResponse{}, false, nil
		}
	}
	for metric, amount := range req.RequestedAmounts {
		e.remainingAmounts[metric] -= amount
	}
	e.consumedSinceRefresh.add(req.RequestedAmounts)
	a.ll.MoveToFront(el)
	return e.response, true, nil
}

// CacheResponse populates or refreshes the entry for req with resp,
// resetting remainingAmounts to the freshly granted allowance and clearing
// isRefreshing.
func (a *Aggregator) CacheResponse(req servicecontrol.AllocateQuotaRequest, resp servicecontrol.AllocateQuotaResponse) error {
	if err := a.validate(req); err != nil {
		return err
	}
	if !a.enabled() {
		return nil
	}

	fp := signing.SignQuota(req)
	now := a.clock.Now()
	remaining := make(map[string]int64, len(resp.GrantedAmounts))
	for k, v := range resp.GrantedAmounts {
		remaining[k] = v
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if el, ok := a.items[fp]; ok {
		e := el.Value.(*entry)
		e.req = req
		e.response = resp
		e.remainingAmounts = remaining
		e.lastRefreshTime = now
		e.isRefreshing = false
		e.consumedSinceRefresh = accumulated{}
		a.ll.MoveToFront(el)
		return nil
	}

	el := a.ll.PushFront(&entry{
		fingerprint:      fp,
		req:              req,
		response:         resp,
		remainingAmounts: remaining,
		lastRefreshTime:  now,
	})
	a.items[fp] = el
	if a.ll.Len() > a.numEntries {
		a.removeOldest()
	}
	return nil
}

// Flush emits refresh requests for entries that are due for a periodic
// refresh, or whose isRefreshing flag was set by a prior AllocateQuota
// call. Each emitted request carries the amounts consumed since the last
// refresh so the upstream sees real usage.
//
// isRefreshing and lastRefreshTime are only cleared by a following
// CacheResponse, so a due-or-refreshing entry is re-emitted on every
// Flush until the upstream call succeeds; acceptable for best-effort
// refresh, since a stuck entry keeps retrying rather than going silent.
func (a *Aggregator) Flush() []servicecontrol.AllocateQuotaRequest {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	var out []servicecontrol.AllocateQuotaRequest
	for el := a.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		due := a.refresh >= 0 && !now.Before(e.lastRefreshTime.Add(a.refresh))
		if !due && !e.isRefreshing {
			continue
		}
		req := e.req
		consumed := make(map[string]int64, len(e.req.RequestedAmounts))
		for k := range e.req.RequestedAmounts {
			consumed[k] = 0
		}
		for k, v := range e.consumedSinceRefresh.amounts {
			consumed[k] = v
		}
		req.RequestedAmounts = consumed
		out = append(out, req)
	}
	return out
}

// Clear drops every cached entry.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ll.Init()
	a.items = make(map[servicecontrol.Fingerprint]*list.Element)
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

func (a *Aggregator) validate(req servicecontrol.AllocateQuotaRequest) error {
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
