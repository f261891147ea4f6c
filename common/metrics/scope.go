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

// Package metrics provides a narrow tally.Scope wrapper. It exists so the
// Statistics component (spec section 4.6) can dual-emit into an operator's
// metrics backend in addition to the atomic counters it keeps for its own
// toString summary; the atomics remain authoritative, this is additive.
package metrics

import (
	"time"

	"github.com/uber-go/tally"
)

// Scope emits named counters, gauges, and timers, optionally tagged.
type Scope interface {
	IncCounter(name string)
	AddCounter(name string, delta int64)
	UpdateGauge(name string, value float64)
	RecordTimer(name string, d time.Duration)
	Tagged(tags map[string]string) Scope
}

type tallyScope struct {
	scope tally.Scope
}

// NewScope wraps a tally.Scope.
func NewScope(scope tally.Scope) Scope {
	return tallyScope{scope: scope}
}

// NoopScope returns a Scope that discards everything, for callers that did
// not configure a metrics backend.
func NoopScope() Scope {
	return tallyScope{scope: tally.NoopScope}
}

func (s tallyScope) IncCounter(name string) {
	s.scope.Counter(name).Inc(1)
}

func (s tallyScope) AddCounter(name string, delta int64) {
	s.scope.Counter(name).Inc(delta)
}

func (s tallyScope) UpdateGauge(name string, value float64) {
	s.scope.Gauge(name).Update(value)
}

func (s tallyScope) RecordTimer(name string, d time.Duration) {
	s.scope.Timer(name).Record(d)
}

func (s tallyScope) Tagged(tags map[string]string) Scope {
	return tallyScope{scope: s.scope.Tagged(tags)}
}
