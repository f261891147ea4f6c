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

// Package clock provides an injectable monotonic clock, so that TTL and
// scheduler behavior can be tested without sleeping.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// TimeSource is the external monotonic-clock dependency the aggregators
// and scheduler are built against (spec section 6's "Ticker" external
// interface: a clock a test can advance without sleeping). Production
// code gets a real clock; tests inject a fake one and advance it
// explicitly with FakeTimeSource.Advance.
type TimeSource interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realTimeSource struct {
	clock clockwork.Clock
}

// NewRealTimeSource returns a TimeSource backed by the real wall clock.
func NewRealTimeSource() TimeSource {
	return realTimeSource{clock: clockwork.NewRealClock()}
}

func (r realTimeSource) Now() time.Time { return r.clock.Now() }

func (r realTimeSource) Sleep(d time.Duration) { r.clock.Sleep(d) }
