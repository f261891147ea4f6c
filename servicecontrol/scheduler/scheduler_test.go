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

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcctl/aggregator/common/clock"
)

func TestSchedulerPriorityTieBreak(t *testing.T) {
	fake := clock.NewFakeTimeSource(time.Unix(0, 0))
	s := New(fake, nil)

	var order []string
	s.Enter(func() { order = append(order, "A") }, 100*time.Millisecond, 1)
	s.Enter(func() { order = append(order, "B") }, 100*time.Millisecond, 0)
	s.Enter(func() { order = append(order, "C") }, 50*time.Millisecond, 5)

	fake.Advance(200 * time.Millisecond)
	s.RunBlocking(false)

	assert.Equal(t, []string{"C", "B", "A"}, order)
}

func TestSchedulerNonBlockingReturnsWhenHeadNotDue(t *testing.T) {
	fake := clock.NewFakeTimeSource(time.Unix(0, 0))
	var observed []bool
	s := New(fake, func(ran bool) { observed = append(observed, ran) })

	ran := false
	s.Enter(func() { ran = true }, time.Second, 0)

	s.RunBlocking(false)
	assert.False(t, ran)
	assert.Equal(t, []bool{false}, observed)
}

func TestSchedulerObserverReportsRuns(t *testing.T) {
	fake := clock.NewFakeTimeSource(time.Unix(0, 0))
	var runs, skips int
	s := New(fake, func(ran bool) {
		if ran {
			runs++
		} else {
			skips++
		}
	})

	s.Enter(func() {}, 0, 0)
	s.Enter(func() {}, 0, 0)
	s.RunBlocking(false)

	assert.Equal(t, 2, runs)
	assert.Equal(t, 0, skips)
}

func TestSchedulerRescheduleFromWithinAction(t *testing.T) {
	fake := clock.NewFakeTimeSource(time.Unix(0, 0))
	s := New(fake, nil)

	count := 0
	var tick Action
	tick = func() {
		count++
		if count < 3 {
			s.Enter(tick, 0, 0)
		}
	}
	s.Enter(tick, 0, 0)

	s.RunBlocking(false)
	require.Equal(t, 3, count)
}
