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

// Package servicecontrol defines the data model this module's aggregators
// and client facade operate on: Operation, MetricValueSet, MetricValue,
// and the Importance/Fingerprint types they are keyed and gated by.
package servicecontrol

import (
	"time"

	"github.com/google/uuid"
)

// Importance controls whether an operation may be served from cache
// (LOW) or must always bypass it and hit the upstream directly (HIGH).
type Importance int

const (
	// Low permits caching and merging.
	Low Importance = iota
	// High forces a direct upstream call, bypassing check/quota caches
	// and report merging.
	High
)

func (i Importance) String() string {
	if i == High {
		return "HIGH"
	}
	return "LOW"
}

// Operation is the atomic unit of work the core manipulates: a single
// check, quota, or report action taken by a consumer against an
// operation name, decorated with labels and metric samples.
type Operation struct {
	OperationID     string
	OperationName   string
	ConsumerID      string
	StartTime       time.Time
	EndTime         time.Time
	Labels          map[string]string
	MetricValueSets []MetricValueSet
	Importance      Importance
}

// NewOperationID returns a fresh opaque operation id for callers that do
// not already have one to attach.
func NewOperationID() string {
	return uuid.NewString()
}

// Clone returns a deep copy of op, safe to mutate independently.
func (op Operation) Clone() Operation {
	out := op
	if op.Labels != nil {
		out.Labels = make(map[string]string, len(op.Labels))
		for k, v := range op.Labels {
			out.Labels[k] = v
		}
	}
	if op.MetricValueSets != nil {
		out.MetricValueSets = make([]MetricValueSet, len(op.MetricValueSets))
		for i, mvs := range op.MetricValueSets {
			out.MetricValueSets[i] = mvs.Clone()
		}
	}
	return out
}

// MetricValueSet is a metric name plus an ordered sequence of samples
// recorded against it within one Operation.
type MetricValueSet struct {
	MetricName string
	Values     []MetricValue
}

// Clone returns a deep copy of the set.
func (s MetricValueSet) Clone() MetricValueSet {
	out := MetricValueSet{MetricName: s.MetricName}
	if s.Values != nil {
		out.Values = make([]MetricValue, len(s.Values))
		for i, v := range s.Values {
			out.Values[i] = v.Clone()
		}
	}
	return out
}

// MetricKind identifies which of MetricValue's payload fields is populated.
type MetricKind byte

const (
	// KindBool carries a BoolValue.
	KindBool MetricKind = 'B'
	// KindInt64 carries an Int64Value.
	KindInt64 MetricKind = 'I'
	// KindDouble carries a DoubleValue.
	KindDouble MetricKind = 'D'
	// KindString carries a StringValue.
	KindString MetricKind = 'S'
	// KindDistribution carries a Distribution.
	KindDistribution MetricKind = 'X'
)

// MetricValue is a single labelled sample with exactly one populated
// payload, selected by Kind.
type MetricValue struct {
	StartTime time.Time
	EndTime   time.Time
	Labels    map[string]string
	Kind      MetricKind

	BoolValue    bool
	Int64Value   int64
	DoubleValue  float64
	StringValue  string
	Distribution Distribution
}

// Clone returns a deep copy of the value.
func (v MetricValue) Clone() MetricValue {
	out := v
	if v.Labels != nil {
		out.Labels = make(map[string]string, len(v.Labels))
		for k, val := range v.Labels {
			out.Labels[k] = val
		}
	}
	out.Distribution = v.Distribution.Clone()
	return out
}

// Distribution is a bucketed histogram plus running summary statistics,
// combined across merges with the Welford online algorithm (spec 4.3).
type Distribution struct {
	// BucketBoundaries has len(BucketCounts)-1 entries; bucket i covers
	// [BucketBoundaries[i-1], BucketBoundaries[i]) with the first and
	// last buckets open-ended.
	BucketBoundaries []float64
	BucketCounts     []int64

	Count             int64
	Mean              float64
	SumOfSquaredDevs  float64
	Min               float64
	Max               float64
}

// Clone returns a deep copy of the distribution.
func (d Distribution) Clone() Distribution {
	out := d
	if d.BucketBoundaries != nil {
		out.BucketBoundaries = append([]float64(nil), d.BucketBoundaries...)
	}
	if d.BucketCounts != nil {
		out.BucketCounts = append([]int64(nil), d.BucketCounts...)
	}
	return out
}
