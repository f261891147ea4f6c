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

package metricvalue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcctl/aggregator/servicecontrol"
)

func TestMergeIntCounters(t *testing.T) {
	start1 := time.Unix(100, 0)
	end1 := time.Unix(110, 0)
	start2 := time.Unix(90, 0)
	end2 := time.Unix(120, 0)

	a := servicecontrol.Operation{
		ConsumerID:    "C",
		OperationName: "OpY",
		Labels:        map[string]string{"env": "prod"},
		StartTime:     start1,
		EndTime:       end1,
		MetricValueSets: []servicecontrol.MetricValueSet{
			{MetricName: "m.requests", Values: []servicecontrol.MetricValue{
				{Kind: servicecontrol.KindInt64, Int64Value: 3},
			}},
		},
	}
	b := servicecontrol.Operation{
		ConsumerID:    "C",
		OperationName: "OpY",
		Labels:        map[string]string{"env": "prod"},
		StartTime:     start2,
		EndTime:       end2,
		MetricValueSets: []servicecontrol.MetricValueSet{
			{MetricName: "m.requests", Values: []servicecontrol.MetricValue{
				{Kind: servicecontrol.KindInt64, Int64Value: 5},
			}},
		},
	}

	merged, ok := Merge(a, b)
	require.True(t, ok)
	assert.Equal(t, start2, merged.StartTime)
	assert.Equal(t, end2, merged.EndTime)
	require.Len(t, merged.MetricValueSets, 1)
	require.Len(t, merged.MetricValueSets[0].Values, 1)
	assert.Equal(t, int64(8), merged.MetricValueSets[0].Values[0].Int64Value)
}

func TestMergeRejectsConflictingLabels(t *testing.T) {
	a := servicecontrol.Operation{Labels: map[string]string{"env": "prod"}}
	b := servicecontrol.Operation{Labels: map[string]string{"env": "staging"}}

	_, ok := Merge(a, b)
	assert.False(t, ok)
}

func TestMergeBoolOr(t *testing.T) {
	a := opWithBool(false)
	b := opWithBool(true)

	merged, ok := Merge(a, b)
	require.True(t, ok)
	assert.True(t, merged.MetricValueSets[0].Values[0].BoolValue)
}

func opWithBool(v bool) servicecontrol.Operation {
	return servicecontrol.Operation{
		MetricValueSets: []servicecontrol.MetricValueSet{
			{MetricName: "m.flag", Values: []servicecontrol.MetricValue{
				{Kind: servicecontrol.KindBool, BoolValue: v},
			}},
		},
	}
}

func TestMergeStringLaterWins(t *testing.T) {
	a := opWithString("first")
	b := opWithString("second")

	merged, ok := Merge(a, b)
	require.True(t, ok)
	assert.Equal(t, "second", merged.MetricValueSets[0].Values[0].StringValue)
}

func opWithString(v string) servicecontrol.Operation {
	return servicecontrol.Operation{
		MetricValueSets: []servicecontrol.MetricValueSet{
			{MetricName: "m.tag", Values: []servicecontrol.MetricValue{
				{Kind: servicecontrol.KindString, StringValue: v},
			}},
		},
	}
}

func TestMergeDistributionWelfordCombine(t *testing.T) {
	a := servicecontrol.Distribution{
		BucketBoundaries: []float64{1, 2, 3},
		BucketCounts:     []int64{1, 1, 0, 0},
		Count:            2,
		Mean:             1.5,
		SumOfSquaredDevs: 0.5,
		Min:              1,
		Max:              2,
	}
	b := servicecontrol.Distribution{
		BucketBoundaries: []float64{1, 2, 3},
		BucketCounts:     []int64{0, 0, 1, 1},
		Count:            2,
		Mean:             3.5,
		SumOfSquaredDevs: 0.5,
		Min:              3,
		Max:              4,
	}

	merged := mergeDistribution(a, b)
	assert.Equal(t, int64(4), merged.Count)
	assert.InDelta(t, 2.5, merged.Mean, 1e-9)
	assert.Equal(t, float64(1), merged.Min)
	assert.Equal(t, float64(4), merged.Max)
	assert.Equal(t, []int64{1, 1, 1, 1}, merged.BucketCounts)
}

func TestMergeDistinctLabelsConcatenate(t *testing.T) {
	a := servicecontrol.Operation{
		MetricValueSets: []servicecontrol.MetricValueSet{
			{MetricName: "m.latency", Values: []servicecontrol.MetricValue{
				{Kind: servicecontrol.KindInt64, Int64Value: 1, Labels: map[string]string{"region": "us"}},
			}},
		},
	}
	b := servicecontrol.Operation{
		MetricValueSets: []servicecontrol.MetricValueSet{
			{MetricName: "m.latency", Values: []servicecontrol.MetricValue{
				{Kind: servicecontrol.KindInt64, Int64Value: 2, Labels: map[string]string{"region": "eu"}},
			}},
		},
	}

	merged, ok := Merge(a, b)
	require.True(t, ok)
	require.Len(t, merged.MetricValueSets[0].Values, 2)
	assert.Equal(t, "us", merged.MetricValueSets[0].Values[0].Labels["region"])
	assert.Equal(t, "eu", merged.MetricValueSets[0].Values[1].Labels["region"])
}
