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

// Package metricvalue combines two Operations that target the same report
// slot into one, and combines the individual MetricValues within them
// according to their kind. Nothing here allocates a fingerprint; callers
// decide slot membership before calling Merge.
package metricvalue

import "github.com/svcctl/aggregator/servicecontrol"

// Merge combines older and newer, which must already be known to target
// the same report slot, into a single Operation. It returns ok=false when
// the two operations disagree on the value of a shared label, in which
// case the caller must decline newer rather than merge it.
func Merge(older, newer servicecontrol.Operation) (merged servicecontrol.Operation, ok bool) {
	labels, ok := mergeLabels(older.Labels, newer.Labels)
	if !ok {
		return servicecontrol.Operation{}, false
	}

	merged = older.Clone()
	merged.Labels = labels
	if newer.StartTime.Before(merged.StartTime) {
		merged.StartTime = newer.StartTime
	}
	if newer.EndTime.After(merged.EndTime) {
		merged.EndTime = newer.EndTime
	}
	merged.MetricValueSets = mergeSets(older.MetricValueSets, newer.MetricValueSets)
	return merged, true
}

// mergeLabels unions two label maps, rejecting the merge if a key is
// present in both with differing values.
func mergeLabels(a, b map[string]string) (map[string]string, bool) {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, present := out[k]; present && existing != v {
			return nil, false
		}
		out[k] = v
	}
	return out, true
}

// mergeSets merges two ordered sequences of MetricValueSets by metricName,
// preserving the order metric names were first seen in older then newer.
func mergeSets(a, b []servicecontrol.MetricValueSet) []servicecontrol.MetricValueSet {
	index := make(map[string]int, len(a)+len(b))
	var out []servicecontrol.MetricValueSet

	for _, set := range a {
		index[set.MetricName] = len(out)
		out = append(out, set.Clone())
	}
	for _, set := range b {
		if i, present := index[set.MetricName]; present {
			out[i].Values = mergeValues(out[i].Values, set.Values)
			continue
		}
		index[set.MetricName] = len(out)
		out = append(out, set.Clone())
	}
	return out
}

// mergeValues merges MetricValues within one set: values whose labels
// match by kind are combined in place, and values whose labels have no
// match in older are appended, preserving insertion order.
func mergeValues(a, b []servicecontrol.MetricValue) []servicecontrol.MetricValue {
	out := make([]servicecontrol.MetricValue, len(a))
	for i, v := range a {
		out[i] = v.Clone()
	}

	for _, v := range b {
		matched := false
		for i := range out {
			if out[i].Kind == v.Kind && labelsEqual(out[i].Labels, v.Labels) {
				out[i] = mergeOne(out[i], v)
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, v.Clone())
		}
	}
	return out
}

func labelsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// mergeOne combines two MetricValues already known to share labels and
// kind. Timestamps widen to the encompassing window.
func mergeOne(older, newer servicecontrol.MetricValue) servicecontrol.MetricValue {
	out := older.Clone()
	if newer.StartTime.Before(out.StartTime) {
		out.StartTime = newer.StartTime
	}
	if newer.EndTime.After(out.EndTime) {
		out.EndTime = newer.EndTime
	}

	switch out.Kind {
	case servicecontrol.KindBool:
		out.BoolValue = out.BoolValue || newer.BoolValue
	case servicecontrol.KindInt64:
		out.Int64Value += newer.Int64Value
	case servicecontrol.KindDouble:
		out.DoubleValue += newer.DoubleValue
	case servicecontrol.KindString:
		out.StringValue = newer.StringValue
	case servicecontrol.KindDistribution:
		out.Distribution = mergeDistribution(out.Distribution, newer.Distribution)
	}
	return out
}

// mergeDistribution combines two distributions with the Welford parallel
// combine formula, and adds bucket counts elementwise. Both distributions
// must share the same bucket boundaries; this is the caller's contract
// since boundaries are fixed at metric-definition time.
func mergeDistribution(a, b servicecontrol.Distribution) servicecontrol.Distribution {
	if a.Count == 0 {
		return b.Clone()
	}
	if b.Count == 0 {
		return a.Clone()
	}

	n1, n2 := float64(a.Count), float64(b.Count)
	delta := b.Mean - a.Mean
	totalCount := a.Count + b.Count
	mean := a.Mean + delta*n2/(n1+n2)
	m2 := a.SumOfSquaredDevs + b.SumOfSquaredDevs + delta*delta*n1*n2/(n1+n2)

	out := servicecontrol.Distribution{
		BucketBoundaries: append([]float64(nil), a.BucketBoundaries...),
		Count:            totalCount,
		Mean:             mean,
		SumOfSquaredDevs: m2,
		Min:              minFloat(a.Min, b.Min),
		Max:              maxFloat(a.Max, b.Max),
	}

	out.BucketCounts = make([]int64, len(a.BucketCounts))
	for i := range out.BucketCounts {
		out.BucketCounts[i] = a.BucketCounts[i]
		if i < len(b.BucketCounts) {
			out.BucketCounts[i] += b.BucketCounts[i]
		}
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
