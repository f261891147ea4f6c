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

package reportaggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcctl/aggregator/servicecontrol"
)

func opWithRequests(consumer, name string, labels map[string]string, start, end time.Time, count int64) servicecontrol.Operation {
	return servicecontrol.Operation{
		OperationID:   servicecontrol.NewOperationID(),
		ConsumerID:    consumer,
		OperationName: name,
		Labels:        labels,
		StartTime:     start,
		EndTime:       end,
		MetricValueSets: []servicecontrol.MetricValueSet{
			{MetricName: "m.requests", Values: []servicecontrol.MetricValue{
				{Kind: servicecontrol.KindInt64, Int64Value: count},
			}},
		},
	}
}

func TestReportMergeArithmetic(t *testing.T) {
	agg := New("svc.example.com", Config{NumEntries: 200, FlushIntervalMillis: time.Second, MaxOperationsPerBatch: 1000})

	labels := map[string]string{"env": "prod"}
	first := opWithRequests("C", "OpY", labels, time.Unix(100, 0), time.Unix(110, 0), 3)
	second := opWithRequests("C", "OpY", labels, time.Unix(90, 0), time.Unix(120, 0), 5)

	ok, err := agg.Report(servicecontrol.ReportRequest{ServiceName: "svc.example.com", Operations: []servicecontrol.Operation{first}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = agg.Report(servicecontrol.ReportRequest{ServiceName: "svc.example.com", Operations: []servicecontrol.Operation{second}})
	require.NoError(t, err)
	assert.True(t, ok)

	batches := agg.Flush()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Operations, 1)
	merged := batches[0].Operations[0]
	assert.Equal(t, int64(8), merged.MetricValueSets[0].Values[0].Int64Value)
	assert.Equal(t, time.Unix(90, 0), merged.StartTime)
	assert.Equal(t, time.Unix(120, 0), merged.EndTime)
}

func TestReportBatchSplit(t *testing.T) {
	agg := New("svc.example.com", Config{NumEntries: 200, FlushIntervalMillis: time.Second, MaxOperationsPerBatch: 2})

	for i := 0; i < 5; i++ {
		op := opWithRequests("C", "Op"+string(rune('A'+i)), nil, time.Unix(0, 0), time.Unix(1, 0), 1)
		ok, err := agg.Report(servicecontrol.ReportRequest{ServiceName: "svc.example.com", Operations: []servicecontrol.Operation{op}})
		require.NoError(t, err)
		assert.True(t, ok)
	}

	batches := agg.Flush()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Operations, 2)
	assert.Len(t, batches[1].Operations, 2)
	assert.Len(t, batches[2].Operations, 1)
}

func TestReportHighImportanceDeclinesWholeRequest(t *testing.T) {
	agg := New("svc.example.com", Config{NumEntries: 200, FlushIntervalMillis: time.Second, MaxOperationsPerBatch: 10})

	low := opWithRequests("C", "OpA", nil, time.Unix(0, 0), time.Unix(1, 0), 1)
	high := opWithRequests("C", "OpB", nil, time.Unix(0, 0), time.Unix(1, 0), 1)
	high.Importance = servicecontrol.High

	ok, err := agg.Report(servicecontrol.ReportRequest{ServiceName: "svc.example.com", Operations: []servicecontrol.Operation{low, high}})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Empty(t, agg.Flush())
}

func TestReportEvictionQueuesForNextFlush(t *testing.T) {
	agg := New("svc.example.com", Config{NumEntries: 1, FlushIntervalMillis: time.Second, MaxOperationsPerBatch: 10})

	first := opWithRequests("C", "OpA", nil, time.Unix(0, 0), time.Unix(1, 0), 1)
	second := opWithRequests("C", "OpB", nil, time.Unix(0, 0), time.Unix(1, 0), 1)

	_, err := agg.Report(servicecontrol.ReportRequest{ServiceName: "svc.example.com", Operations: []servicecontrol.Operation{first}})
	require.NoError(t, err)
	_, err = agg.Report(servicecontrol.ReportRequest{ServiceName: "svc.example.com", Operations: []servicecontrol.Operation{second}})
	require.NoError(t, err)

	batches := agg.Flush()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Operations, 2, "evicted slot must survive into the flush output")
}
