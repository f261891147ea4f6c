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

// Package signing computes canonical fingerprints of check, quota, and
// report-slot requests. Each family canonicalizes a different subset of an
// Operation's fields into a deterministic byte stream, then folds that
// stream into a 128-bit servicecontrol.Fingerprint. Only the fingerprint is
// ever compared; the intermediate bytes are discarded.
package signing

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/dgryski/go-farm"

	"github.com/svcctl/aggregator/servicecontrol"
)

// reportSeed decorrelates the report-slot fingerprint space from the
// check/quota space, so a request that canonicalizes identically under both
// rules never collides across the two caches.
const reportSeed uint64 = 0x9e3779b97f4a7c15

// SignCheck fingerprints a CheckRequest: consumer, operation name, labels,
// and the full metric value sets including per-value timestamps and labels.
func SignCheck(req servicecontrol.CheckRequest) servicecontrol.Fingerprint {
	var buf bytes.Buffer
	writeHeader(&buf, req.Operation)
	writeMetricValueSets(&buf, req.Operation.MetricValueSets)
	return fingerprint(buf.Bytes(), 0)
}

// SignQuota fingerprints an AllocateQuotaRequest: consumer, operation name,
// labels, and the set of metric names being requested. The requested
// amounts themselves are deliberately excluded — a quota entry is looked
// up by the shape of the request, not the amount asked of it, since the
// entire point of caching is to serve a stream of requests for varying
// amounts against one allowance.
func SignQuota(req servicecontrol.AllocateQuotaRequest) servicecontrol.Fingerprint {
	var buf bytes.Buffer
	buf.WriteString(req.Operation.ConsumerID)
	buf.WriteByte(0)
	buf.WriteString(req.Operation.OperationName)
	buf.WriteByte(0)
	writeLabels(&buf, req.Operation.Labels)

	names := make([]string, 0, len(req.RequestedAmounts))
	for name := range req.RequestedAmounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte(0)
	}
	return fingerprint(buf.Bytes(), 0)
}

// SignReportSlot fingerprints the shape an operation would merge into: the
// consumer, operation name, top-level labels, and — per metric value set —
// the metric name and each value's label set, but not the operationId, the
// per-value timestamps, or the sample payloads themselves. Two operations
// with identical structure but different sample values share a slot.
func SignReportSlot(op servicecontrol.Operation) servicecontrol.Fingerprint {
	var buf bytes.Buffer
	buf.WriteString(op.ConsumerID)
	buf.WriteByte(0)
	buf.WriteString(op.OperationName)
	buf.WriteByte(0)
	writeLabels(&buf, op.Labels)

	for _, mvs := range op.MetricValueSets {
		buf.WriteString(mvs.MetricName)
		buf.WriteByte(0)
		for _, v := range mvs.Values {
			writeLabels(&buf, v.Labels)
			buf.WriteByte(byte(v.Kind))
		}
	}
	return fingerprint(buf.Bytes(), reportSeed)
}

func writeHeader(buf *bytes.Buffer, op servicecontrol.Operation) {
	buf.WriteString(op.ConsumerID)
	buf.WriteByte(0)
	buf.WriteString(op.OperationName)
	buf.WriteByte(0)
	writeLabels(buf, op.Labels)
}

// writeLabels emits label pairs in ascending lexicographic order by name,
// so two Operations built with different map iteration orders canonicalize
// identically.
func writeLabels(buf *bytes.Buffer, labels map[string]string) {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte(0)
		buf.WriteString(labels[name])
		buf.WriteByte(0)
	}
}

func writeMetricValueSets(buf *bytes.Buffer, sets []servicecontrol.MetricValueSet) {
	for _, mvs := range sets {
		buf.WriteString(mvs.MetricName)
		buf.WriteByte(0)
		for _, v := range mvs.Values {
			writeTimestamp(buf, v.StartTime)
			writeTimestamp(buf, v.EndTime)
			writeLabels(buf, v.Labels)
			buf.WriteByte(byte(v.Kind))
			writeMetricValueBody(buf, v)
		}
	}
}

func writeMetricValueBody(buf *bytes.Buffer, v servicecontrol.MetricValue) {
	switch v.Kind {
	case servicecontrol.KindBool:
		if v.BoolValue {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case servicecontrol.KindInt64:
		writeInt64(buf, v.Int64Value)
	case servicecontrol.KindDouble:
		writeFloat64(buf, v.DoubleValue)
	case servicecontrol.KindString:
		buf.WriteString(v.StringValue)
		buf.WriteByte(0)
	case servicecontrol.KindDistribution:
		writeDistribution(buf, v.Distribution)
	}
}

func writeDistribution(buf *bytes.Buffer, d servicecontrol.Distribution) {
	writeInt64(buf, int64(len(d.BucketBoundaries)))
	for _, b := range d.BucketBoundaries {
		writeFloat64(buf, b)
	}
	writeInt64(buf, int64(len(d.BucketCounts)))
	for _, c := range d.BucketCounts {
		writeInt64(buf, c)
	}
	writeInt64(buf, d.Count)
	writeFloat64(buf, d.Mean)
	writeFloat64(buf, d.SumOfSquaredDevs)
	writeFloat64(buf, d.Min)
	writeFloat64(buf, d.Max)
}

func writeTimestamp(buf *bytes.Buffer, t time.Time) {
	writeInt64(buf, t.Unix())
	writeInt32(buf, int32(t.Nanosecond()))
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], uint64(v))
	buf.Write(scratch[:])
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], uint32(v))
	buf.Write(scratch[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
	buf.Write(scratch[:])
}

// fingerprint folds a canonical byte stream into a 128-bit digest: farm's
// 64-bit fingerprint hash for the low half, and a seeded 64-bit hash for the
// high half so the two halves are not trivially correlated.
func fingerprint(data []byte, seed uint64) servicecontrol.Fingerprint {
	lo := farm.Fingerprint64(data)
	hi := farm.Hash64WithSeed(data, seed^0xff51afd7ed558ccd)

	var out servicecontrol.Fingerprint
	binary.LittleEndian.PutUint64(out[0:8], lo)
	binary.LittleEndian.PutUint64(out[8:16], hi)
	return out
}
