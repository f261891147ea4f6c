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

// Package stats is the facade's shared counter bag: an owned aggregate of
// atomic counters, snapshotted only when rendered (spec section 9's design
// note on avoiding shared mutable state passed by reference).
package stats

import (
	"time"

	"go.uber.org/atomic"
	"gopkg.in/yaml.v2"

	"github.com/svcctl/aggregator/common/metrics"
)

// Bag holds every counter the client facade and scheduler update. All
// fields are safe for concurrent increment; String() loads each counter
// once into a plain snapshot for rendering, one counter at a time (the
// snapshot is not atomic across counters).
type Bag struct {
	TotalChecks atomic.Int64
	CheckHits   atomic.Int64
	TotalQuotas atomic.Int64
	QuotaHits   atomic.Int64

	// RecachedChecks is declared for parity with the source statistics
	// bag but is never incremented — see DESIGN.md's Open Question entry.
	RecachedChecks atomic.Int64

	DirectReports      atomic.Int64
	FlushedReports     atomic.Int64
	ReportedOperations atomic.Int64
	FlushedOperations  atomic.Int64

	SchedulerRuns  atomic.Int64
	SchedulerSkips atomic.Int64

	CheckElapsedNanos  atomic.Int64
	QuotaElapsedNanos  atomic.Int64
	ReportElapsedNanos atomic.Int64

	scope metrics.Scope
}

// New returns an empty Bag. A nil scope disables metrics dual-emission;
// the atomics remain authoritative regardless.
func New(scope metrics.Scope) *Bag {
	if scope == nil {
		scope = metrics.NoopScope()
	}
	return &Bag{scope: scope}
}

// RecordCheck increments the check counters and, on a hit, the hit
// counter, and dual-emits into the metrics scope.
func (b *Bag) RecordCheck(hit bool, elapsed time.Duration) {
	b.TotalChecks.Inc()
	b.scope.IncCounter("check.total")
	if hit {
		b.CheckHits.Inc()
		b.scope.IncCounter("check.hits")
	}
	b.CheckElapsedNanos.Add(int64(elapsed))
	b.scope.RecordTimer("check.latency", elapsed)
}

// RecordQuota is the quota-path analog of RecordCheck.
func (b *Bag) RecordQuota(hit bool, elapsed time.Duration) {
	b.TotalQuotas.Inc()
	b.scope.IncCounter("quota.total")
	if hit {
		b.QuotaHits.Inc()
		b.scope.IncCounter("quota.hits")
	}
	b.QuotaElapsedNanos.Add(int64(elapsed))
	b.scope.RecordTimer("quota.latency", elapsed)
}

// RecordDirectReport counts a report sent directly to the Transport
// because the aggregator declined to merge it.
func (b *Bag) RecordDirectReport(operations int, elapsed time.Duration) {
	b.DirectReports.Inc()
	b.ReportedOperations.Add(int64(operations))
	b.ReportElapsedNanos.Add(int64(elapsed))
	b.scope.IncCounter("report.direct")
	b.scope.AddCounter("report.operations", int64(operations))
}

// RecordFlush counts a batch produced by a scheduled or shutdown flush.
func (b *Bag) RecordFlush(batches, operations int) {
	b.FlushedReports.Add(int64(batches))
	b.FlushedOperations.Add(int64(operations))
	b.scope.AddCounter("report.flushed_batches", int64(batches))
	b.scope.AddCounter("report.flushed_operations", int64(operations))
}

// RecordSchedulerRun tallies one scheduler quantum, whether it ran an
// action or skipped because nothing was due.
func (b *Bag) RecordSchedulerRun(ran bool) {
	if ran {
		b.SchedulerRuns.Inc()
		b.scope.IncCounter("scheduler.runs")
		return
	}
	b.SchedulerSkips.Inc()
	b.scope.IncCounter("scheduler.skips")
}

// snapshot is the plain-value form of Bag used for rendering.
type snapshot struct {
	Checks struct {
		Total int64 `yaml:"total"`
		Hits  int64 `yaml:"hits"`
	} `yaml:"checks"`
	Quotas struct {
		Total int64 `yaml:"total"`
		Hits  int64 `yaml:"hits"`
	} `yaml:"quotas"`
	Reports struct {
		Direct     int64 `yaml:"direct"`
		Flushed    int64 `yaml:"flushed"`
		Operations int64 `yaml:"operations"`
		FlushedOps int64 `yaml:"flushedOperations"`
	} `yaml:"reports"`
	Scheduler struct {
		Runs  int64 `yaml:"runs"`
		Skips int64 `yaml:"skips"`
	} `yaml:"scheduler"`
}

// String renders a stable, human-readable YAML summary of the current
// counter values.
func (b *Bag) String() string {
	var s snapshot
	s.Checks.Total = b.TotalChecks.Load()
	s.Checks.Hits = b.CheckHits.Load()
	s.Quotas.Total = b.TotalQuotas.Load()
	s.Quotas.Hits = b.QuotaHits.Load()
	s.Reports.Direct = b.DirectReports.Load()
	s.Reports.Flushed = b.FlushedReports.Load()
	s.Reports.Operations = b.ReportedOperations.Load()
	s.Reports.FlushedOps = b.FlushedOperations.Load()
	s.Scheduler.Runs = b.SchedulerRuns.Load()
	s.Scheduler.Skips = b.SchedulerSkips.Load()

	out, err := yaml.Marshal(s)
	if err != nil {
		return err.Error()
	}
	return string(out)
}
