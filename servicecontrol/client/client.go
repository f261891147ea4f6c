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

// Package client is the facade applications call into: it binds the three
// aggregators to a Transport and a background scheduler, with fail-open
// upstream semantics and an inline-drive fallback for sandboxed runtimes
// that forbid spawning threads.
package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/svcctl/aggregator/common/clock"
	"github.com/svcctl/aggregator/common/config"
	"github.com/svcctl/aggregator/common/log"
	"github.com/svcctl/aggregator/common/log/loggerimpl"
	"github.com/svcctl/aggregator/common/log/tag"
	"github.com/svcctl/aggregator/common/metrics"
	"github.com/svcctl/aggregator/common/scerrors"
	"github.com/svcctl/aggregator/servicecontrol"
	"github.com/svcctl/aggregator/servicecontrol/checkaggregator"
	"github.com/svcctl/aggregator/servicecontrol/quotaaggregator"
	"github.com/svcctl/aggregator/servicecontrol/reportaggregator"
	"github.com/svcctl/aggregator/servicecontrol/scheduler"
	"github.com/svcctl/aggregator/servicecontrol/stats"
)

// State is the facade's lifecycle state.
type State int32

const (
	// Stopped is the initial state; check/quota/report calls auto-start.
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	default:
		return "STOPPED"
	}
}

// ThreadFactory produces the one background thread that drives the
// scheduler in blocking mode. Returning an error signals a sandboxed
// runtime that forbids spawning threads; the facade falls back to
// inline-drive mode.
type ThreadFactory interface {
	Go(fn func()) error
}

type goroutineThreadFactory struct{}

func (goroutineThreadFactory) Go(fn func()) error {
	go fn()
	return nil
}

// DefaultThreadFactory spawns a plain goroutine and never fails.
func DefaultThreadFactory() ThreadFactory { return goroutineThreadFactory{} }

const reportFlushPriority = 0
const quotaFlushPriority = 1

// defaultMaxIdleSeconds mirrors common/config.DefaultConfig's facade default.
const defaultMaxIdleSeconds = 120

// Client is the aggregation-and-caching facade applications call into.
type Client struct {
	mu          sync.Mutex
	state       atomic.Int32
	inlineDrive atomic.Bool

	serviceName string
	transport   servicecontrol.Transport
	logger      log.Logger
	clock       clock.TimeSource
	threads     ThreadFactory

	checkAgg  *checkaggregator.Aggregator
	quotaAgg  *quotaaggregator.Aggregator
	reportAgg *reportaggregator.Aggregator
	scheduler *scheduler.Scheduler
	stats     *stats.Bag

	maxIdleSeconds       int
	statsLogFrequency    int
	quotaRefreshInterval time.Duration
	reportCalls          atomic.Int64

	lastNonEmptyFlush atomic.Int64 // unix nanos
}

// Options bundles the constructor dependencies that have sensible
// defaults when nil: a Logger, a TimeSource, a ThreadFactory, and a
// metrics Scope for statistics dual-emission.
type Options struct {
	Logger        log.Logger
	Clock         clock.TimeSource
	ThreadFactory ThreadFactory
	MetricsScope  metrics.Scope
}

// New constructs a Client in the Stopped state.
func New(serviceName string, cfg config.Config, transport servicecontrol.Transport, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = loggerimpl.NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealTimeSource()
	}
	if opts.ThreadFactory == nil {
		opts.ThreadFactory = DefaultThreadFactory()
	}

	statsBag := stats.New(opts.MetricsScope)

	c := &Client{
		serviceName:          serviceName,
		transport:            transport,
		logger:               opts.Logger,
		clock:                opts.Clock,
		threads:              opts.ThreadFactory,
		checkAgg:             checkaggregator.New(serviceName, checkaggregator.Config{NumEntries: cfg.Check.NumEntries, ExpirationMillis: cfg.Check.ExpirationMillis}, opts.Clock),
		quotaAgg:             quotaaggregator.New(serviceName, quotaaggregator.Config{NumEntries: cfg.Quota.NumEntries, ExpirationMillis: cfg.Quota.ExpirationMillis, RefreshMillis: cfg.Quota.RefreshMillis}, opts.Clock),
		reportAgg:            reportaggregator.New(serviceName, reportaggregator.Config{NumEntries: cfg.Report.NumEntries, FlushIntervalMillis: cfg.Report.FlushIntervalMillis, MaxOperationsPerBatch: cfg.Report.MaxOperationsPerBatch}),
		scheduler:            scheduler.New(opts.Clock, statsBag.RecordSchedulerRun),
		stats:                statsBag,
		maxIdleSeconds:       cfg.Facade.MaxIdleSeconds,
		statsLogFrequency:    cfg.Facade.StatsLogFrequency,
		quotaRefreshInterval: cfg.Quota.RefreshMillis,
	}
	if c.maxIdleSeconds < 0 {
		c.maxIdleSeconds = defaultMaxIdleSeconds
	}
	return c
}

// State reports the facade's current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// Start transitions Stopped -> Running, spawning the background scheduler
// thread. If thread creation fails, the facade continues in inline-drive
// mode: report flushes tick opportunistically on each Report call, and
// quota flush plus idle-shutdown are disabled.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return
	}

	c.lastNonEmptyFlush.Store(c.clock.Now().UnixNano())
	if err := c.threads.Go(c.driveScheduler); err != nil {
		c.logger.Warn("failed to spawn background scheduler thread, falling back to inline-drive mode", tag.Error(err))
		c.inlineDrive.Store(true)
	}

	c.scheduleReportFlush()
	if !c.inlineDrive.Load() {
		c.scheduleQuotaFlush()
	}
}

func (c *Client) ensureStarted() {
	if State(c.state.Load()) == Stopped {
		c.Start()
	}
}

func (c *Client) driveScheduler() {
	c.scheduler.RunBlocking(true)
}

// Stop transitions Running -> Stopping -> Stopped, flushing any pending
// report operations directly to the Transport. Calling Stop on an already
// Stopped facade fails with IllegalState.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		if State(c.state.Load()) == Stopped {
			return scerrors.NewIllegalState("stop called on a facade that is not running")
		}
	}

	c.scheduler.Stop()
	var flushErr error
	batches := c.reportAgg.Clear()
	operations := 0
	for _, batch := range batches {
		operations += len(batch.Operations)
		if err := c.transport.Report(context.Background(), c.serviceName, batch); err != nil {
			flushErr = multierr.Append(flushErr, scerrors.NewTransportFailure("report", err))
		}
	}
	if len(batches) > 0 {
		c.stats.RecordFlush(len(batches), operations)
	}
	if flushErr != nil {
		c.logger.Warn("report transport failure during shutdown flush", tag.Error(flushErr))
	}

	c.state.Store(int32(Stopped))
	return flushErr
}

// Check consults the check cache, falling back to a synchronous Transport
// call on miss. Transport failures fail open: the caller receives an
// allowed (empty-errors) response rather than an error.
func (c *Client) Check(ctx context.Context, req servicecontrol.CheckRequest) (servicecontrol.CheckResponse, error) {
	c.ensureStarted()
	start := c.clock.Now()

	resp, hit, err := c.checkAgg.Check(req)
	if err != nil {
		return servicecontrol.CheckResponse{}, err
	}
	if hit {
		c.stats.RecordCheck(true, c.clock.Now().Sub(start))
		return resp, nil
	}

	resp, err = c.transport.Check(ctx, c.serviceName, req)
	if err != nil {
		c.logger.Warn("check transport failure, failing open", tag.OperationName(req.Operation.OperationName), tag.Error(scerrors.NewTransportFailure("check", err)))
		c.stats.RecordCheck(false, c.clock.Now().Sub(start))
		return servicecontrol.CheckResponse{}, nil
	}

	if err := c.checkAgg.AddResponse(req, resp); err != nil {
		c.logger.Warn("failed to cache check response", tag.Error(err))
	}
	c.stats.RecordCheck(false, c.clock.Now().Sub(start))
	return resp, nil
}

// AllocateQuota consults the quota cache, deducting the requested amounts
// on a hit. On miss it performs a synchronous Transport call; on Transport
// failure it caches and returns a default-empty response so a systemic
// upstream outage does not cause a hot retry loop.
func (c *Client) AllocateQuota(ctx context.Context, req servicecontrol.AllocateQuotaRequest) (servicecontrol.AllocateQuotaResponse, error) {
	c.ensureStarted()
	start := c.clock.Now()

	resp, hit, err := c.quotaAgg.AllocateQuota(req)
	if err != nil {
		return servicecontrol.AllocateQuotaResponse{}, err
	}
	if hit {
		c.stats.RecordQuota(true, c.clock.Now().Sub(start))
		return resp, nil
	}

	resp, err = c.transport.AllocateQuota(ctx, c.serviceName, req)
	if err != nil {
		c.logger.Warn("quota transport failure, caching default-empty response", tag.OperationName(req.Operation.OperationName), tag.Error(scerrors.NewTransportFailure("allocateQuota", err)))
		resp = servicecontrol.AllocateQuotaResponse{OperationID: req.Operation.OperationID, GrantedAmounts: map[string]int64{}}
		if cacheErr := c.quotaAgg.CacheResponse(req, resp); cacheErr != nil {
			c.logger.Warn("failed to cache default-empty quota response", tag.Error(cacheErr))
		}
		c.stats.RecordQuota(false, c.clock.Now().Sub(start))
		return resp, nil
	}

	if err := c.quotaAgg.CacheResponse(req, resp); err != nil {
		c.logger.Warn("failed to cache quota response", tag.Error(err))
	}
	c.stats.RecordQuota(false, c.clock.Now().Sub(start))
	return resp, nil
}

// Report attempts to merge req into the report aggregator; on decline it
// sends req directly. Transport errors are logged, never propagated. In
// inline-drive mode, every Report call also ticks the scheduler once.
func (c *Client) Report(ctx context.Context, req servicecontrol.ReportRequest) error {
	c.ensureStarted()
	start := c.clock.Now()

	merged, err := c.reportAgg.Report(req)
	if err != nil {
		return err
	}
	if !merged {
		if err := c.transport.Report(ctx, c.serviceName, req); err != nil {
			c.logger.Warn("report transport failure", tag.Error(scerrors.NewTransportFailure("report", err)))
		}
		c.stats.RecordDirectReport(len(req.Operations), c.clock.Now().Sub(start))
	}

	if c.inlineDrive.Load() {
		c.scheduler.RunBlocking(false)
	}
	c.maybeLogStats()
	return nil
}

func (c *Client) maybeLogStats() {
	freq := c.statsLogFrequency
	if freq <= 0 {
		return
	}
	if n := c.reportCalls.Inc(); n%int64(freq) == 0 {
		c.logger.Info("servicecontrol client statistics", tag.Dynamic("stats", c.stats.String()))
	}
}

// scheduleReportFlush enters the recurring report-flush action. It always
// runs, including in inline-drive mode, since that is the only tick source
// available there.
func (c *Client) scheduleReportFlush() {
	interval := c.reportAgg.FlushIntervalMillis()
	if interval < 0 {
		return
	}

	var tick scheduler.Action
	tick = func() {
		batches := c.reportAgg.Flush()
		operations := 0
		for _, b := range batches {
			operations += len(b.Operations)
			if err := c.transport.Report(context.Background(), c.serviceName, b); err != nil {
				c.logger.Warn("scheduled report flush failed", tag.Error(scerrors.NewTransportFailure("report", err)))
			}
		}
		if len(batches) > 0 {
			c.stats.RecordFlush(len(batches), operations)
			c.lastNonEmptyFlush.Store(c.clock.Now().UnixNano())
		} else if !c.inlineDrive.Load() {
			c.checkIdleShutdown()
		}
		c.scheduler.Enter(tick, interval, reportFlushPriority)
	}
	c.scheduler.Enter(tick, interval, reportFlushPriority)
}

// scheduleQuotaFlush enters the recurring quota-refresh action. It is
// never scheduled in inline-drive mode, since it relies on a regular tick
// cadence that inline-drive cannot promise.
func (c *Client) scheduleQuotaFlush() {
	interval := c.quotaRefreshInterval
	if interval < 0 {
		return
	}
	var tick scheduler.Action
	tick = func() {
		for _, req := range c.quotaAgg.Flush() {
			resp, err := c.transport.AllocateQuota(context.Background(), c.serviceName, req)
			if err != nil {
				c.logger.Warn("scheduled quota refresh failed", tag.Error(scerrors.NewTransportFailure("allocateQuota", err)))
				continue
			}
			if err := c.quotaAgg.CacheResponse(req, resp); err != nil {
				c.logger.Warn("failed to cache refreshed quota response", tag.Error(err))
			}
		}
		c.scheduler.Enter(tick, interval, quotaFlushPriority)
	}
	c.scheduler.Enter(tick, interval, quotaFlushPriority)
}

// checkIdleShutdown self-stops the facade once the report-flush task has
// produced nothing for longer than maxIdleSeconds, freeing the background
// thread. Disabled in inline-drive mode.
func (c *Client) checkIdleShutdown() {
	last := time.Unix(0, c.lastNonEmptyFlush.Load())
	if c.clock.Now().Sub(last) <= time.Duration(c.maxIdleSeconds)*time.Second {
		return
	}
	go func() {
		if err := c.Stop(); err != nil {
			c.logger.Warn("idle self-stop failed", tag.Error(err))
		}
	}()
}

// Stats exposes the facade's statistics bag, e.g. for a health endpoint.
func (c *Client) Stats() *stats.Bag { return c.stats }
