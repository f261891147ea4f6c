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

package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcctl/aggregator/common/clock"
	"github.com/svcctl/aggregator/common/config"
	"github.com/svcctl/aggregator/servicecontrol"
)

// fakeTransport is a minimal, mutex-guarded servicecontrol.Transport
// double used across the facade's tests.
type fakeTransport struct {
	mu          sync.Mutex
	checkErr    error
	checkResp   servicecontrol.CheckResponse
	quotaErr    error
	quotaResp   servicecontrol.AllocateQuotaResponse
	reportErr   error
	reportCalls []servicecontrol.ReportRequest
}

func (f *fakeTransport) Check(ctx context.Context, serviceName string, req servicecontrol.CheckRequest) (servicecontrol.CheckResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkResp, f.checkErr
}

func (f *fakeTransport) AllocateQuota(ctx context.Context, serviceName string, req servicecontrol.AllocateQuotaRequest) (servicecontrol.AllocateQuotaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotaResp, f.quotaErr
}

func (f *fakeTransport) Report(ctx context.Context, serviceName string, req servicecontrol.ReportRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reportCalls = append(f.reportCalls, req)
	return f.reportErr
}

func (f *fakeTransport) calls() []servicecontrol.ReportRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]servicecontrol.ReportRequest(nil), f.reportCalls...)
}

// failingThreadFactory always fails to spawn, forcing inline-drive mode.
type failingThreadFactory struct{}

func (failingThreadFactory) Go(fn func()) error { return errors.New("thread creation forbidden") }

func TestCheckCacheMissThenHit(t *testing.T) {
	fake := clock.NewFakeTimeSource(time.Unix(0, 0))
	transport := &fakeTransport{checkResp: servicecontrol.CheckResponse{OperationID: "OpX"}}
	c := New("svc.example.com", config.DefaultConfig(), transport, Options{Clock: fake, ThreadFactory: failingThreadFactory{}})

	req := servicecontrol.CheckRequest{
		ServiceName: "svc.example.com",
		Operation:   servicecontrol.Operation{ConsumerID: "C", OperationName: "OpX"},
	}

	resp, err := c.Check(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "OpX", resp.OperationID)
	assert.Equal(t, State(Running), c.State())

	transport.checkErr = errors.New("should not be called again")
	resp, err = c.Check(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "OpX", resp.OperationID)
}

func TestCheckFailsOpenOnTransportError(t *testing.T) {
	transport := &fakeTransport{checkErr: errors.New("upstream unavailable")}
	c := New("svc.example.com", config.DefaultConfig(), transport, Options{ThreadFactory: failingThreadFactory{}})

	resp, err := c.Check(context.Background(), servicecontrol.CheckRequest{
		ServiceName: "svc.example.com",
		Operation:   servicecontrol.Operation{ConsumerID: "C", OperationName: "OpX"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Allowed())
}

func TestQuotaFailsOpenWithDefaultEmptyResponse(t *testing.T) {
	transport := &fakeTransport{quotaErr: errors.New("upstream unavailable")}
	c := New("svc.example.com", config.DefaultConfig(), transport, Options{ThreadFactory: failingThreadFactory{}})

	resp, err := c.AllocateQuota(context.Background(), servicecontrol.AllocateQuotaRequest{
		ServiceName:      "svc.example.com",
		Operation:        servicecontrol.Operation{ConsumerID: "C", OperationName: "OpX"},
		RequestedAmounts: map[string]int64{"qps": 1},
	})
	require.NoError(t, err)
	assert.True(t, resp.Allowed())
	assert.Empty(t, resp.GrantedAmounts)
}

func TestReportDeclinedSendsDirectly(t *testing.T) {
	transport := &fakeTransport{}
	c := New("svc.example.com", config.DefaultConfig(), transport, Options{ThreadFactory: failingThreadFactory{}})

	op := servicecontrol.Operation{
		ConsumerID:    "C",
		OperationName: "OpX",
		Importance:    servicecontrol.High,
	}
	err := c.Report(context.Background(), servicecontrol.ReportRequest{
		ServiceName: "svc.example.com",
		Operations:  []servicecontrol.Operation{op},
	})
	require.NoError(t, err)
	assert.Len(t, transport.calls(), 1)
}

func TestInlineDriveFallbackWhenThreadSpawnFails(t *testing.T) {
	transport := &fakeTransport{}
	c := New("svc.example.com", config.DefaultConfig(), transport, Options{ThreadFactory: failingThreadFactory{}})

	c.Start()
	assert.True(t, c.inlineDrive.Load())
}

func TestStopOnStoppedFacadeFails(t *testing.T) {
	transport := &fakeTransport{}
	c := New("svc.example.com", config.DefaultConfig(), transport, Options{ThreadFactory: failingThreadFactory{}})

	err := c.Stop()
	assert.Error(t, err)
}
