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

package main

import (
	"context"

	"github.com/svcctl/aggregator/servicecontrol"
)

// echoTransport always allows checks and grants exactly what was
// requested, so the CLI can smoke-test a configuration without a live
// upstream control plane.
type echoTransport struct{}

func newEchoTransport() servicecontrol.Transport { return echoTransport{} }

func (echoTransport) Check(ctx context.Context, serviceName string, req servicecontrol.CheckRequest) (servicecontrol.CheckResponse, error) {
	return servicecontrol.CheckResponse{OperationID: req.Operation.OperationID}, nil
}

func (echoTransport) AllocateQuota(ctx context.Context, serviceName string, req servicecontrol.AllocateQuotaRequest) (servicecontrol.AllocateQuotaResponse, error) {
	granted := make(map[string]int64, len(req.RequestedAmounts))
	for k, v := range req.RequestedAmounts {
		granted[k] = v
	}
	return servicecontrol.AllocateQuotaResponse{OperationID: req.Operation.OperationID, GrantedAmounts: granted}, nil
}

func (echoTransport) Report(ctx context.Context, serviceName string, req servicecontrol.ReportRequest) error {
	return nil
}
