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

package servicecontrol

import (
	"context"
	"encoding/hex"
)

// Fingerprint is a fixed-width digest of the canonicalized content of a
// request (spec section 3). It is compared as an opaque byte string.
type Fingerprint [16]byte

// String renders the fingerprint as hex, for logging.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// CheckRequest asks whether a consumer's operation is permitted.
type CheckRequest struct {
	ServiceName string
	Operation   Operation
}

// CheckResponse is the (possibly cached) result of a CheckRequest.
type CheckResponse struct {
	OperationID string
	// Errors carries any check violations the upstream reported; an
	// empty slice means the operation is permitted.
	Errors []CheckError
}

// Allowed reports whether the response carries no violations.
func (r CheckResponse) Allowed() bool { return len(r.Errors) == 0 }

// CheckError is one reason a checked operation was denied.
type CheckError struct {
	Code    string
	Message string
}

// AllocateQuotaRequest asks the upstream to grant or extend a quota
// allowance for a consumer's operation.
type AllocateQuotaRequest struct {
	ServiceName string
	Operation   Operation
	// RequestedAmounts is the per-metric amount this request wants to
	// consume from the allowance.
	RequestedAmounts map[string]int64
}

// AllocateQuotaResponse carries the upstream's granted allowance.
type AllocateQuotaResponse struct {
	OperationID string
	// GrantedAmounts is the per-metric amount the caller may consume
	// before the next refresh.
	GrantedAmounts map[string]int64
	Errors         []CheckError
}

// Allowed reports whether the response carries no violations.
func (r AllocateQuotaResponse) Allowed() bool { return len(r.Errors) == 0 }

// ReportRequest is a batch of Operations describing telemetry to record
// upstream (spec section 4.3).
type ReportRequest struct {
	ServiceName string
	Operations  []Operation
}

// Transport performs the three RPC families against the upstream control
// service. Implementations are synchronous and blocking; retries, wire
// encoding, and authentication are entirely the Transport's concern (spec
// section 6) — this module never retries internally.
type Transport interface {
	Check(ctx context.Context, serviceName string, req CheckRequest) (CheckResponse, error)
	AllocateQuota(ctx context.Context, serviceName string, req AllocateQuotaRequest) (AllocateQuotaResponse, error)
	Report(ctx context.Context, serviceName string, req ReportRequest) error
}
