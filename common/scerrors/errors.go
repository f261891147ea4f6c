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

// Package scerrors defines the error kinds recognized by this module's
// callers, mirroring the failure taxonomy the aggregation layer is
// specified against: invalid input, upstream transport failure, and
// facade lifecycle misuse.
package scerrors

import "fmt"

// InvalidRequestError indicates the caller supplied a malformed operation:
// missing operation, empty consumer id, empty operation name, or a
// service name that does not match the aggregator's configured service.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// NewInvalidRequest constructs an InvalidRequestError with the given reason.
func NewInvalidRequest(reason string) error {
	return &InvalidRequestError{Reason: reason}
}

// TransportFailureError wraps an error returned by the Transport during a
// check, quota, or report RPC. Callers fail open on this error kind; it is
// never retried inside the core.
type TransportFailureError struct {
	Op  string
	Err error
}

func (e *TransportFailureError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportFailureError) Unwrap() error { return e.Err }

// NewTransportFailure wraps err as a TransportFailureError for operation op.
func NewTransportFailure(op string, err error) error {
	return &TransportFailureError{Op: op, Err: err}
}

// IllegalStateError indicates a lifecycle method was called in a state
// that forbids it, e.g. Stop() on a facade that was never started.
type IllegalStateError struct {
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal state: %s", e.Reason)
}

// NewIllegalState constructs an IllegalStateError with the given reason.
func NewIllegalState(reason string) error {
	return &IllegalStateError{Reason: reason}
}
