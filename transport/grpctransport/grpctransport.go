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

// Package grpctransport is a reference servicecontrol.Transport binding
// over a gRPC connection to the upstream control plane. Wire encoding is
// entirely this package's concern; the core never sees a protobuf type.
package grpctransport

import (
	"context"

	"github.com/gogo/protobuf/proto"
	"google.golang.org/grpc"

	"github.com/svcctl/aggregator/servicecontrol"
)

const (
	methodCheck         = "/servicecontrol.v1.ServiceController/Check"
	methodAllocateQuota = "/servicecontrol.v1.ServiceController/AllocateQuota"
	methodReport        = "/servicecontrol.v1.ServiceController/Report"
)

// Transport implements servicecontrol.Transport over a single gRPC
// connection. Requests are marshalled with the connection's configured
// codec (gogo/protobuf-generated CheckRequest/AllocateQuotaRequest/
// ReportRequest messages in production; callers supply the message types
// via the Codec functions below since this module owns no .proto schema).
type Transport struct {
	conn  grpc.ClientConnInterface
	codec Codec
}

// Codec converts between this module's request/response types and the
// wire messages a generated gRPC stub expects. A production binding
// supplies one built from its .proto-generated types.
type Codec interface {
	EncodeCheck(servicecontrol.CheckRequest) interface{}
	DecodeCheck(interface{}) servicecontrol.CheckResponse
	NewCheckReply() interface{}

	EncodeQuota(servicecontrol.AllocateQuotaRequest) interface{}
	DecodeQuota(interface{}) servicecontrol.AllocateQuotaResponse
	NewQuotaReply() interface{}

	EncodeReport(servicecontrol.ReportRequest) interface{}
}

// New wraps an established gRPC connection as a Transport. conn is
// typically a *grpc.ClientConn; the narrower interface keeps this package
// testable against a fake.
func New(conn grpc.ClientConnInterface, codec Codec) *Transport {
	return &Transport{conn: conn, codec: codec}
}

// Check performs the Check RPC.
func (t *Transport) Check(ctx context.Context, serviceName string, req servicecontrol.CheckRequest) (servicecontrol.CheckResponse, error) {
	reply := t.codec.NewCheckReply()
	if err := t.conn.Invoke(ctx, methodCheck, t.codec.EncodeCheck(req), reply); err != nil {
		return servicecontrol.CheckResponse{}, err
	}
	return t.codec.DecodeCheck(reply), nil
}

// AllocateQuota performs the AllocateQuota RPC.
func (t *Transport) AllocateQuota(ctx context.Context, serviceName string, req servicecontrol.AllocateQuotaRequest) (servicecontrol.AllocateQuotaResponse, error) {
	reply := t.codec.NewQuotaReply()
	if err := t.conn.Invoke(ctx, methodAllocateQuota, t.codec.EncodeQuota(req), reply); err != nil {
		return servicecontrol.AllocateQuotaResponse{}, err
	}
	return t.codec.DecodeQuota(reply), nil
}

// Report performs the Report RPC. The upstream reply carries no payload
// this module cares about.
func (t *Transport) Report(ctx context.Context, serviceName string, req servicecontrol.ReportRequest) error {
	var reply emptyReply
	return t.conn.Invoke(ctx, methodReport, t.codec.EncodeReport(req), &reply)
}

// emptyReply satisfies grpc's proto.Message-shaped Invoke signature for an
// RPC whose response body carries nothing this module reads.
type emptyReply struct{}

func (*emptyReply) Reset()         {}
func (*emptyReply) String() string { return "emptyReply{}" }
func (*emptyReply) ProtoMessage()  {}

var _ proto.Message = (*emptyReply)(nil)
