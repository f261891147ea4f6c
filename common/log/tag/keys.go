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

package tag

import (
	"time"

	"go.uber.org/zap"
)

// Error returns a tag for a Go error.
func Error(err error) Tag {
	return newErrorTag(err)
}

// Fingerprint returns a tag for a request fingerprint rendered as hex.
func Fingerprint(hex string) Tag {
	return newStringTag("fingerprint", hex)
}

// ConsumerID returns a tag for an operation's consumer id.
func ConsumerID(consumerID string) Tag {
	return newStringTag("consumer-id", consumerID)
}

// OperationName returns a tag for an operation's name.
func OperationName(name string) Tag {
	return newStringTag("operation-name", name)
}

// OperationID returns a tag for an operation's opaque id.
func OperationID(id string) Tag {
	return newStringTag("operation-id", id)
}

// ServiceName returns a tag for the control-plane service name a request targets.
func ServiceName(name string) Tag {
	return newStringTag("service-name", name)
}

// MetricName returns a tag for a metric name within an operation.
func MetricName(name string) Tag {
	return newStringTag("metric-name", name)
}

// CacheSize returns a tag for a cache's current entry count.
func CacheSize(size int) Tag {
	return newIntTag("cache-size", size)
}

// BatchSize returns a tag for a batch's operation count.
func BatchSize(size int) Tag {
	return newIntTag("batch-size", size)
}

// Attempt returns a tag for a retry/refresh attempt counter.
func Attempt(attempt int64) Tag {
	return newInt64Tag("attempt", attempt)
}

// Component returns a tag identifying which subsystem emitted the log line.
func Component(component string) Tag {
	return newStringTag("component", component)
}

// Importance returns a tag for an operation's importance level.
func Importance(importance string) Tag {
	return newStringTag("importance", importance)
}

// Dynamic returns a loosely-typed tag for ad-hoc debugging; prefer a typed
// tag above when the field is logged from more than one call site.
func Dynamic(key string, value interface{}) Tag {
	switch v := value.(type) {
	case string:
		return newStringTag(key, v)
	case int:
		return newIntTag(key, v)
	case int64:
		return newInt64Tag(key, v)
	case bool:
		return newBoolTag(key, v)
	case error:
		return newErrorTag(v)
	case time.Duration:
		return tagImpl{field: zap.Duration(key, v)}
	default:
		return tagImpl{field: zap.Any(key, v)}
	}
}
