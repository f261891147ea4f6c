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

// Package tag defines the typed logging tags this module attaches to log
// lines. Keeping tags typed, instead of loose key-value pairs, means a
// caller cannot log a fingerprint under the wrong key by accident.
package tag

import "go.uber.org/zap"

// Tag is a single structured logging attribute.
type Tag interface {
	Field() zap.Field
}

type tagImpl struct {
	field zap.Field
}

func (t tagImpl) Field() zap.Field {
	return t.field
}

func newStringTag(key, value string) Tag {
	return tagImpl{field: zap.String(key, value)}
}

func newInt64Tag(key string, value int64) Tag {
	return tagImpl{field: zap.Int64(key, value)}
}

func newIntTag(key string, value int) Tag {
	return tagImpl{field: zap.Int(key, value)}
}

func newBoolTag(key string, value bool) Tag {
	return tagImpl{field: zap.Bool(key, value)}
}

func newErrorTag(value error) Tag {
	return tagImpl{field: zap.Error(value)}
}
