// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scoped provides a generic guaranteed-close wrapper, the
// Go-idiomatic counterpart to the source's __enter__/__exit__/helper()
// Python context-manager trio (spec.md §6: "scoped-resource acquisition
// with guaranteed close on exit").
package scoped

import "io"

// Resource wraps a closer so that Use always calls Close, even if fn
// panics or returns an error.
type Resource[T io.Closer] struct {
	Value T
}

// New wraps value for scoped use.
func New[T io.Closer](value T) Resource[T] {
	return Resource[T]{Value: value}
}

// Use calls fn with the wrapped value and closes it on return. The close
// error is returned only if fn itself did not already return an error.
func (r Resource[T]) Use(fn func(T) error) (err error) {
	defer func() {
		if cerr := r.Value.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(r.Value)
}
