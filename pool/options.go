// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Pool.
type Options struct {
	MaxConnections uint64 // 0 = unbounded
	ConnectTimeout time.Duration
	AuthKey        string
	Logger         *logrus.Logger
	LogLevel       *logrus.Level
}

var defaultOptions = Options{
	ConnectTimeout: 5 * time.Second,
}

// Option configures a Pool at construction time.
type Option func(*Options)

// WithMaxConnections bounds the number of simultaneously open connections
// (idle plus in-use); 0 means unbounded.
func WithMaxConnections(max uint64) Option {
	return func(o *Options) { o.MaxConnections = max }
}

// WithConnectTimeout bounds each dial a Pool performs.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

// WithAuthKey authenticates every connection the pool dials.
func WithAuthKey(key string) Option {
	return func(o *Options) { o.AuthKey = key }
}

// WithLogger injects a logger; if omitted, a package-level default is used.
func WithLogger(l *logrus.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithLogLevel sets the verbosity of the logger this Pool writes to.
func WithLogLevel(level logrus.Level) Option {
	return func(o *Options) { o.LogLevel = &level }
}
