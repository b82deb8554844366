// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Client.
type Options struct {
	ConnectTimeout   time.Duration
	AuthKey          string
	PreConnect       bool
	AutoReconnect    bool
	SilenceErr       bool
	HealthCheckEvery time.Duration
	Logger           *logrus.Logger
	LogLevel         *logrus.Level
}

var defaultOptions = Options{
	ConnectTimeout:   5 * time.Second,
	HealthCheckEvery: time.Second,
}

// Option configures a Client at construction time.
type Option func(*Options)

// WithConnectTimeout bounds the initial and any reconnect dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

// WithAuthKey authenticates with the given shared secret immediately after
// connecting.
func WithAuthKey(key string) Option {
	return func(o *Options) { o.AuthKey = key }
}

// WithPreConnect makes New never fail on the initial dial: construction
// errors are swallowed and the connection is left deferred, to be retried
// on the first call (subject to AutoReconnect/HealthCheckEvery gating like
// any other reconnect).
func WithPreConnect(enabled bool) Option {
	return func(o *Options) { o.PreConnect = enabled }
}

// WithAutoReconnect enables or disables (the default) the single
// retry-once-on-disconnect behavior.
func WithAutoReconnect(enabled bool) Option {
	return func(o *Options) { o.AutoReconnect = enabled }
}

// WithSilenceErr makes status queries (Full, Empty, Connected,
// RealtimeQSize, RealtimeMaxSize, ConnectedClients) return a zero value
// instead of an error on failure. It never applies to Put, Get, Reset,
// TaskDone, or Join.
func WithSilenceErr(enabled bool) Option {
	return func(o *Options) { o.SilenceErr = enabled }
}

// WithHealthCheckEvery sets the minimum interval between reconnect
// attempts (lazily evaluated on the next call, not a background poller).
func WithHealthCheckEvery(d time.Duration) Option {
	return func(o *Options) { o.HealthCheckEvery = d }
}

// WithLogger injects a logger; if omitted, a package-level default is used.
func WithLogger(l *logrus.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithLogLevel sets the verbosity of the logger this Client writes to
// (spec.md §4.6/§6's log_level constructor parameter).
func WithLogLevel(level logrus.Level) Option {
	return func(o *Options) { o.LogLevel = &level }
}
