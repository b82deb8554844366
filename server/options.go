// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package server

import "github.com/sirupsen/logrus"

// Options configures a Server. Zero value is usable (no capacity limit, no
// admission limit, no auth).
type Options struct {
	Name       string
	Capacity   uint64
	MaxClients uint64
	AuthKey    string
	Logger     *logrus.Logger
	LogLevel   *logrus.Level
}

var defaultOptions = Options{}

// Option configures a Server at construction time.
type Option func(*Options)

// WithName sets a display name used only in logging.
func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// WithCapacity bounds the queue (0 = unbounded).
func WithCapacity(capacity uint64) Option {
	return func(o *Options) { o.Capacity = capacity }
}

// WithMaxClients bounds concurrently connected sessions (0 = unbounded).
func WithMaxClients(max uint64) Option {
	return func(o *Options) { o.MaxClients = max }
}

// WithAuthKey requires clients to authenticate with the given shared
// secret before any other command is accepted.
func WithAuthKey(key string) Option {
	return func(o *Options) { o.AuthKey = key }
}

// WithLogger injects a logger; if omitted, a package-level default is used
// (never a process-wide per-class registry — see SPEC_FULL.md).
func WithLogger(l *logrus.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithLogLevel sets the verbosity of the logger this Server writes to
// (spec.md §6's log_level constructor parameter). It mutates whichever
// *logrus.Logger is ultimately in effect: the one passed to WithLogger, or
// the package-level default if none was given.
func WithLogLevel(level logrus.Level) Option {
	return func(o *Options) { o.LogLevel = &level }
}
