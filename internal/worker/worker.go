// Copyright (c) 2026 wukong authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package worker launches long-lived background goroutines with panic
// recovery and logging, the Go-idiomatic counterpart to the source's daemon
// thread helper.
package worker

import (
	"github.com/sirupsen/logrus"
)

// Spawn runs fn in its own goroutine. A panic inside fn is recovered and
// logged against name rather than crashing the process — fn is not
// restarted; callers that need a supervised long-running loop are
// responsible for their own retry logic.
func Spawn(log *logrus.Entry, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if log != nil {
					log.WithField("worker", name).WithField("panic", r).Error("worker panicked")
				}
			}
		}()
		fn()
	}()
}
