// Copyright 2015 The Ghost Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package klog is the kernel-wide logging and panic facility. It plays the
// role of the original's logger.hpp/kernel.hpp (logDebug/logInfo/
// kernelPanic), backed by logrus instead of a serial port.
package klog

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var base = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.DebugLevel)
	return l
}

// SetLevel adjusts the minimum log level the kernel will emit. cmd/tasksim
// uses this to drop debug output unless -v is given.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// Debugf logs low-volume tracing, the analogue of the original's logDebug.
func Debugf(format string, args ...any) {
	base.Debugf(format, args...)
}

// Infof logs a normal informational message (logInfo).
func Infof(format string, args ...any) {
	base.Infof(format, args...)
}

// Warningf logs a recoverable but noteworthy condition.
func Warningf(format string, args ...any) {
	base.Warnf(format, args...)
}

// Panicf reports a programmer-fatal condition and halts. In the original
// this is kernelPanic, which prints the message and spins with interrupts
// disabled; here it logs and panics the goroutine, which is as close as a
// userspace simulator can get to halting the core.
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	base.WithField("component", "tasking").Error(msg)
	panic(msg)
}
