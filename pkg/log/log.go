/*
Copyright 2026 The FactoryOps Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log builds the process-wide zap logger. Every component receives a
// *zap.Logger through its constructor; nothing logs through globals.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Development switches to console encoding with colored levels.
	Development bool
	// Level is the minimum enabled level ("debug", "info", "warn", "error").
	Level string
	// ServiceName is attached to every entry as the "service" field.
	ServiceName string
}

// New returns a configured logger. Invalid level strings fall back to info.
func New(opts Options) *zap.Logger {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if parsed, err := zapcore.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		// Construction only fails on invalid config; fall back to a logger
		// that is always safe to use.
		logger = zap.NewNop()
	}
	if opts.ServiceName != "" {
		logger = logger.With(zap.String("service", opts.ServiceName))
	}
	return logger
}

// Sync flushes buffered entries. Safe to defer from main; sync errors on
// stderr are expected on some platforms and ignored.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}
