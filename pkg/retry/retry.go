// Copyright 2021 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry provides exponential backoff and circuit breaking for
// flaky database operations.
package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/juju/errors"
	"github.com/ngaut/log"
)

// Config controls how Perform spaces its attempts.
type Config struct {
	// MaxAttempts counts the first try as attempt one.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultConfig suits point queries and DDL against a loaded cluster.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Perform runs op until it succeeds or the attempts are exhausted,
// sleeping with exponential backoff between tries. The last error is
// returned annotated with the operation name.
func Perform(ctx context.Context, cfg Config, name string, op func() error) error {
	b := &backoff.Backoff{
		Min:    cfg.BaseDelay,
		Max:    cfg.MaxDelay,
		Factor: cfg.Multiplier,
		Jitter: cfg.Jitter,
	}
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxAttempts {
			return errors.Annotatef(err, "%s failed after %d attempts", name, attempt)
		}
		d := b.Duration()
		log.Warnf("%s failed on attempt %d/%d, retrying in %s: %v", name, attempt, cfg.MaxAttempts, d, err)
		select {
		case <-ctx.Done():
			return errors.Annotatef(ctx.Err(), "%s interrupted", name)
		case <-time.After(d):
		}
	}
}

// PerformWithBreaker is Perform with each attempt routed through the
// breaker, so a run of failures trips it and later attempts fail fast
// until the recovery timeout passes.
func PerformWithBreaker(ctx context.Context, cfg Config, br *Breaker, name string, op func() error) error {
	return Perform(ctx, cfg, name, func() error {
		return br.Do(op)
	})
}
