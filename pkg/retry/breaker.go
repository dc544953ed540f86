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

package retry

import (
	"sync"
	"time"

	"github.com/juju/errors"
)

// BreakerState is the circuit position.
type BreakerState int

const (
	// StateClosed passes calls through and counts failures.
	StateClosed BreakerState = iota
	// StateOpen fails fast until the recovery timeout passes.
	StateOpen
	// StateHalfOpen lets probe calls through to test recovery.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned without invoking the operation while the
// circuit is open.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig tunes when the circuit trips and recovers.
type BreakerConfig struct {
	// FailureThreshold failures within FailureWindow open the circuit.
	FailureThreshold int
	FailureWindow    time.Duration
	// RecoveryTimeout must pass before a probe call is allowed.
	RecoveryTimeout time.Duration
	// SuccessThreshold probe successes close the circuit again.
	SuccessThreshold int
}

// DefaultBreakerConfig matches the connection manager defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		FailureWindow:    time.Minute,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	}
}

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
	lastChange  time.Time
}

// NewBreaker starts closed.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{
		cfg:        cfg,
		state:      StateClosed,
		lastChange: time.Now(),
	}
}

// State reports the current circuit position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs op subject to the circuit position. While open it returns
// ErrBreakerOpen without calling op.
func (b *Breaker) Do(op func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.lastChange) < b.cfg.RecoveryTimeout {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.transition(StateHalfOpen)
	case StateHalfOpen, StateClosed:
	}
	state := b.state
	b.mu.Unlock()

	err := op()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailure(state)
		return err
	}
	b.recordSuccess(state)
	return nil
}

// transition must be called with the lock held.
func (b *Breaker) transition(next BreakerState) {
	b.state = next
	b.lastChange = time.Now()
	switch next {
	case StateHalfOpen:
		b.successes = 0
	case StateClosed:
		b.failures = 0
		b.successes = 0
	}
}

func (b *Breaker) recordFailure(during BreakerState) {
	now := time.Now()
	// stale failures outside the window do not count toward the trip
	if now.Sub(b.lastFailure) > b.cfg.FailureWindow {
		b.failures = 0
	}
	b.failures++
	b.lastFailure = now

	if during == StateHalfOpen {
		b.transition(StateOpen)
		return
	}
	if b.failures >= b.cfg.FailureThreshold {
		b.transition(StateOpen)
	}
}

func (b *Breaker) recordSuccess(during BreakerState) {
	if during != StateHalfOpen {
		return
	}
	b.successes++
	if b.successes >= b.cfg.SuccessThreshold {
		b.transition(StateClosed)
	}
}
