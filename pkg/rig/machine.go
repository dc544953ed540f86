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

package rig

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/ngaut/log"
)

// Machine drives handlers from Initial until a terminal token. One
// handler serves each state; the token Execute returns picks the next
// state.
type Machine struct {
	handlers map[State]Handler
	state    State
}

// NewMachine returns an empty machine positioned at Initial.
func NewMachine() *Machine {
	return &Machine{
		handlers: make(map[State]Handler),
		state:    StateInitial,
	}
}

// Register binds a handler to the state it serves. Not thread-safe.
func (m *Machine) Register(state State, h Handler) {
	if _, ok := m.handlers[state]; ok {
		panic(fmt.Sprintf("handler for state %q is already registered", state))
	}
	m.handlers[state] = h
}

// State returns the machine's current token.
func (m *Machine) State() State {
	return m.state
}

// Run executes handlers until Completed or an error token. The final
// token comes back in both cases; a Go error means an infrastructure
// failure cut the run short.
func (m *Machine) Run(ctx *Context) (State, error) {
	m.state = StateInitial
	for !m.state.Terminal() {
		if err := ctx.Err(); err != nil {
			return m.state, errors.Annotatef(err, "run cancelled in state %q", m.state)
		}
		h, ok := m.handlers[m.state]
		if !ok {
			return m.state, errors.Errorf("no handler registered for state %q", m.state)
		}

		from := m.state
		start := time.Now()
		next, err := step(h, ctx)
		if err != nil {
			m.state = ErrorState(err.Error())
			return m.state, errors.Annotatef(err, "state %q", from)
		}
		log.Infof("state %s -> %s in %s", from, next, time.Since(start))
		m.state = next
	}
	return m.state, nil
}

// step runs one handler's full lifecycle. Exit runs whenever Enter was
// called, whatever Enter and Execute returned.
func step(h Handler, ctx *Context) (State, error) {
	defer h.Exit(ctx)

	st, err := h.Enter(ctx)
	if err != nil {
		return st, errors.Trace(err)
	}
	// an error token from Enter finishes the run; any other token from
	// Enter is informational only
	if st.IsError() {
		return st, nil
	}
	return h.Execute(ctx)
}
