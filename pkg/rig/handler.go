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

// Handler is one unit the machine drives through its lifecycle.
//
// Enter performs idempotent setup, Execute runs the unit's work and
// returns the state to transition to, Exit tears down best-effort and
// swallows its own failures. A scenario reports assertion failures
// through an error token from Execute; Go errors are reserved for
// infrastructure failures and abort the whole run.
type Handler interface {
	Enter(ctx *Context) (State, error)
	Execute(ctx *Context) (State, error)
	Exit(ctx *Context)
}

// BaseHandler supplies the default lifecycle pieces a scenario does
// not care about. Embed it and override what matters.
type BaseHandler struct{}

// Enter is a no-op setup phase.
func (BaseHandler) Enter(*Context) (State, error) {
	return StateConnecting, nil
}

// Execute completes immediately.
func (BaseHandler) Execute(*Context) (State, error) {
	return StateCompleted, nil
}

// Exit is a no-op teardown phase.
func (BaseHandler) Exit(*Context) {}
