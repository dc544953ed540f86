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
	"strings"

	"github.com/juju/errors"
)

// State is the opaque token a handler returns to steer the machine.
// Scenario packages may mint their own tokens; the constants below are
// the built-in vocabulary of the connection bootstrap chain.
type State string

// Built-in states.
const (
	StateInitial                 State = "Initial"
	StateParsingConfig           State = "ParsingConfig"
	StateConnecting              State = "Connecting"
	StateTestingConnection       State = "TestingConnection"
	StateVerifyingDatabase       State = "VerifyingDatabase"
	StateGettingVersion          State = "GettingVersion"
	StateCheckingImportJobs      State = "CheckingImportJobs"
	StateShowingImportJobDetails State = "ShowingImportJobDetails"
	StateCompleted               State = "Completed"
)

const errorTokenPrefix = "Error: "

// ErrorState builds the failure token carrying a message.
func ErrorState(message string) State {
	return State(errorTokenPrefix + message)
}

// Errorf builds the failure token from a format string.
func Errorf(format string, args ...interface{}) State {
	return ErrorState(fmt.Sprintf(format, args...))
}

// IsError reports whether the token is a failure token.
func (s State) IsError() bool {
	return strings.HasPrefix(string(s), "Error")
}

// ErrorMessage returns the message a failure token carries, or "".
func (s State) ErrorMessage() string {
	if !s.IsError() {
		return ""
	}
	return strings.TrimPrefix(string(s), errorTokenPrefix)
}

// Terminal reports whether the machine should stop at this token.
func (s State) Terminal() bool {
	return s == StateCompleted || s.IsError()
}

// Fail pairs the failure token with the traced Go error, for
// infrastructure failures that should abort the run. Assertion
// failures return a bare token instead.
func Fail(err error) (State, error) {
	return ErrorState(err.Error()), errors.Trace(err)
}
