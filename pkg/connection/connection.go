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

package connection

import (
	"context"

	"github.com/juju/errors"
)

// Option configures one connection shim.
type Option struct {
	// ID tags every log line of this connection.
	ID string
	// RealDB opens a live session instead of the canned responder.
	RealDB bool
	// DSN of the server, used only when RealDB is set.
	DSN string
	// ShowSQL echoes every statement through the global logger.
	ShowSQL bool
	// Log is the per-connection statement log path, empty for none.
	Log string
	// Mute drops statement logging entirely, for unit tests.
	Mute bool
}

// Conn is one logical database session. A session is never safe for
// two concurrent callers, so every implementation serializes its
// methods on an internal mutex; distinct connections proceed in
// parallel.
type Conn interface {
	// ID returns the connection identifier used in logs.
	ID() string
	// ExecuteQuery runs any statement text and returns its rows, if
	// the statement produced a result set.
	ExecuteQuery(query string) ([]Row, error)
	// StartTransaction begins an explicit transaction.
	StartTransaction() error
	// Commit commits the open transaction.
	Commit() error
	// Rollback aborts the open transaction.
	Rollback() error
	// Close releases the underlying session.
	Close() error
}

// New creates a connection shim, live or mock depending on the option.
func New(ctx context.Context, opt *Option) (Conn, error) {
	if opt.RealDB {
		c, err := newRealConn(ctx, opt)
		return c, errors.Trace(err)
	}
	return newMockConn(opt), nil
}
