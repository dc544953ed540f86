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

// Package txn exercises transaction semantics: commit and rollback
// visibility, savepoints, isolation levels across sessions, deadlock
// detection, and lock contention.
package txn

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/pingcap/tirig/pkg/config"
	"github.com/pingcap/tirig/pkg/connection"
	"github.com/pingcap/tirig/pkg/rig"
)

func init() {
	rig.RegisterSuite("txn", NewSuite)
}

// NewSuite lists the transaction scenarios in run order. Single-session
// scenarios come first, then the multi-connection ones.
func NewSuite(cfg *config.Config) []rig.Scenario {
	return []rig.Scenario{
		{Name: "basic-transaction", State: rig.State("TestingBasicTransaction"), Handler: &BasicTransactionHandler{}},
		{Name: "rollback-visibility", State: rig.State("TestingRollback"), Handler: &RollbackHandler{}},
		{Name: "savepoints", State: rig.State("TestingSavepoints"), Handler: &SavepointHandler{}},
		{Name: "nested-savepoints", State: rig.State("TestingNestedSavepoints"), Handler: &NestedSavepointHandler{}},
		{Name: "savepoint-release", State: rig.State("TestingSavepointRelease"), Handler: &SavepointReleaseHandler{}},
		{Name: "savepoint-errors", State: rig.State("TestingSavepointErrors"), Handler: &SavepointErrorHandler{}},
		{Name: "read-committed", State: rig.State("TestingReadCommitted"), Handler: &ReadCommittedHandler{}},
		{Name: "repeatable-read", State: rig.State("TestingRepeatableRead"), Handler: &RepeatableReadHandler{}},
		{Name: "isolation-comparison", State: rig.State("TestingIsolationComparison"), Handler: &IsolationComparisonHandler{}},
		{Name: "phantom-read", State: rig.State("TestingPhantomRead"), Handler: &PhantomReadHandler{}},
		{Name: "concurrent-writes", State: rig.State("TestingConcurrentWrites"), Handler: &ConcurrentWritesHandler{Writers: 3}},
		{Name: "deadlock-detection", State: rig.State("TestingDeadlockDetection"), Handler: &DeadlockHandler{DetectTimeout: cfg.Test.Timeout.Duration}},
		{Name: "lock-contention", State: rig.State("TestingLockContention"), Handler: &LockContentionHandler{}},
		{Name: "write-skew", State: rig.State("TestingWriteSkew"), Handler: &WriteSkewHandler{}},
	}
}

// fixtureName appends a unique suffix so reruns never collide with
// leftovers from an interrupted scenario.
func fixtureName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, strings.Split(uuid.New().String(), "-")[0])
}

func mustExec(c connection.Conn, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := c.ExecuteQuery(stmt); err != nil {
			return errors.Annotatef(err, "exec %q", stmt)
		}
	}
	return nil
}

// queryCount returns SELECT COUNT(*) of the table.
func queryCount(c connection.Conn, table string) (int64, error) {
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err != nil {
		return 0, errors.Annotatef(err, "count %s", table)
	}
	n, ok := connection.ScalarInt(rows)
	if !ok {
		return 0, errors.Errorf("count %s returned no scalar", table)
	}
	return n, nil
}

// expectCount reads the table's row count and reports a mismatch as an
// assertion failure token.
func expectCount(c connection.Conn, table string, want int64, when string) (rig.State, bool, error) {
	n, err := queryCount(c, table)
	if err != nil {
		return rig.ErrorState(err.Error()), false, errors.Trace(err)
	}
	if n != want {
		return rig.Errorf("%s: expected %d rows, got %d", when, want, n), false, nil
	}
	return "", true, nil
}

// twoConns fetches the scenario's first two provisioned connections.
func twoConns(ctx *rig.Context) (connection.Conn, connection.Conn, bool) {
	conns := ctx.GetConnections(2)
	if len(conns) < 2 {
		return nil, nil, false
	}
	return conns[0], conns[1], true
}

// BasicTransactionHandler inserts inside an explicit transaction,
// checks visibility within it, and commits.
type BasicTransactionHandler struct {
	rig.BaseHandler
	table string
}

func (h *BasicTransactionHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("txn_basic")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100), balance DECIMAL(10,2))", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *BasicTransactionHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := c.StartTransaction(); err != nil {
		return rig.Fail(errors.Annotate(err, "start transaction"))
	}
	err := mustExec(c,
		fmt.Sprintf("INSERT INTO %s (id, name, balance) VALUES (1, 'Alice', 100.00)", h.table),
		fmt.Sprintf("INSERT INTO %s (id, name, balance) VALUES (2, 'Bob', 200.00)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}

	// writes must be visible inside the open transaction
	if st, ok, err := expectCount(c, h.table, 2, "inside transaction"); !ok {
		if rerr := c.Rollback(); rerr != nil {
			log.Errorf("rollback after failed visibility check: %v", rerr)
		}
		return st, err
	}
	if err := c.Commit(); err != nil {
		return rig.Fail(errors.Annotate(err, "commit"))
	}
	if st, ok, err := expectCount(c, h.table, 2, "after commit"); !ok {
		return st, err
	}
	log.Info("✓ transaction writes visible inside and after commit")
	return rig.StateCompleted, nil
}

func (h *BasicTransactionHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// RollbackHandler verifies rolled-back writes leave no trace.
type RollbackHandler struct {
	rig.BaseHandler
	table string
}

func (h *RollbackHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("txn_rollback")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, v INT)", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES (1, 10)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *RollbackHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := c.StartTransaction(); err != nil {
		return rig.Fail(errors.Annotate(err, "start transaction"))
	}
	err := mustExec(c,
		fmt.Sprintf("INSERT INTO %s VALUES (2, 20)", h.table),
		fmt.Sprintf("UPDATE %s SET v = 99 WHERE id = 1", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	if st, ok, err := expectCount(c, h.table, 2, "before rollback"); !ok {
		return st, err
	}
	if err := c.Rollback(); err != nil {
		return rig.Fail(errors.Annotate(err, "rollback"))
	}

	if st, ok, err := expectCount(c, h.table, 1, "after rollback"); !ok {
		return st, err
	}
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT v FROM %s WHERE id = 1", h.table))
	if err != nil {
		return rig.Fail(err)
	}
	if v, ok := connection.ScalarInt(rows); !ok || v != 10 {
		return rig.Errorf("after rollback: expected v=10, got %d", v), nil
	}
	log.Info("✓ rollback discarded both the insert and the update")
	return rig.StateCompleted, nil
}

func (h *RollbackHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}
