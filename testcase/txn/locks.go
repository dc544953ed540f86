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

package txn

import (
	"fmt"
	"time"

	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/pingcap/tirig/pkg/connection"
	"github.com/pingcap/tirig/pkg/rig"
	"github.com/pingcap/tirig/util"
)

const defaultDetectTimeout = 30 * time.Second

// DeadlockHandler builds a two-session lock cycle and expects the
// server to pick exactly one victim with error 1213. The survivor's
// statement must complete once the victim is rolled back.
type DeadlockHandler struct {
	rig.BaseHandler
	// DetectTimeout bounds how long the cross updates may stay
	// blocked before the scenario gives up on the detector.
	DetectTimeout time.Duration

	table string
}

func (h *DeadlockHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("deadlock")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (v INT)", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES (0), (1)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	if _, err := ctx.ProvisionConnections(2); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *DeadlockHandler) Execute(ctx *rig.Context) (rig.State, error) {
	conns := ctx.GetConnections(2)
	if len(conns) < 2 {
		return rig.Errorf("deadlock: needs two connections"), nil
	}

	exec := func(i int, sql string) error {
		if _, err := conns[i].ExecuteQuery(sql); err != nil {
			return errors.Annotatef(err, "conns[%d].exec(%s)", i, sql)
		}
		return nil
	}

	if err := exec(0, "BEGIN PESSIMISTIC"); err != nil {
		return rig.Fail(err)
	}
	if err := exec(1, "BEGIN PESSIMISTIC"); err != nil {
		return rig.Fail(err)
	}
	defer rollbackBoth(conns[0], conns[1])

	if err := exec(0, fmt.Sprintf("UPDATE %s SET v = v + 1 WHERE v = 0", h.table)); err != nil {
		return rig.Fail(err)
	}
	if err := exec(1, fmt.Sprintf("UPDATE %s SET v = v + 1 WHERE v = 1", h.table)); err != nil {
		return rig.Fail(err)
	}

	// cross updates close the cycle; one session must be shot
	errs := make(chan error, 2)
	go func() { errs <- exec(0, fmt.Sprintf("UPDATE %s SET v = v + 1 WHERE v = 1", h.table)) }()
	go func() { errs <- exec(1, fmt.Sprintf("UPDATE %s SET v = v + 1 WHERE v = 0", h.table)) }()

	timeout := h.DetectTimeout
	if timeout <= 0 {
		timeout = defaultDetectTimeout
	}
	select {
	case <-time.After(timeout):
		return rig.Errorf("deadlock not detected within %s", timeout), nil
	case err1 := <-errs:
		err2 := <-errs
		if err1 == nil {
			err1, err2 = err2, err1
		}
		if err1 == nil {
			return rig.Errorf("deadlock: both cross updates succeeded"), nil
		}
		if err2 != nil {
			return rig.Errorf("deadlock: both cross updates failed: %v; %v", err1, err2), nil
		}
		if !util.IsErrDeadlock(err1) {
			return rig.Errorf("deadlock: expected error 1213 on the victim, got %v", err1), nil
		}
	}
	log.Info("✓ deadlock detected, exactly one victim got 1213")
	return rig.StateCompleted, nil
}

func (h *DeadlockHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// LockContentionHandler pins a row with FOR UPDATE in one session and
// checks a second session times out on the same row with 1205, still
// gets disjoint rows, and acquires the lock after the holder commits.
type LockContentionHandler struct {
	rig.BaseHandler
	table string
}

func (h *LockContentionHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("lock_wait")
	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100), value INT)", h.table),
	}
	for i := 1; i <= 5; i++ {
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s VALUES (%d, 'row_%d', %d)", h.table, i, i, i*10))
	}
	if err := mustExec(c, stmts...); err != nil {
		return rig.Fail(err)
	}
	if _, err := ctx.ProvisionConnections(2); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *LockContentionHandler) Execute(ctx *rig.Context) (rig.State, error) {
	holder, waiter, ok := twoConns(ctx)
	if !ok {
		return rig.Errorf("lock contention: needs two connections"), nil
	}

	lockRow := func(c connection.Conn, id int) error {
		_, err := c.ExecuteQuery(fmt.Sprintf("SELECT * FROM %s WHERE id = %d FOR UPDATE", h.table, id))
		return errors.Annotatef(err, "lock id=%d", id)
	}

	// a one second ceiling keeps the blocked statement short
	if err := mustExec(waiter, "SET SESSION innodb_lock_wait_timeout = 1"); err != nil {
		return rig.Fail(err)
	}

	if err := mustExec(holder, "BEGIN PESSIMISTIC"); err != nil {
		return rig.Fail(err)
	}
	if err := lockRow(holder, 1); err != nil {
		rollbackBoth(holder, waiter)
		return rig.Fail(err)
	}

	if err := mustExec(waiter, "BEGIN PESSIMISTIC"); err != nil {
		rollbackBoth(holder, waiter)
		return rig.Fail(err)
	}
	if err := lockRow(waiter, 1); err == nil {
		rollbackBoth(holder, waiter)
		return rig.Errorf("lock contention: second FOR UPDATE on a held row succeeded"), nil
	} else if !util.IsErrLockWaitTimeout(err) {
		rollbackBoth(holder, waiter)
		return rig.Errorf("lock contention: expected error 1205, got %v", err), nil
	}
	log.Info("✓ contended FOR UPDATE timed out with 1205")

	// a lock wait timeout aborts the statement, not the transaction;
	// disjoint rows stay lockable
	if err := lockRow(waiter, 2); err != nil {
		rollbackBoth(holder, waiter)
		return rig.Errorf("lock contention: disjoint row lock failed: %v", err), nil
	}
	log.Info("✓ disjoint row locked while the contended one was held")

	if err := mustExec(holder,
		fmt.Sprintf("UPDATE %s SET value = 999 WHERE id = 1", h.table)); err != nil {
		rollbackBoth(holder, waiter)
		return rig.Fail(err)
	}
	if err := holder.Commit(); err != nil {
		rollbackBoth(holder, waiter)
		return rig.Fail(errors.Annotate(err, "holder commit"))
	}

	// released now, and the waiter must read the committed value
	rows, err := waiter.ExecuteQuery(fmt.Sprintf("SELECT value FROM %s WHERE id = 1 FOR UPDATE", h.table))
	if err != nil {
		rollbackBoth(holder, waiter)
		return rig.Errorf("lock contention: FOR UPDATE after release failed: %v", err), nil
	}
	if v, ok := connection.ScalarInt(rows); !ok || v != 999 {
		rollbackBoth(holder, waiter)
		return rig.Errorf("lock contention: expected committed value 999 under lock, got %d", v), nil
	}
	if err := waiter.Commit(); err != nil {
		return rig.Fail(errors.Annotate(err, "waiter commit"))
	}
	log.Info("✓ lock acquired after the holder committed")
	return rig.StateCompleted, nil
}

func (h *LockContentionHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// ConcurrentWritesHandler races N sessions incrementing one counter
// through the operation executor. Row locks serialize the updates, so
// every transaction commits and no increment is lost.
type ConcurrentWritesHandler struct {
	rig.BaseHandler
	Writers int

	table string
}

func (h *ConcurrentWritesHandler) Enter(ctx *rig.Context) (rig.State, error) {
	if h.Writers <= 0 {
		h.Writers = 3
	}
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("concurrent_writes")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, counter INT)", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES (1, 0)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	if _, err := ctx.ProvisionConnections(h.Writers); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *ConcurrentWritesHandler) Execute(ctx *rig.Context) (rig.State, error) {
	conns := ctx.GetConnections(h.Writers)
	if len(conns) < h.Writers {
		return rig.Errorf("concurrent writes: wanted %d connections, have %d", h.Writers, len(conns)), nil
	}

	var ops []connection.Operation
	for i := 0; i < h.Writers; i++ {
		ops = append(ops,
			connection.Operation{Conn: i, Kind: connection.OpStartTransaction},
			connection.Operation{Conn: i, Kind: connection.OpQuery,
				Query: fmt.Sprintf("UPDATE %s SET counter = counter + 1 WHERE id = 1", h.table)},
			connection.Operation{Conn: i, Kind: connection.OpCommit},
		)
	}

	results := connection.ExecuteConcurrentOperations(conns, ops)
	want := []connection.Status{
		connection.StatusTransactionStarted,
		connection.StatusSuccess,
		connection.StatusCommitted,
	}
	for pos, r := range results {
		if r.Status != want[pos%3] {
			return rig.Errorf("concurrent writes: op %d on conn %d ended %q (%s), want %q",
				pos, r.Conn, r.Status, r.Err, want[pos%3]), nil
		}
	}

	rows, err := ctx.Connection.ExecuteQuery(fmt.Sprintf("SELECT counter FROM %s WHERE id = 1", h.table))
	if err != nil {
		return rig.Fail(errors.Trace(err))
	}
	final, ok := connection.ScalarInt(rows)
	if !ok {
		return rig.Errorf("concurrent writes: final counter read returned no scalar"), nil
	}
	if final != int64(h.Writers) {
		return rig.Errorf("concurrent writes: %d writers, counter ended at %d", h.Writers, final), nil
	}
	log.Infof("✓ %d racing increments all applied, counter = %d", h.Writers, final)
	return rig.StateCompleted, nil
}

func (h *ConcurrentWritesHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}
