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

	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/pingcap/tirig/pkg/connection"
	"github.com/pingcap/tirig/pkg/rig"
)

// readValue fetches the single-row value column for the given id.
func readValue(c connection.Conn, table string, id int) (int64, error) {
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT value FROM %s WHERE id = %d", table, id))
	if err != nil {
		return 0, errors.Annotatef(err, "read %s id=%d", table, id)
	}
	v, ok := connection.ScalarInt(rows)
	if !ok {
		return 0, errors.Errorf("read %s id=%d returned no scalar", table, id)
	}
	return v, nil
}

func rollbackBoth(a, b connection.Conn) {
	for _, c := range []connection.Conn{a, b} {
		if err := c.Rollback(); err != nil {
			log.Warnf("[conn-%s] rollback: %v", c.ID(), err)
		}
	}
}

// ReadCommittedHandler drives two sessions under READ COMMITTED: the
// second session must not see the first's uncommitted update, and must
// see it right after commit without leaving its own transaction.
type ReadCommittedHandler struct {
	rig.BaseHandler
	table string
}

func (h *ReadCommittedHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("iso_rc")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100), value INT)", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES (1, 'initial', 100)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	if _, err := ctx.ProvisionConnections(2); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *ReadCommittedHandler) Execute(ctx *rig.Context) (rig.State, error) {
	writer, reader, ok := twoConns(ctx)
	if !ok {
		return rig.Errorf("read committed: needs two connections"), nil
	}

	if err := mustExec(writer, "SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED"); err != nil {
		return rig.Fail(err)
	}
	if err := mustExec(reader, "SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED"); err != nil {
		return rig.Fail(err)
	}

	if err := mustExec(writer, "START TRANSACTION",
		fmt.Sprintf("UPDATE %s SET value = 888 WHERE id = 1", h.table)); err != nil {
		return rig.Fail(err)
	}
	if err := mustExec(reader, "START TRANSACTION"); err != nil {
		rollbackBoth(writer, reader)
		return rig.Fail(err)
	}

	v, err := readValue(reader, h.table, 1)
	if err != nil {
		rollbackBoth(writer, reader)
		return rig.Fail(err)
	}
	if v != 100 {
		rollbackBoth(writer, reader)
		return rig.Errorf("read committed: uncommitted write visible, got %d", v), nil
	}
	log.Info("✓ uncommitted update invisible to the second session")

	if err := writer.Commit(); err != nil {
		rollbackBoth(writer, reader)
		return rig.Fail(errors.Annotate(err, "writer commit"))
	}

	// RC takes a fresh snapshot per statement, so the open reader
	// transaction sees the commit immediately
	v, err = readValue(reader, h.table, 1)
	if err != nil {
		rollbackBoth(writer, reader)
		return rig.Fail(err)
	}
	if v != 888 {
		rollbackBoth(writer, reader)
		return rig.Errorf("read committed: committed write not visible, got %d", v), nil
	}
	if err := reader.Commit(); err != nil {
		return rig.Fail(errors.Annotate(err, "reader commit"))
	}
	log.Info("✓ committed update visible mid-transaction under READ COMMITTED")
	return rig.StateCompleted, nil
}

func (h *ReadCommittedHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// RepeatableReadHandler checks snapshot stability: a transaction keeps
// seeing its first-read value across a concurrent committed update,
// and picks up the new value only after it ends.
type RepeatableReadHandler struct {
	rig.BaseHandler
	table string
}

func (h *RepeatableReadHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("iso_rr")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100), value INT)", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES (1, 'initial', 100)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	if _, err := ctx.ProvisionConnections(2); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *RepeatableReadHandler) Execute(ctx *rig.Context) (rig.State, error) {
	writer, reader, ok := twoConns(ctx)
	if !ok {
		return rig.Errorf("repeatable read: needs two connections"), nil
	}

	for _, c := range []connection.Conn{writer, reader} {
		if err := mustExec(c, "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ"); err != nil {
			return rig.Fail(err)
		}
	}

	// the reader's snapshot is fixed by its first read
	if err := mustExec(reader, "START TRANSACTION"); err != nil {
		return rig.Fail(err)
	}
	before, err := readValue(reader, h.table, 1)
	if err != nil {
		rollbackBoth(writer, reader)
		return rig.Fail(err)
	}
	if before != 100 {
		rollbackBoth(writer, reader)
		return rig.Errorf("repeatable read: expected initial value 100, got %d", before), nil
	}

	if err := mustExec(writer, "START TRANSACTION",
		fmt.Sprintf("UPDATE %s SET value = 777 WHERE id = 1", h.table),
		"COMMIT"); err != nil {
		rollbackBoth(writer, reader)
		return rig.Fail(err)
	}

	during, err := readValue(reader, h.table, 1)
	if err != nil {
		rollbackBoth(writer, reader)
		return rig.Fail(err)
	}
	if during != before {
		rollbackBoth(writer, reader)
		return rig.Errorf("repeatable read: snapshot moved from %d to %d mid-transaction", before, during), nil
	}
	log.Info("✓ snapshot held steady across a concurrent commit")

	if err := reader.Commit(); err != nil {
		return rig.Fail(errors.Annotate(err, "reader commit"))
	}
	after, err := readValue(reader, h.table, 1)
	if err != nil {
		return rig.Fail(err)
	}
	if after != 777 {
		return rig.Errorf("repeatable read: expected 777 after transaction end, got %d", after), nil
	}
	log.Info("✓ new value visible once the snapshot ended")
	return rig.StateCompleted, nil
}

func (h *RepeatableReadHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// IsolationComparisonHandler runs READ COMMITTED and REPEATABLE READ
// side by side: one outside commit lands between their reads, and the
// two open transactions must disagree about the row.
type IsolationComparisonHandler struct {
	rig.BaseHandler
	table string
}

func (h *IsolationComparisonHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("iso_cmp")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100), value INT)", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES (1, 'initial', 100)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	if _, err := ctx.ProvisionConnections(2); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *IsolationComparisonHandler) Execute(ctx *rig.Context) (rig.State, error) {
	rc, rr, ok := twoConns(ctx)
	if !ok {
		return rig.Errorf("isolation comparison: needs two connections"), nil
	}
	outside, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}

	if err := mustExec(rc, "SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED", "START TRANSACTION"); err != nil {
		return rig.Fail(err)
	}
	if err := mustExec(rr, "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ", "START TRANSACTION"); err != nil {
		rollbackBoth(rc, rr)
		return rig.Fail(err)
	}

	// pin both baselines before the outside write
	for name, c := range map[string]connection.Conn{"READ COMMITTED": rc, "REPEATABLE READ": rr} {
		v, err := readValue(c, h.table, 1)
		if err != nil {
			rollbackBoth(rc, rr)
			return rig.Fail(err)
		}
		if v != 100 {
			rollbackBoth(rc, rr)
			return rig.Errorf("isolation comparison: %s baseline read got %d", name, v), nil
		}
	}

	// autocommit write from the bootstrap session
	if err := mustExec(outside, fmt.Sprintf("UPDATE %s SET value = 555 WHERE id = 1", h.table)); err != nil {
		rollbackBoth(rc, rr)
		return rig.Fail(err)
	}

	rcValue, err := readValue(rc, h.table, 1)
	if err != nil {
		rollbackBoth(rc, rr)
		return rig.Fail(err)
	}
	rrValue, err := readValue(rr, h.table, 1)
	if err != nil {
		rollbackBoth(rc, rr)
		return rig.Fail(err)
	}
	rollbackBoth(rc, rr)

	if rcValue != 555 {
		return rig.Errorf("isolation comparison: READ COMMITTED should see 555, got %d", rcValue), nil
	}
	if rrValue != 100 {
		return rig.Errorf("isolation comparison: REPEATABLE READ should hold 100, got %d", rrValue), nil
	}
	log.Info("✓ READ COMMITTED saw the outside commit, REPEATABLE READ held its snapshot")
	return rig.StateCompleted, nil
}

func (h *IsolationComparisonHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// PhantomReadHandler checks REPEATABLE READ suppresses phantoms: a
// concurrent committed insert must not change an open transaction's
// COUNT(*).
type PhantomReadHandler struct {
	rig.BaseHandler
	table string
}

func (h *PhantomReadHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("iso_phantom")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100) NOT NULL, value INT NOT NULL)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	if _, err := ctx.ProvisionConnections(2); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *PhantomReadHandler) Execute(ctx *rig.Context) (rig.State, error) {
	reader, inserter, ok := twoConns(ctx)
	if !ok {
		return rig.Errorf("phantom read: needs two connections"), nil
	}

	for _, c := range []connection.Conn{reader, inserter} {
		if err := mustExec(c, "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ"); err != nil {
			return rig.Fail(err)
		}
	}

	if err := mustExec(reader, "START TRANSACTION"); err != nil {
		return rig.Fail(err)
	}
	initial, err := queryCount(reader, h.table)
	if err != nil {
		rollbackBoth(reader, inserter)
		return rig.Fail(err)
	}

	if err := mustExec(inserter, "START TRANSACTION",
		fmt.Sprintf("INSERT INTO %s VALUES (1, 'phantom_row', 100)", h.table),
		"COMMIT"); err != nil {
		rollbackBoth(reader, inserter)
		return rig.Fail(err)
	}

	repeated, err := queryCount(reader, h.table)
	if err != nil {
		rollbackBoth(reader, inserter)
		return rig.Fail(err)
	}
	if repeated != initial {
		rollbackBoth(reader, inserter)
		return rig.Errorf("phantom read: count moved from %d to %d inside the snapshot", initial, repeated), nil
	}
	log.Info("✓ no phantom: count stable inside the open snapshot")

	if err := reader.Commit(); err != nil {
		return rig.Fail(errors.Annotate(err, "reader commit"))
	}
	final, err := queryCount(reader, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if final != initial+1 {
		return rig.Errorf("phantom read: expected %d rows after snapshot end, got %d", initial+1, final), nil
	}
	log.Info("✓ inserted row visible after the snapshot ended")
	return rig.StateCompleted, nil
}

func (h *PhantomReadHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// WriteSkewHandler probes the classic on-call write skew: two
// transactions each verify at least one doctor is on call, then take a
// different doctor off call. Snapshot isolation lets both commit; the
// handler records which way the server went rather than failing, since
// either outcome is legal under REPEATABLE READ.
type WriteSkewHandler struct {
	rig.BaseHandler
	table string
}

func (h *WriteSkewHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("write_skew")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (doctor VARCHAR(20) PRIMARY KEY, on_call BOOLEAN)", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES ('alice', TRUE), ('bob', TRUE)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	if _, err := ctx.ProvisionConnections(2); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *WriteSkewHandler) Execute(ctx *rig.Context) (rig.State, error) {
	t1, t2, ok := twoConns(ctx)
	if !ok {
		return rig.Errorf("write skew: needs two connections"), nil
	}

	onCall := func(c connection.Conn) (int64, error) {
		rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE on_call = TRUE", h.table))
		if err != nil {
			return 0, errors.Trace(err)
		}
		n, _ := connection.ScalarInt(rows)
		return n, nil
	}

	for _, c := range []connection.Conn{t1, t2} {
		if err := mustExec(c, "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ"); err != nil {
			return rig.Fail(err)
		}
	}

	if err := mustExec(t1, "START TRANSACTION"); err != nil {
		return rig.Fail(err)
	}
	n1, err := onCall(t1)
	if err != nil {
		rollbackBoth(t1, t2)
		return rig.Fail(err)
	}
	if n1 < 1 {
		rollbackBoth(t1, t2)
		return rig.Errorf("write skew: precondition broken, %d doctors on call", n1), nil
	}
	if err := mustExec(t1, fmt.Sprintf("UPDATE %s SET on_call = FALSE WHERE doctor = 'alice'", h.table)); err != nil {
		rollbackBoth(t1, t2)
		return rig.Fail(err)
	}

	if err := mustExec(t2, "START TRANSACTION"); err != nil {
		rollbackBoth(t1, t2)
		return rig.Fail(err)
	}
	n2, err := onCall(t2)
	if err != nil {
		rollbackBoth(t1, t2)
		return rig.Fail(err)
	}
	if n2 < 1 {
		rollbackBoth(t1, t2)
		return rig.Errorf("write skew: precondition broken in second session, %d on call", n2), nil
	}
	if err := mustExec(t2, fmt.Sprintf("UPDATE %s SET on_call = FALSE WHERE doctor = 'bob'", h.table)); err != nil {
		rollbackBoth(t1, t2)
		return rig.Fail(err)
	}

	// both commits are allowed to succeed under snapshot isolation;
	// a serializable engine would abort one of them
	if err := t1.Commit(); err != nil {
		log.Infof("first commit rejected: %v", err)
	}
	if err := t2.Commit(); err != nil {
		log.Infof("second commit rejected: %v", err)
	}

	outside, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	remaining, err := onCall(outside)
	if err != nil {
		return rig.Fail(err)
	}
	if remaining == 0 {
		log.Warn("✗ write skew anomaly observed: both doctors off call, snapshot isolation permits this")
	} else {
		log.Infof("✓ no write skew: %d doctor(s) still on call", remaining)
	}
	return rig.StateCompleted, nil
}

func (h *WriteSkewHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}
