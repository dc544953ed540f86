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

	"github.com/pingcap/tirig/pkg/rig"
	"github.com/pingcap/tirig/util"
)

// SavepointHandler walks savepoint basics: insert, mark, insert more,
// roll back to the mark, continue, commit.
type SavepointHandler struct {
	rig.BaseHandler
	table string
}

func (h *SavepointHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("savepoint_basic")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100), value INT)", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES (1, 'initial', 100)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *SavepointHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := c.StartTransaction(); err != nil {
		return rig.Fail(errors.Annotate(err, "start transaction"))
	}
	defer func() {
		if err := c.Rollback(); err != nil {
			log.Warnf("rollback on savepoint scenario exit: %v", err)
		}
	}()

	if err := mustExec(c,
		fmt.Sprintf("INSERT INTO %s VALUES (2, 'before_savepoint', 200)", h.table),
		"SAVEPOINT sp1",
		fmt.Sprintf("INSERT INTO %s VALUES (3, 'after_savepoint', 300)", h.table),
	); err != nil {
		return rig.Fail(err)
	}
	if st, ok, err := expectCount(c, h.table, 3, "before rollback-to"); !ok {
		return st, err
	}

	if err := mustExec(c, "ROLLBACK TO SAVEPOINT sp1"); err != nil {
		return rig.Fail(err)
	}
	if st, ok, err := expectCount(c, h.table, 2, "after rollback to sp1"); !ok {
		return st, err
	}

	if err := mustExec(c, fmt.Sprintf("INSERT INTO %s VALUES (4, 'after_rollback', 400)", h.table)); err != nil {
		return rig.Fail(err)
	}
	if err := c.Commit(); err != nil {
		return rig.Fail(errors.Annotate(err, "commit"))
	}
	if st, ok, err := expectCount(c, h.table, 3, "after commit"); !ok {
		return st, err
	}
	log.Info("✓ savepoint discarded only post-mark writes, committed the rest")
	return rig.StateCompleted, nil
}

func (h *SavepointHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// NestedSavepointHandler stacks three savepoints and rolls back level
// by level, checking the visible row set at each step.
type NestedSavepointHandler struct {
	rig.BaseHandler
	table string
}

func (h *NestedSavepointHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("savepoint_nested")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100), level INT)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *NestedSavepointHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := c.StartTransaction(); err != nil {
		return rig.Fail(errors.Annotate(err, "start transaction"))
	}
	defer func() {
		if err := c.Rollback(); err != nil {
			log.Warnf("rollback on nested savepoint exit: %v", err)
		}
	}()

	if err := mustExec(c,
		fmt.Sprintf("INSERT INTO %s VALUES (1, 'level1', 1)", h.table),
		"SAVEPOINT level1",
		fmt.Sprintf("INSERT INTO %s VALUES (2, 'level2', 2)", h.table),
		"SAVEPOINT level2",
		fmt.Sprintf("INSERT INTO %s VALUES (3, 'level3', 3)", h.table),
		"SAVEPOINT level3",
	); err != nil {
		return rig.Fail(err)
	}
	if st, ok, err := expectCount(c, h.table, 3, "all levels inserted"); !ok {
		return st, err
	}

	// unwind one level, write, unwind another
	if err := mustExec(c, "ROLLBACK TO SAVEPOINT level2"); err != nil {
		return rig.Fail(err)
	}
	if st, ok, err := expectCount(c, h.table, 2, "after rollback to level2"); !ok {
		return st, err
	}
	if err := mustExec(c,
		fmt.Sprintf("INSERT INTO %s VALUES (4, 'level2_new', 2)", h.table),
		"ROLLBACK TO SAVEPOINT level1",
	); err != nil {
		return rig.Fail(err)
	}
	if st, ok, err := expectCount(c, h.table, 1, "after rollback to level1"); !ok {
		return st, err
	}

	if err := mustExec(c, fmt.Sprintf("INSERT INTO %s VALUES (5, 'level1_new', 1)", h.table)); err != nil {
		return rig.Fail(err)
	}
	if err := c.Commit(); err != nil {
		return rig.Fail(errors.Annotate(err, "commit"))
	}
	if st, ok, err := expectCount(c, h.table, 2, "after commit"); !ok {
		return st, err
	}
	log.Info("✓ nested savepoints unwound level by level")
	return rig.StateCompleted, nil
}

func (h *NestedSavepointHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// SavepointReleaseHandler releases savepoints and checks that a
// released mark can no longer be rolled back to (error 1305), while
// earlier marks stay usable.
type SavepointReleaseHandler struct {
	rig.BaseHandler
	table string
}

func (h *SavepointReleaseHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("savepoint_release")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100))", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *SavepointReleaseHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := c.StartTransaction(); err != nil {
		return rig.Fail(errors.Annotate(err, "start transaction"))
	}
	defer func() {
		if err := c.Rollback(); err != nil {
			log.Warnf("rollback on savepoint release exit: %v", err)
		}
	}()

	if err := mustExec(c,
		fmt.Sprintf("INSERT INTO %s VALUES (1, 'initial')", h.table),
		"SAVEPOINT sp1",
		fmt.Sprintf("INSERT INTO %s VALUES (2, 'after_sp1')", h.table),
		"SAVEPOINT sp2",
		fmt.Sprintf("INSERT INTO %s VALUES (3, 'after_sp2')", h.table),
	); err != nil {
		return rig.Fail(err)
	}
	if st, ok, err := expectCount(c, h.table, 3, "before release"); !ok {
		return st, err
	}

	if err := mustExec(c, "RELEASE SAVEPOINT sp2"); err != nil {
		return rig.Fail(err)
	}
	if _, err := c.ExecuteQuery("ROLLBACK TO SAVEPOINT sp2"); err == nil {
		return rig.Errorf("rollback to released savepoint sp2 unexpectedly succeeded"), nil
	} else if !util.IsErrSavepointNotExists(err) {
		return rig.Errorf("rollback to released sp2: expected error 1305, got %v", err), nil
	}
	log.Info("✓ rollback to released savepoint rejected with 1305")

	// sp1 predates the release and must still work; it undoes
	// everything after the mark, released or not
	if err := mustExec(c, "ROLLBACK TO SAVEPOINT sp1"); err != nil {
		return rig.Fail(err)
	}
	if st, ok, err := expectCount(c, h.table, 1, "after rollback to sp1"); !ok {
		return st, err
	}

	if err := mustExec(c, "RELEASE SAVEPOINT sp1"); err != nil {
		return rig.Fail(err)
	}
	if _, err := c.ExecuteQuery("ROLLBACK TO SAVEPOINT sp1"); err == nil {
		return rig.Errorf("rollback to released savepoint sp1 unexpectedly succeeded"), nil
	} else if !util.IsErrSavepointNotExists(err) {
		return rig.Errorf("rollback to released sp1: expected error 1305, got %v", err), nil
	}

	if err := mustExec(c, fmt.Sprintf("INSERT INTO %s VALUES (4, 'final')", h.table)); err != nil {
		return rig.Fail(err)
	}
	if err := c.Commit(); err != nil {
		return rig.Fail(errors.Annotate(err, "commit"))
	}
	if st, ok, err := expectCount(c, h.table, 2, "after commit"); !ok {
		return st, err
	}
	log.Info("✓ released savepoints gone, earlier one still rolled back")
	return rig.StateCompleted, nil
}

func (h *SavepointReleaseHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// SavepointErrorHandler provokes statement failures inside a savepoint
// scope and checks the scope survives them: a failed statement must
// not destroy the mark or abort the transaction.
type SavepointErrorHandler struct {
	rig.BaseHandler
	table string
}

func (h *SavepointErrorHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.table = fixtureName("savepoint_error")
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(100) NOT NULL)", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES (1, 'valid')", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *SavepointErrorHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := c.StartTransaction(); err != nil {
		return rig.Fail(errors.Annotate(err, "start transaction"))
	}
	defer func() {
		if err := c.Rollback(); err != nil {
			log.Warnf("rollback on savepoint error exit: %v", err)
		}
	}()

	if err := mustExec(c,
		fmt.Sprintf("INSERT INTO %s VALUES (2, 'valid_in_txn')", h.table),
		"SAVEPOINT error_test",
	); err != nil {
		return rig.Fail(err)
	}

	if _, err := c.ExecuteQuery(fmt.Sprintf("INSERT INTO %s VALUES (1, 'duplicate')", h.table)); err == nil {
		return rig.Errorf("duplicate key insert unexpectedly succeeded"), nil
	} else if !util.IsErrDupEntry(err) {
		return rig.Errorf("duplicate key insert: expected error 1062, got %v", err), nil
	}
	log.Info("✓ duplicate key rejected with 1062")

	if _, err := c.ExecuteQuery("ROLLBACK TO SAVEPOINT never_created"); err == nil {
		return rig.Errorf("rollback to unknown savepoint unexpectedly succeeded"), nil
	} else if !util.IsErrSavepointNotExists(err) {
		return rig.Errorf("rollback to unknown savepoint: expected error 1305, got %v", err), nil
	}
	log.Info("✓ rollback to unknown savepoint rejected with 1305")

	// neither failure may have eaten the mark or the rows
	if st, ok, err := expectCount(c, h.table, 2, "after failed statements"); !ok {
		return st, err
	}
	if err := mustExec(c, "ROLLBACK TO SAVEPOINT error_test"); err != nil {
		return rig.Fail(err)
	}
	if st, ok, err := expectCount(c, h.table, 2, "after rollback to mark"); !ok {
		return st, err
	}

	if err := mustExec(c, fmt.Sprintf("INSERT INTO %s VALUES (3, 'after_rollback')", h.table)); err != nil {
		return rig.Fail(err)
	}
	if err := c.Commit(); err != nil {
		return rig.Fail(errors.Annotate(err, "commit"))
	}
	if st, ok, err := expectCount(c, h.table, 3, "after commit"); !ok {
		return st, err
	}
	log.Info("✓ savepoint scope survived failing statements")
	return rig.StateCompleted, nil
}

func (h *SavepointErrorHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}
