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

package ddl

import (
	"github.com/ngaut/log"

	"github.com/pingcap/tirig/pkg/connection"
	"github.com/pingcap/tirig/pkg/rig"
	"github.com/pingcap/tirig/util"
)

// CreateIndexHandler creates a secondary index and finds it in
// SHOW INDEX.
type CreateIndexHandler struct {
	rig.BaseHandler
}

func (h *CreateIndexHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		"DROP TABLE IF EXISTS ddl_test",
		"CREATE TABLE ddl_test (id INT PRIMARY KEY, name VARCHAR(100))",
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *CreateIndexHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := mustExec(c, "CREATE INDEX idx_name ON ddl_test(name)"); err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SHOW INDEX FROM ddl_test WHERE Key_name='idx_name'")
	if err != nil {
		return rig.Fail(err)
	}
	if len(rows) != 1 {
		return rig.Errorf("expected 1 index row for idx_name, got %d", len(rows)), nil
	}
	log.Info("✓ idx_name created on ddl_test")
	return rig.StateCompleted, nil
}

func (h *CreateIndexHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP TABLE IF EXISTS ddl_test")
}

// DropIndexHandler drops an index and confirms SHOW INDEX forgets it.
type DropIndexHandler struct {
	rig.BaseHandler
}

func (h *DropIndexHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		"DROP TABLE IF EXISTS ddl_test",
		"CREATE TABLE ddl_test (id INT PRIMARY KEY, name VARCHAR(100))",
		"CREATE INDEX idx_name ON ddl_test(name)",
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *DropIndexHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := mustExec(c, "DROP INDEX idx_name ON ddl_test"); err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SHOW INDEX FROM ddl_test WHERE Key_name='idx_name'")
	if err != nil {
		return rig.Fail(err)
	}
	if len(rows) != 0 {
		return rig.ErrorState("dropped index still listed in SHOW INDEX"), nil
	}
	log.Info("✓ idx_name dropped from ddl_test")
	return rig.StateCompleted, nil
}

func (h *DropIndexHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP TABLE IF EXISTS ddl_test")
}

// ViewHandler creates a view over the fixture table.
type ViewHandler struct {
	rig.BaseHandler
}

func (h *ViewHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		"DROP TABLE IF EXISTS ddl_test",
		"CREATE TABLE ddl_test (id INT)",
		"DROP VIEW IF EXISTS v_test",
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *ViewHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := mustExec(c, "CREATE VIEW v_test AS SELECT * FROM ddl_test"); err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SHOW FULL TABLES WHERE Table_type = 'VIEW'")
	if err != nil {
		return rig.Fail(err)
	}
	if !connection.RowsMention(rows, "v_test") {
		return rig.ErrorState("created view missing from SHOW FULL TABLES"), nil
	}
	log.Info("✓ v_test view created over ddl_test")
	return rig.StateCompleted, nil
}

func (h *ViewHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly(
		"DROP VIEW IF EXISTS v_test",
		"DROP TABLE IF EXISTS ddl_test",
	)
}

// TempTableHandler creates a session temporary table. The session
// drops it on close, so Exit has nothing to do.
type TempTableHandler struct {
	rig.BaseHandler
}

func (h *TempTableHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	if err := mustExec(c, "CREATE TEMPORARY TABLE tmp_test (id INT)"); err != nil {
		return rig.Fail(err)
	}
	if err := mustExec(c, "INSERT INTO tmp_test VALUES (1)"); err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SELECT COUNT(*) FROM tmp_test")
	if err != nil {
		return rig.Fail(err)
	}
	if n, ok := connection.ScalarInt(rows); !ok || n != 1 {
		return rig.Errorf("expected 1 row in temporary table, got %d", n), nil
	}
	log.Info("✓ tmp_test temporary table usable in session")
	return rig.StateCompleted, nil
}

// InformationSchemaHandler reads the fixture back through
// information_schema.
type InformationSchemaHandler struct {
	rig.BaseHandler
}

func (h *InformationSchemaHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		"DROP TABLE IF EXISTS ddl_test",
		"CREATE TABLE ddl_test (id INT PRIMARY KEY)",
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *InformationSchemaHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	rows, err := c.ExecuteQuery("SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_NAME='ddl_test'")
	if err != nil {
		return rig.Fail(err)
	}
	if !connection.RowsMention(rows, "ddl_test") {
		return rig.ErrorState("ddl_test missing from information_schema.TABLES"), nil
	}
	log.Info("✓ ddl_test visible through information_schema")
	return rig.StateCompleted, nil
}

func (h *InformationSchemaHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP TABLE IF EXISTS ddl_test")
}

// AlterDatabaseHandler switches a database's default character set.
type AlterDatabaseHandler struct {
	rig.BaseHandler
}

func (h *AlterDatabaseHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		"DROP DATABASE IF EXISTS test_db",
		"CREATE DATABASE test_db DEFAULT CHARACTER SET utf8mb4",
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *AlterDatabaseHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := mustExec(c, "ALTER DATABASE test_db CHARACTER SET latin1"); err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SELECT DEFAULT_CHARACTER_SET_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME='test_db'")
	if err != nil {
		return rig.Fail(err)
	}
	if !connection.RowsMention(rows, "latin1") {
		return rig.ErrorState("database charset did not change to latin1"), nil
	}
	log.Info("✓ test_db charset altered to latin1")
	return rig.StateCompleted, nil
}

func (h *AlterDatabaseHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP DATABASE IF EXISTS test_db")
}

// ProceduresHandler creates a stored procedure where the server
// supports them. TiDB rejects the statement, which counts as a skip.
type ProceduresHandler struct {
	rig.BaseHandler
}

func (h *ProceduresHandler) Enter(ctx *rig.Context) (rig.State, error) {
	if _, err := ctx.Primary(); err != nil {
		return rig.Fail(err)
	}
	// DROP PROCEDURE errors on servers without procedure support
	ctx.CleanupQuietly("DROP PROCEDURE IF EXISTS p_test")
	return rig.StateConnecting, nil
}

func (h *ProceduresHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	_, err := c.ExecuteQuery("CREATE PROCEDURE p_test () BEGIN SELECT 1; END")
	if err != nil {
		// TiDB has no stored procedures, only validate the rejection
		log.Warnf("server rejected CREATE PROCEDURE, skipping: %v", err)
		if code := util.MySQLErrorCode(err); code == 0 {
			return rig.Fail(err)
		}
		return rig.StateCompleted, nil
	}
	rows, err := c.ExecuteQuery("SHOW PROCEDURE STATUS WHERE Name='p_test'")
	if err != nil {
		return rig.Fail(err)
	}
	if !connection.RowsMention(rows, "p_test") {
		return rig.ErrorState("created procedure missing from SHOW PROCEDURE STATUS"), nil
	}
	log.Info("✓ p_test procedure created")
	return rig.StateCompleted, nil
}

func (h *ProceduresHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP PROCEDURE IF EXISTS p_test")
}
