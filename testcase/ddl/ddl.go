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

// Package ddl exercises schema changes on a single session: tables,
// indexes, views, and the expected failure codes.
package ddl

import (
	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/pingcap/tirig/pkg/config"
	"github.com/pingcap/tirig/pkg/connection"
	"github.com/pingcap/tirig/pkg/rig"
)

func init() {
	rig.RegisterSuite("ddl", NewSuite)
}

// NewSuite lists the schema scenarios in run order.
func NewSuite(cfg *config.Config) []rig.Scenario {
	return []rig.Scenario{
		{Name: "create-table", State: rig.State("TestingCreateTable"), Handler: &CreateTableHandler{}},
		{Name: "drop-table", State: rig.State("TestingDropTable"), Handler: &DropTableHandler{}},
		{Name: "alter-table", State: rig.State("TestingAlterTable"), Handler: &AlterTableHandler{}},
		{Name: "rename-table", State: rig.State("TestingRenameTable"), Handler: &RenameTableHandler{}},
		{Name: "truncate-table", State: rig.State("TestingTruncateTable"), Handler: &TruncateTableHandler{}},
		{Name: "create-index", State: rig.State("TestingCreateIndex"), Handler: &CreateIndexHandler{}},
		{Name: "drop-index", State: rig.State("TestingDropIndex"), Handler: &DropIndexHandler{}},
		{Name: "views", State: rig.State("TestingViews"), Handler: &ViewHandler{}},
		{Name: "temporary-tables", State: rig.State("TestingTempTables"), Handler: &TempTableHandler{}},
		{Name: "information-schema", State: rig.State("TestingInformationSchema"), Handler: &InformationSchemaHandler{}},
		{Name: "database-charset", State: rig.State("TestingDatabaseCharset"), Handler: &AlterDatabaseHandler{}},
		{Name: "procedures", State: rig.State("TestingProcedures"), Handler: &ProceduresHandler{}},
		{Name: "expected-errors", State: rig.State("TestingErrorConditions"), Handler: &ExpectedErrorsHandler{}},
	}
}

// mustExec runs setup statements, failing the scenario on the first
// error.
func mustExec(c connection.Conn, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := c.ExecuteQuery(stmt); err != nil {
			return errors.Annotatef(err, "exec %q", stmt)
		}
	}
	return nil
}

// CreateTableHandler creates a table and confirms the server lists it.
type CreateTableHandler struct {
	rig.BaseHandler
}

// Enter drops leftovers from earlier runs.
func (h *CreateTableHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	if err := mustExec(c, "DROP TABLE IF EXISTS ddl_test"); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

// Execute creates the table and checks SHOW TABLES.
func (h *CreateTableHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	err := mustExec(c, "CREATE TABLE ddl_test (id INT PRIMARY KEY AUTO_INCREMENT, name VARCHAR(100) NOT NULL)")
	if err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SHOW TABLES LIKE 'ddl_test'")
	if err != nil {
		return rig.Fail(err)
	}
	if !connection.RowsMention(rows, "ddl_test") {
		return rig.ErrorState("created table missing from SHOW TABLES"), nil
	}
	log.Info("✓ ddl_test created and visible")
	return rig.StateCompleted, nil
}

// Exit drops the fixture.
func (h *CreateTableHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP TABLE IF EXISTS ddl_test")
}

// DropTableHandler drops a table and confirms it is gone.
type DropTableHandler struct {
	rig.BaseHandler
}

func (h *DropTableHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	if err := mustExec(c, "CREATE TABLE IF NOT EXISTS ddl_test (id INT PRIMARY KEY)"); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *DropTableHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := mustExec(c, "DROP TABLE ddl_test"); err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SHOW TABLES LIKE 'ddl_test'")
	if err != nil {
		return rig.Fail(err)
	}
	if len(rows) != 0 {
		return rig.ErrorState("dropped table still listed in SHOW TABLES"), nil
	}
	log.Info("✓ ddl_test dropped")
	return rig.StateCompleted, nil
}

// AlterTableHandler adds, retypes, and removes columns.
type AlterTableHandler struct {
	rig.BaseHandler
}

func (h *AlterTableHandler) Enter(ctx *rig.Context) (rig.State, error) {
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

func (h *AlterTableHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	err := mustExec(c,
		"ALTER TABLE ddl_test ADD COLUMN age INT",
		"ALTER TABLE ddl_test MODIFY COLUMN name TEXT",
		"ALTER TABLE ddl_test DROP COLUMN age",
	)
	if err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SHOW COLUMNS FROM ddl_test")
	if err != nil {
		return rig.Fail(err)
	}
	if connection.RowsMention(rows, "age") {
		return rig.ErrorState("dropped column age still present"), nil
	}
	log.Info("✓ ddl_test altered through add, modify, drop column")
	return rig.StateCompleted, nil
}

func (h *AlterTableHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP TABLE IF EXISTS ddl_test")
}

// RenameTableHandler renames a table and checks both names.
type RenameTableHandler struct {
	rig.BaseHandler
}

func (h *RenameTableHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		"DROP TABLE IF EXISTS ddl_test",
		"DROP TABLE IF EXISTS ddl_test_renamed",
		"CREATE TABLE ddl_test (id INT PRIMARY KEY)",
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *RenameTableHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := mustExec(c, "RENAME TABLE ddl_test TO ddl_test_renamed"); err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SHOW TABLES LIKE 'ddl_test_renamed'")
	if err != nil {
		return rig.Fail(err)
	}
	if !connection.RowsMention(rows, "ddl_test_renamed") {
		return rig.ErrorState("renamed table missing from SHOW TABLES"), nil
	}
	log.Info("✓ ddl_test renamed to ddl_test_renamed")
	return rig.StateCompleted, nil
}

func (h *RenameTableHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP TABLE IF EXISTS ddl_test_renamed")
}

// TruncateTableHandler seeds rows and truncates them away.
type TruncateTableHandler struct {
	rig.BaseHandler
}

func (h *TruncateTableHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		"DROP TABLE IF EXISTS ddl_test",
		"CREATE TABLE ddl_test (id INT PRIMARY KEY)",
		"INSERT INTO ddl_test (id) VALUES (1), (2), (3)",
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *TruncateTableHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	if err := mustExec(c, "TRUNCATE TABLE ddl_test"); err != nil {
		return rig.Fail(err)
	}
	rows, err := c.ExecuteQuery("SELECT COUNT(*) FROM ddl_test")
	if err != nil {
		return rig.Fail(err)
	}
	if n, ok := connection.ScalarInt(rows); !ok || n != 0 {
		return rig.Errorf("expected 0 rows after truncate, got %d", n), nil
	}
	log.Info("✓ ddl_test truncated to 0 rows")
	return rig.StateCompleted, nil
}

func (h *TruncateTableHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP TABLE IF EXISTS ddl_test")
}
