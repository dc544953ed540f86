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
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap/tirig/pkg/config"
	"github.com/pingcap/tirig/pkg/connection"
	"github.com/pingcap/tirig/pkg/rig"
	"github.com/pingcap/tirig/util"
)

// stubConn scripts responses per statement and records everything the
// handler sent.
type stubConn struct {
	id      string
	respond func(query string) ([]connection.Row, error)

	mu   sync.Mutex
	sent []string
}

func (c *stubConn) ID() string { return c.id }

func (c *stubConn) ExecuteQuery(query string) ([]connection.Row, error) {
	c.mu.Lock()
	c.sent = append(c.sent, query)
	c.mu.Unlock()
	if c.respond != nil {
		return c.respond(query)
	}
	return nil, nil
}

func (c *stubConn) StartTransaction() error {
	_, err := c.ExecuteQuery("START TRANSACTION")
	return err
}

func (c *stubConn) Commit() error {
	_, err := c.ExecuteQuery("COMMIT")
	return err
}

func (c *stubConn) Rollback() error {
	_, err := c.ExecuteQuery("ROLLBACK")
	return err
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) saw(fragment string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.sent {
		if strings.Contains(q, fragment) {
			return true
		}
	}
	return false
}

func serverErr(code uint16) error {
	return &mysql.MySQLError{Number: code, Message: "scripted failure"}
}

func ddlContext(t *testing.T) *rig.Context {
	return rig.NewContext(context.Background(), config.Init())
}

// scenarioByName pulls one scenario out of the suite for a full
// machine run.
func scenarioByName(t *testing.T, name string) rig.Scenario {
	for _, s := range NewSuite(config.Init()) {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("scenario %q not in suite", name)
	return rig.Scenario{}
}

func TestCreateTableScenarioAgainstResponder(t *testing.T) {
	ctx := ddlContext(t)
	defer ctx.Close()

	final, err := rig.NewScenarioMachine(scenarioByName(t, "create-table")).Run(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, final)
	assert.NotNil(t, ctx.Connection)
}

func TestTruncateTableScenarioAgainstResponder(t *testing.T) {
	ctx := ddlContext(t)
	defer ctx.Close()

	final, err := rig.NewScenarioMachine(scenarioByName(t, "truncate-table")).Run(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, final)
}

func TestCreateTableHandlerChecksListing(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SHOW TABLES") {
			return []connection.Row{{"col_0": "ddl_test"}}, nil
		}
		return nil, nil
	}}

	ctx := ddlContext(t)
	ctx.Connection = c

	h := &CreateTableHandler{}
	st, err := h.Enter(ctx)
	require.Nil(t, err)
	require.Equal(t, rig.StateConnecting, st)
	defer h.Exit(ctx)

	st, err = h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.True(t, c.saw("CREATE TABLE ddl_test"))
}

func TestDropTableHandlerFlagsLingeringTable(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SHOW TABLES") {
			return []connection.Row{{"col_0": "ddl_test"}}, nil
		}
		return nil, nil
	}}

	ctx := ddlContext(t)
	ctx.Connection = c

	h := &DropTableHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)

	st, err := h.Execute(ctx)
	require.Nil(t, err, "assertion failures are tokens, not Go errors")
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "still listed")
}

func TestAlterTableHandlerDropsColumn(t *testing.T) {
	c := &stubConn{id: "0"}

	ctx := ddlContext(t)
	ctx.Connection = c

	h := &AlterTableHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.True(t, c.saw("ADD COLUMN age"))
	assert.True(t, c.saw("MODIFY COLUMN name"))
	assert.True(t, c.saw("DROP COLUMN age"))
}

func expectedErrorResponses() func(q string) ([]connection.Row, error) {
	return func(q string) ([]connection.Row, error) {
		switch q {
		case "CREATE TABLE ddl_test (id INT PRIMARY KEY)":
			return nil, serverErr(util.ErrCodeTableExists)
		case "ALTER TABLE ddl_test ADD COLUMN name VARCHAR(10)":
			return nil, serverErr(util.ErrCodeDupFieldName)
		case "CREATE INDEX idx_name ON ddl_test(id)":
			return nil, serverErr(util.ErrCodeDupKeyName)
		case "ALTER TABLE ddl_test DROP COLUMN missing_col":
			return nil, serverErr(util.ErrCodeCantDropField)
		case "SELECT * FROM ddl_test_missing":
			return nil, serverErr(util.ErrCodeNoSuchTable)
		case "DROP TABLE ddl_test_missing":
			return nil, serverErr(util.ErrCodeBadTable)
		}
		return nil, nil
	}
}

func TestExpectedErrorsHandlerAcceptsRightCodes(t *testing.T) {
	c := &stubConn{id: "0", respond: expectedErrorResponses()}

	ctx := ddlContext(t)
	ctx.Connection = c

	h := &ExpectedErrorsHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
}

func TestExpectedErrorsHandlerFlagsWrongCode(t *testing.T) {
	respond := expectedErrorResponses()
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if q == "CREATE INDEX idx_name ON ddl_test(id)" {
			return nil, serverErr(util.ErrCodeTableExists)
		}
		return respond(q)
	}}

	ctx := ddlContext(t)
	ctx.Connection = c

	h := &ExpectedErrorsHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "expected server error 1061")
}

func TestExpectedErrorsHandlerFlagsUnexpectedSuccess(t *testing.T) {
	c := &stubConn{id: "0"}

	ctx := ddlContext(t)
	ctx.Connection = c

	h := &ExpectedErrorsHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "statement succeeded")
}

func TestProceduresHandlerSkipsOnServerRejection(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "CREATE PROCEDURE") {
			return nil, serverErr(1064)
		}
		return nil, nil
	}}

	ctx := ddlContext(t)
	ctx.Connection = c

	h := &ProceduresHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
}

func TestSuiteRegistered(t *testing.T) {
	creator := rig.GetSuite("ddl")
	require.NotNil(t, creator)

	scenarios := creator(config.Init())
	require.NotEmpty(t, scenarios)

	seen := map[rig.State]bool{}
	for _, s := range scenarios {
		assert.NotEmpty(t, s.Name)
		assert.False(t, seen[s.State], "state token %q reused", s.State)
		seen[s.State] = true
		require.NotNil(t, s.Handler)
	}
}
