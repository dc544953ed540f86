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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMock(t *testing.T) Conn {
	c, err := New(context.Background(), &Option{ID: "0-test", Mute: true})
	require.Nil(t, err)
	return c
}

func TestMockShowTables(t *testing.T) {
	c := newTestMock(t)
	rows, err := c.ExecuteQuery("SHOW TABLES")
	assert.Nil(t, err)
	assert.Equal(t, []Row{{"col_0": "ddl_test"}}, rows)
}

func TestMockSelectCount(t *testing.T) {
	c := newTestMock(t)

	rows, err := c.ExecuteQuery("SELECT COUNT(*) FROM ddl_test")
	assert.Nil(t, err)
	require.Len(t, rows, 1)
	n, ok := rows[0].Int("col_0")
	assert.True(t, ok)
	assert.Equal(t, int64(0), n)

	// the responder pretends rows exist once the text mentions INSERT
	rows, err = c.ExecuteQuery("SELECT COUNT(*) FROM t /* after INSERT */")
	assert.Nil(t, err)
	require.Len(t, rows, 1)
	n, _ = rows[0].Int("col_0")
	assert.Equal(t, int64(1), n)
}

func TestMockDeterminism(t *testing.T) {
	c := newTestMock(t)
	queries := []string{
		"SHOW TABLES",
		"SHOW DATABASES",
		"SHOW INDEX FROM t WHERE Key_name='idx_name'",
		"SHOW COLUMNS FROM t LIKE 'age'",
		"SELECT COUNT(*) FROM t",
		"SELECT DEFAULT_CHARACTER_SET_NAME FROM information_schema.SCHEMATA",
		"SHOW PROCEDURE STATUS WHERE Db='test'",
		"SHOW FULL TABLES WHERE Table_type='VIEW'",
		"SELECT TABLE_NAME FROM information_schema.TABLES",
		"UPDATE t SET v = 1",
	}
	for _, q := range queries {
		first, err := c.ExecuteQuery(q)
		assert.Nil(t, err)
		second, err := c.ExecuteQuery(q)
		assert.Nil(t, err)
		assert.Equal(t, first, second, q)
	}
}

func TestMockPatternEdges(t *testing.T) {
	c := newTestMock(t)

	// no DDL effect modeled, so index listings stay empty
	rows, _ := c.ExecuteQuery("SHOW INDEX FROM t WHERE Key_name='idx_name'")
	assert.Empty(t, rows)
	rows, _ = c.ExecuteQuery("SHOW INDEX FROM t")
	assert.Empty(t, rows)

	rows, _ = c.ExecuteQuery("SHOW COLUMNS FROM t LIKE 'age'")
	assert.Equal(t, []Row{{"col_0": "age"}}, rows)
	rows, _ = c.ExecuteQuery("SHOW COLUMNS FROM t LIKE 'name'")
	assert.Empty(t, rows)

	rows, _ = c.ExecuteQuery("SELECT DEFAULT_CHARACTER_SET_NAME FROM information_schema.SCHEMATA")
	assert.Equal(t, []Row{{"col_0": "latin1"}}, rows)

	// unrecognized statements fall back to an empty set, never an error
	rows, err := c.ExecuteQuery("CREATE TABLE ddl_test (id INT)")
	assert.Nil(t, err)
	assert.Empty(t, rows)
}

func TestMockTransactionControls(t *testing.T) {
	c := newTestMock(t)
	assert.Nil(t, c.StartTransaction())
	assert.Nil(t, c.Commit())
	assert.Nil(t, c.StartTransaction())
	assert.Nil(t, c.Rollback())
	assert.Nil(t, c.Close())
}
