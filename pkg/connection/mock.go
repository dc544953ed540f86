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
	"strings"
	"sync"
	"time"
)

// mockConn answers queries from a fixed pattern table so scenarios can
// run without a server. It never fails and models no DDL or DML
// effect, a CREATE TABLE does not change what SHOW TABLES returns.
type mockConn struct {
	id     string
	mu     sync.Mutex
	logger *sqlLogger
}

func newMockConn(opt *Option) *mockConn {
	return &mockConn{
		id:     opt.ID,
		logger: newSQLLogger(opt.ID, opt.Log, opt.ShowSQL, opt.Mute),
	}
}

func (c *mockConn) ID() string {
	return c.id
}

func (c *mockConn) ExecuteQuery(query string) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := time.Now()
	rows := respond(query)
	c.logger.logSQL(query, time.Since(start), nil)
	return rows, nil
}

func (c *mockConn) StartTransaction() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.logLine("mock START TRANSACTION")
	return nil
}

func (c *mockConn) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.logLine("mock COMMIT")
	return nil
}

func (c *mockConn) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.logLine("mock ROLLBACK")
	return nil
}

func (c *mockConn) Close() error {
	return nil
}

// respond maps statement text to a canned result set. First match
// wins; unrecognized statements get an empty set.
func respond(query string) []Row {
	switch {
	case strings.Contains(query, "SHOW TABLES"):
		return []Row{{"col_0": "ddl_test"}}
	case strings.Contains(query, "SHOW DATABASES"):
		return []Row{{"col_0": "test_db"}}
	case strings.Contains(query, "SHOW INDEX"):
		// no DDL effect, so a created index never shows up
		return []Row{}
	case strings.Contains(query, "SHOW COLUMNS"):
		if strings.Contains(query, "age") {
			return []Row{{"col_0": "age"}}
		}
		return []Row{}
	case strings.Contains(query, "SELECT COUNT"):
		if strings.Contains(query, "INSERT") {
			return []Row{{"col_0": int64(1)}}
		}
		return []Row{{"col_0": int64(0)}}
	case strings.Contains(query, "SELECT DEFAULT_CHARACTER_SET_NAME"):
		return []Row{{"col_0": "latin1"}}
	case strings.Contains(query, "SHOW PROCEDURE STATUS"):
		return []Row{{"col_0": "p_test"}}
	case strings.Contains(query, "SHOW FULL TABLES"):
		return []Row{{"col_0": "v_test"}}
	case strings.Contains(query, "SELECT TABLE_NAME"):
		return []Row{{"col_0": "ddl_test"}}
	default:
		return []Row{}
	}
}
