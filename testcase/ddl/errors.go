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

	"github.com/pingcap/tirig/pkg/rig"
	"github.com/pingcap/tirig/util"
)

// expectedFailure is one statement the server must reject with a
// specific error number.
type expectedFailure struct {
	what string
	stmt string
	code uint16
}

// ExpectedErrorsHandler runs statements that must fail and asserts the
// server error codes, not just that an error happened.
type ExpectedErrorsHandler struct {
	rig.BaseHandler
}

func (h *ExpectedErrorsHandler) Enter(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		"DROP TABLE IF EXISTS ddl_test",
		"DROP TABLE IF EXISTS ddl_test_missing",
		"CREATE TABLE ddl_test (id INT PRIMARY KEY, name VARCHAR(100))",
		"CREATE INDEX idx_name ON ddl_test(name)",
	)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *ExpectedErrorsHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	checks := []expectedFailure{
		{"duplicate table", "CREATE TABLE ddl_test (id INT PRIMARY KEY)", util.ErrCodeTableExists},
		{"duplicate column", "ALTER TABLE ddl_test ADD COLUMN name VARCHAR(10)", util.ErrCodeDupFieldName},
		{"duplicate index name", "CREATE INDEX idx_name ON ddl_test(id)", util.ErrCodeDupKeyName},
		{"drop missing column", "ALTER TABLE ddl_test DROP COLUMN missing_col", util.ErrCodeCantDropField},
		{"select missing table", "SELECT * FROM ddl_test_missing", util.ErrCodeNoSuchTable},
		{"drop missing table", "DROP TABLE ddl_test_missing", util.ErrCodeBadTable},
	}
	for _, check := range checks {
		_, err := c.ExecuteQuery(check.stmt)
		if err == nil {
			return rig.Errorf("%s: expected server error %d, statement succeeded", check.what, check.code), nil
		}
		if !util.IsMySQLError(err, check.code) {
			return rig.Errorf("%s: expected server error %d, got %v", check.what, check.code, err), nil
		}
		log.Infof("✓ %s rejected with error %d", check.what, check.code)
	}
	return rig.StateCompleted, nil
}

func (h *ExpectedErrorsHandler) Exit(ctx *rig.Context) {
	ctx.CleanupQuietly("DROP TABLE IF EXISTS ddl_test")
}
