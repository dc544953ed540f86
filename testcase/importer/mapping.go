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

package importer

import (
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/pingcap/tirig/pkg/connection"
	"github.com/pingcap/tirig/pkg/datagen"
	"github.com/pingcap/tirig/pkg/rig"
)

// literalFixture writes the exact bytes the scenario needs to a temp
// path.
func literalFixture(pattern, data string) (string, error) {
	path, err := tempFixture(pattern)
	if err != nil {
		return "", errors.Trace(err)
	}
	if err := ioutil.WriteFile(path, []byte(data), 0644); err != nil {
		return "", errors.Annotatef(err, "write fixture %s", path)
	}
	return path, nil
}

// expectPerson compares one id/name/age row against the values the
// fixture should have produced.
func expectPerson(r connection.Row, id int64, name string, age int64) error {
	gotID, _ := r.Int("id")
	gotName, _ := r.String("name")
	gotAge, _ := r.Int("age")
	if gotID != id || gotName != name || gotAge != age {
		return errors.Errorf("row (%d, %q, %d), want (%d, %q, %d)",
			gotID, gotName, gotAge, id, name, age)
	}
	return nil
}

// ColumnDefaultsHandler loads rows that stop early and expects the
// column defaults to fill the missing fields. LOAD DATA is the path
// with that contract.
type ColumnDefaultsHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *ColumnDefaultsHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_defaults_test"
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(32) DEFAULT 'unknown', age INT DEFAULT 18)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	// Rows 4 and 5 end short on purpose.
	h.fixture, err = literalFixture("import_defaults_*.csv", "4\n5,dan\n6,erin,22\n")
	if err != nil {
		return rig.Fail(err)
	}
	mysql.RegisterLocalFile(h.fixture)
	return rig.StateConnecting, nil
}

func (h *ColumnDefaultsHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("LOAD DATA LOCAL INFILE '%s' INTO TABLE %s FIELDS TERMINATED BY ',' LINES TERMINATED BY '\n' (id, name, age)",
		h.fixture, h.table)
	if _, err := c.ExecuteQuery(stmt); err != nil {
		return rig.Fail(errors.Annotate(err, "load with defaults"))
	}
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT id, name, age FROM %s ORDER BY id", h.table))
	if err != nil {
		return rig.Fail(err)
	}
	if len(rows) != 3 {
		return rig.Errorf("defaults import loaded %d rows, want 3", len(rows)), nil
	}
	checks := []error{
		expectPerson(rows[0], 4, "unknown", 18),
		expectPerson(rows[1], 5, "dan", 18),
		expectPerson(rows[2], 6, "erin", 22),
	}
	for _, err := range checks {
		if err != nil {
			return rig.Errorf("default fill mismatch: %v", err), nil
		}
	}
	log.Info("✓ Column defaults filled the missing fields")
	return rig.StateCompleted, nil
}

func (h *ColumnDefaultsHandler) Exit(ctx *rig.Context) {
	mysql.DeregisterLocalFile(h.fixture)
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// ColumnMappingHandler imports a file whose field order differs from
// the table and maps it straight through the column list.
type ColumnMappingHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *ColumnMappingHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_mapping_test"
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(32), age INT)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	h.fixture, err = literalFixture("import_mapping_*.csv", "bob,2,25\nalice,1,20\n")
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *ColumnMappingHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("IMPORT INTO %s (name, id, age) FROM '%s' WITH fields_terminated_by=',', lines_terminated_by='\n'",
		h.table, h.fixture)
	if _, err := c.ExecuteQuery(stmt); err != nil {
		return rig.Fail(errors.Annotate(err, "mapped import"))
	}
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT id, name, age FROM %s ORDER BY id", h.table))
	if err != nil {
		return rig.Fail(err)
	}
	if len(rows) != 2 {
		return rig.Errorf("mapped import loaded %d rows, want 2", len(rows)), nil
	}
	checks := []error{
		expectPerson(rows[0], 1, "alice", 20),
		expectPerson(rows[1], 2, "bob", 25),
	}
	for _, err := range checks {
		if err != nil {
			return rig.Errorf("column mapping mismatch: %v", err), nil
		}
	}
	log.Info("✓ Column mapping reordered the fields correctly")
	return rig.StateCompleted, nil
}

func (h *ColumnMappingHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// QuotedFieldsHandler imports names that contain the field separator
// and must survive inside their quotes.
type QuotedFieldsHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *QuotedFieldsHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_quoted_test"
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(32), age INT)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	data := "1,\"alice,smith\",20\n2,\"bob,jones\",25\n3,\"charlie,brown\",30\n"
	h.fixture, err = literalFixture("import_quoted_*.csv", data)
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *QuotedFieldsHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("IMPORT INTO %s FROM '%s' WITH fields_terminated_by=',', fields_enclosed_by='\"', lines_terminated_by='\n'",
		h.table, h.fixture)
	if _, err := c.ExecuteQuery(stmt); err != nil {
		return rig.Fail(errors.Annotate(err, "quoted import"))
	}
	n, err := queryCount(c, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if n != 3 {
		return rig.Errorf("quoted import loaded %d rows, want 3", n), nil
	}
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT name FROM %s WHERE id = 1", h.table))
	if err != nil {
		return rig.Fail(err)
	}
	if len(rows) == 0 {
		return rig.ErrorState("quoted import lost row 1"), nil
	}
	if name, _ := rows[0].String("name"); name != "alice,smith" {
		return rig.Errorf("quoted field came back as %q, want %q", name, "alice,smith"), nil
	}
	log.Info("✓ Quoted fields kept their embedded separators")
	return rig.StateCompleted, nil
}

func (h *QuotedFieldsHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// CharsetHandler imports multibyte names and reads them back intact.
type CharsetHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *CharsetHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_charset_test"
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(32)) CHARSET=utf8mb4", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	h.fixture, err = literalFixture("import_charset_*.csv", "7,张三\n8,李四\n")
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *CharsetHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("IMPORT INTO %s FROM '%s' WITH character_set='utf8mb4', fields_terminated_by=',', lines_terminated_by='\n'",
		h.table, h.fixture)
	if _, err := c.ExecuteQuery(stmt); err != nil {
		return rig.Fail(errors.Annotate(err, "utf8 import"))
	}
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT name FROM %s WHERE id = 7", h.table))
	if err != nil {
		return rig.Fail(err)
	}
	if len(rows) == 0 {
		return rig.ErrorState("utf8 import lost row 7"), nil
	}
	if name, _ := rows[0].String("name"); name != "张三" {
		return rig.Errorf("multibyte name came back as %q", name), nil
	}
	log.Info("✓ utf8mb4 names imported intact")
	return rig.StateCompleted, nil
}

func (h *CharsetHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// AutoIncrementHandler imports files without an id column and lets the
// server allocate the keys.
type AutoIncrementHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *AutoIncrementHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_autoinc_test"
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT AUTO_INCREMENT PRIMARY KEY, name VARCHAR(32), age INT)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	h.fixture, err = literalFixture("import_autoinc_*.csv", "alice,20\nbob,25\ncharlie,30\n")
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *AutoIncrementHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("IMPORT INTO %s (name, age) FROM '%s' WITH fields_terminated_by=',', lines_terminated_by='\n'",
		h.table, h.fixture)
	if _, err := c.ExecuteQuery(stmt); err != nil {
		return rig.Fail(errors.Annotate(err, "auto-increment import"))
	}
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT id, name, age FROM %s ORDER BY id", h.table))
	if err != nil {
		return rig.Fail(err)
	}
	if len(rows) != 3 {
		return rig.Errorf("auto-increment import loaded %d rows, want 3", len(rows)), nil
	}
	checks := []error{
		expectPerson(rows[0], 1, "alice", 20),
		expectPerson(rows[1], 2, "bob", 25),
		expectPerson(rows[2], 3, "charlie", 30),
	}
	for _, err := range checks {
		if err != nil {
			return rig.Errorf("allocated keys mismatch: %v", err), nil
		}
	}
	log.Info("✓ Auto-increment keys allocated in file order")
	return rig.StateCompleted, nil
}

func (h *AutoIncrementHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// PartitionedTableHandler imports into a range-partitioned table and
// checks rows landed in the right partitions.
type PartitionedTableHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *PartitionedTableHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_part_test"
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE %s (id INT, name VARCHAR(32), age INT, PRIMARY KEY (id, age))
PARTITION BY RANGE (age) (
	PARTITION p0 VALUES LESS THAN (25),
	PARTITION p1 VALUES LESS THAN (50),
	PARTITION p2 VALUES LESS THAN MAXVALUE
)`, h.table)
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		ddl,
	)
	if err != nil {
		return rig.Fail(err)
	}
	h.fixture, err = literalFixture("import_part_*.csv", "1,alice,20\n2,bob,25\n3,charlie,55\n")
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *PartitionedTableHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("IMPORT INTO %s FROM '%s' WITH fields_terminated_by=',', lines_terminated_by='\n'",
		h.table, h.fixture)
	if _, err := c.ExecuteQuery(stmt); err != nil {
		return rig.Fail(errors.Annotate(err, "partitioned import"))
	}
	n, err := queryCount(c, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if n != 3 {
		return rig.Errorf("partitioned import loaded %d rows, want 3", n), nil
	}
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT COUNT(*) FROM %s PARTITION (p0)", h.table))
	if err != nil {
		return rig.Fail(err)
	}
	if p0, ok := connection.ScalarInt(rows); !ok || p0 != 1 {
		return rig.Errorf("partition p0 holds %d rows, want 1", p0), nil
	}
	log.Info("✓ Partitioned import routed rows by range")
	return rig.StateCompleted, nil
}

func (h *PartitionedTableHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// NonEmptyTargetHandler proves the server refuses to import into a
// table that already holds rows, and that those rows survive.
type NonEmptyTargetHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *NonEmptyTargetHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_seeded_test"
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(32))", h.table),
		fmt.Sprintf("INSERT INTO %s VALUES (1, 'alice'), (2, 'bob')", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	h.fixture, err = literalFixture("import_seeded_*.csv", "1,ALICE\n2,BOB\n3,CHARLIE\n")
	if err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *NonEmptyTargetHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("IMPORT INTO %s FROM '%s' WITH fields_terminated_by=',', lines_terminated_by='\n'",
		h.table, h.fixture)
	_, err := c.ExecuteQuery(stmt)
	if err == nil {
		return rig.ErrorState("import into a non-empty table unexpectedly succeeded"), nil
	}
	if !strings.Contains(strings.ToLower(err.Error()), "not empty") {
		return rig.Errorf("import into a seeded table failed for the wrong reason: %v", err), nil
	}
	log.Infof("import refused as expected: %v", err)

	n, err := queryCount(c, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if n != 2 {
		return rig.Errorf("seeded rows disturbed, %d remain, want 2", n), nil
	}
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT name FROM %s WHERE id = 1", h.table))
	if err != nil {
		return rig.Fail(err)
	}
	if len(rows) == 0 {
		return rig.ErrorState("seeded row 1 vanished after the refused import"), nil
	}
	if name, _ := rows[0].String("name"); name != "alice" {
		return rig.Errorf("seeded row 1 now reads %q, want %q", name, "alice"), nil
	}
	log.Info("✓ Non-empty target refused and left untouched")
	return rig.StateCompleted, nil
}

func (h *NonEmptyTargetHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// LoadDataHandler runs the classic streaming load over a generated
// fixture. The driver only serves files registered with it.
type LoadDataHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *LoadDataHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "load_data_test"
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(64), age INT)", h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	h.fixture, err = tempFixture("load_data_*.csv")
	if err != nil {
		return rig.Fail(err)
	}
	opt := datagen.WriteOptions{Rows: ctx.TestRows, Format: datagen.FormatCSV, Simple: true}
	if err := writeFixture(h.fixture, opt); err != nil {
		return rig.Fail(err)
	}
	mysql.RegisterLocalFile(h.fixture)
	return rig.StateConnecting, nil
}

func (h *LoadDataHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("LOAD DATA LOCAL INFILE '%s' INTO TABLE %s FIELDS TERMINATED BY ',' LINES TERMINATED BY '\n'",
		h.fixture, h.table)
	if _, err := c.ExecuteQuery(stmt); err != nil {
		return rig.Fail(errors.Annotate(err, "load data"))
	}
	n, err := queryCount(c, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if n != int64(ctx.TestRows) {
		return rig.Errorf("load data streamed %d rows, want %d", n, ctx.TestRows), nil
	}
	log.Infof("✓ LOAD DATA streamed %d rows into %s", n, h.table)
	return rig.StateCompleted, nil
}

func (h *LoadDataHandler) Exit(ctx *rig.Context) {
	mysql.DeregisterLocalFile(h.fixture)
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}
