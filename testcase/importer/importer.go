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

// Package importer drives server-side bulk loads: IMPORT INTO over
// generated CSV and TSV fixtures, LOAD DATA, and the job states that
// watch long imports from a second session.
package importer

import (
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/pingcap/tirig/pkg/config"
	"github.com/pingcap/tirig/pkg/connection"
	"github.com/pingcap/tirig/pkg/datagen"
	"github.com/pingcap/tirig/pkg/rig"
)

func init() {
	rig.RegisterSuite("importer", NewSuite)
}

// NewSuite lists the import scenarios in run order. The two job states
// at the end chain into each other when earlier imports are still
// running.
func NewSuite(cfg *config.Config) []rig.Scenario {
	return []rig.Scenario{
		{Name: "csv-import", State: rig.State("TestingCSVImport"), Handler: &CSVImportHandler{}},
		{Name: "tsv-import", State: rig.State("TestingTSVImport"), Handler: &TSVImportHandler{}},
		{Name: "column-defaults", State: rig.State("TestingImportDefaults"), Handler: &ColumnDefaultsHandler{}},
		{Name: "column-mapping", State: rig.State("TestingImportMapping"), Handler: &ColumnMappingHandler{}},
		{Name: "quoted-fields", State: rig.State("TestingQuotedFields"), Handler: &QuotedFieldsHandler{}},
		{Name: "charset", State: rig.State("TestingImportCharset"), Handler: &CharsetHandler{}},
		{Name: "auto-increment", State: rig.State("TestingImportAutoIncrement"), Handler: &AutoIncrementHandler{}},
		{Name: "partitioned-table", State: rig.State("TestingPartitionedImport"), Handler: &PartitionedTableHandler{}},
		{Name: "nonempty-target", State: rig.State("TestingNonEmptyTarget"), Handler: &NonEmptyTargetHandler{}},
		{Name: "load-data", State: rig.State("TestingLoadData"), Handler: &LoadDataHandler{}},
		{Name: "bulk-import", State: rig.State("TestingBulkImport"), Handler: &BulkImportHandler{Rows: 50000}},
		{Name: "monitored-import", State: rig.State("TestingMonitoredImport"), Handler: &MonitoredImportHandler{Rows: 50000}},
		{Name: "concurrent-imports", State: rig.State("TestingConcurrentImports"), Handler: &ConcurrentImportsHandler{Tables: 3, Rows: 10000}},
		{Name: "detached-import", State: rig.State("TestingDetachedImport"), Handler: &DetachedImportHandler{Rows: 10000}},
		{Name: "import-jobs-overview", State: rig.StateCheckingImportJobs, Handler: &JobsOverviewHandler{}},
		{Name: "import-job-details", State: rig.StateShowingImportJobDetails, Handler: &JobDetailsHandler{}},
	}
}

// fixtureSeed keeps generated fixtures identical across runs.
const fixtureSeed = 42

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

func queryCount(c connection.Conn, table string) (int64, error) {
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err != nil {
		return 0, errors.Trace(err)
	}
	n, ok := connection.ScalarInt(rows)
	if !ok {
		return 0, errors.Errorf("count query on %s returned no scalar", table)
	}
	return n, nil
}

// tempFixture reserves a fixture path in the system temp directory.
// The server reads the file by path, so it must stay until Exit.
func tempFixture(pattern string) (string, error) {
	f, err := ioutil.TempFile("", pattern)
	if err != nil {
		return "", errors.Annotate(err, "create fixture file")
	}
	if err := f.Close(); err != nil {
		return "", errors.Trace(err)
	}
	return f.Name(), nil
}

// removeQuietly deletes fixture files the way table cleanup runs,
// logging failures without escalating them.
func removeQuietly(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warnf("remove fixture %s: %v", p, err)
		}
	}
}

// writeFixture generates rows into path with the shared seed.
func writeFixture(path string, opt datagen.WriteOptions) error {
	stats, err := datagen.New(fixtureSeed).WriteFile(path, opt)
	if err != nil {
		return errors.Trace(err)
	}
	log.Infof("fixture %s ready: %d rows, %d bytes in %s",
		path, stats.Rows, stats.Bytes, stats.Elapsed.Round(time.Millisecond))
	return nil
}

// CSVImportHandler bulk-loads a generated CSV through IMPORT INTO and
// checks every row arrived.
type CSVImportHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *CSVImportHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_csv_test"
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
	h.fixture, err = tempFixture("import_csv_*.csv")
	if err != nil {
		return rig.Fail(err)
	}
	opt := datagen.WriteOptions{Rows: ctx.TestRows, Format: datagen.FormatCSV, Simple: true}
	if err := writeFixture(h.fixture, opt); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *CSVImportHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("IMPORT INTO %s FROM '%s' FORMAT 'csv' WITH fields_terminated_by=',', lines_terminated_by='\n'",
		h.table, h.fixture)
	if _, err := c.ExecuteQuery(stmt); err != nil {
		return rig.Fail(errors.Annotate(err, "csv import"))
	}
	n, err := queryCount(c, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if n != int64(ctx.TestRows) {
		return rig.Errorf("csv import loaded %d rows, want %d", n, ctx.TestRows), nil
	}
	rows, err := c.ExecuteQuery(fmt.Sprintf("SELECT MAX(id) FROM %s", h.table))
	if err != nil {
		return rig.Fail(err)
	}
	if max, ok := connection.ScalarInt(rows); !ok || max != int64(ctx.TestRows) {
		return rig.Errorf("csv import ids end at %d, want %d", max, ctx.TestRows), nil
	}
	log.Infof("✓ CSV import loaded %d rows into %s", n, h.table)
	return rig.StateCompleted, nil
}

func (h *CSVImportHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// TSVImportHandler loads tab-separated data. The server's import path
// has no TSV format name, so it is CSV with a tab separator.
type TSVImportHandler struct {
	rig.BaseHandler
	table   string
	fixture string
}

func (h *TSVImportHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_tsv_test"
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
	h.fixture, err = tempFixture("import_tsv_*.tsv")
	if err != nil {
		return rig.Fail(err)
	}
	opt := datagen.WriteOptions{Rows: ctx.TestRows, Format: datagen.FormatTSV, Simple: true}
	if err := writeFixture(h.fixture, opt); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *TSVImportHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("IMPORT INTO %s FROM '%s' FORMAT 'csv' WITH fields_terminated_by='\t', lines_terminated_by='\n'",
		h.table, h.fixture)
	if _, err := c.ExecuteQuery(stmt); err != nil {
		return rig.Fail(errors.Annotate(err, "tsv import"))
	}
	n, err := queryCount(c, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if n != int64(ctx.TestRows) {
		return rig.Errorf("tsv import loaded %d rows, want %d", n, ctx.TestRows), nil
	}
	log.Infof("✓ TSV import loaded %d rows into %s", n, h.table)
	return rig.StateCompleted, nil
}

func (h *TSVImportHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}
