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
	"strings"
	"sync"
	"time"

	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"golang.org/x/sync/errgroup"

	"github.com/pingcap/tirig/pkg/datagen"
	"github.com/pingcap/tirig/pkg/importjob"
	"github.com/pingcap/tirig/pkg/rig"
)

// Fallback sizes for handlers constructed without explicit row counts.
const (
	defaultBulkRows     = 50000
	defaultDetachedRows = 10000
	jobPollInterval     = 2 * time.Second
)

// employeeTableDDL matches the wide fixture layout the generator
// writes. is_active arrives as true/false text, so it stays a string
// column.
func employeeTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	id INT PRIMARY KEY,
	name VARCHAR(100),
	email VARCHAR(200),
	phone VARCHAR(20),
	city VARCHAR(50),
	department VARCHAR(50),
	job_title VARCHAR(100),
	salary INT,
	performance_score DECIMAL(5,2),
	hire_date DATE,
	is_active VARCHAR(8),
	notes TEXT,
	years_experience INT,
	projects_completed INT
)`, table)
}

// employeeImportStmt skips the header line the wide fixture carries.
func employeeImportStmt(table, fixture string) string {
	return fmt.Sprintf("IMPORT INTO %s FROM '%s' WITH fields_terminated_by=',', fields_enclosed_by='\"', lines_terminated_by='\n', skip_rows=1",
		table, fixture)
}

// BulkImportHandler loads a wide generated dataset in one statement
// and times it.
type BulkImportHandler struct {
	rig.BaseHandler
	// Rows is the fixture size, defaulted when zero.
	Rows int

	table   string
	fixture string
}

func (h *BulkImportHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_bulk_test"
	if h.Rows <= 0 {
		h.Rows = defaultBulkRows
	}
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		employeeTableDDL(h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	h.fixture, err = tempFixture("import_bulk_*.csv")
	if err != nil {
		return rig.Fail(err)
	}
	if err := writeFixture(h.fixture, datagen.WriteOptions{Rows: h.Rows, Format: datagen.FormatCSV}); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *BulkImportHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	start := time.Now()
	if _, err := c.ExecuteQuery(employeeImportStmt(h.table, h.fixture)); err != nil {
		return rig.Fail(errors.Annotate(err, "bulk import"))
	}
	elapsed := time.Since(start)
	n, err := queryCount(c, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if n != int64(h.Rows) {
		return rig.Errorf("bulk import loaded %d rows, want %d", n, h.Rows), nil
	}
	log.Infof("✓ Bulk import loaded %d rows in %s", n, elapsed.Round(time.Millisecond))
	return rig.StateCompleted, nil
}

func (h *BulkImportHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// watchActiveJobs polls the job list from a second session while an
// import runs on the first, the way an operator would.
func watchActiveJobs(q importjob.Querier, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-time.After(jobPollInterval):
		}
		jobs, err := importjob.List(q)
		if err != nil {
			log.Warnf("import job poll: %v", err)
			continue
		}
		active := importjob.Active(jobs)
		if len(active) == 0 {
			log.Info("no active import jobs found")
			continue
		}
		for _, j := range active {
			log.Infof("job %d (%s): %s | %s | %d rows | %s",
				j.ID, j.TargetTable, j.Phase, j.Status, j.ImportedRows, j.SourceFileSize)
		}
	}
}

// MonitoredImportHandler runs a bulk import on one session while a
// second session reports job progress until the first returns.
type MonitoredImportHandler struct {
	rig.BaseHandler
	// Rows is the fixture size, defaulted when zero.
	Rows int

	table   string
	fixture string
}

func (h *MonitoredImportHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_monitored_test"
	if h.Rows <= 0 {
		h.Rows = defaultBulkRows
	}
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	err = mustExec(c,
		fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table),
		employeeTableDDL(h.table),
	)
	if err != nil {
		return rig.Fail(err)
	}
	if _, err := ctx.ProvisionConnections(2); err != nil {
		return rig.Fail(err)
	}
	h.fixture, err = tempFixture("import_monitored_*.csv")
	if err != nil {
		return rig.Fail(err)
	}
	if err := writeFixture(h.fixture, datagen.WriteOptions{Rows: h.Rows, Format: datagen.FormatCSV}); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *MonitoredImportHandler) Execute(ctx *rig.Context) (rig.State, error) {
	conns := ctx.GetConnections(2)
	if len(conns) < 2 {
		return rig.ErrorState("monitored import needs two connections"), nil
	}
	imp, watcher := conns[0], conns[1]

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchActiveJobs(watcher, done)
	}()

	start := time.Now()
	_, impErr := imp.ExecuteQuery(employeeImportStmt(h.table, h.fixture))
	close(done)
	wg.Wait()
	if impErr != nil {
		return rig.Fail(errors.Annotate(impErr, "monitored import"))
	}

	n, err := queryCount(ctx.Connection, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if n != int64(h.Rows) {
		return rig.Errorf("monitored import loaded %d rows, want %d", n, h.Rows), nil
	}
	log.Infof("✓ Monitored import loaded %d rows in %s", n, time.Since(start).Round(time.Millisecond))
	return rig.StateCompleted, nil
}

func (h *MonitoredImportHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}

// ConcurrentImportsHandler fans independent imports out over separate
// sessions and sums what landed.
type ConcurrentImportsHandler struct {
	rig.BaseHandler
	// Tables is how many imports race, Rows the size of each.
	Tables int
	Rows   int

	fixtures []string
}

func (h *ConcurrentImportsHandler) tableName(i int) string {
	return fmt.Sprintf("concurrent_import_%d", i)
}

func (h *ConcurrentImportsHandler) Enter(ctx *rig.Context) (rig.State, error) {
	if h.Tables <= 0 {
		h.Tables = 3
	}
	if h.Rows <= 0 {
		h.Rows = defaultDetachedRows
	}
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	h.fixtures = h.fixtures[:0]
	for i := 0; i < h.Tables; i++ {
		table := h.tableName(i)
		err = mustExec(c,
			fmt.Sprintf("DROP TABLE IF EXISTS %s", table),
			fmt.Sprintf("CREATE TABLE %s (id INT PRIMARY KEY, name VARCHAR(64), age INT)", table),
		)
		if err != nil {
			return rig.Fail(err)
		}
		path, err := tempFixture(fmt.Sprintf("concurrent_import_%d_*.csv", i))
		if err != nil {
			return rig.Fail(err)
		}
		h.fixtures = append(h.fixtures, path)
		if err := writeFixture(path, datagen.WriteOptions{Rows: h.Rows, Format: datagen.FormatCSV, Simple: true}); err != nil {
			return rig.Fail(err)
		}
	}
	if _, err := ctx.ProvisionConnections(h.Tables); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *ConcurrentImportsHandler) Execute(ctx *rig.Context) (rig.State, error) {
	conns := ctx.GetConnections(h.Tables)
	if len(conns) < h.Tables {
		return rig.Errorf("concurrent imports need %d connections, got %d", h.Tables, len(conns)), nil
	}

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < h.Tables; i++ {
		i := i
		c := conns[i]
		g.Go(func() error {
			stmt := fmt.Sprintf("IMPORT INTO %s FROM '%s' WITH fields_terminated_by=',', lines_terminated_by='\n'",
				h.tableName(i), h.fixtures[i])
			if _, err := c.ExecuteQuery(stmt); err != nil {
				return errors.Annotatef(err, "import into %s", h.tableName(i))
			}
			log.Infof("✓ import finished for %s", h.tableName(i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rig.Fail(err)
	}

	var total int64
	for i := 0; i < h.Tables; i++ {
		n, err := queryCount(ctx.Connection, h.tableName(i))
		if err != nil {
			return rig.Fail(err)
		}
		log.Infof("%s holds %d rows", h.tableName(i), n)
		total += n
	}
	want := int64(h.Tables * h.Rows)
	if total != want {
		return rig.Errorf("concurrent imports loaded %d rows total, want %d", total, want), nil
	}
	log.Infof("✓ %d concurrent imports loaded %d rows in %s", h.Tables, total, time.Since(start).Round(time.Millisecond))
	return rig.StateCompleted, nil
}

func (h *ConcurrentImportsHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixtures...)
	stmts := make([]string, 0, h.Tables)
	for i := 0; i < h.Tables; i++ {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s", h.tableName(i)))
	}
	ctx.CleanupQuietly(stmts...)
}

// DetachedImportHandler starts a background import, takes the job ID
// from the response, and polls until the server stamps it finished.
type DetachedImportHandler struct {
	rig.BaseHandler
	// Rows is the fixture size, defaulted when zero.
	Rows int

	table   string
	fixture string
}

func (h *DetachedImportHandler) Enter(ctx *rig.Context) (rig.State, error) {
	h.table = "import_detached_test"
	if h.Rows <= 0 {
		h.Rows = defaultDetachedRows
	}
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
	h.fixture, err = tempFixture("import_detached_*.csv")
	if err != nil {
		return rig.Fail(err)
	}
	opt := datagen.WriteOptions{Rows: h.Rows, Format: datagen.FormatCSV, Simple: true}
	if err := writeFixture(h.fixture, opt); err != nil {
		return rig.Fail(err)
	}
	return rig.StateConnecting, nil
}

func (h *DetachedImportHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	stmt := fmt.Sprintf("IMPORT INTO %s FROM '%s' WITH fields_terminated_by=',', lines_terminated_by='\n', detached",
		h.table, h.fixture)
	rows, err := c.ExecuteQuery(stmt)
	if err != nil {
		return rig.Fail(errors.Annotate(err, "detached import"))
	}
	if len(rows) == 0 {
		return rig.ErrorState("detached import returned no job row"), nil
	}
	id, ok := rows[0].Int("Job_ID")
	if !ok {
		return rig.ErrorState("detached import response missing Job_ID"), nil
	}
	log.Infof("detached import running as job %d", id)

	job, err := importjob.Wait(ctx.RunContext(), c, id)
	if err != nil {
		return rig.Fail(err)
	}
	if !strings.EqualFold(job.Status, "finished") {
		return rig.Errorf("import job %d ended %s: %s", id, job.Status, job.ResultMessage), nil
	}
	if job.ImportedRows != int64(h.Rows) {
		return rig.Errorf("import job %d reports %d rows, want %d", id, job.ImportedRows, h.Rows), nil
	}
	n, err := queryCount(c, h.table)
	if err != nil {
		return rig.Fail(err)
	}
	if n != int64(h.Rows) {
		return rig.Errorf("detached import loaded %d rows, want %d", n, h.Rows), nil
	}
	log.Infof("✓ Detached import job %d finished with %d rows", id, job.ImportedRows)
	return rig.StateCompleted, nil
}

func (h *DetachedImportHandler) Exit(ctx *rig.Context) {
	removeQuietly(h.fixture)
	ctx.CleanupQuietly(fmt.Sprintf("DROP TABLE IF EXISTS %s", h.table))
}
