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

func countRows(n int64) []connection.Row {
	return []connection.Row{{"col_0": n}}
}

func serverErr(code uint16, msg string) error {
	return &mysql.MySQLError{Number: code, Message: msg}
}

// countQueue feeds scripted COUNT(*) results in order.
type countQueue struct {
	mu     sync.Mutex
	counts []int64
}

func (q *countQueue) next(t *testing.T) []connection.Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.counts, "handler issued more COUNT queries than scripted")
	n := q.counts[0]
	q.counts = q.counts[1:]
	return countRows(n)
}

func importerContext(t *testing.T) *rig.Context {
	return rig.NewContext(context.Background(), config.Init())
}

// jobRow builds one SHOW IMPORT JOB result row.
func jobRow(id int64, status string, imported int64, endTime string) connection.Row {
	return connection.Row{
		"Job_ID":           id,
		"Data_Source":      "/tmp/fixture.csv",
		"Target_Table":     "import_detached_test",
		"Table_ID":         100 + id,
		"Phase":            "importing",
		"Status":           status,
		"Source_File_Size": "1.2MiB",
		"Imported_Rows":    imported,
		"Result_Message":   "",
		"Create_Time":      "2024-01-02 03:04:05",
		"Start_Time":       "2024-01-02 03:04:06",
		"End_Time":         endTime,
		"Created_By":       "root@%",
	}
}

func personRow(id int64, name string, age int64) connection.Row {
	return connection.Row{"id": id, "name": name, "age": age}
}

func TestCSVImportHandlerCounts(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		switch {
		case strings.HasPrefix(q, "SELECT COUNT"):
			return countRows(10), nil
		case strings.HasPrefix(q, "SELECT MAX"):
			return countRows(10), nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &CSVImportHandler{}
	st, err := h.Enter(ctx)
	require.Nil(t, err)
	require.Equal(t, rig.StateConnecting, st)
	defer h.Exit(ctx)

	st, err = h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.True(t, c.saw("IMPORT INTO import_csv_test"))
	assert.True(t, c.saw("fields_terminated_by=','"))
}

func TestCSVImportHandlerRejectsShortLoad(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SELECT COUNT") {
			return countRows(7), nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &CSVImportHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err, "assertion failures are tokens, not Go errors")
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "loaded 7 rows, want 10")
}

func TestTSVImportHandlerUsesTabSeparator(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SELECT COUNT") {
			return countRows(10), nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &TSVImportHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.True(t, c.saw("fields_terminated_by='\t'"))
}

func TestColumnDefaultsHandlerVerifiesFill(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SELECT id, name, age") {
			return []connection.Row{
				personRow(4, "unknown", 18),
				personRow(5, "dan", 18),
				personRow(6, "erin", 22),
			}, nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &ColumnDefaultsHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.True(t, c.saw("LOAD DATA LOCAL INFILE"))
}

func TestColumnDefaultsHandlerCatchesWrongFill(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SELECT id, name, age") {
			return []connection.Row{
				personRow(4, "unknown", 18),
				personRow(5, "dan", 0), // default not applied
				personRow(6, "erin", 22),
			}, nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &ColumnDefaultsHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "default fill mismatch")
}

func TestColumnMappingHandlerChecksOrder(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SELECT id, name, age") {
			return []connection.Row{
				personRow(1, "alice", 20),
				personRow(2, "bob", 25),
			}, nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &ColumnMappingHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.True(t, c.saw("IMPORT INTO import_mapping_test (name, id, age)"))
}

func TestQuotedFieldsHandlerKeepsSeparator(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		switch {
		case strings.HasPrefix(q, "SELECT COUNT"):
			return countRows(3), nil
		case strings.HasPrefix(q, "SELECT name"):
			return []connection.Row{{"name": "alice,smith"}}, nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &QuotedFieldsHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.True(t, c.saw("fields_enclosed_by='\"'"))
}

func TestQuotedFieldsHandlerCatchesSplitField(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		switch {
		case strings.HasPrefix(q, "SELECT COUNT"):
			return countRows(3), nil
		case strings.HasPrefix(q, "SELECT name"):
			return []connection.Row{{"name": "\"alice"}}, nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &QuotedFieldsHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "alice,smith")
}

func TestNonEmptyTargetHandlerAcceptsRefusal(t *testing.T) {
	counts := &countQueue{counts: []int64{2}}
	c := &stubConn{id: "0"}
	c.respond = func(q string) ([]connection.Row, error) {
		switch {
		case strings.HasPrefix(q, "IMPORT INTO"):
			return nil, serverErr(8173, "target table is not empty")
		case strings.HasPrefix(q, "SELECT COUNT"):
			return counts.next(t), nil
		case strings.HasPrefix(q, "SELECT name"):
			return []connection.Row{{"name": "alice"}}, nil
		}
		return nil, nil
	}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &NonEmptyTargetHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
}

func TestNonEmptyTargetHandlerDemandsFailure(t *testing.T) {
	c := &stubConn{id: "0"}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &NonEmptyTargetHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "unexpectedly succeeded")
}

func TestNonEmptyTargetHandlerRejectsWrongReason(t *testing.T) {
	c := &stubConn{id: "0"}
	c.respond = func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "IMPORT INTO") {
			return nil, serverErr(1105, "disk quota exceeded")
		}
		return nil, nil
	}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &NonEmptyTargetHandler{}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "wrong reason")
}

func TestDetachedImportHandlerWaitsForFinish(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		switch {
		case strings.Contains(q, "detached"):
			return []connection.Row{{"Job_ID": int64(7)}}, nil
		case strings.HasPrefix(q, "SHOW IMPORT JOB "):
			return []connection.Row{jobRow(7, "finished", 5, "2024-01-02 03:05:00")}, nil
		case strings.HasPrefix(q, "SELECT COUNT"):
			return countRows(5), nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &DetachedImportHandler{Rows: 5}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.True(t, c.saw("SHOW IMPORT JOB 7"))
}

func TestDetachedImportHandlerRejectsMissingJobRow(t *testing.T) {
	c := &stubConn{id: "0"}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &DetachedImportHandler{Rows: 5}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "no job row")
}

func TestDetachedImportHandlerChecksReportedRows(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		switch {
		case strings.Contains(q, "detached"):
			return []connection.Row{{"Job_ID": int64(7)}}, nil
		case strings.HasPrefix(q, "SHOW IMPORT JOB "):
			return []connection.Row{jobRow(7, "finished", 4, "2024-01-02 03:05:00")}, nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &DetachedImportHandler{Rows: 5}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "reports 4 rows, want 5")
}

func TestConcurrentImportsHandlerSumsCounts(t *testing.T) {
	counts := &countQueue{counts: []int64{3, 3}}
	c := &stubConn{id: "0"}
	c.respond = func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SELECT COUNT") {
			return counts.next(t), nil
		}
		return nil, nil
	}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &ConcurrentImportsHandler{Tables: 2, Rows: 3}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)
	defer ctx.Close()

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.Empty(t, counts.counts)
}

func TestConcurrentImportsHandlerCatchesShortfall(t *testing.T) {
	counts := &countQueue{counts: []int64{3, 1}}
	c := &stubConn{id: "0"}
	c.respond = func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SELECT COUNT") {
			return counts.next(t), nil
		}
		return nil, nil
	}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &ConcurrentImportsHandler{Tables: 2, Rows: 3}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)
	defer ctx.Close()

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	require.True(t, st.IsError())
	assert.Contains(t, st.ErrorMessage(), "loaded 4 rows total, want 6")
}

func TestMonitoredImportHandlerCounts(t *testing.T) {
	c := &stubConn{id: "0"}
	c.respond = func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SELECT COUNT") {
			return countRows(4), nil
		}
		return nil, nil
	}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &MonitoredImportHandler{Rows: 4}
	_, err := h.Enter(ctx)
	require.Nil(t, err)
	defer h.Exit(ctx)
	defer ctx.Close()

	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
}

func TestJobsOverviewHandlerNoJobs(t *testing.T) {
	c := &stubConn{id: "0"}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &JobsOverviewHandler{}
	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.Nil(t, ctx.ActiveImportJobs)
	assert.True(t, c.saw("SHOW IMPORT JOBS"))
}

func TestJobsOverviewHandlerFindsActive(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SHOW IMPORT JOBS") {
			return []connection.Row{
				jobRow(41, "finished", 100, "2024-01-02 03:05:00"),
				jobRow(42, "running", 50, ""),
			}, nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &JobsOverviewHandler{}
	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateShowingImportJobDetails, st)
	assert.Equal(t, []int64{42}, ctx.ActiveImportJobs)
}

func TestJobDetailsHandlerShowsAndCompletes(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		if strings.HasPrefix(q, "SHOW IMPORT JOB ") {
			return []connection.Row{jobRow(42, "finished", 100, "2024-01-02 03:05:00")}, nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c
	ctx.ActiveImportJobs = []int64{42}

	h := &JobDetailsHandler{}
	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.Nil(t, ctx.ActiveImportJobs)
	assert.True(t, c.saw("SHOW IMPORT JOB 42"))
}

func TestJobDetailsHandlerStandaloneLists(t *testing.T) {
	c := &stubConn{id: "0", respond: func(q string) ([]connection.Row, error) {
		switch {
		case strings.HasPrefix(q, "SHOW IMPORT JOBS"):
			return []connection.Row{jobRow(9, "running", 10, "")}, nil
		case strings.HasPrefix(q, "SHOW IMPORT JOB "):
			// finished between the list and the detail call
			return []connection.Row{jobRow(9, "finished", 10, "2024-01-02 03:05:00")}, nil
		}
		return nil, nil
	}}

	ctx := importerContext(t)
	ctx.Connection = c

	h := &JobDetailsHandler{}
	st, err := h.Execute(ctx)
	require.Nil(t, err)
	assert.Equal(t, rig.StateCompleted, st)
	assert.True(t, c.saw("SHOW IMPORT JOBS"))
	assert.True(t, c.saw("SHOW IMPORT JOB 9"))
}

func TestSuiteRegistered(t *testing.T) {
	creator := rig.GetSuite("importer")
	require.NotNil(t, creator)

	scenarios := creator(config.Init())
	require.NotEmpty(t, scenarios)

	seen := map[rig.State]bool{}
	var overview, details bool
	for _, s := range scenarios {
		assert.NotEmpty(t, s.Name)
		assert.False(t, seen[s.State], "state token %q reused", s.State)
		seen[s.State] = true
		require.NotNil(t, s.Handler)
		if s.State == rig.StateCheckingImportJobs {
			overview = true
		}
		if s.State == rig.StateShowingImportJobDetails {
			details = true
		}
	}
	assert.True(t, overview, "overview scenario missing from the job states")
	assert.True(t, details, "details scenario missing from the job states")
}
