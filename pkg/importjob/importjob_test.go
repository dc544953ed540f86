package importjob

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap/tirig/pkg/connection"
)

func runningJobRow(id int64) connection.Row {
	return connection.Row{
		"Job_ID":           id,
		"Data_Source":      "/tmp/employees.csv",
		"Target_Table":     "`test`.`employees`",
		"Table_ID":         int64(100),
		"Phase":            "importing",
		"Status":           "running",
		"Source_File_Size": "11GiB",
		"Imported_Rows":    int64(50000),
		"Result_Message":   "",
		"Create_Time":      "2024-01-15 10:00:00",
		"Start_Time":       "2024-01-15 10:00:01",
		"End_Time":         nil,
		"Created_By":       "root@%",
	}
}

func finishedJobRow(id int64) connection.Row {
	r := runningJobRow(id)
	r["Phase"] = ""
	r["Status"] = "finished"
	r["End_Time"] = "2024-01-15 10:05:00"
	r["Result_Message"] = "imported 100000 rows"
	return r
}

// scriptedQuerier answers each query from a call-indexed script.
type scriptedQuerier struct {
	calls  []string
	script func(call int, query string) ([]connection.Row, error)
}

func (s *scriptedQuerier) ExecuteQuery(query string) ([]connection.Row, error) {
	call := len(s.calls)
	s.calls = append(s.calls, query)
	return s.script(call, query)
}

func TestListParsesJobs(t *testing.T) {
	q := &scriptedQuerier{script: func(int, string) ([]connection.Row, error) {
		return []connection.Row{runningJobRow(42), finishedJobRow(41)}, nil
	}}

	jobs, err := List(q)
	require.Nil(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, []string{"SHOW IMPORT JOBS"}, q.calls)

	running := jobs[0]
	assert.Equal(t, int64(42), running.ID)
	assert.Equal(t, "`test`.`employees`", running.TargetTable)
	assert.Equal(t, "importing", running.Phase)
	assert.Equal(t, int64(50000), running.ImportedRows)
	assert.False(t, running.Finished())

	done := jobs[1]
	assert.True(t, done.Finished())
	assert.Equal(t, "imported 100000 rows", done.ResultMessage)
}

func TestActiveFiltersFinished(t *testing.T) {
	jobs := []Job{
		{ID: 1, EndTime: "2024-01-15 10:05:00"},
		{ID: 2},
		{ID: 3, EndTime: ""},
	}
	active := Active(jobs)
	require.Len(t, active, 2)
	assert.Equal(t, int64(2), active[0].ID)
	assert.Equal(t, int64(3), active[1].ID)
}

func TestShowMissingJob(t *testing.T) {
	q := &scriptedQuerier{script: func(int, string) ([]connection.Row, error) {
		return nil, nil
	}}
	job, err := Show(q, 7)
	require.Nil(t, err)
	assert.Nil(t, job)
	assert.Equal(t, []string{"SHOW IMPORT JOB 7"}, q.calls)
}

func TestJobElapsed(t *testing.T) {
	j := Job{StartTime: "2024-01-15 10:00:00"}
	now := time.Date(2024, 1, 15, 11, 30, 45, 0, time.UTC)
	assert.Equal(t, 90*time.Minute+45*time.Second, j.Elapsed(now))

	assert.Equal(t, time.Duration(0), Job{}.Elapsed(now))
	assert.Equal(t, time.Duration(0), Job{StartTime: "not a time"}.Elapsed(now))
}

func TestWaitPollsUntilFinished(t *testing.T) {
	q := &scriptedQuerier{script: func(call int, query string) ([]connection.Row, error) {
		if call < 2 {
			return []connection.Row{runningJobRow(42)}, nil
		}
		return []connection.Row{finishedJobRow(42)}, nil
	}}

	job, err := Wait(context.Background(), q, 42)
	require.Nil(t, err)
	require.NotNil(t, job)
	assert.True(t, job.Finished())
	assert.Len(t, q.calls, 3)
}

func TestWaitDisappearedJob(t *testing.T) {
	q := &scriptedQuerier{script: func(int, string) ([]connection.Row, error) {
		return nil, nil
	}}
	_, err := Wait(context.Background(), q, 42)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "disappeared")
}

func TestMonitorWatchFinishesWindow(t *testing.T) {
	q := &scriptedQuerier{script: func(int, string) ([]connection.Row, error) {
		return []connection.Row{runningJobRow(42)}, nil
	}}

	m := NewMonitor(q, 25*time.Millisecond)
	m.interval = 10 * time.Millisecond

	require.Nil(t, m.Watch(context.Background(), []int64{42}))
	// at least the first two ticks polled the job
	assert.True(t, len(q.calls) >= 2)
}

func TestMonitorWatchPropagatesQueryError(t *testing.T) {
	q := &scriptedQuerier{script: func(int, string) ([]connection.Row, error) {
		return nil, errors.New("server has gone away")
	}}

	m := NewMonitor(q, time.Minute)
	m.interval = time.Millisecond

	err := m.Watch(context.Background(), []int64{42})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "server has gone away")
}
