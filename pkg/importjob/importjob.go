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

// Package importjob inspects TiDB IMPORT INTO jobs through the
// SHOW IMPORT JOBS family of statements.
package importjob

import (
	"fmt"
	"time"

	"github.com/juju/errors"

	"github.com/pingcap/tirig/pkg/connection"
)

// timeLayout is how TiDB renders job timestamps over the text protocol.
const timeLayout = "2006-01-02 15:04:05"

// Querier runs a statement and returns its rows. connection.Conn
// satisfies it.
type Querier interface {
	ExecuteQuery(query string) ([]connection.Row, error)
}

// Job is one row of SHOW IMPORT JOBS. Timestamps stay in the server's
// text form, empty when NULL.
type Job struct {
	ID             int64
	DataSource     string
	TargetTable    string
	TableID        int64
	Phase          string
	Status         string
	SourceFileSize string
	ImportedRows   int64
	ResultMessage  string
	CreateTime     string
	StartTime      string
	EndTime        string
	CreatedBy      string
}

// Finished reports whether the server has stamped an end time.
func (j Job) Finished() bool {
	return j.EndTime != ""
}

// Elapsed is the time since the job started, zero when the start time
// is absent or unparseable.
func (j Job) Elapsed(now time.Time) time.Duration {
	if j.StartTime == "" {
		return 0
	}
	start, err := time.Parse(timeLayout, j.StartTime)
	if err != nil {
		return 0
	}
	d := now.UTC().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

func fromRow(r connection.Row) Job {
	var j Job
	j.ID, _ = r.Int("Job_ID")
	j.DataSource, _ = r.String("Data_Source")
	j.TargetTable, _ = r.String("Target_Table")
	j.TableID, _ = r.Int("Table_ID")
	j.Phase, _ = r.String("Phase")
	j.Status, _ = r.String("Status")
	j.SourceFileSize, _ = r.String("Source_File_Size")
	j.ImportedRows, _ = r.Int("Imported_Rows")
	j.ResultMessage, _ = r.String("Result_Message")
	j.CreateTime, _ = r.String("Create_Time")
	j.StartTime, _ = r.String("Start_Time")
	j.EndTime, _ = r.String("End_Time")
	j.CreatedBy, _ = r.String("Created_By")
	return j
}

// List returns every import job the server reports.
func List(q Querier) ([]Job, error) {
	rows, err := q.ExecuteQuery("SHOW IMPORT JOBS")
	if err != nil {
		return nil, errors.Annotate(err, "show import jobs")
	}
	jobs := make([]Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, fromRow(r))
	}
	return jobs, nil
}

// Show returns one job by ID, or nil when the server no longer
// reports it.
func Show(q Querier, id int64) (*Job, error) {
	rows, err := q.ExecuteQuery(fmt.Sprintf("SHOW IMPORT JOB %d", id))
	if err != nil {
		return nil, errors.Annotatef(err, "show import job %d", id)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	j := fromRow(rows[0])
	return &j, nil
}

// Active filters to jobs that have not finished.
func Active(jobs []Job) []Job {
	var active []Job
	for _, j := range jobs {
		if !j.Finished() {
			active = append(active, j)
		}
	}
	return active
}
