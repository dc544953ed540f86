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

package importjob

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/juju/errors"
	"github.com/ngaut/log"
)

// Monitor periodically reports the progress of a set of import jobs.
type Monitor struct {
	q        Querier
	duration time.Duration
	interval time.Duration
}

// NewMonitor watches jobs for the given duration, polling every five
// seconds as the console output expects.
func NewMonitor(q Querier, duration time.Duration) *Monitor {
	return &Monitor{
		q:        q,
		duration: duration,
		interval: 5 * time.Second,
	}
}

// Watch logs a status line for every unfinished job on each tick until
// the monitoring window closes or the context is cancelled.
func (m *Monitor) Watch(ctx context.Context, ids []int64) error {
	deadline := time.Now().Add(m.duration)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			log.Infof("✓ Import job monitoring completed after %s", m.duration)
			return nil
		}
		log.Infof("--- Import Job Status Update (%s remaining) ---", remaining.Round(time.Second))

		for _, id := range ids {
			job, err := Show(m.q, id)
			if err != nil {
				return errors.Trace(err)
			}
			if job == nil || job.Finished() {
				continue
			}
			elapsed := job.Elapsed(time.Now())
			log.Infof("Job_ID: %d | Phase: %s | Start_Time: %s | Source_File_Size: %s | Imported_Rows: %d | Time elapsed: %02d:%02d:%02d",
				job.ID, job.Phase, startTimeOrNA(job), job.SourceFileSize, job.ImportedRows,
				int(elapsed.Hours()), int(elapsed.Minutes())%60, int(elapsed.Seconds())%60)
		}

		select {
		case <-ctx.Done():
			return errors.Annotate(ctx.Err(), "import job monitoring interrupted")
		case <-time.After(m.interval):
		}
	}
}

func startTimeOrNA(j *Job) string {
	if j.StartTime == "" {
		return "N/A"
	}
	return j.StartTime
}

// Wait polls a single job with backoff until the server stamps its end
// time, then returns the final row. A job the server forgot is an
// error.
func Wait(ctx context.Context, q Querier, id int64) (*Job, error) {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	for {
		job, err := Show(q, id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if job == nil {
			return nil, errors.Errorf("import job %d disappeared before finishing", id)
		}
		if job.Finished() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Annotatef(ctx.Err(), "wait for import job %d", id)
		case <-time.After(b.Duration()):
		}
	}
}
