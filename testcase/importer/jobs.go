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
	"time"

	"github.com/ngaut/log"

	"github.com/pingcap/tirig/pkg/importjob"
	"github.com/pingcap/tirig/pkg/rig"
)

// defaultMonitorWindow bounds how long the details state keeps
// reporting on jobs that refuse to finish.
const defaultMonitorWindow = 15 * time.Second

// JobsOverviewHandler lists the server's import jobs and decides
// whether the details state has anything to look at. Unfinished job
// IDs travel on the context.
type JobsOverviewHandler struct {
	rig.BaseHandler
}

func (h *JobsOverviewHandler) Enter(ctx *rig.Context) (rig.State, error) {
	log.Info("Checking for active import jobs...")
	return rig.StateCheckingImportJobs, nil
}

func (h *JobsOverviewHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	jobs, err := importjob.List(c)
	if err != nil {
		return rig.Fail(err)
	}
	log.Infof("server reports %d import job(s)", len(jobs))

	active := importjob.Active(jobs)
	if len(active) == 0 {
		ctx.ActiveImportJobs = nil
		log.Info("✓ No active import jobs found")
		return rig.StateCompleted, nil
	}

	ids := make([]int64, 0, len(active))
	for _, j := range active {
		log.Infof("active job %d -> %s (%s, %s)", j.ID, j.TargetTable, j.Phase, j.Status)
		ids = append(ids, j.ID)
	}
	ctx.ActiveImportJobs = ids
	log.Infof("✓ Found %d active import job(s)", len(ids))
	return rig.StateShowingImportJobDetails, nil
}

// JobDetailsHandler prints a detail block per active job, then keeps a
// monitoring window open on the ones still running. It lists jobs
// itself when run standalone, without the overview state before it.
type JobDetailsHandler struct {
	rig.BaseHandler
	// MonitorWindow overrides how long unfinished jobs are watched.
	MonitorWindow time.Duration
}

func (h *JobDetailsHandler) Enter(ctx *rig.Context) (rig.State, error) {
	log.Infof("Showing details for %d active import job(s)...", len(ctx.ActiveImportJobs))
	return rig.StateShowingImportJobDetails, nil
}

func (h *JobDetailsHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c := ctx.Connection
	ids := ctx.ActiveImportJobs
	if len(ids) == 0 {
		jobs, err := importjob.List(c)
		if err != nil {
			return rig.Fail(err)
		}
		for _, j := range importjob.Active(jobs) {
			ids = append(ids, j.ID)
		}
	}
	if len(ids) == 0 {
		log.Info("✓ No active import jobs found")
		return rig.StateCompleted, nil
	}

	var unfinished []int64
	for _, id := range ids {
		job, err := importjob.Show(c, id)
		if err != nil {
			return rig.Fail(err)
		}
		if job == nil {
			log.Warnf("import job %d vanished before its details could be shown", id)
			continue
		}
		log.Infof("--- Import Job %d ---", job.ID)
		log.Infof("  target table: %s", job.TargetTable)
		log.Infof("  phase: %s | status: %s", job.Phase, job.Status)
		log.Infof("  imported rows: %d | source size: %s", job.ImportedRows, job.SourceFileSize)
		log.Infof("  created by: %s | create time: %s", job.CreatedBy, job.CreateTime)
		if !job.Finished() {
			unfinished = append(unfinished, job.ID)
		}
	}
	log.Info("✓ Import job details displayed")

	if len(unfinished) > 0 {
		window := h.MonitorWindow
		if window <= 0 {
			window = defaultMonitorWindow
		}
		mon := importjob.NewMonitor(c, window)
		if err := mon.Watch(ctx.RunContext(), unfinished); err != nil {
			return rig.Fail(err)
		}
	}

	ctx.ActiveImportJobs = nil
	return rig.StateCompleted, nil
}
