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

package rig

import (
	"context"

	"github.com/juju/errors"
	"github.com/ngaut/log"

	"github.com/pingcap/tirig/pkg/config"
	"github.com/pingcap/tirig/pkg/connection"
)

// Context is the per-scenario state the machine shares with handlers:
// connection parameters, the primary connection, and the scenario's
// connection list. The machine owns its lifecycle; handlers read and
// mutate it.
type Context struct {
	Config *config.Config

	Host     string
	Port     int
	User     string
	Password string
	Database string

	ServerVersion string
	TestRows      int

	// Connection is the primary session the bootstrap chain opens.
	Connection connection.Conn
	// Connections is the scenario's multi-connection list, in
	// provisioning order.
	Connections []connection.Conn

	// ActiveImportJobs carries unfinished import job IDs from the
	// jobs-overview state to the details state.
	ActiveImportJobs []int64

	ctx     context.Context
	manager *connection.Manager
}

// NewContext builds a scenario context. The context.Context bounds the
// whole scenario run.
func NewContext(ctx context.Context, cfg *config.Config) *Context {
	template := connection.Option{
		RealDB:  cfg.Database.RealDB,
		DSN:     cfg.DSN(),
		ShowSQL: cfg.Logging.ShowSQL,
	}
	return &Context{
		Config:   cfg,
		TestRows: cfg.Test.Rows,
		ctx:      ctx,
		manager:  connection.NewManager(template, cfg.Logging.SQLLogDir),
	}
}

// Err surfaces run cancellation to the machine loop.
func (c *Context) Err() error {
	return c.ctx.Err()
}

// RunContext exposes the context bounding the scenario run, for
// handlers that poll or block.
func (c *Context) RunContext() context.Context {
	return c.ctx
}

// ProvisionConnections opens count connections for the scenario and
// stores them in order as the context's connection list.
func (c *Context) ProvisionConnections(count int) ([]connection.Conn, error) {
	conns, err := c.manager.Provision(c.ctx, count)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.Connections = conns
	return conns, nil
}

// GetConnections returns up to n of the scenario's connections.
// Callers must check the returned length; fewer come back when the
// scenario provisioned fewer.
func (c *Context) GetConnections(n int) []connection.Conn {
	if n > len(c.Connections) {
		n = len(c.Connections)
	}
	return c.Connections[:n]
}

// Primary returns the bootstrap session, erroring when a handler runs
// before the connection chain.
func (c *Context) Primary() (connection.Conn, error) {
	if c.Connection == nil {
		return nil, errors.New("no connection available")
	}
	return c.Connection, nil
}

// CleanupQuietly runs teardown statements on the primary connection.
// Failures are logged, never returned, so cleanup cannot mask the
// scenario outcome.
func (c *Context) CleanupQuietly(stmts ...string) {
	if c.Connection == nil {
		return
	}
	for _, stmt := range stmts {
		if _, err := c.Connection.ExecuteQuery(stmt); err != nil {
			log.Warnf("cleanup %q failed: %v", stmt, err)
		}
	}
}

// Close tears down every connection the scenario opened, on every
// exit path.
func (c *Context) Close() {
	if err := c.manager.CloseAll(); err != nil {
		log.Errorf("scenario teardown: %v", err)
	}
	c.Connection = nil
	c.Connections = nil
}

// connectPrimary opens the bootstrap session. Kept on Context so the
// bootstrap chain and tests share one path.
func (c *Context) connectPrimary() error {
	conns, err := c.manager.Provision(c.ctx, 1)
	if err != nil {
		return errors.Trace(err)
	}
	c.Connection = conns[0]
	return nil
}
