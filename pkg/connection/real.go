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

package connection

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql
	"github.com/juju/errors"
	"github.com/ngaut/log"

	"github.com/pingcap/tirig/util"
)

// realConn pins one session from a single-connection pool so that
// transaction state and session variables stick to this shim.
type realConn struct {
	id      string
	mu      sync.Mutex
	db      *sql.DB
	conn    *sql.Conn
	logger  *sqlLogger
	version string
}

func newRealConn(ctx context.Context, opt *Option) (*realConn, error) {
	db, err := util.OpenDB(opt.DSN, 1)
	if err != nil {
		return nil, errors.Annotatef(err, "open connection %s", opt.ID)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "acquire session %s", opt.ID)
	}

	c := &realConn{
		id:     opt.ID,
		db:     db,
		conn:   conn,
		logger: newSQLLogger(opt.ID, opt.Log, opt.ShowSQL, opt.Mute),
	}
	if err := c.probe(ctx); err != nil {
		c.Close()
		return nil, errors.Trace(err)
	}
	return c, nil
}

// probe classifies the server flavor, for logging only.
func (c *realConn) probe(ctx context.Context) error {
	var version string
	if err := c.conn.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return errors.Annotate(err, "version probe")
	}
	c.version = version
	flavor := "MySQL"
	if strings.Contains(version, "TiDB") {
		flavor = "TiDB"
	}
	log.Infof("[conn-%s] connected, %s server version %s", c.id, flavor, version)
	return nil
}

func (c *realConn) ID() string {
	return c.id
}

func (c *realConn) ExecuteQuery(query string) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	rows, err := c.conn.QueryContext(context.Background(), query)
	if err != nil {
		c.logger.logSQL(query, time.Since(start), err)
		return nil, errors.Trace(err)
	}
	result, err := scanRows(rows)
	c.logger.logSQL(query, time.Since(start), err)
	return result, errors.Trace(err)
}

func (c *realConn) StartTransaction() error {
	return c.exec("START TRANSACTION")
}

func (c *realConn) Commit() error {
	return c.exec("COMMIT")
}

func (c *realConn) Rollback() error {
	return c.exec("ROLLBACK")
}

func (c *realConn) exec(stmt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	_, err := c.conn.ExecContext(context.Background(), stmt)
	c.logger.logSQL(stmt, time.Since(start), err)
	return errors.Trace(err)
}

func (c *realConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.conn.Close()
	if derr := c.db.Close(); err == nil {
		err = derr
	}
	return errors.Trace(err)
}
