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
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/juju/errors"
	"github.com/ngaut/log"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/pingcap/tirig/pkg/retry"
)

// openRetry spaces connection attempts. Opens are cheap to retry, so
// the schedule is tighter than the query default.
var openRetry = retry.Config{
	MaxAttempts: 3,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    2 * time.Second,
	Multiplier:  2.0,
	Jitter:      true,
}

// Manager provisions connection shims for one scenario and owns their
// teardown. Connections are never reused across scenarios. Opens go
// through one shared circuit breaker; once it trips, further opens
// fail fast until the recovery timeout passes.
type Manager struct {
	template Option
	logDir   string
	breaker  *retry.Breaker

	mu    sync.Mutex
	conns []Conn

	provisioned atomic.Int64
}

// NewManager builds a manager stamping connections from the template
// option. The template ID is ignored, every connection gets its own.
func NewManager(template Option, logDir string) *Manager {
	return &Manager{
		template: template,
		logDir:   logDir,
		breaker:  retry.NewBreaker(retry.DefaultBreakerConfig()),
	}
}

// Provision opens count connections concurrently and returns the new
// batch in index order. The manager keeps them for CloseAll; a partial
// failure closes whatever was opened before returning.
func (m *Manager) Provision(ctx context.Context, count int) ([]Conn, error) {
	conns := make([]Conn, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			opt := m.template
			opt.ID = fmt.Sprintf("%d-%s", i, strings.Split(uuid.New().String(), "-")[0])
			if m.logDir != "" {
				opt.Log = filepath.Join(m.logDir, fmt.Sprintf("conn-%s.log", opt.ID))
			}
			var c Conn
			err := retry.PerformWithBreaker(gctx, openRetry, m.breaker, "open conn-"+opt.ID, func() error {
				var err error
				c, err = New(gctx, &opt)
				return err
			})
			if err != nil {
				return errors.Annotatef(err, "provision connection %d", i)
			}
			conns[i] = c
			m.provisioned.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range conns {
			if c != nil {
				if cerr := c.Close(); cerr != nil {
					log.Errorf("close connection after failed provisioning: %v", cerr)
				}
			}
		}
		return nil, errors.Trace(err)
	}

	m.mu.Lock()
	m.conns = append(m.conns, conns...)
	m.mu.Unlock()

	log.Infof("provisioned %d connections, real=%t, %d total", count, m.template.RealDB, m.provisioned.Load())
	return conns, nil
}

// CloseAll releases every connection this manager created. Safe to
// call more than once.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()

	var result *multierror.Error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, errors.Annotatef(err, "close conn-%s", c.ID()))
		}
	}
	return result.ErrorOrNil()
}

// Provisioned reports how many connections this manager has opened
// over its lifetime.
func (m *Manager) Provisioned() int64 {
	return m.provisioned.Load()
}
