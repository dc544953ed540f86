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
	"fmt"

	"github.com/juju/errors"
	"github.com/ngaut/log"
)

// NewScenarioMachine wires the connection bootstrap chain in front of
// the scenario handler, which runs at the scenario's own state.
// Sibling scenarios are registered at their states too, so a handler
// may chain into one by returning its token; the run still enters at
// the given scenario.
func NewScenarioMachine(scenario Scenario, siblings ...Scenario) *Machine {
	m := NewMachine()
	m.Register(StateInitial, initialHandler{})
	m.Register(StateParsingConfig, parsingConfigHandler{})
	m.Register(StateConnecting, connectingHandler{})
	m.Register(StateTestingConnection, testingConnectionHandler{})
	m.Register(StateVerifyingDatabase, verifyingDatabaseHandler{})
	m.Register(StateGettingVersion, versionHandler{next: scenario.State})
	m.Register(scenario.State, scenario.Handler)
	for _, s := range siblings {
		if s.State == scenario.State {
			continue
		}
		m.Register(s.State, s.Handler)
	}
	return m
}

type initialHandler struct {
	BaseHandler
}

func (initialHandler) Execute(ctx *Context) (State, error) {
	log.Info("starting scenario run...")
	return StateParsingConfig, nil
}

type parsingConfigHandler struct {
	BaseHandler
}

func (parsingConfigHandler) Execute(ctx *Context) (State, error) {
	if err := ctx.Config.Validate(); err != nil {
		return ErrorState(err.Error()), errors.Trace(err)
	}
	db := ctx.Config.Database
	ctx.Host, ctx.Port = db.Host, db.Port
	ctx.User, ctx.Password = db.User, db.Password
	ctx.Database = db.Name
	log.Infof("✓ Configuration parsed: %s:%d", ctx.Host, ctx.Port)
	return StateConnecting, nil
}

type connectingHandler struct {
	BaseHandler
}

func (connectingHandler) Execute(ctx *Context) (State, error) {
	if err := ctx.connectPrimary(); err != nil {
		return ErrorState(err.Error()), errors.Annotatef(err, "connect %s:%d", ctx.Host, ctx.Port)
	}
	log.Info("✓ Connection established successfully")
	return StateTestingConnection, nil
}

type testingConnectionHandler struct {
	BaseHandler
}

func (testingConnectionHandler) Execute(ctx *Context) (State, error) {
	if ctx.Connection == nil {
		return ErrorState("no connection available for testing"), errors.New("no connection available for testing")
	}
	if _, err := ctx.Connection.ExecuteQuery("SELECT 1"); err != nil {
		return ErrorState(err.Error()), errors.Annotate(err, "connection test")
	}
	log.Info("✓ Connection test passed")
	return StateVerifyingDatabase, nil
}

type verifyingDatabaseHandler struct {
	BaseHandler
}

func (verifyingDatabaseHandler) Execute(ctx *Context) (State, error) {
	if ctx.Database == "" {
		log.Info("✓ No specific database specified, proceeding...")
		return StateGettingVersion, nil
	}
	if _, err := ctx.Connection.ExecuteQuery(fmt.Sprintf("USE `%s`", ctx.Database)); err != nil {
		return ErrorState(err.Error()), errors.Annotatef(err, "verify database %s", ctx.Database)
	}
	log.Infof("✓ Database '%s' verified", ctx.Database)
	return StateGettingVersion, nil
}

// versionHandler records the server version and hands control to the
// configured next state.
type versionHandler struct {
	BaseHandler
	next State
}

func (h versionHandler) Execute(ctx *Context) (State, error) {
	rows, err := ctx.Connection.ExecuteQuery("SELECT VERSION()")
	if err != nil {
		return ErrorState(err.Error()), errors.Annotate(err, "get server version")
	}
	if len(rows) == 0 {
		// the canned responder has no version; keep going
		log.Warn("server version unavailable")
		return h.next, nil
	}
	for _, v := range rows[0] {
		ctx.ServerVersion = fmt.Sprintf("%v", v)
		break
	}
	log.Infof("✓ Server version: %s", ctx.ServerVersion)
	return h.next, nil
}
