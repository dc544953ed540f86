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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap/tirig/pkg/config"
)

func TestContextProvisionConnections(t *testing.T) {
	ctx := testContext(t)
	defer ctx.Close()

	conns, err := ctx.ProvisionConnections(3)
	require.Nil(t, err)
	assert.Len(t, conns, 3)
	assert.Len(t, ctx.Connections, 3)

	// a fresh batch replaces the working set
	_, err = ctx.ProvisionConnections(2)
	require.Nil(t, err)
	assert.Len(t, ctx.Connections, 2)
}

func TestContextGetConnectionsShortList(t *testing.T) {
	ctx := testContext(t)
	defer ctx.Close()

	_, err := ctx.ProvisionConnections(2)
	require.Nil(t, err)

	// asking for more than provisioned yields what exists
	assert.Len(t, ctx.GetConnections(5), 2)
	assert.Len(t, ctx.GetConnections(1), 1)
	assert.Len(t, ctx.GetConnections(0), 0)
}

func TestContextCloseIdempotent(t *testing.T) {
	ctx := testContext(t)
	_, err := ctx.ProvisionConnections(2)
	require.Nil(t, err)

	ctx.Close()
	assert.Nil(t, ctx.Connections)
	assert.Nil(t, ctx.Connection)
	ctx.Close()
}

func TestSuiteRegistry(t *testing.T) {
	creator := func(cfg *config.Config) []Scenario { return nil }

	RegisterSuite("registry-probe", creator)
	assert.NotNil(t, GetSuite("registry-probe"))
	assert.Contains(t, Suites(), "registry-probe")
	assert.Panics(t, func() {
		RegisterSuite("registry-probe", creator)
	})
}
