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

package scaffolds

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pingcap/tirig/pkg/scaffolds/file"
	"github.com/pingcap/tirig/pkg/scaffolds/template"
)

func TestExecuteRendersSuiteSkeleton(t *testing.T) {
	dir, err := ioutil.TempDir("", "scaffold")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "stale_read", "stale_read.go")
	err = NewScaffold().Execute(&template.Suite{
		TemplateMixin: file.TemplateMixin{Path: path},
		SuiteName:     "stale_read",
	})
	require.NoError(t, err)

	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	src := string(b)
	require.Contains(t, src, "package stale_read")
	require.Contains(t, src, `rig.RegisterSuite("stale_read", NewSuite)`)
	require.Contains(t, src, `rig.State("TestingStaleReadExample")`)

	// a second run must refuse to clobber the skeleton
	err = NewScaffold().Execute(&template.Suite{
		TemplateMixin: file.TemplateMixin{Path: path},
		SuiteName:     "stale_read",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}

func TestExecuteInsertsImportAboveMarker(t *testing.T) {
	dir, err := ioutil.TempDir("", "scaffold")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	mainPath := filepath.Join(dir, "main.go")
	src := strings.Join([]string{
		"package main",
		"",
		"import (",
		"\t_ \"github.com/pingcap/tirig/testcase/ddl\"",
		"\t// +tirig:scaffold:suite_imports",
		")",
		"",
	}, "\n")
	require.NoError(t, ioutil.WriteFile(mainPath, []byte(src), 0644))

	err = NewScaffold().Execute(&template.SuiteImportUpdater{
		InserterMixin: file.InserterMixin{Path: mainPath},
		SuiteName:     "stale_read",
	})
	require.NoError(t, err)

	b, err := ioutil.ReadFile(mainPath)
	require.NoError(t, err)
	out := string(b)
	importLine := `_ "github.com/pingcap/tirig/testcase/stale_read"`
	require.Contains(t, out, importLine)
	require.Less(t, strings.Index(out, importLine), strings.Index(out, "+tirig:scaffold:suite_imports"))
}

func TestExecuteFailsOnMissingInserterTarget(t *testing.T) {
	err := NewScaffold().Execute(&template.SuiteImportUpdater{
		InserterMixin: file.InserterMixin{Path: filepath.Join("does", "not", "exist.go")},
		SuiteName:     "stale_read",
	})
	require.Error(t, err)
}
