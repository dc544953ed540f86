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

package template

import (
	"fmt"

	"github.com/pingcap/tirig/pkg/scaffolds/file"
)

const (
	suiteImportsMarker  = "// +tirig:scaffold:suite_imports"
	suiteImportTemplate = "\t_ \"github.com/pingcap/tirig/testcase/%s\"\n"
)

// SuiteImportUpdater splices the new suite's blank import into the
// runner so its init registration runs.
type SuiteImportUpdater struct {
	file.InserterMixin
	SuiteName string
}

// GetIfExistsAction ...
func (m *SuiteImportUpdater) GetIfExistsAction() file.IfExistsAction {
	return file.IfExistsActionOverwrite
}

// GetCodeFragments ...
func (m *SuiteImportUpdater) GetCodeFragments() map[file.Marker]file.CodeFragment {
	return map[file.Marker]file.CodeFragment{
		suiteImportsMarker: {fmt.Sprintf(suiteImportTemplate, m.SuiteName)},
	}
}
