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
	"github.com/pingcap/tirig/pkg/scaffolds/file"
)

// SuiteTest renders testcase/<name>/<name>_test.go with a registration
// check so the new suite starts out covered.
type SuiteTest struct {
	file.TemplateMixin
	SuiteName string
}

// GetIfExistsAction ...
func (s *SuiteTest) GetIfExistsAction() file.IfExistsAction {
	return file.IfExistsActionError
}

// Validate ...
func (s *SuiteTest) Validate() error {
	return s.TemplateMixin.Validate()
}

// SetTemplateDefaults ...
func (s *SuiteTest) SetTemplateDefaults() error {
	s.TemplateBody = suiteTestTemplate
	return nil
}

const suiteTestTemplate = `// Copyright 2021 PingCAP, Inc.
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

package {{ .SuiteName }}

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pingcap/tirig/pkg/config"
	"github.com/pingcap/tirig/pkg/rig"
)

func TestSuiteRegistered(t *testing.T) {
	creator := rig.GetSuite("{{ .SuiteName }}")
	require.NotNil(t, creator)

	scenarios := creator(config.Init())
	require.NotEmpty(t, scenarios)

	seen := make(map[rig.State]bool)
	for _, s := range scenarios {
		require.NotEmpty(t, s.Name)
		require.NotNil(t, s.Handler)
		require.False(t, seen[s.State], "duplicate state %s", s.State)
		seen[s.State] = true
	}
}
`
