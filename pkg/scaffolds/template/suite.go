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

// Package template holds the file builders `tirig init` renders for a
// new scenario suite.
package template

import (
	"strings"

	"github.com/pingcap/tirig/pkg/scaffolds/file"
)

// Suite renders testcase/<name>/<name>.go with one runnable example
// scenario wired into the suite registry.
type Suite struct {
	file.TemplateMixin
	SuiteName string
	// StateName is the exported CamelCase form of SuiteName, derived in
	// SetTemplateDefaults.
	StateName string
}

// GetIfExistsAction ...
func (s *Suite) GetIfExistsAction() file.IfExistsAction {
	return file.IfExistsActionError
}

// Validate ...
func (s *Suite) Validate() error {
	return s.TemplateMixin.Validate()
}

// SetTemplateDefaults ...
func (s *Suite) SetTemplateDefaults() error {
	s.StateName = exportName(s.SuiteName)
	s.TemplateBody = suiteTemplate
	return nil
}

// exportName turns a snake_case suite name into a CamelCase identifier,
// "stale_read" to "StaleRead".
func exportName(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}

const suiteTemplate = `// Copyright 2021 PingCAP, Inc.
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

// Package {{ .SuiteName }} is a freshly scaffolded scenario suite.
// Replace the example scenario with real ones.
package {{ .SuiteName }}

import (
	"github.com/ngaut/log"

	"github.com/pingcap/tirig/pkg/config"
	"github.com/pingcap/tirig/pkg/rig"
)

func init() {
	rig.RegisterSuite("{{ .SuiteName }}", NewSuite)
}

// NewSuite lists the {{ .SuiteName }} scenarios in run order.
func NewSuite(cfg *config.Config) []rig.Scenario {
	return []rig.Scenario{
		{Name: "example", State: rig.State("Testing{{ .StateName }}Example"), Handler: &ExampleHandler{}},
	}
}

// ExampleHandler pings the primary connection. Swap its Execute for the
// scenario body.
type ExampleHandler struct {
	rig.BaseHandler
}

// Execute ...
func (h *ExampleHandler) Execute(ctx *rig.Context) (rig.State, error) {
	c, err := ctx.Primary()
	if err != nil {
		return rig.Fail(err)
	}
	if _, err := c.ExecuteQuery("SELECT 1"); err != nil {
		return rig.Fail(err)
	}
	log.Infof("✓ {{ .SuiteName }} example scenario")
	return rig.StateCompleted, nil
}
`
