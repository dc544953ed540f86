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

package file

import "github.com/juju/errors"

// Builder is the minimal contract every scaffolded output satisfies.
type Builder interface {
	// GetPath returns the destination path.
	GetPath() string
	Validate() error
	GetIfExistsAction() IfExistsAction
}

// Template renders a whole new file from a text/template body. The
// builder itself is the template's data.
type Template interface {
	Builder
	GetBody() string
	// SetTemplateDefaults fills the body and any derived fields before
	// rendering.
	SetTemplateDefaults() error
}

// Inserter modifies an existing file by adding code fragments above
// marker lines.
type Inserter interface {
	Builder
	GetCodeFragments() map[Marker]CodeFragment
}

// TemplateMixin carries the common state of Template builders. Embed it
// and implement GetIfExistsAction plus SetTemplateDefaults.
type TemplateMixin struct {
	// Path is the destination of the rendered file.
	Path string
	// TemplateBody is the text/template source to execute.
	TemplateBody string
}

// GetPath implements Builder.
func (t *TemplateMixin) GetPath() string {
	return t.Path
}

// GetBody implements Template.
func (t *TemplateMixin) GetBody() string {
	return t.TemplateBody
}

// Validate implements Builder.
func (t *TemplateMixin) Validate() error {
	if t.Path == "" {
		return errors.New("template path cannot be empty")
	}
	return nil
}

// InserterMixin carries the common state of Inserter builders.
type InserterMixin struct {
	// Path is the existing file to update.
	Path string
}

// GetPath implements Builder.
func (m *InserterMixin) GetPath() string {
	return m.Path
}

// Validate implements Builder.
func (m *InserterMixin) Validate() error {
	if m.Path == "" {
		return errors.New("inserter path cannot be empty")
	}
	return nil
}
