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

// Package scaffolds renders suite skeletons from templates and splices
// registration lines into existing files at marker comments.
package scaffolds

import (
	"bufio"
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/juju/errors"

	"github.com/pingcap/tirig/pkg/scaffolds/file"
)

// Scaffold renders file builders and persists them to disk.
type Scaffold interface {
	// Execute builds every file model, then writes them out in the
	// order the builders were given. Nothing is written if any builder
	// fails to render.
	Execute(files ...file.Builder) error
}

type scaffold struct{}

// NewScaffold creates a scaffold that writes relative to the working
// directory.
func NewScaffold() Scaffold {
	return &scaffold{}
}

func (s *scaffold) Execute(files ...file.Builder) error {
	models := make(map[string]*file.File, len(files))
	var order []string

	for _, f := range files {
		if err := f.Validate(); err != nil {
			return errors.Trace(err)
		}

		if t, ok := f.(file.Template); ok {
			if err := s.buildFileModel(t, models); err != nil {
				return errors.Trace(err)
			}
			order = append(order, t.GetPath())
		}
		if i, ok := f.(file.Inserter); ok {
			if err := s.updateFileModel(i, models); err != nil {
				return errors.Trace(err)
			}
			order = append(order, i.GetPath())
		}
	}

	for _, path := range order {
		if err := s.writeFile(models[path]); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (s *scaffold) buildFileModel(t file.Template, models map[string]*file.File) error {
	if err := t.SetTemplateDefaults(); err != nil {
		return errors.Trace(err)
	}
	if _, found := models[t.GetPath()]; found {
		return errors.Errorf("duplicate scaffold target: %s", t.GetPath())
	}
	m := &file.File{Path: t.GetPath(), IfExistsAction: t.GetIfExistsAction()}
	content, err := buildTemplate(t)
	if err != nil {
		return errors.Annotatef(err, "render %s", t.GetPath())
	}
	m.Content = content
	models[m.Path] = m
	return nil
}

func (s *scaffold) updateFileModel(i file.Inserter, models map[string]*file.File) error {
	m, err := s.loadModelFromFile(i)
	if err != nil {
		return errors.Trace(err)
	}
	m.Content, err = insertCodeFragments(m.Content, i.GetCodeFragments())
	if err != nil {
		return errors.Annotatef(err, "update %s", i.GetPath())
	}
	models[i.GetPath()] = m
	return nil
}

func (s *scaffold) writeFile(f *file.File) error {
	_, err := os.Stat(f.Path)
	switch {
	case err == nil:
		if f.IfExistsAction == file.IfExistsActionError {
			return errors.Errorf("file already exists: %s", f.Path)
		}
	case !os.IsNotExist(err):
		return errors.Trace(err)
	}

	fd, err := s.createFile(f.Path)
	if err != nil {
		return errors.Trace(err)
	}
	defer fd.Close()
	_, err = fd.WriteString(f.Content)
	return errors.Trace(err)
}

func (s *scaffold) createFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Trace(err)
		}
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
}

func (s *scaffold) loadModelFromFile(i file.Inserter) (*file.File, error) {
	b, err := ioutil.ReadFile(i.GetPath())
	if err != nil {
		return nil, errors.Annotatef(err, "inserter target %s", i.GetPath())
	}
	return &file.File{
		Path:           i.GetPath(),
		Content:        string(b),
		IfExistsAction: i.GetIfExistsAction(),
	}, nil
}

func buildTemplate(t file.Template) (string, error) {
	temp, err := template.New(fmt.Sprintf("%T", t)).Parse(t.GetBody())
	if err != nil {
		return "", errors.Trace(err)
	}
	out := &bytes.Buffer{}
	if err := temp.Execute(out, t); err != nil {
		return "", errors.Trace(err)
	}
	return out.String(), nil
}

// insertCodeFragments writes each marker's fragments immediately above
// the marker line, so repeated runs stack new entries in insertion
// order while the marker stays put.
func insertCodeFragments(content string, fragmentMap map[file.Marker]file.CodeFragment) (string, error) {
	out := new(bytes.Buffer)

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		for marker, fragments := range fragmentMap {
			if file.Marker(strings.TrimSpace(line)) == marker {
				for _, fragment := range fragments {
					out.WriteString(fragment)
				}
			}
		}
		out.WriteString(line + "\n")
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Trace(err)
	}
	return out.String(), nil
}
