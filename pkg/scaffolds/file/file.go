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

// Package file holds the building blocks the suite scaffolder renders
// and writes: templated files and code fragments inserted at markers.
package file

// IfExistsAction decides what happens when the target path already
// exists on disk.
type IfExistsAction int

const (
	// IfExistsActionError refuses to touch an existing file.
	IfExistsActionError IfExistsAction = iota
	// IfExistsActionOverwrite replaces the existing content.
	IfExistsActionOverwrite
)

// Marker is a comment line inside an existing file that inserters hang
// new code above. Matched after trimming leading whitespace.
type Marker string

// CodeFragment is the lines one inserter contributes at a marker. Every
// entry carries its own trailing newline.
type CodeFragment []string

// File is one rendered output waiting to be written.
type File struct {
	// Path is the destination, relative to the working directory unless
	// absolute.
	Path string
	// Content is the rendered output.
	Content string

	IfExistsAction IfExistsAction
}
