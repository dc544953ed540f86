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

package datagen

import (
	"encoding/csv"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/ngaut/log"
)

// Format selects the field separator of a fixture file.
type Format string

// Supported fixture formats.
const (
	FormatCSV Format = "csv"
	FormatTSV Format = "tsv"
)

// Valid reports whether the format is one this package writes.
func (f Format) Valid() bool {
	return f == FormatCSV || f == FormatTSV
}

// Comma is the field separator encoding/csv expects.
func (f Format) Comma() rune {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

// WriteOptions shapes one fixture file.
type WriteOptions struct {
	Rows   int
	Format Format
	// Simple writes three columns with no header instead of the wide
	// employee layout.
	Simple bool
	// WithNulls blanks fields on some simple rows.
	WithNulls bool
}

// Stats summarizes a finished fixture write.
type Stats struct {
	Rows    int
	Bytes   int64
	Elapsed time.Duration
}

// WriteFile generates opt.Rows records into path, logging progress
// every ten thousand rows.
func (g *Generator) WriteFile(path string, opt WriteOptions) (Stats, error) {
	if opt.Rows <= 0 {
		return Stats{}, errors.Errorf("row count must be positive, got %d", opt.Rows)
	}
	if !opt.Format.Valid() {
		return Stats{}, errors.Errorf("unsupported format %q", opt.Format)
	}

	f, err := os.Create(path)
	if err != nil {
		return Stats{}, errors.Annotatef(err, "create fixture %s", path)
	}
	defer f.Close()

	start := time.Now()
	w := csv.NewWriter(f)
	w.Comma = opt.Format.Comma()

	if !opt.Simple {
		if err := w.Write(EmployeeHeader); err != nil {
			return Stats{}, errors.Trace(err)
		}
	}
	for i := 1; i <= opt.Rows; i++ {
		var rec []string
		switch {
		case opt.Simple && opt.WithNulls:
			rec = g.SimpleRecordWithNulls(i)
		case opt.Simple:
			rec = g.SimpleRecord(i)
		default:
			rec = g.EmployeeRecord(i)
		}
		if err := w.Write(rec); err != nil {
			return Stats{}, errors.Annotatef(err, "write row %d", i)
		}
		if i%10000 == 0 {
			elapsed := time.Since(start)
			log.Infof("generated %d rows (%.0f rows/sec)", i, float64(i)/elapsed.Seconds())
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Stats{}, errors.Trace(err)
	}
	if err := f.Sync(); err != nil {
		return Stats{}, errors.Trace(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Stats{}, errors.Trace(err)
	}
	return Stats{
		Rows:    opt.Rows,
		Bytes:   info.Size(),
		Elapsed: time.Since(start),
	}, nil
}
