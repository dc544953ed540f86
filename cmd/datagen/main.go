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

package main

import (
	"flag"
	"fmt"

	"github.com/ngaut/log"

	"github.com/pingcap/tirig/pkg/datagen"
)

var (
	rows      = flag.Int("rows", 100000, "number of rows to generate")
	format    = flag.String("format", "csv", "output format, csv or tsv")
	output    = flag.String("output", "", "output filename, defaults to test_data_<rows>.<format>")
	simple    = flag.Bool("simple", false, "write id,name,age rows without a header")
	withNulls = flag.Bool("with-nulls", false, "blank fields on some simple rows")
	seed      = flag.Int64("seed", 0, "random seed, 0 derives one from the clock")
)

func main() {
	flag.Parse()

	f := datagen.Format(*format)
	if !f.Valid() {
		log.Fatalf("unsupported format %q, want csv or tsv", *format)
	}
	out := *output
	if out == "" {
		out = fmt.Sprintf("test_data_%d.%s", *rows, f)
	}

	stats, err := datagen.New(*seed).WriteFile(out, datagen.WriteOptions{
		Rows:      *rows,
		Format:    f,
		Simple:    *simple,
		WithNulls: *withNulls,
	})
	if err != nil {
		log.Fatalf("generate %s: %v", out, err)
	}
	log.Infof("wrote %d rows to %s, %d bytes in %s (%.0f rows/sec)",
		stats.Rows, out, stats.Bytes, stats.Elapsed,
		float64(stats.Rows)/stats.Elapsed.Seconds())
}
