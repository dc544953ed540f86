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
	"os"

	"github.com/spf13/cobra"

	// register scenario suites
	_ "github.com/pingcap/tirig/testcase/ddl"
	_ "github.com/pingcap/tirig/testcase/importer"
	_ "github.com/pingcap/tirig/testcase/txn"
	// +tirig:scaffold:suite_imports
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "tirig",
		Short: "TiRig scenario runner",
	}
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newInitCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
