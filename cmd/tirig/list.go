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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pingcap/tirig/pkg/config"
	"github.com/pingcap/tirig/pkg/rig"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered suites and their scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Init()
			for _, name := range rig.Suites() {
				fmt.Println(name)
				for _, s := range rig.GetSuite(name)(cfg) {
					fmt.Printf("  %-24s %s\n", s.Name, s.State)
				}
			}
		},
	}
}
