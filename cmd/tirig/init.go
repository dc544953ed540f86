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
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/pingcap/tirig/pkg/scaffolds"
	"github.com/pingcap/tirig/pkg/scaffolds/file"
	"github.com/pingcap/tirig/pkg/scaffolds/template"
)

var suiteNameFlag string

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Scaffold a new scenario suite",
		Example: "tirig init --suite-name stale_read",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			r, _ := regexp.Compile("^[a-z][a-z_]*$")
			if !r.MatchString(suiteNameFlag) {
				return fmt.Errorf("suite-name must be of the form [a-z][a-z_]*")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			scaffolder := scaffolds.NewScaffold()
			err := scaffolder.Execute(&template.Suite{
				TemplateMixin: file.TemplateMixin{Path: filepath.Join("testcase", suiteNameFlag, suiteNameFlag+".go")},
				SuiteName:     suiteNameFlag,
			}, &template.SuiteTest{
				TemplateMixin: file.TemplateMixin{Path: filepath.Join("testcase", suiteNameFlag, suiteNameFlag+"_test.go")},
				SuiteName:     suiteNameFlag,
			}, &template.SuiteImportUpdater{
				InserterMixin: file.InserterMixin{Path: filepath.Join("cmd", "tirig", "main.go")},
				SuiteName:     suiteNameFlag,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created suite `%[1]s`: testcase/%[1]s\n", suiteNameFlag)
			return nil
		},
	}
	cmd.Flags().StringVarP(&suiteNameFlag, "suite-name", "s", "", "new suite name, e.g. stale_read")
	cmd.MarkFlagRequired("suite-name")
	return cmd
}
