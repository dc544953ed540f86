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
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/ngaut/log"
	"github.com/spf13/cobra"

	"github.com/pingcap/tirig/pkg/config"
	"github.com/pingcap/tirig/pkg/logger"
	"github.com/pingcap/tirig/pkg/rig"
)

var (
	configPath string
	hostFlag   string
	portFlag   int
	userFlag   string
	passFlag   string
	dbFlag     string
	rowsFlag   int
	timeFlag   time.Duration
	showSQL    bool
	realDB     bool
	logFile    string
	logLevel   string
	sqlLogDir  string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "run [suite ...]",
		Short:        "Run scenario suites against the configured server",
		Long:         "Run the named scenario suites, or every registered suite when none are named.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return errors.Trace(err)
			}
			logger.InitGlobalLogger(cfg.Logging.File)
			log.SetLevelByString(cfg.Logging.Level)

			names := args
			if len(names) == 0 {
				names = rig.Suites()
			}
			for _, name := range names {
				if rig.GetSuite(name) == nil {
					return errors.Errorf("unknown suite %q, registered: %s",
						name, strings.Join(rig.Suites(), ", "))
				}
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs,
				os.Interrupt,
				syscall.SIGHUP,
				syscall.SIGINT,
				syscall.SIGTERM,
				syscall.SIGQUIT)
			go func() {
				sig := <-sigs
				log.Warnf("got signal %v, stopping...", sig)
				cancel()
			}()

			var failures []string
			total := 0
			start := time.Now()
			for _, name := range names {
				scenarios := rig.GetSuite(name)(cfg)
				for _, s := range scenarios {
					if err := ctx.Err(); err != nil {
						return errors.Annotate(err, "run interrupted")
					}
					total++
					if msg, ok := runScenario(ctx, cfg, name, s, scenarios); !ok {
						failures = append(failures, msg)
					}
				}
			}

			log.Infof("ran %d scenarios in %s", total, time.Since(start))
			if len(failures) > 0 {
				for _, f := range failures {
					log.Errorf("✗ %s", f)
				}
				return errors.Errorf("%d of %d scenarios failed", len(failures), total)
			}
			log.Infof("✓ All %d scenarios passed", total)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "config file path, TOML or JSON")
	flags.StringVar(&hostFlag, "host", "localhost", "server host")
	flags.IntVar(&portFlag, "port", 4000, "server port")
	flags.StringVar(&userFlag, "user", "root", "database user")
	flags.StringVar(&passFlag, "password", "", "database password")
	flags.StringVar(&dbFlag, "database", "test", "database name")
	flags.IntVar(&rowsFlag, "test-rows", 10, "rows per scenario fixture")
	flags.DurationVar(&timeFlag, "timeout", time.Minute, "per-scenario timeout")
	flags.BoolVar(&showSQL, "show-sql", false, "echo every statement with its duration")
	flags.BoolVar(&realDB, "real-db", false, "connect to a live server instead of the canned responder")
	flags.StringVar(&logFile, "log-file", "", "log file, stderr when empty")
	flags.StringVar(&logLevel, "log-level", "info", "log level")
	flags.StringVar(&sqlLogDir, "sql-log-dir", "", "directory for per-connection statement logs")
	return cmd
}

// loadConfig layers the sources: defaults, then the config file, then
// the environment, then flags the user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Init()
	if configPath != "" {
		if err := cfg.Load(configPath); err != nil {
			return nil, errors.Annotatef(err, "load config %s", configPath)
		}
	}
	if err := cfg.FromEnv(); err != nil {
		return nil, errors.Trace(err)
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Database.Host = hostFlag
	}
	if flags.Changed("port") {
		cfg.Database.Port = portFlag
	}
	if flags.Changed("user") {
		cfg.Database.User = userFlag
	}
	if flags.Changed("password") {
		cfg.Database.Password = passFlag
	}
	if flags.Changed("database") {
		cfg.Database.Name = dbFlag
	}
	if flags.Changed("test-rows") {
		cfg.Test.Rows = rowsFlag
	}
	if flags.Changed("timeout") {
		cfg.Test.Timeout.Duration = timeFlag
	}
	if flags.Changed("show-sql") {
		cfg.Logging.ShowSQL = showSQL
	}
	if flags.Changed("real-db") {
		cfg.Database.RealDB = realDB
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = logFile
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("sql-log-dir") {
		cfg.Logging.SQLLogDir = sqlLogDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// runScenario gives each scenario a fresh context and its own timeout.
// Suite siblings ride along so a scenario may chain into another by
// returning its state token.
func runScenario(parent context.Context, cfg *config.Config, suite string, s rig.Scenario, siblings []rig.Scenario) (string, bool) {
	runCtx, cancel := context.WithTimeout(parent, cfg.Test.Timeout.Duration)
	defer cancel()

	ctx := rig.NewContext(runCtx, cfg)
	defer ctx.Close()

	log.Infof("=== %s/%s ===", suite, s.Name)
	final, err := rig.NewScenarioMachine(s, siblings...).Run(ctx)
	switch {
	case err != nil:
		log.Errorf("✗ %s/%s: %v", suite, s.Name, err)
		return errors.Annotatef(err, "%s/%s", suite, s.Name).Error(), false
	case final.IsError():
		log.Errorf("✗ %s/%s: %s", suite, s.Name, final.ErrorMessage())
		return suite + "/" + s.Name + ": " + final.ErrorMessage(), false
	}
	log.Infof("✓ %s/%s passed", suite, s.Name)
	return "", true
}
