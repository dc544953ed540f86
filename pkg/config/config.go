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

package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
)

// Database holds connection settings for the server under test.
type Database struct {
	Host     string   `toml:"host" json:"host"`
	Port     int      `toml:"port" json:"port"`
	User     string   `toml:"user" json:"user"`
	Password string   `toml:"password" json:"password"`
	Name     string   `toml:"name" json:"name"`
	PoolSize int      `toml:"pool-size" json:"pool-size"`
	Timeout  Duration `toml:"timeout" json:"timeout"`
	// RealDB selects live connections; when false every scenario runs
	// against the canned responder.
	RealDB bool `toml:"real-db" json:"real-db"`
}

// Logging holds log output settings.
type Logging struct {
	Level string `toml:"level" json:"level"`
	File  string `toml:"file" json:"file"`
	// ShowSQL echoes every statement with its duration.
	ShowSQL bool `toml:"show-sql" json:"show-sql"`
	// SQLLogDir stores per-connection statement logs; empty means
	// statements go to the global logger only.
	SQLLogDir string `toml:"sql-log-dir" json:"sql-log-dir"`
}

// Test holds scenario knobs.
type Test struct {
	Rows    int      `toml:"rows" json:"rows"`
	Timeout Duration `toml:"timeout" json:"timeout"`
}

// Config struct
type Config struct {
	Database Database `toml:"database" json:"database"`
	Logging  Logging  `toml:"logging" json:"logging"`
	Test     Test     `toml:"test" json:"test"`
}

var initConfig = Config{
	Database: Database{
		Host:     "localhost",
		Port:     4000,
		User:     "root",
		Password: "",
		Name:     "test",
		PoolSize: 5,
		Timeout:  Duration{30 * time.Second},
	},
	Logging: Logging{
		Level: "info",
	},
	Test: Test{
		Rows:    10,
		Timeout: Duration{60 * time.Second},
	},
}

// Init get default Config
func Init() *Config {
	return initConfig.Copy()
}

// Load config from file, TOML or JSON depending on the extension.
func (c *Config) Load(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(json.Unmarshal(data, c))
	default:
		_, err := toml.DecodeFile(path, c)
		return errors.Trace(err)
	}
}

// FromEnv overrides fields from the process environment. It is called
// once at startup; nothing reads the environment after this.
func (c *Config) FromEnv() error {
	if host := os.Getenv("TIDB_HOST"); host != "" {
		// accept "host" and "host:port"
		if i := strings.LastIndex(host, ":"); i > 0 {
			port, err := strconv.Atoi(host[i+1:])
			if err != nil {
				return errors.Annotatef(err, "bad TIDB_HOST %s", host)
			}
			c.Database.Host, c.Database.Port = host[:i], port
		} else {
			c.Database.Host = host
		}
	}
	if port := os.Getenv("TIDB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return errors.Annotatef(err, "bad TIDB_PORT %s", port)
		}
		c.Database.Port = p
	}
	if user := os.Getenv("TIDB_USER"); user != "" {
		c.Database.User = user
	}
	if password, ok := os.LookupEnv("TIDB_PASSWORD"); ok {
		c.Database.Password = password
	}
	if name := os.Getenv("TIDB_DATABASE"); name != "" {
		c.Database.Name = name
	}
	if rows := os.Getenv("TIDB_TEST_ROWS"); rows != "" {
		n, err := strconv.Atoi(rows)
		if err != nil {
			return errors.Annotatef(err, "bad TIDB_TEST_ROWS %s", rows)
		}
		c.Test.Rows = n
	}
	if level := os.Getenv("TIDB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if showSQL := os.Getenv("SHOW_SQL"); showSQL != "" {
		c.Logging.ShowSQL = parseBool(showSQL)
	}
	if realDB := os.Getenv("REAL_DB"); realDB != "" {
		c.Database.RealDB = parseBool(realDB)
	}
	return nil
}

// Validate checks the config makes sense before anything connects.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database host must not be empty")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return errors.Errorf("database port %d out of range", c.Database.Port)
	}
	if c.Database.User == "" {
		return errors.New("database user must not be empty")
	}
	if c.Database.PoolSize < 1 {
		return errors.Errorf("pool size %d must be at least 1", c.Database.PoolSize)
	}
	if c.Test.Rows < 1 {
		return errors.Errorf("test rows %d must be at least 1", c.Test.Rows)
	}
	return nil
}

// DSN builds the driver DSN for the configured database.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=%s",
		c.Database.User, c.Database.Password,
		c.Database.Host, c.Database.Port, c.Database.Name,
		c.Database.Timeout.Duration)
}

// Copy Config struct
func (c *Config) Copy() *Config {
	cp := *c
	return &cp
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}
