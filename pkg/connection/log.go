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

package connection

import (
	"fmt"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/ngaut/log"

	"github.com/pingcap/tirig/util"
)

// sqlLogger writes one line per executed statement. Callers hold the
// connection mutex, so a line is never interleaved with another from
// the same connection.
type sqlLogger struct {
	name    string
	logPath string
	showSQL bool
	mute    bool
}

func newSQLLogger(name, logPath string, showSQL, mute bool) *sqlLogger {
	return &sqlLogger{
		name:    name,
		logPath: logPath,
		showSQL: showSQL,
		mute:    mute,
	}
}

// logSQL records one statement with its outcome and duration.
func (l *sqlLogger) logSQL(sql string, duration time.Duration, err error) {
	line := fmt.Sprintf("Success: %t, Duration: %s, SQL: %s", err == nil, duration, sql)
	if l.showSQL {
		log.Infof("🔍 SQL [conn-%s] %s", l.name, line)
	}
	if werr := l.writeLine(line); werr != nil {
		log.Fatalf("fail to log to file %v", werr)
	}
}

// logLine records a non-statement event such as a mock transaction
// control call.
func (l *sqlLogger) logLine(format string, args ...interface{}) {
	if err := l.writeLine(fmt.Sprintf(format, args...)); err != nil {
		log.Fatalf("fail to log to file %v", err)
	}
}

func (l *sqlLogger) writeLine(line string) error {
	line = fmt.Sprintf("%s [conn-%s] %s", util.CurrentTimeStrAsLog(), l.name, line)
	if l.mute {
		return nil
	}
	if l.logPath == "" {
		if !l.showSQL {
			log.Debug(line)
		}
		return nil
	}
	f, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Error(err)
		}
	}()

	if _, err = f.WriteString(fmt.Sprintf("%s\n", line)); err != nil {
		return errors.Trace(err)
	}

	return nil
}
