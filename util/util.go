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

package util

import (
	"database/sql"
	"fmt"
	"time"
)

// OpenDB opens a mysql DSN with the given idle pool size. The caller
// owns the handle; no ping is issued here.
func OpenDB(dsn string, maxIdleConns int) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(maxIdleConns)
	return db, nil
}

// CurrentTimeStrAsLog return time format as "[2006/01/02 15:06:02.886 +08:00]"
func CurrentTimeStrAsLog() string {
	return fmt.Sprintf("[%s]", FormatTimeStrAsLog(time.Now()))
}

// FormatTimeStrAsLog format given time as as "[2006/01/02 15:06:02.886 +08:00]"
func FormatTimeStrAsLog(t time.Time) string {
	return t.Format("2006/01/02 15:04:05.000 -07:00")
}
