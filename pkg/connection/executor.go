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
	"sync"

	"github.com/ngaut/log"
	"go.uber.org/atomic"
)

// OpKind enumerates what an operation descriptor asks of its
// connection.
type OpKind string

// Operation kinds.
const (
	OpQuery            OpKind = "query"
	OpStartTransaction OpKind = "start_transaction"
	OpCommit           OpKind = "commit"
	OpRollback         OpKind = "rollback"
)

// Status reports how one operation ended.
type Status string

// Operation statuses.
const (
	StatusSuccess            Status = "success"
	StatusTransactionStarted Status = "transaction_started"
	StatusCommitted          Status = "committed"
	StatusRolledBack         Status = "rolled_back"
	StatusError              Status = "error"
)

// Operation names a connection by its index in the scenario's
// connection list and the call to make on it.
type Operation struct {
	Conn  int
	Kind  OpKind
	Query string
}

// OperationResult is the outcome of one operation. Err carries the
// message when Status is StatusError.
type OperationResult struct {
	Conn   int
	Rows   []Row
	Status Status
	Err    string
}

// ExecuteConcurrentOperations fans the descriptor list out over the
// connection set. Operations naming the same connection run serially
// in list order on one worker; operations on different connections
// overlap arbitrarily. The returned slice lines up with ops by index,
// and a failed operation reports StatusError in its slot without
// disturbing the others.
func ExecuteConcurrentOperations(conns []Conn, ops []Operation) []OperationResult {
	results := make([]OperationResult, len(ops))

	// Partition descriptor positions per connection. Out-of-range
	// indexes are answered in place and never reach a worker.
	queues := make(map[int][]int)
	for pos, op := range ops {
		if op.Conn < 0 || op.Conn >= len(conns) {
			results[pos] = OperationResult{
				Conn:   op.Conn,
				Status: StatusError,
				Err:    fmt.Sprintf("connection index %d out of range, have %d connections", op.Conn, len(conns)),
			}
			continue
		}
		queues[op.Conn] = append(queues[op.Conn], pos)
	}

	var (
		wg       sync.WaitGroup
		executed atomic.Int64
	)
	for connIdx, positions := range queues {
		wg.Add(1)
		go func(connIdx int, positions []int) {
			defer wg.Done()
			for _, pos := range positions {
				results[pos] = runOperation(conns[connIdx], ops[pos])
				executed.Inc()
			}
		}(connIdx, positions)
	}
	wg.Wait()

	log.Infof("executed %d operations across %d connections", executed.Load(), len(queues))
	return results
}

func runOperation(c Conn, op Operation) OperationResult {
	result := OperationResult{Conn: op.Conn}
	switch op.Kind {
	case OpQuery:
		rows, err := c.ExecuteQuery(op.Query)
		if err != nil {
			result.Status = StatusError
			result.Err = err.Error()
			return result
		}
		result.Rows = rows
		result.Status = StatusSuccess
	case OpStartTransaction:
		if err := c.StartTransaction(); err != nil {
			result.Status = StatusError
			result.Err = err.Error()
			return result
		}
		result.Status = StatusTransactionStarted
	case OpCommit:
		if err := c.Commit(); err != nil {
			result.Status = StatusError
			result.Err = err.Error()
			return result
		}
		result.Status = StatusCommitted
	case OpRollback:
		if err := c.Rollback(); err != nil {
			result.Status = StatusError
			result.Err = err.Error()
			return result
		}
		result.Status = StatusRolledBack
	default:
		result.Status = StatusError
		result.Err = fmt.Sprintf("unknown operation kind %q", op.Kind)
	}
	return result
}
