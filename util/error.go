package util

import (
	"github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
)

// MySQL server error codes the scenario suites assert on.
const (
	ErrCodeTableExists    uint16 = 1050
	ErrCodeBadTable       uint16 = 1051
	ErrCodeDupFieldName   uint16 = 1060
	ErrCodeDupKeyName     uint16 = 1061
	ErrCodeDupEntry       uint16 = 1062
	ErrCodeCantDropField  uint16 = 1091
	ErrCodeNoSuchTable    uint16 = 1146
	ErrCodeLockWaitTimout uint16 = 1205
	ErrCodeDeadlock       uint16 = 1213
	ErrCodeNoSuchProc     uint16 = 1305
)

// IsErrDupEntry returns true if error code = 1062
func IsErrDupEntry(err error) bool {
	return IsMySQLError(err, ErrCodeDupEntry)
}

// IsErrTableExists returns true if error code = 1050
func IsErrTableExists(err error) bool {
	return IsMySQLError(err, ErrCodeTableExists)
}

// IsErrBadTable returns true if error code = 1051, dropping a table
// that does not exist.
func IsErrBadTable(err error) bool {
	return IsMySQLError(err, ErrCodeBadTable)
}

// IsErrTableNotExists checks whether err is TableNotExists error
func IsErrTableNotExists(err error) bool {
	return IsMySQLError(err, ErrCodeNoSuchTable)
}

// IsErrDupFieldName returns true if error code = 1060
func IsErrDupFieldName(err error) bool {
	return IsMySQLError(err, ErrCodeDupFieldName)
}

// IsErrDupKeyName returns true if error code = 1061
func IsErrDupKeyName(err error) bool {
	return IsMySQLError(err, ErrCodeDupKeyName)
}

// IsErrCantDropField returns true if error code = 1091, dropping a
// column or key that does not exist.
func IsErrCantDropField(err error) bool {
	return IsMySQLError(err, ErrCodeCantDropField)
}

// IsErrLockWaitTimeout returns true if error code = 1205
func IsErrLockWaitTimeout(err error) bool {
	return IsMySQLError(err, ErrCodeLockWaitTimout)
}

// IsErrSavepointNotExists returns true if error code = 1305. The
// server reuses the missing-procedure code for rollbacks to a released
// or never-created savepoint.
func IsErrSavepointNotExists(err error) bool {
	return IsMySQLError(err, ErrCodeNoSuchProc)
}

// IsErrDeadlock returns true if error code = 1213, the transaction was
// chosen as the deadlock victim and rolled back.
func IsErrDeadlock(err error) bool {
	return IsMySQLError(err, ErrCodeDeadlock)
}

// IsMySQLError checks whether err carries the given MySQL server error
// number, unwrapping annotations first.
func IsMySQLError(err error, code uint16) bool {
	err = originError(err)
	e, ok := err.(*mysql.MySQLError)
	return ok && e.Number == code
}

// MySQLErrorCode extracts the server error number from err, or 0 when
// err is not a MySQL server error.
func MySQLErrorCode(err error) uint16 {
	err = originError(err)
	if e, ok := err.(*mysql.MySQLError); ok {
		return e.Number
	}
	return 0
}

// originError return original error
func originError(err error) error {
	for {
		e := errors.Cause(err)
		if e == err {
			break
		}
		err = e
	}
	return err
}
