package connection

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Row is one result row keyed by column name.
type Row map[string]interface{}

// Int reads a column as an integer, tolerating the types the driver
// actually hands back for numeric columns.
func (r Row) Int(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint64:
		return int64(v), true
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// String reads a column as a string.
func (r Row) String(col string) (string, bool) {
	switch v := r[col].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

// Has reports whether the column is present, NULLs included.
func (r Row) Has(col string) bool {
	_, ok := r[col]
	return ok
}

// ScalarInt reads a single-column result such as SELECT COUNT(*),
// whatever the server happened to name the column.
func ScalarInt(rows []Row) (int64, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	for col := range rows[0] {
		if v, ok := rows[0].Int(col); ok {
			return v, true
		}
	}
	return 0, false
}

// RowsMention reports whether any value in any row contains want.
func RowsMention(rows []Row, want string) bool {
	for _, r := range rows {
		for col := range r {
			if s, ok := r.String(col); ok && strings.Contains(s, want) {
				return true
			}
		}
	}
	return false
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(cols) == 0 {
		return nil, nil
	}

	var result []Row
	for rows.Next() {
		slots := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range slots {
			ptrs[i] = &slots[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Trace(err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			// text protocol hands most values back as []byte
			if b, ok := slots[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = slots[i]
			}
		}
		result = append(result, row)
	}
	return result, errors.Trace(rows.Err())
}
