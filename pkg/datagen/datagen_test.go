package datagen

import (
	"encoding/csv"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterministicUnderSeed(t *testing.T) {
	a, b := New(42), New(42)
	for i := 1; i <= 20; i++ {
		assert.Equal(t, a.EmployeeRecord(i), b.EmployeeRecord(i))
	}
}

func TestEmployeeRecordShape(t *testing.T) {
	g := New(1)
	rec := g.EmployeeRecord(7)
	require.Len(t, rec, len(EmployeeHeader))
	assert.Equal(t, "7", rec[0])

	salary, err := strconv.Atoi(rec[7])
	require.Nil(t, err)
	assert.True(t, salary >= 30000 && salary <= 150000)

	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, rec[9])
	assert.Contains(t, []string{"true", "false"}, rec[10])
	assert.Contains(t, rec[2], "@")
}

func TestSimpleRecordShape(t *testing.T) {
	g := New(1)
	rec := g.SimpleRecord(3)
	require.Len(t, rec, 3)
	age, err := strconv.Atoi(rec[2])
	require.Nil(t, err)
	assert.True(t, age >= 18 && age <= 65)
}

func TestSimpleRecordWithNullsBlanksFields(t *testing.T) {
	g := New(11)
	blanks := 0
	for i := 1; i <= 100; i++ {
		rec := g.SimpleRecordWithNulls(i)
		if rec[1] == "" || rec[2] == "" {
			blanks++
		}
	}
	assert.True(t, blanks > 0, "expected some rows with blank fields")
}

func TestWriteFileCSV(t *testing.T) {
	dir, err := ioutil.TempDir("", "datagen")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "employees.csv")
	stats, err := New(5).WriteFile(path, WriteOptions{Rows: 50, Format: FormatCSV})
	require.Nil(t, err)
	assert.Equal(t, 50, stats.Rows)
	assert.True(t, stats.Bytes > 0)

	f, err := os.Open(path)
	require.Nil(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.Nil(t, err)
	require.Len(t, records, 51)
	assert.Equal(t, EmployeeHeader, records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "50", records[50][0])
}

func TestWriteFileSimpleTSV(t *testing.T) {
	dir, err := ioutil.TempDir("", "datagen")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "simple.tsv")
	_, err = New(5).WriteFile(path, WriteOptions{Rows: 3, Format: FormatTSV, Simple: true})
	require.Nil(t, err)

	raw, err := ioutil.ReadFile(path)
	require.Nil(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Len(t, strings.Split(line, "\t"), 3)
	}
}

func TestWriteFileRejectsBadOptions(t *testing.T) {
	g := New(1)
	_, err := g.WriteFile("ignored", WriteOptions{Rows: 0, Format: FormatCSV})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "row count must be positive")

	_, err = g.WriteFile("ignored", WriteOptions{Rows: 1, Format: Format("xml")})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}
