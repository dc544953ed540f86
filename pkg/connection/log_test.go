package connection

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementLogAtomicity(t *testing.T) {
	dir, err := ioutil.TempDir("", "tirig-conn-log")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	logPath := filepath.Join(dir, "conn-0.log")
	c := newMockConn(&Option{ID: "0-trace", Log: logPath})

	const workers, perWorker = 4, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := c.ExecuteQuery("SHOW TABLES")
				assert.Nil(t, err)
			}
		}()
	}
	wg.Wait()

	data, err := ioutil.ReadFile(logPath)
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, workers*perWorker)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, "Success: true"), line)
		assert.True(t, strings.HasSuffix(line, "SQL: SHOW TABLES"), line)
		assert.Contains(t, line, "[conn-0-trace]")
	}
}
