package connection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerProvision(t *testing.T) {
	m := NewManager(Option{Mute: true}, "")
	conns, err := m.Provision(context.Background(), 3)
	require.Nil(t, err)
	require.Len(t, conns, 3)

	seen := map[string]bool{}
	for _, c := range conns {
		assert.NotEmpty(t, c.ID())
		assert.False(t, seen[c.ID()], "duplicate connection id %s", c.ID())
		seen[c.ID()] = true
	}
	assert.Equal(t, int64(3), m.Provisioned())

	// a second batch extends the owned set
	more, err := m.Provision(context.Background(), 2)
	require.Nil(t, err)
	require.Len(t, more, 2)
	assert.Equal(t, int64(5), m.Provisioned())

	assert.Nil(t, m.CloseAll())
	assert.Nil(t, m.CloseAll())
}
