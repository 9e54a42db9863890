package controlbus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapzone/snapzone/internal/controlbus"
)

func TestMockRecordsWrites(t *testing.T) {
	m := controlbus.NewMock()
	require.NoError(t, m.Write(context.Background(), "1/1/5", 42))

	v, ok := m.Value("1/1/5")
	require.True(t, ok)
	assert.Equal(t, uint16(42), v)
}

func TestMockFailWrite(t *testing.T) {
	m := controlbus.NewMock()
	m.SetFailWrite(true)
	require.Error(t, m.Write(context.Background(), "1/1/5", 1))

	_, ok := m.Value("1/1/5")
	assert.False(t, ok, "failed write must not record a value")
}

func TestMockHonorsContext(t *testing.T) {
	m := controlbus.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, m.Write(ctx, "1/1/5", 1))
}
