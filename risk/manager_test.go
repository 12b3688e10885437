package risk

import (
	"testing"

	"github.com/rustyeddy/tradecore/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPositionCap(t *testing.T) {
	t.Parallel()

	pm := NewPositionManager(3, Reject)
	for i := 0; i < 3; i++ {
		require.NoError(t, pm.RegisterPosition("A", 1.5))
	}
	for i := 0; i < 4; i++ {
		err := pm.RegisterPosition("A", 2)
		assert.ErrorIs(t, err, broker.ErrPositionCapExceeded)
		assert.Equal(t, 3, pm.Long("A"))
	}

	// Sides and instruments are independent.
	require.NoError(t, pm.RegisterPosition("A", -1))
	require.NoError(t, pm.RegisterPosition("B", 1))
	assert.Equal(t, 1, pm.Short("A"))
	assert.True(t, pm.CanOpenShort("A"))
	assert.False(t, pm.CanOpenLong("A"))
	assert.Equal(t, 5, pm.Total())
}

func TestRegisterPositionSaturate(t *testing.T) {
	t.Parallel()

	pm := NewPositionManager(1, Saturate)
	require.NoError(t, pm.RegisterPosition("A", -1))
	require.NoError(t, pm.RegisterPosition("A", -1))
	assert.Equal(t, 1, pm.Short("A"))
}

func TestClosePosition(t *testing.T) {
	t.Parallel()

	pm := NewPositionManager(2, Reject)
	err := pm.ClosePosition("A", 1)
	assert.ErrorIs(t, err, broker.ErrNoPositionToClose)
	assert.Equal(t, 0, pm.Long("A"))

	require.NoError(t, pm.RegisterPosition("A", 1))
	require.NoError(t, pm.ClosePosition("A", 3))
	assert.Equal(t, 0, pm.Long("A"))
	assert.ErrorIs(t, pm.ClosePosition("A", 1), broker.ErrNoPositionToClose)

	assert.ErrorIs(t, pm.RegisterPosition("A", 0), broker.ErrZeroSize)
}

func TestSyncAndReset(t *testing.T) {
	t.Parallel()

	pm := NewPositionManager(2, Reject)
	require.NoError(t, pm.RegisterPosition("A", 1))
	require.NoError(t, pm.RegisterPosition("A", 1))

	pm.Sync([]broker.Trade{
		{Instrument: "A", Size: -1},
		{Instrument: "B", Size: 2},
		{Instrument: "B", Size: 2},
		{Instrument: "B", Size: 2},
	})
	assert.Equal(t, 0, pm.Long("A"))
	assert.Equal(t, 1, pm.Short("A"))
	assert.Equal(t, 2, pm.Long("B"))
	assert.Equal(t, 3, pm.Total())

	pm.Reset()
	assert.Equal(t, 0, pm.Total())
}
