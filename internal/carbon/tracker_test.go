package carbon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWallTrackerMeasuresElapsedDraw(t *testing.T) {
	tr := &wallTracker{watts: 100}
	require.NoError(t, tr.Start())
	time.Sleep(20 * time.Millisecond)
	joules, err := tr.Stop()
	require.NoError(t, err)
	require.Greater(t, joules, 1.0)  // at least 10ms * 100W
	require.Less(t, joules, 1000.0) // and nowhere near 10s worth
}

func TestWallTrackerRequiresStart(t *testing.T) {
	tr := &wallTracker{watts: 100}
	_, err := tr.Stop()
	require.Error(t, err)
}

func TestEmissionsFromJoules(t *testing.T) {
	// 3.6 MJ is exactly one kWh.
	require.InDelta(t, 0.475, EmissionsFromJoules(3.6e6, 0.475), 1e-9)
	require.Equal(t, 0.0, EmissionsFromJoules(0, 0.475))
}

func TestNewTrackerAlwaysReturnsSomething(t *testing.T) {
	tr := NewTracker(65)
	require.NotNil(t, tr)
	require.NoError(t, tr.Start())
	_, err := tr.Stop()
	require.NoError(t, err)
}
