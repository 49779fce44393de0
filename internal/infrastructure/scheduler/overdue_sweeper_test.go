package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingMarker struct {
	mu     sync.Mutex
	calls  int
	actors []string
	err    error
}

func (m *countingMarker) SweepOverdue(_ context.Context, actor string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.actors = append(m.actors, actor)
	return 1, m.err
}

func (m *countingMarker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestNewOverdueSweeper_Validation(t *testing.T) {
	_, err := NewOverdueSweeper(&countingMarker{}, zap.NewNop(), OverdueSweeperConfig{Enabled: true})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	s, err := NewOverdueSweeper(&countingMarker{}, zap.NewNop(), OverdueSweeperConfig{Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, DefaultOverdueSweeperConfig().RunTimeout, s.config.RunTimeout)
}

func TestOverdueSweeper_RunsOnStartAndInterval(t *testing.T) {
	marker := &countingMarker{}
	s, err := NewOverdueSweeper(marker, zap.NewNop(), OverdueSweeperConfig{
		Enabled:  true,
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return marker.Calls() >= 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.LastRun().IsZero())

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())

	marker.mu.Lock()
	assert.Equal(t, SystemActor, marker.actors[0])
	marker.mu.Unlock()
}

func TestOverdueSweeper_Disabled(t *testing.T) {
	marker := &countingMarker{}
	s, err := NewOverdueSweeper(marker, zap.NewNop(), OverdueSweeperConfig{Enabled: false})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.TriggerNow(context.Background()), ErrSchedulerNotRunning)
	assert.NoError(t, s.Stop(context.Background()))
	assert.Zero(t, marker.Calls())
}

func TestOverdueSweeper_FailuresKeepRunning(t *testing.T) {
	marker := &countingMarker{err: errors.New("db down")}
	s, err := NewOverdueSweeper(marker, zap.NewNop(), OverdueSweeperConfig{
		Enabled:  true,
		Interval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()

	assert.Eventually(t, func() bool { return marker.Calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.TriggerNow(context.Background()))
	assert.Eventually(t, func() bool { return marker.Calls() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.IsRunning())
}
