package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-wallet-network/walletClient/db"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
	"github.com/pushchain/push-wallet-network/walletClient/store"
)

type staticSource []rpcpool.GroupStats

func (s staticSource) AllStats() []rpcpool.GroupStats { return s }

type failingStore struct {
	saveErr  error
	pruneErr error

	mu    sync.Mutex
	saved int
}

func (f *failingStore) SaveSnapshots(rows []store.EndpointSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved += len(rows)
	return nil
}

func (f *failingStore) PruneOlderThan(time.Time) (int64, error) {
	return 0, f.pruneErr
}

func (f *failingStore) Saved() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved
}

func sampleStats() staticSource {
	return staticSource{
		{
			Network: "ethereum",
			Cursor:  1,
			Endpoints: []rpcpool.EndpointInfo{
				{Host: "a.example", Position: 0, State: "degraded"},
				{Host: "b.example", Position: 1, State: "healthy"},
			},
		},
		{
			Network:   "solana",
			Endpoints: []rpcpool.EndpointInfo{{Host: "c.example", Position: 0, State: "healthy"}},
		},
	}
}

func TestStatsSnapshotJob_SnapshotOnce(t *testing.T) {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	defer database.Close()

	job := NewStatsSnapshotJob(sampleStats(), database, time.Hour, time.Hour, zerolog.Nop())
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	job.now = func() time.Time { return base }
	require.NoError(t, job.SnapshotOnce())

	job.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.NoError(t, job.SnapshotOnce())

	// the first run is past retention and gets pruned by the second
	rows, err := database.History("ethereum", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].TakenAt.Equal(base.Add(2*time.Hour)))

	latest, err := database.LatestSnapshots("solana")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.True(t, latest[0].IsCurrent)
}

func TestStatsSnapshotJob_StoreErrors(t *testing.T) {
	tests := []struct {
		name  string
		store *failingStore
	}{
		{name: "save fails", store: &failingStore{saveErr: errors.New("disk full")}},
		{name: "prune fails", store: &failingStore{pruneErr: errors.New("locked")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewStatsSnapshotJob(sampleStats(), tt.store, time.Hour, time.Hour, zerolog.Nop())
			assert.Error(t, job.SnapshotOnce())
		})
	}
}

func TestStatsSnapshotJob_StartStop(t *testing.T) {
	st := &failingStore{}
	job := NewStatsSnapshotJob(sampleStats(), st, time.Hour, time.Hour, zerolog.Nop())

	// not running yet: no-op
	job.ForceSnapshot()
	job.Stop()

	require.NoError(t, job.Start(context.Background()))
	require.NoError(t, job.Start(context.Background()))

	job.ForceSnapshot()
	assert.Eventually(t, func() bool { return st.Saved() == 3 }, time.Second, 5*time.Millisecond)

	job.Stop()
	job.Stop()
}

func TestStatsSnapshotJob_StopsOnContextCancel(t *testing.T) {
	st := &failingStore{}
	job := NewStatsSnapshotJob(sampleStats(), st, 5*time.Millisecond, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, job.Start(ctx))
	assert.Eventually(t, func() bool { return st.Saved() > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		job.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("snapshot loop did not exit after cancel")
	}
	job.Stop()
}

func TestStatsSnapshotJob_RequiresDependencies(t *testing.T) {
	job := NewStatsSnapshotJob(nil, nil, 0, 0, zerolog.Nop())
	assert.Error(t, job.Start(context.Background()))
	assert.Equal(t, time.Minute, job.interval)
	assert.Equal(t, 24*time.Hour, job.retention)
}
