// cron/stats_snapshot_job.go
package cron

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/push-wallet-network/walletClient/db"
	"github.com/pushchain/push-wallet-network/walletClient/metrics"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
	"github.com/pushchain/push-wallet-network/walletClient/store"
)

// StatsSource reports the current state of every provider group
type StatsSource interface {
	AllStats() []rpcpool.GroupStats
}

// SnapshotStore persists snapshots
type SnapshotStore interface {
	SaveSnapshots(rows []store.EndpointSnapshot) error
	PruneOlderThan(cutoff time.Time) (int64, error)
}

// StatsSnapshotJob periodically writes provider group stats to the database and prunes rows
// older than the retention period.
type StatsSnapshotJob struct {
	source    StatsSource
	store     SnapshotStore
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	forceCh chan struct{}
	wg      sync.WaitGroup
}

func NewStatsSnapshotJob(source StatsSource, st SnapshotStore, interval, retention time.Duration, logger zerolog.Logger) *StatsSnapshotJob {
	if interval <= 0 {
		interval = time.Minute
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &StatsSnapshotJob{
		source:    source,
		store:     st,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    logger.With().Str("component", "stats_snapshot_cron").Logger(),
	}
}

// Start launches the background loop and returns immediately (non-blocking).
// Safe to call multiple times; subsequent calls are no-ops.
func (j *StatsSnapshotJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	if j.source == nil || j.store == nil {
		return errors.New("cron: stats source and store must be non-nil")
	}

	j.stopCh = make(chan struct{})
	j.forceCh = make(chan struct{}, 1) // buffered so ForceSnapshot won't block
	j.running = true
	j.wg.Add(1)

	go j.run(ctx)
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
// Safe to call multiple times.
func (j *StatsSnapshotJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopCh)
	j.running = false
	j.mu.Unlock()
	j.wg.Wait()
}

// ForceSnapshot asks the running loop for an immediate snapshot
func (j *StatsSnapshotJob) ForceSnapshot() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return
	}
	select {
	case j.forceCh <- struct{}{}:
	default:
	}
}

func (j *StatsSnapshotJob) run(parent context.Context) {
	defer j.wg.Done()

	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-parent.Done():
			j.logger.Info().Msg("stats snapshot cron: context canceled; stopping")
			return
		case <-j.stopCh:
			j.logger.Info().Msg("stats snapshot cron: stop requested; stopping")
			return
		case <-t.C:
			if err := j.SnapshotOnce(); err != nil {
				j.logger.Warn().Err(err).Msg("periodic stats snapshot failed")
			}
		case <-j.forceCh:
			if err := j.SnapshotOnce(); err != nil {
				j.logger.Warn().Err(err).Msg("forced stats snapshot failed")
			}
		}
	}
}

// SnapshotOnce writes one snapshot of every group and prunes expired rows
func (j *StatsSnapshotJob) SnapshotOnce() error {
	now := j.now().UTC()

	var rows []store.EndpointSnapshot
	for _, stats := range j.source.AllStats() {
		rows = append(rows, db.SnapshotsFromStats(stats, now)...)
	}
	if err := j.store.SaveSnapshots(rows); err != nil {
		return err
	}
	metrics.SnapshotsWrittenTotal.Add(float64(len(rows)))

	removed, err := j.store.PruneOlderThan(now.Add(-j.retention))
	if err != nil {
		return err
	}
	j.logger.Debug().
		Int("rows", len(rows)).
		Int64("pruned", removed).
		Msg("stats snapshot written")
	return nil
}
