package db

import (
	"time"

	"github.com/pkg/errors"

	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
	"github.com/pushchain/push-wallet-network/walletClient/store"
)

const defaultHistoryLimit = 100

// SnapshotsFromStats converts group stats into rows taken at takenAt
func SnapshotsFromStats(stats rpcpool.GroupStats, takenAt time.Time) []store.EndpointSnapshot {
	rows := make([]store.EndpointSnapshot, 0, len(stats.Endpoints))
	for _, ep := range stats.Endpoints {
		rows = append(rows, store.EndpointSnapshot{
			TakenAt:             takenAt,
			Network:             stats.Network,
			Host:                ep.Host,
			Position:            ep.Position,
			IsCurrent:           ep.Position == stats.Cursor,
			State:               ep.State,
			HealthScore:         ep.HealthScore,
			RequestCount:        ep.RequestCount,
			FailureCount:        ep.FailureCount,
			ConsecutiveFailures: ep.ConsecutiveFailures,
			AverageLatencyMs:    ep.AverageLatency,
			LastError:           ep.LastError,
		})
	}
	return rows
}

// SaveSnapshots inserts rows in one transaction
func (d *DB) SaveSnapshots(rows []store.EndpointSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	if err := d.client.CreateInBatches(rows, 100).Error; err != nil {
		return errors.Wrap(err, "failed to save endpoint snapshots")
	}
	return nil
}

// LatestSnapshots returns the rows of the most recent snapshot of network, in priority order
func (d *DB) LatestSnapshots(network string) ([]store.EndpointSnapshot, error) {
	var latest store.EndpointSnapshot
	err := d.client.
		Where("network = ?", network).
		Order("taken_at DESC").
		Limit(1).
		Find(&latest).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query latest snapshot of %s", network)
	}
	if latest.ID == 0 {
		return nil, nil
	}

	var rows []store.EndpointSnapshot
	err = d.client.
		Where("network = ? AND taken_at = ?", network, latest.TakenAt).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query snapshot rows of %s", network)
	}
	return rows, nil
}

// History returns snapshots of network taken at or after since, newest first.
// A limit of zero or less returns the default number of rows.
func (d *DB) History(network string, since time.Time, limit int) ([]store.EndpointSnapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var rows []store.EndpointSnapshot
	err := d.client.
		Where("network = ? AND taken_at >= ?", network, since).
		Order("taken_at DESC, position ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query snapshot history of %s", network)
	}
	return rows, nil
}

// PruneOlderThan permanently deletes snapshots taken before cutoff and returns how many were removed
func (d *DB) PruneOlderThan(cutoff time.Time) (int64, error) {
	res := d.client.Unscoped().Where("taken_at < ?", cutoff).Delete(&store.EndpointSnapshot{})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to prune endpoint snapshots")
	}
	return res.RowsAffected, nil
}
