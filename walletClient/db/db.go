// Package db persists provider group statistics of the wallet network service in SQLite
// through GORM.
package db

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pushchain/push-wallet-network/walletClient/store"
)

const (
	// InMemorySQLiteDSN opens a database that lives as long as its single connection
	InMemorySQLiteDSN = ":memory:"

	dbDirPermissions = 0o750
	busyTimeoutMs    = "5000"
)

// models migrated on open
var schemaModels = []any{
	&store.EndpointSnapshot{},
}

// DB is the snapshot store
type DB struct {
	client *gorm.DB
	path   string // empty for in-memory databases
}

// OpenFileDB opens or creates dir/filename, creating dir when missing
func OpenFileDB(dir, filename string, migrateSchema bool) (*DB, error) {
	if err := os.MkdirAll(dir, dbDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
	}
	path := filepath.Join(dir, filename)

	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", busyTimeoutMs)
	params.Set("mode", "rwc")

	d, err := openSQLite("file:"+path+"?"+params.Encode(), migrateSchema)
	if err != nil {
		return nil, err
	}
	d.path = path
	return d, nil
}

// OpenInMemoryDB opens a database that is discarded on Close
func OpenInMemoryDB(migrateSchema bool) (*DB, error) {
	return openSQLite(InMemorySQLiteDSN, migrateSchema)
}

func openSQLite(dsn string, migrateSchema bool) (*DB, error) {
	client, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// SQLite serializes writers, and an in-memory database exists per connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if migrateSchema {
		if err := client.AutoMigrate(schemaModels...); err != nil {
			sqlDB.Close()
			return nil, errors.Wrap(err, "failed to migrate snapshot schema")
		}
	}
	return &DB{client: client}, nil
}

// Client returns the GORM handle for queries not covered here
func (d *DB) Client() *gorm.DB {
	return d.client
}

// Path returns the database file, empty for in-memory databases
func (d *DB) Path() string {
	return d.path
}

// Ping checks that the database answers
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return errors.Wrap(sqlDB.PingContext(ctx), "database ping failed")
}

// Close closes the connection
func (d *DB) Close() error {
	sqlDB, err := d.client.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "failed to close database")
}
