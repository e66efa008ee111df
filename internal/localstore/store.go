package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shopdeskhq/shopdesk/internal/resource"
)

var (
	errMissingDatabase = errors.New("localstore: database handle is required")

	noOpLogger = zap.NewNop()
)

// cacheEntry is a single durable key-value row. Keys follow the
// "{table}_{ownerId}" convention shared by resource snapshots and the
// mutation queue.
type cacheEntry struct {
	Key              string `gorm:"column:key;primaryKey;size:190;not null"`
	Value            string `gorm:"column:value;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (cacheEntry) TableName() string {
	return "cache_entries"
}

// Store is the durable local cache backing resource snapshots and the
// pending mutation queue.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	clock  func() time.Time
}

// Open establishes the SQLite-backed cache at the given path and performs
// schema migration.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("localstore: cache path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	store, err := NewStore(db, logger)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("local cache initialized", zap.String("path", path))
	}
	return store, nil
}

// NewStore wraps an existing database handle and migrates the cache schema.
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if logger == nil {
		logger = noOpLogger
	}
	if err := db.AutoMigrate(&cacheEntry{}); err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger, clock: time.Now}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the stored value for key and whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	var entry cacheEntry
	err := s.db.Where("key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Put writes the value for key, overwriting any previous value.
func (s *Store) Put(key, value string) error {
	entry := cacheEntry{
		Key:              key,
		Value:            value,
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.Save(&entry).Error
}

// SnapshotKey names the durable snapshot slot for a collection and owner.
func SnapshotKey(table resource.Table, ownerID string) string {
	return fmt.Sprintf("%s_%s", table, ownerID)
}

// QueueKey names the durable mutation queue slot for an owner.
func QueueKey(ownerID string) string {
	return fmt.Sprintf("mutation_queue_%s", ownerID)
}

// SaveSnapshot persists a collection snapshot, refusing to let an
// entirely empty in-memory state overwrite a non-trivial durable copy.
// An empty snapshot during startup would otherwise erase the richer
// state a previous session left behind.
func (s *Store) SaveSnapshot(table resource.Table, ownerID, value string) error {
	key := SnapshotKey(table, ownerID)
	if snapshotIsEmpty(value) {
		existing, found, err := s.Get(key)
		if err != nil {
			return err
		}
		if found && !snapshotIsEmpty(existing) {
			s.logger.Warn("skipping empty snapshot write over non-trivial cache",
				zap.String("table", string(table)),
				zap.String("owner_id", ownerID))
			return nil
		}
	}
	return s.Put(key, value)
}

func snapshotIsEmpty(value string) bool {
	if value == "" || value == "[]" || value == "{}" || value == "null" {
		return true
	}
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(value), &records); err == nil {
		return len(records) == 0
	}
	return false
}
