package devserver

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

// Row is a stored resource record. Rows keep the full JSON payload beside
// the columns the server needs for scoping and addressing.
type Row struct {
	Collection       string `gorm:"column:collection;primaryKey;size:64;not null"`
	RowID            string `gorm:"column:row_id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index:idx_rows_owner,priority:1"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;index:idx_rows_owner,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Row) TableName() string {
	return "resource_rows"
}

// ErrRowNotFound indicates the addressed row does not exist.
var ErrRowNotFound = errors.New("devserver: row not found")

// ErrRowForbidden indicates the addressed row belongs to a different owner.
var ErrRowForbidden = errors.New("devserver: row belongs to another owner")

// Storage persists resource rows for the dev remote store.
type Storage struct {
	db     *gorm.DB
	logger *zap.Logger
	clock  func() time.Time
}

// OpenStorage establishes a SQLite connection and performs schema migrations.
func OpenStorage(path string, logger *zap.Logger) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("devserver: database path is required")
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

	storage, err := NewStorage(db, logger)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("devserver database initialized", zap.String("path", path))
	}
	return storage, nil
}

// NewStorage wraps an existing database handle and migrates the schema.
func NewStorage(db *gorm.DB, logger *zap.Logger) (*Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("devserver: database handle is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Row{}, &migrationRecord{}); err != nil {
		return nil, err
	}
	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}
	return &Storage{db: db, logger: logger, clock: time.Now}, nil
}

// Close releases the underlying database connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SelectByOwner returns all payloads of a collection belonging to ownerID.
func (s *Storage) SelectByOwner(table resource.Table, ownerID string) ([]json.RawMessage, error) {
	var rows []Row
	err := s.db.
		Where("collection = ? AND owner_id = ?", string(table), ownerID).
		Order("updated_at_s DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, json.RawMessage(row.PayloadJSON))
	}
	return out, nil
}

// Insert stores a new row, deriving id and owner from the payload.
func (s *Storage) Insert(table resource.Table, payload json.RawMessage) (Row, error) {
	id, ownerID := payloadIdentity(payload)
	if id == "" {
		return Row{}, fmt.Errorf("devserver: payload carries no id")
	}
	row := Row{
		Collection:       string(table),
		RowID:            id,
		OwnerID:          ownerID,
		PayloadJSON:      string(payload),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.Save(&row).Error; err != nil {
		return Row{}, err
	}
	return row, nil
}

// Update shallow-merges a patch onto the stored payload. A patch against
// the settings collection upserts the per-owner singleton, whose row id
// equals the owner id. Ownership is verified before anything is written.
func (s *Storage) Update(table resource.Table, id, ownerID string, patch json.RawMessage) (Row, error) {
	var row Row
	err := s.db.
		Where("collection = ? AND row_id = ?", string(table), id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if table != resource.TableSettings {
			return Row{}, ErrRowNotFound
		}
		if id != ownerID {
			return Row{}, ErrRowForbidden
		}
		row = Row{
			Collection:  string(table),
			RowID:       id,
			OwnerID:     id,
			PayloadJSON: fmt.Sprintf(`{"owner_id":%q}`, id),
		}
	} else if err != nil {
		return Row{}, err
	} else if row.OwnerID != ownerID {
		return Row{}, ErrRowForbidden
	}

	merged, err := mergePayload(json.RawMessage(row.PayloadJSON), patch)
	if err != nil {
		return Row{}, err
	}
	row.PayloadJSON = string(merged)
	row.UpdatedAtSeconds = s.clock().UTC().Unix()
	if err := s.db.Save(&row).Error; err != nil {
		return Row{}, err
	}
	return row, nil
}

// Delete removes a row after verifying it belongs to ownerID.
func (s *Storage) Delete(table resource.Table, id, ownerID string) (Row, error) {
	var row Row
	err := s.db.
		Where("collection = ? AND row_id = ?", string(table), id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Row{}, ErrRowNotFound
	}
	if err != nil {
		return Row{}, err
	}
	if row.OwnerID != ownerID {
		return Row{}, ErrRowForbidden
	}
	if err := s.db.
		Where("collection = ? AND row_id = ? AND owner_id = ?", string(table), id, ownerID).
		Delete(&Row{}).Error; err != nil {
		return Row{}, err
	}
	return row, nil
}

func payloadIdentity(payload json.RawMessage) (string, string) {
	var envelope struct {
		ID      string `json:"id"`
		OwnerID string `json:"owner_id"`
	}
	_ = json.Unmarshal(payload, &envelope)
	return envelope.ID, envelope.OwnerID
}

func mergePayload(base, patch json.RawMessage) (json.RawMessage, error) {
	baseMap := map[string]any{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &baseMap); err != nil {
			return nil, err
		}
	}
	var patchMap map[string]any
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, err
	}
	for key, value := range patchMap {
		baseMap[key] = value
	}
	return json.Marshal(baseMap)
}
