package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// UserRecord is the GORM model holding one user's documents. Config and
// Alerts are serialized JSON so both backends share one document shape.
type UserRecord struct {
	UserID    int64 `gorm:"primaryKey"`
	IsAdmin   bool
	Config    string
	Alerts    string
	UpdatedAt time.Time
}

// AggregateRecord holds the single indicator aggregate snapshot.
type AggregateRecord struct {
	ID        uint `gorm:"primaryKey"`
	Data      string
	UpdatedAt time.Time
}

// SQLStorage implements core.Storage using a SQL database via GORM. The
// dialector is supplied by the caller, so any driver GORM supports works.
type SQLStorage struct {
	db        *gorm.DB
	userLocks sync.Map
}

// FromSQL creates a new SQL storage instance.
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (*SQLStorage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&UserRecord{}, &AggregateRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLStorage{db: db}, nil
}

// Whitelist returns every registered user id.
func (s *SQLStorage) Whitelist() ([]int64, error) {
	var records []UserRecord
	if err := s.db.Order("user_id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query whitelist: %w", err)
	}

	return lo.Map(records, func(r UserRecord, _ int) int64 {
		return r.UserID
	}), nil
}

// WhitelistUser registers a user with the default configuration. It is a
// no-op when the user already exists.
func (s *SQLStorage) WhitelistUser(userID int64, isAdmin bool) error {
	var existing UserRecord
	err := s.db.First(&existing, "user_id = ?", userID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to query user %d: %w", userID, err)
	}

	config, err := json.Marshal(core.DefaultUserConfig(userID, isAdmin))
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	alerts, err := json.Marshal(core.AlertsByPair{})
	if err != nil {
		return fmt.Errorf("failed to marshal default alerts: %w", err)
	}

	record := UserRecord{
		UserID:  userID,
		IsAdmin: isAdmin,
		Config:  string(config),
		Alerts:  string(alerts),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to create user %d: %w", userID, err)
	}
	return nil
}

// BlacklistUser removes a user and all of their data.
func (s *SQLStorage) BlacklistUser(userID int64) error {
	if err := s.db.Delete(&UserRecord{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("failed to delete user %d: %w", userID, err)
	}
	return nil
}

// LoadAlerts returns the user's alert book.
func (s *SQLStorage) LoadAlerts(userID int64) (core.AlertsByPair, error) {
	record, err := s.load(userID)
	if err != nil {
		return nil, err
	}

	var alerts core.AlertsByPair
	if err := json.Unmarshal([]byte(record.Alerts), &alerts); err != nil {
		return nil, fmt.Errorf("%w: alerts for user %d: %v", core.ErrUserConfig, userID, err)
	}
	return alerts, nil
}

// SaveAlerts replaces the user's alert book.
func (s *SQLStorage) SaveAlerts(userID int64, alerts core.AlertsByPair) error {
	content, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}
	return s.update(userID, map[string]any{"alerts": string(content)})
}

// LoadConfig returns the user's configuration document.
func (s *SQLStorage) LoadConfig(userID int64) (*core.UserConfig, error) {
	record, err := s.load(userID)
	if err != nil {
		return nil, err
	}

	config := new(core.UserConfig)
	if err := json.Unmarshal([]byte(record.Config), config); err != nil {
		return nil, fmt.Errorf("%w: config for user %d: %v", core.ErrUserConfig, userID, err)
	}
	return config, nil
}

// SaveConfig replaces the user's configuration document. The admin flag
// is mirrored to its column so Admins stays a single query.
func (s *SQLStorage) SaveConfig(userID int64, config *core.UserConfig) error {
	content, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return s.update(userID, map[string]any{
		"config":   string(content),
		"is_admin": config.IsAdmin,
	})
}

// Admins returns the user ids flagged as administrators.
func (s *SQLStorage) Admins() ([]int64, error) {
	var records []UserRecord
	if err := s.db.Where("is_admin = ?", true).Order("user_id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query admins: %w", err)
	}

	return lo.Map(records, func(r UserRecord, _ int) int64 {
		return r.UserID
	}), nil
}

// LockUser serializes read-modify-write sequences on one user's record.
func (s *SQLStorage) LockUser(userID int64) func() {
	lock, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// LoadAggregate returns the persisted indicator aggregate, or an empty
// aggregate when none was stored yet.
func (s *SQLStorage) LoadAggregate() (core.Aggregate, error) {
	var record AggregateRecord
	err := s.db.First(&record, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Aggregate{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregate: %w", err)
	}

	agg := core.Aggregate{}
	if err := json.Unmarshal([]byte(record.Data), &agg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal aggregate: %w", err)
	}
	return agg, nil
}

// SaveAggregate replaces the aggregate snapshot.
func (s *SQLStorage) SaveAggregate(agg core.Aggregate) error {
	content, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate: %w", err)
	}

	record := AggregateRecord{ID: 1, Data: string(content)}
	if err := s.db.Save(&record).Error; err != nil {
		return fmt.Errorf("failed to store aggregate: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStorage) load(userID int64) (*UserRecord, error) {
	var record UserRecord
	err := s.db.First(&record, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d is not whitelisted", core.ErrUserConfig, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return &record, nil
}

func (s *SQLStorage) update(userID int64, fields map[string]any) error {
	result := s.db.Model(&UserRecord{}).Where("user_id = ?", userID).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d is not whitelisted", core.ErrUserConfig, userID)
	}
	return nil
}
