// Package storage provides the persistence backends for user
// configuration, alert books and the shared indicator aggregate: a local
// buntdb file (or in-memory database) and a SQL database via GORM.
package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/tidwall/buntdb"
)

const aggregateKey = "aggregate"

func configKey(userID int64) string {
	return fmt.Sprintf("user:%d:config", userID)
}

func alertsKey(userID int64) string {
	return fmt.Sprintf("user:%d:alerts", userID)
}

// BuntStorage implements core.Storage on a single BuntDB database. Every
// record is a JSON document; the aggregate lives under its own key and is
// replaced in one transaction so readers always see a full snapshot.
type BuntStorage struct {
	db        *buntdb.DB
	userLocks sync.Map // userID -> *sync.Mutex
}

// FromMemory creates an in-memory storage.
func FromMemory() (*BuntStorage, error) {
	return NewBuntStorage(":memory:")
}

// FromFile creates a file-based storage.
func FromFile(file string) (*BuntStorage, error) {
	return NewBuntStorage(file)
}

// NewBuntStorage creates a new BuntDB storage instance.
func NewBuntStorage(sourceFile string) (*BuntStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	return &BuntStorage{db: db}, nil
}

// Whitelist returns every registered user id in key order.
func (b *BuntStorage) Whitelist() ([]int64, error) {
	var users []int64

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("user:*:config", func(key, _ string) bool {
			if id, ok := parseUserKey(key); ok {
				users = append(users, id)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan whitelist: %w", err)
	}

	return users, nil
}

// WhitelistUser registers a user with the default configuration and an
// empty alert book. Registering an existing user is a no-op.
func (b *BuntStorage) WhitelistUser(userID int64, isAdmin bool) error {
	config, err := json.Marshal(core.DefaultUserConfig(userID, isAdmin))
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	alerts, err := json.Marshal(core.AlertsByPair{})
	if err != nil {
		return fmt.Errorf("failed to marshal default alerts: %w", err)
	}

	return b.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(configKey(userID)); err == nil {
			return nil // already whitelisted
		}
		if _, _, err := tx.Set(configKey(userID), string(config), nil); err != nil {
			return fmt.Errorf("failed to store config: %w", err)
		}
		if _, _, err := tx.Set(alertsKey(userID), string(alerts), nil); err != nil {
			return fmt.Errorf("failed to store alerts: %w", err)
		}
		return nil
	})
}

// BlacklistUser removes the user's configuration and alert book.
func (b *BuntStorage) BlacklistUser(userID int64) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		for _, key := range []string{configKey(userID), alertsKey(userID)} {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// LoadAlerts returns the user's alert book with pair and alert order
// preserved.
func (b *BuntStorage) LoadAlerts(userID int64) (core.AlertsByPair, error) {
	var alerts core.AlertsByPair
	if err := b.loadJSON(alertsKey(userID), &alerts); err != nil {
		return nil, fmt.Errorf("%w: alerts for user %d: %v", core.ErrUserConfig, userID, err)
	}
	return alerts, nil
}

// SaveAlerts replaces the user's alert book.
func (b *BuntStorage) SaveAlerts(userID int64, alerts core.AlertsByPair) error {
	return b.saveJSON(alertsKey(userID), alerts)
}

// LoadConfig returns the user's configuration document.
func (b *BuntStorage) LoadConfig(userID int64) (*core.UserConfig, error) {
	config := new(core.UserConfig)
	if err := b.loadJSON(configKey(userID), config); err != nil {
		return nil, fmt.Errorf("%w: config for user %d: %v", core.ErrUserConfig, userID, err)
	}
	return config, nil
}

// SaveConfig replaces the user's configuration document.
func (b *BuntStorage) SaveConfig(userID int64, config *core.UserConfig) error {
	return b.saveJSON(configKey(userID), config)
}

// Admins returns the ids of users flagged as administrators.
func (b *BuntStorage) Admins() ([]int64, error) {
	users, err := b.Whitelist()
	if err != nil {
		return nil, err
	}

	var admins []int64
	for _, id := range users {
		config, err := b.LoadConfig(id)
		if err != nil {
			return nil, err
		}
		if config.IsAdmin {
			admins = append(admins, id)
		}
	}
	return admins, nil
}

// LockUser serializes read-modify-write sequences on one user's record.
func (b *BuntStorage) LockUser(userID int64) func() {
	lock, _ := b.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// LoadAggregate returns the persisted indicator aggregate, or an empty
// aggregate when none was stored yet.
func (b *BuntStorage) LoadAggregate() (core.Aggregate, error) {
	agg := core.Aggregate{}
	err := b.loadJSON(aggregateKey, &agg)
	if err == buntdb.ErrNotFound {
		return core.Aggregate{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregate: %w", err)
	}
	return agg, nil
}

// SaveAggregate replaces the aggregate snapshot in a single transaction.
func (b *BuntStorage) SaveAggregate(agg core.Aggregate) error {
	return b.saveJSON(aggregateKey, agg)
}

// Close closes the database connection.
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *BuntStorage) loadJSON(key string, out any) error {
	return b.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(key)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(value), out)
	})
}

func (b *BuntStorage) saveJSON(key string, value any) error {
	content, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
		return nil
	})
}

func parseUserKey(key string) (int64, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
