package location

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zulandar/servicetrack/internal/geo"
	"github.com/zulandar/servicetrack/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Durable cache keys.
const (
	KeyLabel  = "location.label"
	KeyCoords = "location.coords"
)

// coords is the stored JSON shape of KeyCoords.
type coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Store is the durable Cache, kept as two key-value rows.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store. The kv_entries table must already be migrated.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("location: store: db is required")
	}
	return &Store{db: db}, nil
}

// Load returns the cached fix. A missing or unreadable coordinate entry
// reports false; the label is optional.
func (s *Store) Load() (Fix, bool) {
	var entries []models.KVEntry
	if err := s.db.Where("`key` IN ?", []string{KeyLabel, KeyCoords}).Find(&entries).Error; err != nil {
		return Fix{}, false
	}

	var fix Fix
	found := false
	for _, e := range entries {
		switch e.Key {
		case KeyLabel:
			fix.Label = e.Value
		case KeyCoords:
			var c coords
			if err := json.Unmarshal([]byte(e.Value), &c); err != nil {
				return Fix{}, false
			}
			fix.Point = geo.Point{Lat: c.Lat, Lng: c.Lng}
			fix.At = e.UpdatedAt
			found = true
		}
	}
	if !found || !fix.Valid() {
		return Fix{}, false
	}
	fix.Source = SourceCache
	return fix, true
}

// Save writes both entries in one transaction.
func (s *Store) Save(fix Fix) error {
	if !fix.Valid() {
		return fmt.Errorf("location: store: invalid point %s", fix.Point)
	}
	data, err := json.Marshal(coords{Lat: fix.Point.Lat, Lng: fix.Point.Lng})
	if err != nil {
		return fmt.Errorf("location: store: encode: %w", err)
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		rows := []models.KVEntry{
			{Key: KeyCoords, Value: string(data)},
			{Key: KeyLabel, Value: fix.Label},
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("location: store: save: %w", err)
	}
	return nil
}

// Clear removes both entries.
func (s *Store) Clear() error {
	err := s.db.Where("`key` IN ?", []string{KeyLabel, KeyCoords}).Delete(&models.KVEntry{}).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("location: store: clear: %w", err)
	}
	return nil
}
