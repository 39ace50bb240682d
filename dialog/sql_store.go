package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// dialogRecord is the relational row backing one dialog. The message
// sequence and summary travel as a JSON payload; the indexed columns exist
// for queries (status sweeps, per-customer lookups).
type dialogRecord struct {
	ID           string `gorm:"primaryKey;size:64"`
	CustomerID   string `gorm:"index;size:64"`
	Status       string `gorm:"index;size:16"`
	Priority     string `gorm:"size:16"`
	CurrentAgent string `gorm:"size:64"`
	Payload      []byte `gorm:"type:blob"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
}

func (dialogRecord) TableName() string { return "dialogs" }

// SQLStore persists dialogs through GORM, so the same store runs on MySQL,
// PostgreSQL, or SQLite depending on the configured driver.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the schema and returns the store.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&dialogRecord{}); err != nil {
		return nil, storage("migrate dialogs table", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context, id string) (*Dialog, error) {
	var rec dialogRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storage("read dialog", err)
	}

	var d Dialog
	if err := json.Unmarshal(rec.Payload, &d); err != nil {
		return nil, storage("decode dialog", err)
	}
	return &d, nil
}

func (s *SQLStore) Save(ctx context.Context, d *Dialog) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return storage("encode dialog", err)
	}
	rec := dialogRecord{
		ID:           d.ID,
		CustomerID:   d.Customer.ID,
		Status:       string(d.Status),
		Priority:     string(d.Priority),
		CurrentAgent: d.CurrentAgent,
		Payload:      payload,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return storage("write dialog", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&dialogRecord{}, "id = ?", id)
	if res.Error != nil {
		return storage("delete dialog", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]*Dialog, error) {
	var recs []dialogRecord
	if err := s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, storage("list dialogs", err)
	}

	out := make([]*Dialog, 0, len(recs))
	for _, rec := range recs {
		var d Dialog
		if err := json.Unmarshal(rec.Payload, &d); err != nil {
			return nil, storage("decode dialog", err)
		}
		out = append(out, &d)
	}
	return out, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storage("acquire sql handle", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storage("ping database", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
