package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const lastRemoteKey = "last_remote"

type Setting struct {
	Name      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt int64
}

type MessageRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Remote    string `gorm:"index"`
	Direction string
	Seq       uint64
	Text      string
	CreatedAt int64 `gorm:"index"`
}

type SQLite struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&Setting{}, &MessageRecord{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) LastRemote(ctx context.Context) (string, error) {
	var setting Setting
	err := s.db.WithContext(ctx).First(&setting, "name = ?", lastRemoteKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (s *SQLite) SetLastRemote(ctx context.Context, id string) error {
	db := s.db.WithContext(ctx)
	if id == "" {
		return db.Delete(&Setting{}, "name = ?", lastRemoteKey).Error
	}

	setting := Setting{Name: lastRemoteKey, Value: id, UpdatedAt: time.Now().Unix()}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

func (s *SQLite) RecordMessage(ctx context.Context, msg Message) error {
	created := msg.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	record := MessageRecord{
		Remote:    msg.Remote,
		Direction: string(msg.Direction),
		Seq:       msg.Seq,
		Text:      msg.Text,
		CreatedAt: created.UnixNano(),
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// RecentMessages returns up to limit messages, oldest first.
func (s *SQLite) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	var records []MessageRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, len(records))
	for i, r := range records {
		msgs[len(records)-1-i] = Message{
			Remote:    r.Remote,
			Direction: Direction(r.Direction),
			Seq:       r.Seq,
			Text:      r.Text,
			CreatedAt: time.Unix(0, r.CreatedAt),
		}
	}
	return msgs, nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
