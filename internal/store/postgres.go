package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type snapshotRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement:false"`
	Body      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (snapshotRow) TableName() string { return "overlay_snapshot" }

const snapshotRowID = 1

// Postgres keeps the snapshot in a single-row table through gorm.
type Postgres struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Load(ctx context.Context) ([]byte, error) {
	var row snapshotRow
	err := p.db.WithContext(ctx).First(&row, snapshotRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return []byte(row.Body), nil
}

func (p *Postgres) Save(ctx context.Context, doc []byte) error {
	row := snapshotRow{ID: snapshotRowID, Body: string(doc), UpdatedAt: time.Now().UTC()}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
