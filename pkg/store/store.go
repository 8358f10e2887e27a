package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db *gorm.DB
}

func New(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	if err := db.AutoMigrate(&ScanEvent{}, &Alert{}, &TagLink{}, &Operator{}); err != nil {
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle so sibling packages, e.g. the audit
// trail, can share the same database file.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ScanEvent is one RFID read delivered from a gate reader.
type ScanEvent struct {
	ID      string    `gorm:"primaryKey;column:id"`
	EPC     string    `gorm:"column:epc;not null;index:idx_scans_epc"`
	Barcode string    `gorm:"column:barcode;not null;default:''"`
	StoreID string    `gorm:"column:store_id;not null;default:''"`
	GateID  string    `gorm:"column:gate_id;not null;default:''"`
	At      time.Time `gorm:"column:at;not null;index:idx_scans_at"`
}

func (ScanEvent) TableName() string { return "scan_events" }

// Alert is a persisted theft alert. Acked alerts stay queryable until the
// retention job removes them.
type Alert struct {
	ID       string    `gorm:"primaryKey;column:id"`
	EPC      string    `gorm:"column:epc;not null"`
	StoreID  string    `gorm:"column:store_id;not null;default:''"`
	GateID   string    `gorm:"column:gate_id;not null;default:''"`
	Severity string    `gorm:"column:severity;not null;default:''"`
	Message  string    `gorm:"column:message;not null;default:''"`
	At       time.Time `gorm:"column:at;not null;index:idx_alerts_at"`
	Acked    bool      `gorm:"column:acked;not null;default:false"`
}

func (Alert) TableName() string { return "alerts" }

// TagLink binds an RFID EPC to a product barcode.
type TagLink struct {
	EPC      string    `gorm:"primaryKey;column:epc"`
	Barcode  string    `gorm:"column:barcode;not null;index:idx_tags_barcode"`
	Product  string    `gorm:"column:product;not null;default:''"`
	LinkedAt time.Time `gorm:"column:linked_at;not null"`
}

func (TagLink) TableName() string { return "tag_links" }

func (s *Store) RecordScan(ctx context.Context, scan *ScanEvent) error {
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	if scan.At.IsZero() {
		scan.At = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(scan).Error
}

type ScanFilter struct {
	EPC    string
	GateID string
	Since  time.Time
	Limit  int
}

func (s *Store) RecentScans(ctx context.Context, f ScanFilter) ([]ScanEvent, error) {
	q := s.db.WithContext(ctx)

	if f.EPC != "" {
		q = q.Where("epc = ?", f.EPC)
	}
	if f.GateID != "" {
		q = q.Where("gate_id = ?", f.GateID)
	}
	if !f.Since.IsZero() {
		q = q.Where("at >= ?", f.Since)
	}

	q = q.Order("at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var scans []ScanEvent
	err := q.Find(&scans).Error
	return scans, err
}

func (s *Store) RecordAlert(ctx context.Context, alert *Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(alert).Error
}

type AlertFilter struct {
	Unacked bool
	Since   time.Time
	Limit   int
}

func (s *Store) RecentAlerts(ctx context.Context, f AlertFilter) ([]Alert, error) {
	q := s.db.WithContext(ctx)

	if f.Unacked {
		q = q.Where("acked = ?", false)
	}
	if !f.Since.IsZero() {
		q = q.Where("at >= ?", f.Since)
	}

	q = q.Order("at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var alerts []Alert
	err := q.Find(&alerts).Error
	return alerts, err
}

func (s *Store) AckAlert(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&Alert{}).Where("id = ?", id).Update("acked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: alert %q: %w", id, ErrNotFound)
	}
	return nil
}

// LinkTag creates or replaces the binding for an EPC.
func (s *Store) LinkTag(ctx context.Context, link *TagLink) error {
	if link.LinkedAt.IsZero() {
		link.LinkedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "epc"}},
		UpdateAll: true,
	}).Create(link).Error
}

func (s *Store) ResolveTag(ctx context.Context, epc string) (*TagLink, error) {
	var link TagLink
	err := s.db.WithContext(ctx).First(&link, "epc = ?", epc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store: tag %q: %w", epc, ErrNotFound)
		}
		return nil, err
	}
	return &link, nil
}

// PruneBefore removes scan events and acked alerts older than cutoff,
// returning how many rows went away.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	scans := s.db.WithContext(ctx).Where("at < ?", cutoff).Delete(&ScanEvent{})
	if scans.Error != nil {
		return 0, scans.Error
	}
	alerts := s.db.WithContext(ctx).Where("at < ? AND acked = ?", cutoff, true).Delete(&Alert{})
	if alerts.Error != nil {
		return scans.RowsAffected, alerts.Error
	}
	return scans.RowsAffected + alerts.RowsAffected, nil
}
