package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record is one queued announcement. Records are only ever appended and
// updated; nothing deletes them.
type Record struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Payload   string     `gorm:"type:text;not null" json:"payload"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	Sent      bool       `gorm:"not null;default:false;index" json:"sent"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
}

// TableName pins the table name
func (Record) TableName() string {
	return "outbox_records"
}

// Store is the SQLite-backed outbox log. Every insert and status update runs
// in its own transaction.
type Store struct {
	db *gorm.DB
}

// slogWriter routes gorm's logger through slog
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn(fmt.Sprintf(format, args...))
}

// OpenStore opens (or creates) the database file and migrates the table
func OpenStore(path string, log *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("outbox path is required")
	}
	if log == nil {
		log = slog.Default()
	}

	cnf := &gorm.Config{
		Logger: logger.New(slogWriter{logger: log.With("component", "outbox-db")}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		}),
	}

	db, err := gorm.Open(sqlite.Open(path), cnf)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox %s: %w", path, err)
	}

	d, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// SQLite allows one writer; a single connection avoids "database is locked"
	d.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to migrate outbox: %w", err)
	}

	return &Store{db: db}, nil
}

// Append stores a pending record
func (s *Store) Append(ctx context.Context, payload []byte, at time.Time, attempts int) (*Record, error) {
	rec := &Record{Payload: string(payload), CreatedAt: at, Attempts: attempts}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to append record: %w", err)
	}
	return rec, nil
}

// Pending returns unsent records with an id greater than after, oldest first
func (s *Store) Pending(ctx context.Context, after uint64, limit int) ([]Record, error) {
	var recs []Record
	err := s.db.WithContext(ctx).
		Where("sent = ? AND id > ?", false, after).
		Order("id asc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending records: %w", err)
	}
	return recs, nil
}

// MarkSent flags a record delivered
func (s *Store) MarkSent(ctx context.Context, id uint64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Updates(map[string]interface{}{
		"sent":     true,
		"sent_at":  at,
		"attempts": gorm.Expr("attempts + 1"),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark record %d sent: %w", id, err)
	}
	return nil
}

// MarkAttempt counts a failed delivery attempt
func (s *Store) MarkAttempt(ctx context.Context, id uint64) error {
	err := s.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to count attempt on record %d: %w", id, err)
	}
	return nil
}

// Counts returns the number of pending and sent records
func (s *Store) Counts(ctx context.Context) (pending, sent int64, err error) {
	if err = s.db.WithContext(ctx).Model(&Record{}).Where("sent = ?", false).Count(&pending).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	if err = s.db.WithContext(ctx).Model(&Record{}).Where("sent = ?", true).Count(&sent).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count sent records: %w", err)
	}
	return pending, sent, nil
}

// Recent returns the newest records, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	var recs []Record
	if err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent records: %w", err)
	}
	return recs, nil
}

// Close closes the database
func (s *Store) Close() error {
	d, err := s.db.DB()
	if err != nil {
		return err
	}
	return d.Close()
}
