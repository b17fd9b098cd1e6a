// Package journal keeps a persistent record of every control request the
// tracker handled, for later inspection with `tracker logs`.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Event struct {
	ID        uint   `gorm:"primaryKey"`
	Action    string `gorm:"index"`
	PeerID    string
	File      string `gorm:"index"`
	Status    string
	Remote    string
	CreatedAt int64
}

func (e Event) String() string {
	ts := time.Unix(e.CreatedAt, 0).Format(time.DateTime)
	switch e.Action {
	case "join":
		return fmt.Sprintf("%s - Peer %s joined from %s, status: %s", ts, e.PeerID, e.Remote, e.Status)
	case "share_file":
		return fmt.Sprintf("%s - Peer %s shared file: %s, status: %s", ts, e.PeerID, e.File, e.Status)
	case "get_peers":
		return fmt.Sprintf("%s - Peer %s wants peers with file: %s, status: %s", ts, e.PeerID, e.File, e.Status)
	case "got_the_file":
		return fmt.Sprintf("%s - Peer %s downloaded file: %s, status: %s", ts, e.PeerID, e.File, e.Status)
	case "leave":
		return fmt.Sprintf("%s - Peer %s left the network, status: %s", ts, e.PeerID, e.Status)
	default:
		return fmt.Sprintf("%s - %s request from %s, status: %s", ts, e.Action, e.Remote, e.Status)
	}
}

type Journal struct {
	db *gorm.DB
}

// Open opens (creating if needed) the journal database at path. ":memory:"
// gives a throwaway journal.
func Open(path string, log *logrus.Logger) (*Journal, error) {
	cfg := &gorm.Config{PrepareStmt: true}
	if log != nil {
		cfg.Logger = gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	} else {
		cfg.Logger = gormlogger.Discard
	}

	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// An in-memory database lives only as long as its one connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Event{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Record(ctx context.Context, e Event) error {
	return j.db.WithContext(ctx).Create(&e).Error
}

// All returns every event in the order it was recorded.
func (j *Journal) All(ctx context.Context) ([]Event, error) {
	var events []Event
	err := j.db.WithContext(ctx).Order("id").Find(&events).Error
	return events, err
}

// Shared returns the share_file events. Completed downloads are not included.
func (j *Journal) Shared(ctx context.Context) ([]Event, error) {
	var events []Event
	err := j.db.WithContext(ctx).
		Where("action = ?", "share_file").
		Order("id").
		Find(&events).Error
	return events, err
}

// ByFile returns every event that referenced name.
func (j *Journal) ByFile(ctx context.Context, name string) ([]Event, error) {
	var events []Event
	err := j.db.WithContext(ctx).Where("file = ?", name).Order("id").Find(&events).Error
	return events, err
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
