package main

import (
	"time"

	"github.com/sirupsen/logrus"
)

// CleanupRecord is the audit row written after each cleanup run. It stores
// counts only; message content is never persisted.
type CleanupRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Host      string    `gorm:"index;not null" json:"host"`
	Requested int       `json:"requested"`
	Deleted   int       `json:"deleted"`
	Failed    int       `json:"failed"`
	DryRun    bool      `json:"dry_run"`
	RanAt     time.Time `gorm:"index" json:"ran_at"`
}

// InsertCleanupRecord persists one audit row.
func (store *ContactStore) InsertCleanupRecord(record *CleanupRecord) error {
	return store.db.Create(record).Error
}

// recordCleanup writes the audit row best-effort; a storage failure is
// logged and never fails the cleanup that produced it.
func (gateway *Gateway) recordCleanup(host string, requested, deleted, failed int, dryRun bool) {
	if gateway.Store == nil {
		return
	}
	err := gateway.Store.InsertCleanupRecord(&CleanupRecord{
		Host:      host,
		Requested: requested,
		Deleted:   deleted,
		Failed:    failed,
		DryRun:    dryRun,
		RanAt:     time.Now().UTC(),
	})
	if err != nil {
		logf := LoggingFormat{
			Type:    LogType.Store,
			Level:   logrus.ErrorLevel,
			Message: "failed to write cleanup audit record",
			Error:   err,
		}
		logf.AddField("host", host)
		logf.Print()
	}
}
