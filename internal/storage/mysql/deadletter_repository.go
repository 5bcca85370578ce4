package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/events"
)

// DeadLetterRecord is the archived form of an envelope that exhausted
// its retry budget or was rejected outright.
type DeadLetterRecord struct {
	EventID        string
	OriginalTopic  string
	Payload        string
	Reason         string
	RetryCount     int
	OccurredAt     time.Time
}

// DeadLetterRepository persists and triages dead-lettered events.
type DeadLetterRepository interface {
	Save(ctx context.Context, record DeadLetterRecord) error
	SaveEnvelope(ctx context.Context, e events.Envelope, reason string) error
	List(ctx context.Context, limit int) ([]DeadLetterRecord, error)
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}

// SQLDeadLetterRepository is a MySQL-backed DeadLetterRepository.
type SQLDeadLetterRepository struct {
	db *sql.DB
}

// NewSQLDeadLetterRepository opens a connection pool against cfg and
// ensures the dead-letter table exists.
func NewSQLDeadLetterRepository(ctx context.Context, cfg Config) (*SQLDeadLetterRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := &SQLDeadLetterRepository{db: db}
	if err := r.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLDeadLetterRepository) initSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS dead_letter_events (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	event_id VARCHAR(64) NOT NULL,
	original_topic VARCHAR(64) NOT NULL,
	payload JSON NOT NULL,
	reason VARCHAR(512) NOT NULL DEFAULT '',
	retry_count INT NOT NULL DEFAULT 0,
	occurred_at DATETIME NOT NULL,
	UNIQUE KEY uq_dead_letter_event_id (event_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	_, err := r.db.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("初始化死信事件表失败: %w", err)
	}
	return nil
}

// SaveEnvelope archives an envelope already retopicked onto
// events.TopicDeadLetter, extracting its original topic tag.
func (r *SQLDeadLetterRepository) SaveEnvelope(ctx context.Context, e events.Envelope, reason string) error {
	return r.Save(ctx, DeadLetterRecord{
		EventID:       e.EventID,
		OriginalTopic: e.Tags["original_topic"],
		Payload:       string(e.Payload),
		Reason:        reason,
		RetryCount:    e.RetryCount,
		OccurredAt:    time.Now().UTC(),
	})
}

// Save inserts a dead-letter record. When the event id is already
// archived, it overwrites that row's reason, retry count and time.
func (r *SQLDeadLetterRepository) Save(ctx context.Context, record DeadLetterRecord) error {
	const stmt = `
INSERT INTO dead_letter_events (event_id, original_topic, payload, reason, retry_count, occurred_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE reason = VALUES(reason), retry_count = VALUES(retry_count), occurred_at = VALUES(occurred_at)`
	_, err := r.db.ExecContext(ctx, stmt,
		record.EventID, record.OriginalTopic, record.Payload, record.Reason, record.RetryCount, record.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("写入死信事件失败: %w", err)
	}
	return nil
}

// List returns the most recent dead-letter records, newest first.
func (r *SQLDeadLetterRepository) List(ctx context.Context, limit int) ([]DeadLetterRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const stmt = `
SELECT event_id, original_topic, payload, reason, retry_count, occurred_at
FROM dead_letter_events
ORDER BY occurred_at DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("查询死信事件失败: %w", err)
	}
	defer rows.Close()

	records := make([]DeadLetterRecord, 0, limit)
	for rows.Next() {
		var rec DeadLetterRecord
		if err := rows.Scan(&rec.EventID, &rec.OriginalTopic, &rec.Payload, &rec.Reason, &rec.RetryCount, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("解析死信事件失败: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Purge deletes dead-letter records older than olderThan, returning
// the number of rows removed.
func (r *SQLDeadLetterRepository) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	const stmt = `DELETE FROM dead_letter_events WHERE occurred_at < ?`
	res, err := r.db.ExecContext(ctx, stmt, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("清理死信事件失败: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the underlying connection pool.
func (r *SQLDeadLetterRepository) Close() error {
	return r.db.Close()
}
