package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/plugin"
)

// PluginAuditRecord captures a single plugin lifecycle transition for
// the compliance trail: who moved, from what state, to what state,
// and why.
type PluginAuditRecord struct {
	PluginID   string
	FromState  plugin.State
	ToState    plugin.State
	Reason     string
	OccurredAt time.Time
}

// AuditRepository persists plugin lifecycle transitions.
type AuditRepository interface {
	Save(ctx context.Context, record PluginAuditRecord) error
	ListByPlugin(ctx context.Context, pluginID string, limit int) ([]PluginAuditRecord, error)
	Close() error
}

// SQLAuditRepository is a MySQL-backed AuditRepository.
type SQLAuditRepository struct {
	db *sql.DB
}

// NewSQLAuditRepository opens a connection pool against cfg and
// ensures the audit table exists.
func NewSQLAuditRepository(ctx context.Context, cfg Config) (*SQLAuditRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := &SQLAuditRepository{db: db}
	if err := r.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLAuditRepository) initSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS plugin_audit_log (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	plugin_id VARCHAR(128) NOT NULL,
	from_state VARCHAR(32) NOT NULL,
	to_state VARCHAR(32) NOT NULL,
	reason VARCHAR(512) NOT NULL DEFAULT '',
	occurred_at DATETIME NOT NULL,
	INDEX idx_plugin_audit_plugin_id (plugin_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	_, err := r.db.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("初始化插件审计表失败: %w", err)
	}
	return nil
}

// Save inserts a new audit record.
func (r *SQLAuditRepository) Save(ctx context.Context, record PluginAuditRecord) error {
	const stmt = `
INSERT INTO plugin_audit_log (plugin_id, from_state, to_state, reason, occurred_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, stmt,
		record.PluginID, record.FromState, record.ToState, record.Reason, record.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("写入插件审计记录失败: %w", err)
	}
	return nil
}

// ListByPlugin returns the most recent audit records for pluginID,
// newest first, bounded by limit.
func (r *SQLAuditRepository) ListByPlugin(ctx context.Context, pluginID string, limit int) ([]PluginAuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const stmt = `
SELECT plugin_id, from_state, to_state, reason, occurred_at
FROM plugin_audit_log
WHERE plugin_id = ?
ORDER BY occurred_at DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, stmt, pluginID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询插件审计记录失败: %w", err)
	}
	defer rows.Close()

	records := make([]PluginAuditRecord, 0, limit)
	for rows.Next() {
		var rec PluginAuditRecord
		if err := rows.Scan(&rec.PluginID, &rec.FromState, &rec.ToState, &rec.Reason, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("解析插件审计记录失败: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the underlying connection pool.
func (r *SQLAuditRepository) Close() error {
	return r.db.Close()
}
