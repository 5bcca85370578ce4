package mysql

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/plugin"
)

func newMockAuditRepository(t *testing.T) (*SQLAuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &SQLAuditRepository{db: db}, mock
}

func TestAuditRepositorySaveInsertsRecord(t *testing.T) {
	repo, mock := newMockAuditRepository(t)
	mock.ExpectExec("INSERT INTO plugin_audit_log").
		WithArgs("plugin-detection-a", plugin.StateDisabled, plugin.StateEnabled, "manual enable", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Save(context.Background(), PluginAuditRecord{
		PluginID:   "plugin-detection-a",
		FromState:  plugin.StateDisabled,
		ToState:    plugin.StateEnabled,
		Reason:     "manual enable",
		OccurredAt: time.Now(),
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListByPluginReturnsRowsNewestFirst(t *testing.T) {
	repo, mock := newMockAuditRepository(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"plugin_id", "from_state", "to_state", "reason", "occurred_at"}).
		AddRow("plugin-detection-a", "enabled", "disabled", "rollback", now).
		AddRow("plugin-detection-a", "disabled", "enabled", "manual enable", now.Add(-time.Hour))

	mock.ExpectQuery("SELECT .* FROM plugin_audit_log").
		WithArgs("plugin-detection-a", 50).
		WillReturnRows(rows)

	records, err := repo.ListByPlugin(context.Background(), "plugin-detection-a", 0)

	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "rollback", records[0].Reason)
	require.Equal(t, plugin.StateDisabled, records[0].ToState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCloseClosesUnderlyingPool(t *testing.T) {
	repo, mock := newMockAuditRepository(t)
	mock.ExpectClose()

	require.NoError(t, repo.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
