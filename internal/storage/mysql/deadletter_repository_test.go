package mysql

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/loudmantrade/RealEstatesAntiFraud/internal/events"
)

func newMockDeadLetterRepository(t *testing.T) (*SQLDeadLetterRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &SQLDeadLetterRepository{db: db}, mock
}

func TestDeadLetterRepositorySaveEnvelopeExtractsOriginalTopic(t *testing.T) {
	repo, mock := newMockDeadLetterRepository(t)
	envelope, err := events.New(events.TopicListingsRaw, map[string]string{"listing_id": "l1"})
	require.NoError(t, err)
	dead := envelope.ToDeadLetter()

	mock.ExpectExec("INSERT INTO dead_letter_events").
		WithArgs(dead.EventID, "listings.raw", string(dead.Payload), "validation failed", dead.RetryCount, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.SaveEnvelope(context.Background(), dead, "validation failed")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadLetterRepositoryListReturnsRecords(t *testing.T) {
	repo, mock := newMockDeadLetterRepository(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"event_id", "original_topic", "payload", "reason", "retry_count", "occurred_at"}).
		AddRow("evt-1", "listings.raw", `{}`, "validation failed", 0, now)

	mock.ExpectQuery("SELECT .* FROM dead_letter_events").
		WithArgs(100).
		WillReturnRows(rows)

	records, err := repo.List(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "evt-1", records[0].EventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadLetterRepositoryPurgeReturnsAffectedRowCount(t *testing.T) {
	repo, mock := newMockDeadLetterRepository(t)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec("DELETE FROM dead_letter_events").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.Purge(context.Background(), cutoff)

	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
