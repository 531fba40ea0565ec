package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRepositoryTotals(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AS views_today")).
		WillReturnRows(sqlmock.NewRows([]string{"users", "active_users", "videos", "views", "views_today"}).AddRow(10, 8, 4, 100, 7))

	totals, err := repo.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), totals.ActiveUsers)
	assert.Equal(t, int64(7), totals.ViewsToday)
}

func TestStatsRepositoryDailyCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM video_views WHERE viewed_at >= CURRENT_DATE")).
		WithArgs(30).
		WillReturnRows(sqlmock.NewRows([]string{"date", "count"}).AddRow("2024-05-01", 5))

	counts, err := repo.DailyCounts(context.Background(), "views", 30)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(5), counts[0].Count)

	_, err = repo.DailyCounts(context.Background(), "grades", 30)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
