package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dentvid-api/internal/models"
)

var videoRowColumns = []string{"id", "title", "description", "filename", "original_name", "file_path", "thumbnail_path",
	"file_size", "duration", "category", "tags", "uploaded_by", "is_active", "created_at", "updated_at",
	"first_name", "last_name", "view_count"}

func videoRow(rows *sqlmock.Rows, id int64, title string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, title, nil, "clip_1.mp4", "clip.mov", "/uploads/user_1/clip_1.mp4", nil,
		int64(1000), 30, "Orthodontics", "braces", int64(1), true, now, now, "Ada", "Lovelace", int64(3))
}

func TestVideoRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO videos")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	video := &models.Video{Title: "Test A", Filename: "a.mp4", OriginalName: "a.mov", FilePath: "/u/a.mp4", FileSize: 10, Duration: 30, UploadedBy: 1}
	require.NoError(t, repo.Create(context.Background(), video))
	assert.Equal(t, int64(7), video.ID)
	assert.True(t, video.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepositoryGetActiveFiltersInactive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE v.id = $1 AND v.is_active = TRUE")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(videoRowColumns))

	_, err := repo.GetActive(context.Background(), 3)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE v.is_active = $1 AND v.category = $2 AND (LOWER(COALESCE(v.title, '')) LIKE $3")).
		WithArgs(true, "Orthodontics", "%brace%", "%brace%", "%brace%").
		WillReturnRows(videoRow(sqlmock.NewRows(videoRowColumns), 1, "Braces 101"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM videos v WHERE v.is_active = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.VideoFilter{Category: "Orthodontics", Search: "Brace", SortBy: "views", SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, int64(3), items[0].ViewCount)
	assert.Equal(t, "Ada", items[0].UploaderFirstName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepositoryListDefaultOrdering(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE v.is_active = $1 ORDER BY v.created_at DESC LIMIT 12 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(videoRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM videos v")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), models.VideoFilter{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepositoryUpdatePatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	title := "New"
	tags := "a,b"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE videos SET title = $1, tags = $2, updated_at = $3 WHERE id = $4 AND is_active = TRUE")).
		WithArgs(title, tags, sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), 2, models.VideoPatch{Title: &title, Tags: &tags}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE videos SET is_active = FALSE")).
		WithArgs(int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE videos SET is_active = FALSE")).
		WithArgs(int64(4), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SoftDelete(context.Background(), 4))
	assert.True(t, IsNotFound(repo.SoftDelete(context.Background(), 4)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepositoryActiveCategories(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewVideoRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT category FROM videos")).
		WillReturnRows(sqlmock.NewRows([]string{"category"}).AddRow("Endodontics").AddRow("Orthodontics"))

	cats, err := repo.ActiveCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Endodontics", "Orthodontics"}, cats)
}
