package repository

import (
	"fmt"
	"math"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestWhereBuilderRenumbersPlaceholders(t *testing.T) {
	w := newWhere().
		add("is_active = ?", true).
		eq("category", "").
		eq("category", "Orthodontics").
		contains("Brace_s", "title", "tags")

	assert.Equal(t, " WHERE is_active = $1 AND category = $2 AND (LOWER(COALESCE(title, '')) LIKE $3 OR LOWER(COALESCE(tags, '')) LIKE $4)", w.sql())
	assert.Equal(t, []interface{}{true, "Orthodontics", `%brace\_s%`, `%brace\_s%`}, w.params())
}

func TestWhereBuilderEmpty(t *testing.T) {
	w := newWhere().eq("role", "").contains("   ", "email")
	assert.Equal(t, "", w.sql())
	assert.Empty(t, w.params())
}

func TestOrderByFallsBackOnUnknownColumn(t *testing.T) {
	allowed := map[string]string{"created_at": "v.created_at", "title": "v.title"}
	assert.Equal(t, " ORDER BY v.title ASC", orderBy("TITLE", "asc", allowed, "created_at"))
	assert.Equal(t, " ORDER BY v.created_at DESC", orderBy("id; DROP TABLE videos", "sideways", allowed, "created_at"))
}

func TestPaginate(t *testing.T) {
	page, size, clause := paginate(0, 0, 12, 100)
	assert.Equal(t, 1, page)
	assert.Equal(t, 12, size)
	assert.Equal(t, " LIMIT 12 OFFSET 0", clause)

	_, size, clause = paginate(3, 500, 12, 100)
	assert.Equal(t, 100, size)
	assert.Equal(t, " LIMIT 100 OFFSET 200", clause)

	page, size, clause = paginate(math.MaxInt, 100, 12, 100)
	assert.Equal(t, 100, size)
	assert.Equal(t, math.MaxInt32/100+1, page)
	assert.Equal(t, fmt.Sprintf(" LIMIT 100 OFFSET %d", (math.MaxInt32/100)*100), clause)
}

func TestMapWriteErrorDetectsUniqueViolation(t *testing.T) {
	assert.ErrorIs(t, mapWriteError(&pq.Error{Code: "23505"}), ErrDuplicate)
	other := &pq.Error{Code: "23503"}
	assert.Equal(t, error(other), mapWriteError(other))
}
