package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when an insert or update violates a unique index.
var ErrDuplicate = errors.New("duplicate key")

const uniqueViolation = "23505"

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

// whereBuilder composes AND-ed SQL conditions with positional parameters.
// Conditions use ? as a placeholder; they are renumbered to $n on render.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func newWhere() *whereBuilder {
	return &whereBuilder{}
}

func (w *whereBuilder) add(cond string, args ...interface{}) *whereBuilder {
	var b strings.Builder
	n := 0
	for _, r := range cond {
		if r == '?' && n < len(args) {
			w.args = append(w.args, args[n])
			fmt.Fprintf(&b, "$%d", len(w.args))
			n++
			continue
		}
		b.WriteRune(r)
	}
	w.conditions = append(w.conditions, b.String())
	return w
}

// eq adds column = value when value is non-empty.
func (w *whereBuilder) eq(column string, value string) *whereBuilder {
	if value == "" {
		return w
	}
	return w.add(column+" = ?", value)
}

// contains adds a case-insensitive substring match over any of columns.
func (w *whereBuilder) contains(term string, columns ...string) *whereBuilder {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return w
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	parts := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, fmt.Sprintf("LOWER(COALESCE(%s, '')) LIKE ?", col))
		args = append(args, pattern)
	}
	return w.add("("+strings.Join(parts, " OR ")+")", args...)
}

func (w *whereBuilder) sql() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

func (w *whereBuilder) params() []interface{} {
	return w.args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// orderBy resolves a client sort key through a whitelist of SQL expressions.
func orderBy(sortBy, sortOrder string, allowed map[string]string, fallback string) string {
	expr, ok := allowed[strings.ToLower(sortBy)]
	if !ok {
		expr = allowed[fallback]
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", expr, order)
}

// maxOffset keeps OFFSET inside a Postgres integer however large page is.
const maxOffset = math.MaxInt32

// paginate normalises page inputs and returns the LIMIT/OFFSET clause.
func paginate(page, size, defaultSize, maxSize int) (int, int, string) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	if limit := maxOffset/size + 1; page > limit {
		page = limit
	}
	return page, size, fmt.Sprintf(" LIMIT %d OFFSET %d", size, (page-1)*size)
}

// IsNotFound reports whether err is a missing-row error from a repository.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
