package option

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/procura/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm statement before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryFunc func(db *gorm.DB) *gorm.DB

func (f queryFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ   Operator = "="
	NEQ  Operator = "<>"
	GT   Operator = ">"
	GTE  Operator = ">="
	LT   Operator = "<"
	LTE  Operator = "<="
	LIKE Operator = "LIKE"
	IN   Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single comparison. Field names are never taken from user input.
func ApplyOperator(c Condition) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		switch c.Operator {
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
		case LIKE:
			return db.Where(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", c.Field), c.Value)
		case "":
			return db.Where(fmt.Sprintf("%s = ?", c.Field), c.Value)
		default:
			return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
		}
	})
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{SortBy: sortBy, OrderBy: orderBy, Allow: allow}
}

// WithSortBy orders by an allow-listed column, newest first by default.
func WithSortBy(s QuerySortBy) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.ToLower(strings.TrimSpace(s.SortBy))
		if column == "" || !s.Allow[column] {
			column = "created_at"
		}
		direction := "DESC"
		if strings.EqualFold(strings.TrimSpace(s.OrderBy), "asc") {
			direction = "ASC"
		}
		return db.Order(fmt.Sprintf("%s %s", column, direction)).Order("id " + direction)
	})
}

// ForUpdate locks the selected rows until the transaction ends. Dialects
// without row locks (SQLite) drop the clause.
func ForUpdate() QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	})
}

// ApplyPagination limits the statement to one page plus a lookahead row.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		return db.Limit(page.Limit() + 1)
	})
}
