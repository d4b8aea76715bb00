// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package postgres

import (
	"fmt"
	"strings"

	"github.com/rentloop/rentloop/internal/listing"
)

// queryBuilder accumulates AND-ed conditions with numbered placeholders.
type queryBuilder struct {
	conditions []string
	args       []any
	argID      int
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{argID: 1}
}

// add appends condition, where %s is the column and %d the placeholder index.
func (qb *queryBuilder) add(condition, column string, arg any) {
	qb.conditions = append(qb.conditions, fmt.Sprintf(condition, column, qb.argID))
	qb.args = append(qb.args, arg)
	qb.argID++
}

func (qb *queryBuilder) raw(condition string) {
	qb.conditions = append(qb.conditions, condition)
}

func (qb *queryBuilder) floatRange(column string, lo, hi *float64) {
	if lo != nil {
		qb.add("%s >= $%d", column, *lo)
	}
	if hi != nil {
		qb.add("%s <= $%d", column, *hi)
	}
}

// placeholder reserves the next argument slot for arg.
func (qb *queryBuilder) placeholder(arg any) string {
	p := fmt.Sprintf("$%d", qb.argID)
	qb.args = append(qb.args, arg)
	qb.argID++
	return p
}

func (qb *queryBuilder) where() string {
	if len(qb.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(qb.conditions, " AND ")
}

// escapeLike escapes LIKE metacharacters so a location filter is a literal
// substring match.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func applyQuery(q listing.Query) *queryBuilder {
	qb := newQueryBuilder()
	if !q.IncludeDeleted {
		qb.raw("deleted_at IS NULL")
	}
	if q.Status != "" {
		qb.add("%s = $%d", "status", string(q.Status))
	}
	if !q.OwnerID.IsZero() {
		qb.add("%s = $%d", "owner_id", q.OwnerID.String())
	}
	if q.Location != "" {
		qb.add("%s ILIKE $%d", "location", "%"+escapeLike(q.Location)+"%")
	}
	qb.floatRange("price", q.PriceMin, q.PriceMax)
	return qb
}
