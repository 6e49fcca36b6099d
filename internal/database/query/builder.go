// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package query builds parameterized WHERE clauses for the database package.
package query

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder accumulates AND-ed conditions and their arguments.
//
//	wb := query.NewWhereBuilder()
//	wb.Eq("job_name", name).Since("created_at", since)
//	where, args := wb.Build()
//	// job_name = ? AND created_at >= ?
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder returns an empty builder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// AddClause adds a raw condition with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// Eq adds "column = ?" unless value is empty.
func (wb *WhereBuilder) Eq(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.AddClause(column+" = ?", value)
}

// In adds "column IN (?, ...)" unless values is empty.
func (wb *WhereBuilder) In(column string, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		wb.args = append(wb.args, v)
	}
	wb.clauses = append(wb.clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	return wb
}

// Since adds "column >= ?" when t is non-nil.
func (wb *WhereBuilder) Since(column string, t *time.Time) *WhereBuilder {
	if t == nil {
		return wb
	}
	return wb.AddClause(column+" >= ?", t.UTC())
}

// Build joins the clauses with AND. With no clauses it returns "1=1".
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// ClampLimit bounds a caller-supplied LIMIT.
func ClampLimit(limit, def, maxLimit int) int {
	switch {
	case limit <= 0:
		return def
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
