package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsPermissionDenied(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "pgx insufficient privilege", err: &pgconn.PgError{Code: "42501"}, expected: true},
		{name: "pq insufficient privilege", err: &pq.Error{Code: "42501"}, expected: true},
		{name: "wrapped pgx error", err: fmt.Errorf("create table: %w", &pgconn.PgError{Code: "42501"}), expected: true},
		{name: "sqlite readonly", err: errors.New("attempt to write a readonly database"), expected: true},
		{name: "other sqlstate", err: &pgconn.PgError{Code: "42P07"}, expected: false},
		{name: "plain error", err: errors.New("connection refused"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isPermissionDenied(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "gorm translated", err: gorm.ErrDuplicatedKey, expected: true},
		{name: "pgx", err: &pgconn.PgError{Code: "23505"}, expected: true},
		{name: "pq", err: &pq.Error{Code: "23505"}, expected: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: schema_migrations.name"), expected: true},
		{name: "not null", err: &pgconn.PgError{Code: "23502"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isUniqueViolation(tt.err))
		})
	}
}
