package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Aidin1998/swaptrade/internal/database"
)

// NewTestDB opens an isolated in-memory SQLite database with the swaptrade schema
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := database.NewSQLiteDB(dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Dec parses a decimal literal and panics on malformed input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// AssertDecimalEqual fails unless expected and actual are numerically equal
func AssertDecimalEqual(t testing.TB, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	want := Dec(expected)
	require.Truef(t, want.Equal(actual), "expected %s, got %s %v", want, actual, msgAndArgs)
}
