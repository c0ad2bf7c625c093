// Package dbtest opens isolated in-memory databases for package tests.
package dbtest

import (
	"testing"

	"github.com/angelmondragon/credits-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open returns a private sqlite database with the credit tables migrated.
// The pool is capped at one connection so transactions serialize.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&models.Subscription{}, &models.UsageRecord{}))
	return conn
}
