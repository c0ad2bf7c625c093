package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/angelmondragon/credits-backend/pkg/db/models"
	"github.com/angelmondragon/credits-backend/pkg/enums"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func TestValidateShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad_name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_no_down.sql"), []byte("-- +goose Up\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Usage Index!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_usage_index.sql"))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, "sqlite3", DialectFor(config.DBConfig{Driver: "sqlite"}))
	assert.Equal(t, "postgres", DialectFor(config.DBConfig{Driver: "postgres"}))
}

func TestMigrationsApplyAndMatchModels(t *testing.T) {
	conn := openSQLite(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, Run(ctx, sqlDB, "sqlite3", "migrations", "up"))

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		UserID:             "u1",
		Plan:               enums.PlanTrial,
		TrialRemaining:     5,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
	require.NoError(t, conn.Create(sub).Error)
	require.NoError(t, conn.Create(&models.UsageRecord{UserID: "u1", CreditsUsed: 1, Timestamp: now}).Error)

	dup := &models.Subscription{UserID: "u1", Plan: enums.PlanTrial, CurrentPeriodStart: now, CurrentPeriodEnd: now}
	assert.Error(t, conn.Create(dup).Error, "user_id must be unique")

	assert.Error(t, conn.Create(&models.UsageRecord{UserID: "u1", CreditsUsed: 0, Timestamp: now}).Error, "credits_used must be positive")

	var count int64
	require.NoError(t, conn.Model(&models.UsageRecord{}).Where("user_id = ?", "u1").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	require.NoError(t, MigrateToVersion(ctx, sqlDB, "sqlite3", "migrations", "20250301000000"))
	assert.False(t, conn.Migrator().HasTable("usage_records"))
	assert.True(t, conn.Migrator().HasTable("subscriptions"))
}
