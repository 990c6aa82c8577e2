package database_test

import (
	"context"
	"testing"

	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/mautops/shipchange-gin/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildDSN 测试 DSN 构建
func TestBuildDSN(t *testing.T) {
	dsn := database.BuildDSN(config.DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "ship", SSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ship sslmode=disable", dsn)
}

// TestGetPoolConfig 测试连接池默认值与覆盖
func TestGetPoolConfig(t *testing.T) {
	pool := database.GetPoolConfig(config.DatabaseConfig{}, false)
	assert.Equal(t, 10, pool.MaxIdleConns)
	assert.Equal(t, 600, pool.ConnMaxIdleTime)

	pool = database.GetPoolConfig(config.DatabaseConfig{MaxOpenConns: 50}, true)
	assert.Equal(t, 20, pool.MaxIdleConns)
	assert.Equal(t, 50, pool.MaxOpenConns)
	assert.Equal(t, 300, pool.ConnMaxIdleTime)
}

// TestMigrate_SQLite 测试 SQLite 迁移与健康检查
func TestMigrate_SQLite(t *testing.T) {
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, false)
	require.NoError(t, err)
	defer database.Close(db)

	require.NoError(t, database.Migrate(db))
	// 重复迁移应幂等
	require.NoError(t, database.Migrate(db))

	for _, table := range []string{"change_requests", "hardware_change_requests", "software_change_requests",
		"approvals", "audit_logs", "login_logs", "users", "roles", "ships", "components"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	assert.NoError(t, database.CheckHealth(context.Background(), db))
}

// TestCheckHealth_Nil 测试空连接
func TestCheckHealth_Nil(t *testing.T) {
	assert.Error(t, database.CheckHealth(context.Background(), nil))
}
