package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/mautops/shipchange-gin/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 根据配置补齐连接池参数，production 为 true 时使用生产默认值
func GetPoolConfig(cfg config.DatabaseConfig, production bool) *PoolConfig {
	pool := &PoolConfig{MaxIdleConns: 10, MaxOpenConns: 100, ConnMaxLifetime: 3600, ConnMaxIdleTime: 600}
	if production {
		pool = &PoolConfig{MaxIdleConns: 20, MaxOpenConns: 200, ConnMaxLifetime: 3600, ConnMaxIdleTime: 300}
	}
	if cfg.MaxIdleConns > 0 {
		pool.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns > 0 {
		pool.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}
	return pool
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}
}

// Connect 按配置的驱动连接数据库
func Connect(cfg config.DatabaseConfig, production bool) (*gorm.DB, error) {
	if cfg.Driver == "sqlite" {
		return OpenSQLite(cfg.Path)
	}

	db, err := gorm.Open(postgres.Open(BuildDSN(cfg)), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pool := GetPoolConfig(cfg, production)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// OpenSQLite 打开 SQLite 数据库，单连接以保证内存库与写锁一致
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Models 返回需要迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		&model.RoleModel{},
		&model.UserModel{},
		&model.ShipModel{},
		&model.ComponentModel{},
		&model.ChangeRequestModel{},
		&model.HardwareChangeRequestModel{},
		&model.SoftwareChangeRequestModel{},
		&model.ApprovalModel{},
		&model.AuditLogModel{},
		&model.LoginLogModel{},
	}
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// CreateIndexes 创建模型标签之外的组合索引
func CreateIndexes(db *gorm.DB) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"idx_login_logs_username_time", "CREATE INDEX IF NOT EXISTS idx_login_logs_username_time ON login_logs(username, timestamp)"},
		{"idx_audit_logs_type_time", "CREATE INDEX IF NOT EXISTS idx_audit_logs_type_time ON audit_logs(entity_type, timestamp)"},
		{"idx_change_requests_status_time", "CREATE INDEX IF NOT EXISTS idx_change_requests_status_time ON change_requests(status, created_at)"},
		{"idx_hw_requests_status_time", "CREATE INDEX IF NOT EXISTS idx_hw_requests_status_time ON hardware_change_requests(status, created_at)"},
		{"idx_sw_requests_status_time", "CREATE INDEX IF NOT EXISTS idx_sw_requests_status_time ON software_change_requests(status, created_at)"},
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt.sql).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}

	// PostgreSQL 特定的 GIN 索引
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_logs_new_values_gin ON audit_logs USING GIN ((new_values::jsonb))").Error; err != nil {
			return fmt.Errorf("failed to create idx_audit_logs_new_values_gin: %w", err)
		}
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接，间隔指数退避
func ConnectWithRetry(cfg config.DatabaseConfig, production bool, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg, production)
		if err == nil {
			return db, nil
		}
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
