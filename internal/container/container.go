package container

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/shipchange-gin/internal/api"
	"github.com/mautops/shipchange-gin/internal/audit"
	"github.com/mautops/shipchange-gin/internal/auth"
	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/mautops/shipchange-gin/internal/database"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/mautops/shipchange-gin/internal/metrics"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/mautops/shipchange-gin/internal/service"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const metricsInterval = 30 * time.Second

// Container 依赖注入容器
// 管理数据库、审计、服务与后台任务
type Container struct {
	cfg *config.Config
	log *logrus.Logger
	db  *gorm.DB

	auditWriter *audit.Writer
	auditReader *audit.Reader
	verifier    auth.TokenVerifier

	changeRequests   *service.ChangeRequestService
	hardwareRequests *service.HardwareChangeRequestService
	softwareRequests *service.SoftwareChangeRequestService
	authService      service.AuthService
	loginLogs        service.LoginLogService
	ships            service.ShipService
	components       service.ComponentService

	bootstrap *service.AdminBootstrapper
	retention *service.RetentionScheduler
	collector *metrics.Collector
}

// NewContainer 创建依赖注入容器
func NewContainer(cfg *config.Config, log *logrus.Logger) (*Container, error) {
	log = logger.OrDefault(log)
	production := config.IsProduction(cfg)

	// 1. 数据库，重试 3 次，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, production, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return build(cfg, log, db)
}

// NewWithDB 基于已打开的数据库创建容器，调用方负责迁移
func NewWithDB(cfg *config.Config, log *logrus.Logger, db *gorm.DB) (*Container, error) {
	return build(cfg, logger.OrDefault(log), db)
}

func build(cfg *config.Config, log *logrus.Logger, db *gorm.DB) (*Container, error) {
	deletePolicy, err := service.DeletePolicyByName(cfg.Lifecycle.DeletePolicy)
	if err != nil {
		return nil, err
	}

	// 2. 审计写入与查询
	auditRepo := repository.NewAuditLogRepository(db)
	loginRepo := repository.NewLoginLogRepository(db)
	writer := audit.NewWriter(auditRepo, nil, log, cfg.Audit.WriteTimeout)
	reader := audit.NewReader(auditRepo, loginRepo)

	// 3. 变更申请服务
	opts := service.LifecycleOptions{
		NumberRetryLimit: cfg.Lifecycle.NumberRetryLimit,
		DeletePolicy:     deletePolicy,
		BatchWorkers:     cfg.Lifecycle.BatchWorkers,
		Log:              log,
	}

	// 4. 认证：本地 Token 优先，配置 Keycloak 时作为后备
	users := repository.NewUserRepository(db)
	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)
	issuer := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	verifiers := auth.ChainVerifier{issuer}
	if cfg.Keycloak.Issuer != "" {
		verifiers = append(verifiers, auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer, cfg.Keycloak.JWKSURL,
			func(ctx context.Context, username string) (*uint, error) {
				user, err := users.FindByUsername(ctx, username)
				if err != nil {
					return nil, err
				}
				return &user.ID, nil
			}))
	}
	if cfg.Auth.TokenSecret == "" {
		log.Warn("auth.token_secret is empty, local login is disabled")
	}

	loginLogs := service.NewLoginLogService(loginRepo, log)
	shipRepo := repository.NewShipRepository(db)

	c := &Container{
		cfg:              cfg,
		log:              log,
		db:               db,
		auditWriter:      writer,
		auditReader:      reader,
		verifier:         verifiers,
		changeRequests:   service.NewChangeRequestService(db, writer, opts),
		hardwareRequests: service.NewHardwareChangeRequestService(db, writer, opts),
		softwareRequests: service.NewSoftwareChangeRequestService(db, writer, opts),
		authService: service.NewAuthService(users, hasher, loginLogs, writer, issuer, service.AuthOptions{
			MaxFailedLogins: cfg.Auth.MaxFailedLogins,
			Lockout:         time.Duration(cfg.Auth.LockoutMinutes) * time.Minute,
			Log:             log,
		}),
		loginLogs:  loginLogs,
		ships:      service.NewShipService(shipRepo, writer),
		components: service.NewComponentService(shipRepo, writer),
		bootstrap:  service.NewAdminBootstrapper(db, hasher, writer, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, log),
		retention: service.NewRetentionScheduler(auditRepo, loginRepo, &service.RetentionScheduleConfig{
			Interval:  cfg.Retention.Interval,
			AuditDays: cfg.Retention.AuditDays,
			LoginDays: cfg.Retention.LoginDays,
		}, log),
		collector: metrics.NewCollector(db, metricsInterval, log),
	}
	return c, nil
}

// Start 初始化默认数据并启动后台任务
func (c *Container) Start(ctx context.Context) error {
	if err := c.bootstrap.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap defaults: %w", err)
	}
	c.retention.Start(ctx)
	c.collector.Start()
	return nil
}

// RouterDeps 构造路由依赖
func (c *Container) RouterDeps() api.RouterDeps {
	return api.RouterDeps{
		Config:           c.cfg,
		Logger:           c.log,
		DB:               c.db,
		Verifier:         c.verifier,
		ChangeRequests:   c.changeRequests,
		HardwareRequests: c.hardwareRequests,
		SoftwareRequests: c.softwareRequests,
		AuditReader:      c.auditReader,
		Auth:             c.authService,
		Logins:           c.loginLogs,
		Ships:            c.ships,
		Components:       c.components,
		Bootstrap:        c.bootstrap,
		Tracing:          c.cfg.Tracing.Enabled,
	}
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.log
}

// ChangeRequests 获取通用变更申请服务
func (c *Container) ChangeRequests() *service.ChangeRequestService {
	return c.changeRequests
}

// Retention 获取保留期清理调度器
func (c *Container) Retention() *service.RetentionScheduler {
	return c.retention
}

// Close 停止后台任务并关闭数据库
func (c *Container) Close() error {
	c.retention.Stop()
	c.collector.Stop()
	return database.Close(c.db)
}
