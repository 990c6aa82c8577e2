package service

import (
	"context"
	"sync"
	"time"

	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/mautops/shipchange-gin/internal/metrics"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// RetentionScheduler 审计日志与登录日志保留期清理调度器
type RetentionScheduler struct {
	audits   repository.AuditLogRepository
	logins   repository.LoginLogRepository
	config   *RetentionScheduleConfig
	log      *logrus.Logger
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// RetentionScheduleConfig 保留期配置
type RetentionScheduleConfig struct {
	Interval  time.Duration // 清理间隔
	AuditDays int           // 审计日志保留天数，0 表示不清理
	LoginDays int           // 登录日志保留天数，0 表示不清理
}

// SweepResult 一次清理的结果
type SweepResult struct {
	AuditDeleted int64
	LoginDeleted int64
}

// NewRetentionScheduler 创建保留期清理调度器
func NewRetentionScheduler(audits repository.AuditLogRepository, logins repository.LoginLogRepository, config *RetentionScheduleConfig, log *logrus.Logger) *RetentionScheduler {
	if config == nil {
		config = &RetentionScheduleConfig{Interval: 24 * time.Hour}
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}

	return &RetentionScheduler{
		audits:   audits,
		logins:   logins,
		config:   config,
		log:      logger.OrDefault(log),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start 启动清理调度，两类保留期都未配置时不启动
func (s *RetentionScheduler) Start(ctx context.Context) {
	if s.config.AuditDays <= 0 && s.config.LoginDays <= 0 {
		s.log.Debug("Retention sweep disabled")
		return
	}
	s.wg.Add(1)
	go s.schedule(ctx)
}

// Stop 停止清理调度
func (s *RetentionScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Config 获取保留期配置
func (s *RetentionScheduler) Config() *RetentionScheduleConfig {
	return s.config
}

func (s *RetentionScheduler) schedule(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.WithError(err).Error("Retention sweep failed")
			}
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep 删除超过保留期的审计日志与登录日志
func (s *RetentionScheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	if s.config.AuditDays > 0 {
		cutoff := now.AddDate(0, 0, -s.config.AuditDays)
		n, err := s.audits.DeleteBefore(ctx, cutoff)
		if err != nil {
			return result, err
		}
		result.AuditDeleted = n
		metrics.RecordRetentionDeleted("audit_logs", n)
	}

	if s.config.LoginDays > 0 {
		cutoff := now.AddDate(0, 0, -s.config.LoginDays)
		n, err := s.logins.DeleteBefore(ctx, cutoff)
		if err != nil {
			return result, err
		}
		result.LoginDeleted = n
		metrics.RecordRetentionDeleted("login_logs", n)
	}

	if result.AuditDeleted > 0 || result.LoginDeleted > 0 {
		s.log.WithFields(logrus.Fields{
			"audit_deleted": result.AuditDeleted,
			"login_deleted": result.LoginDeleted,
		}).Info("Expired log rows removed")
	}
	return result, nil
}
