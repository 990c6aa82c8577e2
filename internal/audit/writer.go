package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mautops/shipchange-gin/internal/auth"
	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/mautops/shipchange-gin/internal/metrics"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	// SystemUser 无认证操作人时的审计用户名
	SystemUser = "System"
	// RecoveryUser 兜底审计记录的用户名
	RecoveryUser = "System (Error Recovery)"

	defaultWriteTimeout = 5 * time.Second
)

// Entry 一条待写入的审计记录
type Entry struct {
	EntityType     string
	Action         string
	EntityID       string
	EntityName     string
	OldValues      map[string]interface{}
	NewValues      map[string]interface{}
	AdditionalInfo string
}

// Writer 审计写入器，主写入失败时写入兜底记录，任何失败都不会返回给调用方
type Writer struct {
	repo     repository.AuditLogRepository
	registry *Registry
	log      *logrus.Logger
	timeout  time.Duration
	now      func() time.Time
}

// NewWriter 创建审计写入器
func NewWriter(repo repository.AuditLogRepository, registry *Registry, log *logrus.Logger, timeout time.Duration) *Writer {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Writer{
		repo:     repo,
		registry: registry,
		log:      logger.OrDefault(log),
		timeout:  timeout,
		now:      time.Now,
	}
}

// RecordCreate 记录实体创建
func (w *Writer) RecordCreate(ctx context.Context, entity interface{}) {
	meta := w.registry.Describe(entity)
	w.Record(ctx, Entry{
		EntityType: meta.Kind,
		Action:     model.AuditActionCreate,
		EntityID:   meta.ID,
		EntityName: meta.Name,
		NewValues:  meta.Fields,
	})
}

// RecordUpdate 记录实体更新，info 为空时不写附加信息
func (w *Writer) RecordUpdate(ctx context.Context, before, after interface{}, info string) {
	oldMeta := w.registry.Describe(before)
	newMeta := w.registry.Describe(after)
	w.Record(ctx, Entry{
		EntityType:     newMeta.Kind,
		Action:         model.AuditActionUpdate,
		EntityID:       newMeta.ID,
		EntityName:     newMeta.Name,
		OldValues:      oldMeta.Fields,
		NewValues:      newMeta.Fields,
		AdditionalInfo: info,
	})
}

// RecordDelete 记录实体删除
func (w *Writer) RecordDelete(ctx context.Context, entity interface{}) {
	meta := w.registry.Describe(entity)
	w.Record(ctx, Entry{
		EntityType: meta.Kind,
		Action:     model.AuditActionDelete,
		EntityID:   meta.ID,
		EntityName: meta.Name,
		OldValues:  meta.Fields,
	})
}

// RecordAction 记录自定义动作
func (w *Writer) RecordAction(ctx context.Context, entity interface{}, action, info string) {
	meta := w.registry.Describe(entity)
	w.Record(ctx, Entry{
		EntityType:     meta.Kind,
		Action:         action,
		EntityID:       meta.ID,
		EntityName:     meta.Name,
		AdditionalInfo: info,
	})
}

// Record 写入审计记录
func (w *Writer) Record(ctx context.Context, entry Entry) {
	if entry.EntityID == "" {
		entry.EntityID = UnknownID
	}

	primaryErr := w.writePrimary(ctx, entry)
	if primaryErr == nil {
		metrics.RecordAuditWrite("primary")
		return
	}

	fields := logrus.Fields{
		"entity_type": entry.EntityType,
		"action":      entry.Action,
		"entity_id":   entry.EntityID,
	}
	w.log.WithFields(fields).WithError(primaryErr).Warn("Audit write failed, writing recovery record")

	fallbackErr := w.writeFallback(ctx, entry, primaryErr)
	if fallbackErr == nil {
		metrics.RecordAuditWrite("fallback")
		return
	}

	metrics.RecordAuditWrite("failed")
	failure := &errs.AuditWriteError{
		EntityType: entry.EntityType,
		Action:     entry.Action,
		EntityID:   entry.EntityID,
		Primary:    primaryErr,
		Fallback:   fallbackErr,
	}
	w.log.WithFields(fields).
		WithField("entity_name", entry.EntityName).
		WithField("additional_info", entry.AdditionalInfo).
		WithError(failure).
		Error("Audit trail entry lost")
}

func (w *Writer) writePrimary(ctx context.Context, entry Entry) error {
	oldValues, err := encodeValues(entry.OldValues)
	if err != nil {
		return fmt.Errorf("failed to serialize old values: %w", err)
	}
	newValues, err := encodeValues(entry.NewValues)
	if err != nil {
		return fmt.Errorf("failed to serialize new values: %w", err)
	}

	row := &model.AuditLogModel{
		EntityType:     entry.EntityType,
		Action:         entry.Action,
		EntityID:       entry.EntityID,
		EntityName:     entry.EntityName,
		OldValues:      oldValues,
		NewValues:      newValues,
		AdditionalInfo: entry.AdditionalInfo,
		UserName:       SystemUser,
		IPAddress:      auth.ClientFromContext(ctx).IPAddress,
		Timestamp:      w.now(),
	}
	if actor, ok := auth.ActorFromContext(ctx); ok {
		row.UserID = actor.UserID
		if actor.Username != "" {
			row.UserName = actor.Username
		}
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.repo.Create(ctx, row)
}

// writeFallback 兜底记录不受调用方取消影响
func (w *Writer) writeFallback(ctx context.Context, entry Entry, cause error) error {
	row := &model.AuditLogModel{
		EntityType:     entry.EntityType,
		Action:         entry.Action,
		EntityID:       entry.EntityID,
		EntityName:     entry.EntityName,
		AdditionalInfo: fmt.Sprintf("Audit logging failed: %v", cause),
		UserName:       RecoveryUser,
		Timestamp:      w.now(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	return w.repo.Create(ctx, row)
}

func encodeValues(values map[string]interface{}) (datatypes.JSON, error) {
	if values == nil {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
