package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/mautops/shipchange-gin/internal/metrics"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/mautops/shipchange-gin/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultNumberRetryLimit = 5

// AuditRecorder 生命周期服务依赖的审计写入能力，由 *audit.Writer 实现
type AuditRecorder interface {
	RecordCreate(ctx context.Context, entity interface{})
	RecordUpdate(ctx context.Context, before, after interface{}, info string)
	RecordDelete(ctx context.Context, entity interface{})
}

// LifecycleOptions 生命周期服务选项
type LifecycleOptions struct {
	NumberRetryLimit int
	DeletePolicy     DeletePolicy
	BatchWorkers     int
	Numbers          NumberGenerator
	Now              func() time.Time
	Log              *logrus.Logger
}

// typeResolver 校验并补全申请类型
type typeResolver func(t model.RequestType) (model.RequestType, error)

// RequestService 变更申请生命周期服务，三类申请共用
type RequestService[T any, PT repository.RequestPtr[T]] struct {
	db           *gorm.DB
	requests     repository.RequestRepository[T, PT]
	approvals    repository.ApprovalRepository
	audit        AuditRecorder
	kind         string
	resolveType  typeResolver
	numbers      NumberGenerator
	retryLimit   int
	deletePolicy DeletePolicy
	batchWorkers int
	now          func() time.Time
	log          *logrus.Logger
	locks        *keyedMutex
}

func newRequestService[T any, PT repository.RequestPtr[T]](db *gorm.DB, recorder AuditRecorder, resolve typeResolver, opts LifecycleOptions) *RequestService[T, PT] {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if opts.Numbers == nil {
		opts.Numbers = NewRequestNumberGenerator()
	}
	if opts.NumberRetryLimit <= 0 {
		opts.NumberRetryLimit = defaultNumberRetryLimit
	}
	if opts.DeletePolicy == nil {
		opts.DeletePolicy = PermissiveDelete
	}
	if opts.BatchWorkers <= 0 {
		opts.BatchWorkers = defaultBatchWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &RequestService[T, PT]{
		db:           db,
		requests:     repository.NewRequestRepository[T, PT](db),
		approvals:    repository.NewApprovalRepository(db),
		audit:        recorder,
		kind:         PT(new(T)).AuditKind(),
		resolveType:  resolve,
		numbers:      opts.Numbers,
		retryLimit:   opts.NumberRetryLimit,
		deletePolicy: opts.DeletePolicy,
		batchWorkers: opts.BatchWorkers,
		now:          opts.Now,
		log:          logger.OrDefault(opts.Log),
		locks:        newKeyedMutex(),
	}
}

// ChangeRequestService 通用变更申请服务
type ChangeRequestService = RequestService[model.ChangeRequestModel, *model.ChangeRequestModel]

// HardwareChangeRequestService 硬件变更申请服务
type HardwareChangeRequestService = RequestService[model.HardwareChangeRequestModel, *model.HardwareChangeRequestModel]

// SoftwareChangeRequestService 软件变更申请服务
type SoftwareChangeRequestService = RequestService[model.SoftwareChangeRequestModel, *model.SoftwareChangeRequestModel]

// NewChangeRequestService 创建通用变更申请服务
func NewChangeRequestService(db *gorm.DB, recorder AuditRecorder, opts LifecycleOptions) *ChangeRequestService {
	return newRequestService[model.ChangeRequestModel, *model.ChangeRequestModel](db, recorder, resolveGenericType, opts)
}

// NewHardwareChangeRequestService 创建硬件变更申请服务
func NewHardwareChangeRequestService(db *gorm.DB, recorder AuditRecorder, opts LifecycleOptions) *HardwareChangeRequestService {
	return newRequestService[model.HardwareChangeRequestModel, *model.HardwareChangeRequestModel](db, recorder, fixedType(model.TypeHardware), opts)
}

// NewSoftwareChangeRequestService 创建软件变更申请服务
func NewSoftwareChangeRequestService(db *gorm.DB, recorder AuditRecorder, opts LifecycleOptions) *SoftwareChangeRequestService {
	return newRequestService[model.SoftwareChangeRequestModel, *model.SoftwareChangeRequestModel](db, recorder, fixedType(model.TypeSoftware), opts)
}

func resolveGenericType(t model.RequestType) (model.RequestType, error) {
	t = model.RequestType(strings.ToUpper(strings.TrimSpace(string(t))))
	switch t {
	case "":
		return model.TypeGeneric, nil
	case model.TypeSystemPlan, model.TypeService, model.TypeSystem, model.TypeGeneric:
		return t, nil
	case model.TypeHardware, model.TypeSoftware:
		return "", errs.NewValidationError("type", "hardware and software changes use their dedicated request forms")
	default:
		return "", errs.NewValidationError("type", fmt.Sprintf("unknown request type %q", t))
	}
}

func fixedType(want model.RequestType) typeResolver {
	return func(t model.RequestType) (model.RequestType, error) {
		if t != "" && t != want {
			return "", errs.NewValidationError("type", fmt.Sprintf("request type must be %s", want))
		}
		return want, nil
	}
}

// Kind 返回申请类别名称
func (s *RequestService[T, PT]) Kind() string {
	return s.kind
}

// Create 创建草稿申请并分配申请编号
func (s *RequestService[T, PT]) Create(ctx context.Context, req PT) (PT, error) {
	if req == nil {
		return nil, errs.NewValidationError("request", "is required")
	}

	// 规范化与校验
	req.Normalize()
	base := req.Base()
	t, err := s.resolveType(base.Type)
	if err != nil {
		return nil, err
	}
	base.Type = t
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, errs.NewValidationError(s.kind, err.Error())
	}

	now := s.now()
	base.ID = 0
	base.Status = model.StatusDraft
	base.CreatedAt = now
	base.PreparedAt, base.ReviewedAt, base.ApprovedAt, base.RejectedAt, base.ImplementedAt = nil, nil, nil, nil, nil

	// 编号冲突时重新生成并重试
	assignNumber := base.RequestNumber == ""
	for attempt := 1; ; attempt++ {
		if assignNumber {
			number, err := s.numbers.Next(ctx, s.requests, base.Type, now)
			if err != nil {
				return nil, fmt.Errorf("failed to generate request number: %w", err)
			}
			base.RequestNumber = number
		}

		err := s.requests.Create(ctx, req)
		if err == nil {
			break
		}
		base.ID = 0
		if !errs.IsDuplicateKey(err) {
			s.log.WithFields(logrus.Fields{
				"entity_type":    s.kind,
				"action":         model.AuditActionCreate,
				"request_number": base.RequestNumber,
			}).WithError(err).Error("Failed to create change request")
			return nil, fmt.Errorf("failed to create %s: %w", s.kind, err)
		}
		if !assignNumber || attempt >= s.retryLimit {
			return nil, &errs.ConflictError{
				Resource: "request_number",
				Message:  fmt.Sprintf("could not assign a unique request number after %d attempts", attempt),
				Err:      err,
			}
		}
		metrics.RecordNumberRetry(s.kind)
		s.log.WithFields(logrus.Fields{
			"entity_type":    s.kind,
			"request_number": base.RequestNumber,
			"attempt":        attempt,
		}).Debug("Request number taken, retrying")
	}

	metrics.RecordRequestCreated(s.kind)
	s.audit.RecordCreate(ctx, req)
	return req, nil
}

// Get 获取申请，不存在时返回 errs.ErrNotFound
func (s *RequestService[T, PT]) Get(ctx context.Context, id uint) (PT, error) {
	return s.requests.FindByID(ctx, id)
}

// List 分页查询申请
func (s *RequestService[T, PT]) List(ctx context.Context, filter *repository.RequestFilter) ([]PT, int64, error) {
	return s.requests.FindByFilter(ctx, filter)
}

// GetApprovals 按阶段顺序返回申请的审批台账
func (s *RequestService[T, PT]) GetApprovals(ctx context.Context, id uint) ([]*model.ApprovalModel, error) {
	return s.approvals.FindByRequest(ctx, s.kind, id)
}

// Update 修改草稿申请的可编辑字段，编号、状态与流程字段保持不变
func (s *RequestService[T, PT]) Update(ctx context.Context, id uint, apply func(PT)) (PT, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var before, after PT
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := s.requests.WithTx(tx)
		current, err := requests.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Base().Status != model.StatusDraft {
			return errs.ErrInvalidTransition
		}
		prev := *current
		before = PT(&prev)

		orig := *current.Base()
		apply(current)
		current.Normalize()
		restoreProtected(current.Base(), orig)

		if err := utils.ValidateStruct(current); err != nil {
			return err
		}
		if err := current.Validate(); err != nil {
			return errs.NewValidationError(s.kind, err.Error())
		}
		if err := requests.Save(ctx, current); err != nil {
			return fmt.Errorf("failed to save %s: %w", s.kind, err)
		}
		after = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.RecordUpdate(ctx, before, after, "")
	return after, nil
}

// restoreProtected 只保留草稿可编辑的公共字段
func restoreProtected(b *model.RequestBase, orig model.RequestBase) {
	edited := *b
	*b = orig
	b.Title = edited.Title
	b.RequesterName = edited.RequesterName
	b.Purpose = edited.Purpose
	b.Description = edited.Description
	b.WorkDetail = edited.WorkDetail
	b.ShipID = edited.ShipID
}

// SubmitForApproval 草稿提交审批，台账记录第 1 阶段
func (s *RequestService[T, PT]) SubmitForApproval(ctx context.Context, id uint, actorID uint) (bool, error) {
	return s.transit(ctx, transition{
		id:      id,
		actorID: actorID,
		action:  model.ApprovalActionSubmitted,
		from:    []model.RequestStatus{model.StatusDraft},
		to:      model.StatusSubmitted,
		apply: func(b *model.RequestBase, now time.Time) {
			b.PreparedAt = &now
		},
	})
}

// Review 审阅已提交的申请
func (s *RequestService[T, PT]) Review(ctx context.Context, id uint, reviewerID uint, comment string) (bool, error) {
	comment = strings.TrimSpace(comment)
	return s.transit(ctx, transition{
		id:      id,
		actorID: reviewerID,
		action:  model.ApprovalActionUnderReview,
		comment: comment,
		from:    []model.RequestStatus{model.StatusSubmitted},
		to:      model.StatusUnderReview,
		apply: func(b *model.RequestBase, now time.Time) {
			b.ReviewerID = uintPtr(reviewerID)
			b.ReviewComment = comment
			b.ReviewedAt = &now
		},
	})
}

// Approve 批准申请，可跳过审阅直接从已提交状态批准
func (s *RequestService[T, PT]) Approve(ctx context.Context, id uint, actorID uint, comment string) (bool, error) {
	return s.transit(ctx, transition{
		id:      id,
		actorID: actorID,
		action:  model.ApprovalActionApproved,
		comment: strings.TrimSpace(comment),
		from:    []model.RequestStatus{model.StatusSubmitted, model.StatusUnderReview},
		to:      model.StatusApproved,
		apply: func(b *model.RequestBase, now time.Time) {
			b.ApproverID = uintPtr(actorID)
			b.ApprovedAt = &now
		},
	})
}

// Reject 驳回申请，驳回原因必填
func (s *RequestService[T, PT]) Reject(ctx context.Context, id uint, actorID uint, reason string) (bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, errs.NewValidationError("reason", "is required")
	}
	return s.transit(ctx, transition{
		id:      id,
		actorID: actorID,
		action:  model.ApprovalActionRejected,
		comment: reason,
		from:    []model.RequestStatus{model.StatusSubmitted, model.StatusUnderReview},
		to:      model.StatusRejected,
		apply: func(b *model.RequestBase, now time.Time) {
			b.ApproverID = uintPtr(actorID)
			b.RejectionReason = reason
			b.RejectedAt = &now
		},
	})
}

// Implement 标记已批准的申请为已实施
func (s *RequestService[T, PT]) Implement(ctx context.Context, id uint, actorID uint) (bool, error) {
	return s.transit(ctx, transition{
		id:      id,
		actorID: actorID,
		action:  model.ApprovalActionImplemented,
		from:    []model.RequestStatus{model.StatusApproved},
		to:      model.StatusImplemented,
		apply: func(b *model.RequestBase, now time.Time) {
			b.ImplementedAt = &now
		},
	})
}

type transition struct {
	id      uint
	actorID uint
	action  string
	comment string
	from    []model.RequestStatus
	to      model.RequestStatus
	apply   func(b *model.RequestBase, now time.Time)
}

// transit 在同一事务内更新状态并追加台账，提交后写审计
func (s *RequestService[T, PT]) transit(ctx context.Context, tr transition) (bool, error) {
	fields := logrus.Fields{
		"entity_type": s.kind,
		"action":      tr.action,
		"entity_id":   tr.id,
	}

	unlock, err := s.locks.Lock(ctx, tr.id)
	if err != nil {
		metrics.RecordTransition(s.kind, tr.action, "error")
		s.log.WithFields(fields).WithError(err).Error("Lifecycle transition aborted")
		return false, err
	}
	defer unlock()

	var before, after PT
	var from model.RequestStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.requests.WithTx(tx).FindByIDForUpdate(ctx, tr.id)
		if err != nil {
			return err
		}
		from = current.Base().Status
		if !statusIn(from, tr.from) {
			return errs.ErrInvalidTransition
		}
		prev := *current
		before = PT(&prev)

		now := s.now()
		b := current.Base()
		b.Status = tr.to
		tr.apply(b, now)
		if err := s.requests.WithTx(tx).Save(ctx, current); err != nil {
			return fmt.Errorf("failed to save %s: %w", s.kind, err)
		}

		// 阶段号 = 已有条目数 + 1，行锁保证同一申请串行
		approvals := s.approvals.WithTx(tx)
		count, err := approvals.CountByRequest(ctx, s.kind, tr.id)
		if err != nil {
			return fmt.Errorf("failed to count approvals: %w", err)
		}
		entry := &model.ApprovalModel{
			RequestKind: s.kind,
			RequestID:   tr.id,
			Stage:       int(count) + 1,
			Action:      tr.action,
			ActorID:     uintPtr(tr.actorID),
			Comment:     tr.comment,
			CreatedAt:   now,
		}
		if err := approvals.Append(ctx, entry); err != nil {
			return fmt.Errorf("failed to append approval: %w", err)
		}
		after = current
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrInvalidTransition) {
			metrics.RecordTransition(s.kind, tr.action, "rejected")
			s.log.WithFields(fields).WithField("status", from.String()).Debug("Transition not applicable")
			return false, nil
		}
		metrics.RecordTransition(s.kind, tr.action, "error")
		s.log.WithFields(fields).WithError(err).Error("Lifecycle transition failed")
		return false, err
	}

	metrics.RecordTransition(s.kind, tr.action, "success")
	s.audit.RecordUpdate(ctx, before, after, fmt.Sprintf("Status: %s -> %s", from, tr.to))
	return true, nil
}

// Delete 按删除策略物理删除申请及其台账
func (s *RequestService[T, PT]) Delete(ctx context.Context, id uint) (bool, error) {
	fields := logrus.Fields{
		"entity_type": s.kind,
		"action":      model.AuditActionDelete,
		"entity_id":   id,
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	var removed PT
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := s.requests.WithTx(tx)
		current, err := requests.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !s.deletePolicy(current.Base().Status) {
			return errs.ErrInvalidTransition
		}
		if err := s.approvals.WithTx(tx).DeleteByRequest(ctx, s.kind, id); err != nil {
			return fmt.Errorf("failed to delete approvals: %w", err)
		}
		if err := requests.Delete(ctx, id); err != nil {
			return err
		}
		removed = current
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrInvalidTransition) {
			s.log.WithFields(fields).Debug("Delete not applicable")
			return false, nil
		}
		s.log.WithFields(fields).WithError(err).Error("Failed to delete change request")
		return false, err
	}

	s.audit.RecordDelete(ctx, removed)
	return true, nil
}

func statusIn(s model.RequestStatus, allowed []model.RequestStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func uintPtr(v uint) *uint {
	if v == 0 {
		return nil
	}
	return &v
}

// DeletePolicy 判断处于某状态的申请能否删除
type DeletePolicy func(status model.RequestStatus) bool

// PermissiveDelete 任何状态均可删除，由接口层的管理员权限把关
func PermissiveDelete(model.RequestStatus) bool {
	return true
}

// DraftOrRejectedDelete 只允许删除草稿或已驳回的申请
func DraftOrRejectedDelete(status model.RequestStatus) bool {
	return status == model.StatusDraft || status == model.StatusRejected
}

// DeletePolicyByName 根据配置名称选择删除策略
func DeletePolicyByName(name string) (DeletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "permissive":
		return PermissiveDelete, nil
	case "draft_or_rejected":
		return DraftOrRejectedDelete, nil
	default:
		return nil, fmt.Errorf("unknown delete policy %q", name)
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordCreate(context.Context, interface{})                      {}
func (noopRecorder) RecordUpdate(context.Context, interface{}, interface{}, string) {}
func (noopRecorder) RecordDelete(context.Context, interface{})                      {}

// keyedMutex 按申请 ID 串行化，等待时响应 context 取消
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint]*keyedLock)}
}

// Lock 获取 key 的锁，返回释放函数
func (k *keyedMutex) Lock(ctx context.Context, key uint) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key uint, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
