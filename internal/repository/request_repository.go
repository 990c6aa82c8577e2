package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestPtr 约束 *T 实现 model.Request
type RequestPtr[T any] interface {
	*T
	model.Request
}

// RequestFilter 变更申请查询过滤器
type RequestFilter struct {
	Status      *model.RequestStatus
	RequesterID *uint
	ShipID      *uint
	Search      string
	SortBy      string
	SortOrder   string
	Offset      int
	Limit       int
}

var requestSortFields = []string{"created_at", "updated_at", "request_number", "status", "title"}

// RequestRepository 变更申请仓储接口
type RequestRepository[T any, PT RequestPtr[T]] interface {
	WithTx(tx *gorm.DB) RequestRepository[T, PT]
	Create(ctx context.Context, req PT) error
	Save(ctx context.Context, req PT) error
	FindByID(ctx context.Context, id uint) (PT, error)
	FindByIDForUpdate(ctx context.Context, id uint) (PT, error)
	FindByFilter(ctx context.Context, filter *RequestFilter) ([]PT, int64, error)
	Delete(ctx context.Context, id uint) error
	LastNumberWithPrefix(ctx context.Context, prefix string) (string, error)
}

// requestRepository 变更申请仓储实现
type requestRepository[T any, PT RequestPtr[T]] struct {
	db *gorm.DB
}

// NewRequestRepository 创建变更申请仓储
func NewRequestRepository[T any, PT RequestPtr[T]](db *gorm.DB) RequestRepository[T, PT] {
	return &requestRepository[T, PT]{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *requestRepository[T, PT]) WithTx(tx *gorm.DB) RequestRepository[T, PT] {
	return &requestRepository[T, PT]{db: tx}
}

// Create 插入新申请
func (r *requestRepository[T, PT]) Create(ctx context.Context, req PT) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// Save 保存申请
func (r *requestRepository[T, PT]) Save(ctx context.Context, req PT) error {
	return r.db.WithContext(ctx).Save(req).Error
}

// FindByID 根据 ID 查找申请
func (r *requestRepository[T, PT]) FindByID(ctx context.Context, id uint) (PT, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate 加行锁读取申请，需在事务内调用
func (r *requestRepository[T, PT]) FindByIDForUpdate(ctx context.Context, id uint) (PT, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *requestRepository[T, PT]) find(db *gorm.DB, id uint) (PT, error) {
	var req T
	if err := db.First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindByFilter 根据过滤器分页查找申请
func (r *requestRepository[T, PT]) FindByFilter(ctx context.Context, filter *RequestFilter) ([]PT, int64, error) {
	if filter == nil {
		filter = &RequestFilter{}
	}
	orderBy, err := utils.ResolveSort(filter.SortBy, filter.SortOrder, requestSortFields, "created_at")
	if err != nil {
		return nil, 0, errs.NewValidationError("sort_by", err.Error())
	}

	query := r.db.WithContext(ctx).Model(new(T))
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RequesterID != nil {
		query = query.Where("requester_id = ?", *filter.RequesterID)
	}
	if filter.ShipID != nil {
		query = query.Where("ship_id = ?", *filter.ShipID)
	}
	if filter.Search != "" {
		like := utils.LikePattern(filter.Search)
		query = query.Where(`request_number LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\' OR requester_name LIKE ? ESCAPE '\'`, like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []T
	query = query.Order(orderBy).Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	result := make([]PT, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, total, nil
}

// Delete 物理删除申请
func (r *requestRepository[T, PT]) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(new(T), id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// LastNumberWithPrefix 返回指定前缀下序号最大的申请编号，不存在时返回空串
func (r *requestRepository[T, PT]) LastNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).Model(new(T)).
		Where("request_number LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("LENGTH(request_number) DESC").
		Order("request_number DESC").
		Limit(1).
		Pluck("request_number", &numbers).Error
	if err != nil {
		return "", fmt.Errorf("failed to query last request number: %w", err)
	}
	if len(numbers) == 0 {
		return "", nil
	}
	return numbers[0], nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
