package repository

import (
	"context"

	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/model"
	"gorm.io/gorm"
)

// ShipRepository 船舶与设备组件仓储接口
type ShipRepository interface {
	CreateShip(ctx context.Context, ship *model.ShipModel) error
	SaveShip(ctx context.Context, ship *model.ShipModel) error
	FindShipByID(ctx context.Context, id uint) (*model.ShipModel, error)
	FindShips(ctx context.Context, includeInactive bool) ([]*model.ShipModel, error)
	CreateComponent(ctx context.Context, component *model.ComponentModel) error
	FindComponentByID(ctx context.Context, id uint) (*model.ComponentModel, error)
	FindComponentsByShip(ctx context.Context, shipID uint) ([]*model.ComponentModel, error)
	DeleteComponent(ctx context.Context, id uint) error
}

// shipRepository 船舶仓储实现
type shipRepository struct {
	db *gorm.DB
}

// NewShipRepository 创建船舶仓储
func NewShipRepository(db *gorm.DB) ShipRepository {
	return &shipRepository{db: db}
}

// CreateShip 创建船舶
func (r *shipRepository) CreateShip(ctx context.Context, ship *model.ShipModel) error {
	return r.db.WithContext(ctx).Create(ship).Error
}

// SaveShip 保存船舶
func (r *shipRepository) SaveShip(ctx context.Context, ship *model.ShipModel) error {
	return r.db.WithContext(ctx).Save(ship).Error
}

// FindShipByID 根据 ID 查找船舶
func (r *shipRepository) FindShipByID(ctx context.Context, id uint) (*model.ShipModel, error) {
	var ship model.ShipModel
	if err := r.db.WithContext(ctx).First(&ship, id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &ship, nil
}

// FindShips 查找船舶，默认只返回在用船舶
func (r *shipRepository) FindShips(ctx context.Context, includeInactive bool) ([]*model.ShipModel, error) {
	query := r.db.WithContext(ctx).Model(&model.ShipModel{})
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var ships []*model.ShipModel
	err := query.Order("name ASC").Find(&ships).Error
	return ships, err
}

// CreateComponent 创建设备组件
func (r *shipRepository) CreateComponent(ctx context.Context, component *model.ComponentModel) error {
	return r.db.WithContext(ctx).Create(component).Error
}

// FindComponentByID 根据 ID 查找设备组件
func (r *shipRepository) FindComponentByID(ctx context.Context, id uint) (*model.ComponentModel, error) {
	var component model.ComponentModel
	if err := r.db.WithContext(ctx).First(&component, id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &component, nil
}

// FindComponentsByShip 查找船舶的设备组件
func (r *shipRepository) FindComponentsByShip(ctx context.Context, shipID uint) ([]*model.ComponentModel, error) {
	var components []*model.ComponentModel
	err := r.db.WithContext(ctx).Where("ship_id = ?", shipID).Order("name ASC").Find(&components).Error
	return components, err
}

// DeleteComponent 物理删除设备组件
func (r *shipRepository) DeleteComponent(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&model.ComponentModel{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
