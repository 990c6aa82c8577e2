package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/mautops/shipchange-gin/internal/utils"
)

// ShipService 船舶服务，删除采用停用
type ShipService interface {
	Create(ctx context.Context, ship *model.ShipModel) (*model.ShipModel, error)
	Get(ctx context.Context, id uint) (*model.ShipModel, error)
	List(ctx context.Context, includeInactive bool) ([]*model.ShipModel, error)
	Update(ctx context.Context, id uint, name, imoNumber string) (*model.ShipModel, error)
	Deactivate(ctx context.Context, id uint) (bool, error)
}

// ComponentService 设备组件服务，删除采用物理删除
type ComponentService interface {
	Create(ctx context.Context, component *model.ComponentModel) (*model.ComponentModel, error)
	ListByShip(ctx context.Context, shipID uint) ([]*model.ComponentModel, error)
	Purge(ctx context.Context, id uint) (bool, error)
}

type shipService struct {
	repo  repository.ShipRepository
	audit AuditRecorder
}

// NewShipService 创建船舶服务
func NewShipService(repo repository.ShipRepository, recorder AuditRecorder) ShipService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &shipService{repo: repo, audit: recorder}
}

// Create 创建船舶
func (s *shipService) Create(ctx context.Context, ship *model.ShipModel) (*model.ShipModel, error) {
	utils.TrimAll(&ship.Name, &ship.HullNumber, &ship.IMONumber)
	if err := utils.ValidateStruct(ship); err != nil {
		return nil, err
	}
	ship.ID = 0
	ship.IsActive = true
	if err := s.repo.CreateShip(ctx, ship); err != nil {
		if errs.IsDuplicateKey(err) {
			return nil, &errs.ConflictError{Resource: "ship", Message: "hull number already exists", Err: err}
		}
		return nil, fmt.Errorf("failed to create ship: %w", err)
	}
	s.audit.RecordCreate(ctx, ship)
	return ship, nil
}

// Get 获取船舶
func (s *shipService) Get(ctx context.Context, id uint) (*model.ShipModel, error) {
	return s.repo.FindShipByID(ctx, id)
}

// List 查询船舶
func (s *shipService) List(ctx context.Context, includeInactive bool) ([]*model.ShipModel, error) {
	return s.repo.FindShips(ctx, includeInactive)
}

// Update 修改船舶名称与 IMO 编号
func (s *shipService) Update(ctx context.Context, id uint, name, imoNumber string) (*model.ShipModel, error) {
	ship, err := s.repo.FindShipByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *ship
	ship.Name = strings.TrimSpace(name)
	ship.IMONumber = strings.TrimSpace(imoNumber)
	if err := ship.Validate(); err != nil {
		return nil, errs.NewValidationError("name", err.Error())
	}
	if err := s.repo.SaveShip(ctx, ship); err != nil {
		return nil, fmt.Errorf("failed to update ship: %w", err)
	}
	s.audit.RecordUpdate(ctx, &before, ship, "")
	return ship, nil
}

// Deactivate 停用船舶，已停用或不存在时返回 false
func (s *shipService) Deactivate(ctx context.Context, id uint) (bool, error) {
	ship, err := s.repo.FindShipByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !ship.IsActive {
		return false, nil
	}
	before := *ship
	ship.IsActive = false
	if err := s.repo.SaveShip(ctx, ship); err != nil {
		return false, fmt.Errorf("failed to deactivate ship: %w", err)
	}
	s.audit.RecordUpdate(ctx, &before, ship, "Deactivated")
	return true, nil
}

type componentService struct {
	repo  repository.ShipRepository
	audit AuditRecorder
}

// NewComponentService 创建设备组件服务
func NewComponentService(repo repository.ShipRepository, recorder AuditRecorder) ComponentService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &componentService{repo: repo, audit: recorder}
}

// Create 创建设备组件，序列号重复时返回 ConflictError
func (s *componentService) Create(ctx context.Context, component *model.ComponentModel) (*model.ComponentModel, error) {
	utils.TrimAll(&component.Name, &component.Manufacturer, &component.Model, &component.SerialNumber)
	if err := utils.ValidateStruct(component); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindShipByID(ctx, component.ShipID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.NewValidationError("ShipID", "ship does not exist")
		}
		return nil, err
	}

	component.ID = 0
	if err := s.repo.CreateComponent(ctx, component); err != nil {
		if errs.IsDuplicateKey(err) {
			return nil, &errs.ConflictError{Resource: "component", Message: "serial number already exists", Err: err}
		}
		return nil, fmt.Errorf("failed to create component: %w", err)
	}
	s.audit.RecordCreate(ctx, component)
	return component, nil
}

// ListByShip 查询船舶的设备组件
func (s *componentService) ListByShip(ctx context.Context, shipID uint) ([]*model.ComponentModel, error) {
	return s.repo.FindComponentsByShip(ctx, shipID)
}

// Purge 物理删除设备组件
func (s *componentService) Purge(ctx context.Context, id uint) (bool, error) {
	component, err := s.repo.FindComponentByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.repo.DeleteComponent(ctx, id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete component: %w", err)
	}
	s.audit.RecordDelete(ctx, component)
	return true, nil
}
