package audit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mautops/shipchange-gin/internal/model"
)

// UnknownID 无法解析实体 ID 时使用的占位符
const UnknownID = "unknown"

// nameFields 实体显示名称的候选字段，按优先级排列
var nameFields = []string{"Name", "FullName", "Title", "Subject", "Description", "RequestNumber", "Username"}

// Descriptor 一类实体的审计元数据提取函数
type Descriptor struct {
	// Fields 返回实体的标量字段快照，不包含关联对象
	Fields func(entity interface{}) map[string]interface{}
	// ID 可选，覆盖默认的 ID 解析
	ID func(entity interface{}) string
	// Name 可选，覆盖默认的名称解析
	Name func(entity interface{}) string
}

// Metadata 解析后的实体元数据
type Metadata struct {
	Kind   string
	ID     string
	Name   string
	Fields map[string]interface{}
}

// Registry 实体类型到审计描述的映射
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register 注册实体类型
func (r *Registry) Register(kind string, d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[kind] = d
}

// Describe 解析实体的类型、ID、名称与快照
func (r *Registry) Describe(entity interface{}) Metadata {
	meta := Metadata{Kind: KindOf(entity), ID: UnknownID}
	if entity == nil {
		return meta
	}

	r.mu.RLock()
	d, ok := r.descriptors[meta.Kind]
	r.mu.RUnlock()
	if !ok {
		return meta
	}

	if d.Fields != nil {
		meta.Fields = d.Fields(entity)
	}
	if d.ID != nil {
		meta.ID = d.ID(entity)
	} else {
		meta.ID = idFromFields(meta.Fields)
	}
	if d.Name != nil {
		meta.Name = d.Name(entity)
	} else {
		meta.Name = nameFromFields(meta.Fields)
	}
	return meta
}

// KindOf 返回实体类型名称，优先使用 AuditKind
func KindOf(entity interface{}) string {
	if entity == nil {
		return "Unknown"
	}
	if k, ok := entity.(interface{ AuditKind() string }); ok {
		return k.AuditKind()
	}
	name := strings.TrimLeft(fmt.Sprintf("%T", entity), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "Model")
}

func idFromFields(fields map[string]interface{}) string {
	if v, ok := fields["ID"]; ok {
		switch id := v.(type) {
		case uint:
			if id != 0 {
				return strconv.FormatUint(uint64(id), 10)
			}
		case string:
			if id != "" {
				return id
			}
		}
	}
	if v, ok := fields["RequestNumber"].(string); ok && v != "" {
		return v
	}
	return UnknownID
}

func nameFromFields(fields map[string]interface{}) string {
	for _, key := range nameFields {
		if v, ok := fields[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type snapshotter interface {
	Snapshot() map[string]interface{}
}

// snapshotOf 同时支持值与指针形式的实体
func snapshotOf[T any, PT interface {
	*T
	snapshotter
}](entity interface{}) map[string]interface{} {
	switch e := entity.(type) {
	case PT:
		if e == nil {
			return nil
		}
		return e.Snapshot()
	case T:
		return PT(&e).Snapshot()
	default:
		return nil
	}
}

// DefaultRegistry 注册全部业务实体
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("ChangeRequest", Descriptor{Fields: snapshotOf[model.ChangeRequestModel]})
	r.Register("HardwareChangeRequest", Descriptor{Fields: snapshotOf[model.HardwareChangeRequestModel]})
	r.Register("SoftwareChangeRequest", Descriptor{Fields: snapshotOf[model.SoftwareChangeRequestModel]})
	r.Register("User", Descriptor{Fields: snapshotOf[model.UserModel]})
	r.Register("Role", Descriptor{Fields: snapshotOf[model.RoleModel]})
	r.Register("Ship", Descriptor{Fields: snapshotOf[model.ShipModel]})
	r.Register("Component", Descriptor{Fields: snapshotOf[model.ComponentModel]})
	return r
}
