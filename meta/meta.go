// Package meta 提供配置项的元数据与校验规则注册表。
//
// 元数据按 (category, key) 唯一且与环境无关，描述配置键的展示方式
// （显示名、分组、控件类型）和取值约束（正则、长度、数值范围、枚举）。
// 合并解析器用元数据的 DefaultValue 作为最低优先级的取值层。
//
// 基本使用：
//
//	registry, _ := meta.New(database, meta.WithLogger(logger))
//
//	err := registry.Create(ctx, &meta.ConfigMeta{
//	    Category:     "smtp",
//	    Key:          "port",
//	    DisplayName:  "SMTP 端口",
//	    InputType:    "number",
//	    DefaultValue: "587",
//	    ValidationRules: &meta.ValidationRules{Min: ptr(1.0), Max: ptr(65535.0)},
//	})
//
//	grouped, _ := registry.FindByCategoryGrouped(ctx, "smtp")
package meta

import (
	"context"

	"gorm.io/gorm"

	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/db"
	"github.com/ceyewan/confhub/xerrors"
)

// DefaultGroup 未指定分组的元数据归入的分组名
const DefaultGroup = "general"

// Registry 元数据注册表的核心能力
type Registry interface {
	// Create 新建元数据，(category, key) 已存在时返回 ErrDuplicateKey
	Create(ctx context.Context, m *ConfigMeta) error

	// Update 按 ID 更新元数据，不存在时返回 ErrNotFound
	Update(ctx context.Context, m *ConfigMeta) error

	// Delete 按 (category, key) 删除元数据，不存在时返回 ErrNotFound
	Delete(ctx context.Context, category, key string) error

	// FindByKey 按 (category, key) 查找，不存在时返回 ErrNotFound
	FindByKey(ctx context.Context, category, key string) (*ConfigMeta, error)

	// FindByCategory 返回分类下全部元数据，按 SortOrder 升序
	FindByCategory(ctx context.Context, category string) ([]ConfigMeta, error)

	// FindByCategoryGrouped 按 GroupName 分组返回，未分组的归入 "general"
	FindByCategoryGrouped(ctx context.Context, category string) (map[string][]ConfigMeta, error)

	// CloneToCategory 将 source 分类的全部元数据复制到 target。
	// target 已有元数据且 overwrite 为 false 时返回 ErrTargetNotEmpty；
	// overwrite 为 true 时先清空 target。返回复制的行数。
	CloneToCategory(ctx context.Context, source, target string, overwrite bool) (int, error)
}

type registry struct {
	db     db.DB
	logger clog.Logger
}

// Option 组件可选依赖
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 注入日志器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("meta")
		}
	}
}

// New 创建元数据注册表
func New(database db.DB, opts ...Option) (Registry, error) {
	if database == nil {
		return nil, xerrors.New("meta: db is nil")
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Discard()
	}

	return &registry{
		db:     database,
		logger: opt.logger,
	}, nil
}

func (r *registry) Create(ctx context.Context, m *ConfigMeta) error {
	return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ConfigMeta{}).
			Where("category = ? AND config_key = ?", m.Category, m.Key).
			Count(&count).Error; err != nil {
			return xerrors.Wrapf(ErrUnavailable, "%v", err)
		}
		if count > 0 {
			return xerrors.Wrapf(ErrDuplicateKey, "%s.%s", m.Category, m.Key)
		}
		if err := tx.Create(m).Error; err != nil {
			return xerrors.Wrapf(ErrUnavailable, "create %s.%s: %v", m.Category, m.Key, err)
		}
		return nil
	})
}

func (r *registry) Update(ctx context.Context, m *ConfigMeta) error {
	// Select 列出全部可变列，让零值（false、0、空串）也能写回
	result := r.db.DB(ctx).Model(&ConfigMeta{}).Where("id = ?", m.ID).
		Select("display_name", "description", "input_type", "validation_rules",
			"default_value", "is_required", "sort_order", "group_name", "help_text").
		Updates(m)
	if result.Error != nil {
		return xerrors.Wrapf(ErrUnavailable, "update id=%d: %v", m.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return xerrors.Wrapf(ErrNotFound, "id=%d", m.ID)
	}
	return nil
}

func (r *registry) Delete(ctx context.Context, category, key string) error {
	result := r.db.DB(ctx).
		Where("category = ? AND config_key = ?", category, key).
		Delete(&ConfigMeta{})
	if result.Error != nil {
		return xerrors.Wrapf(ErrUnavailable, "delete %s.%s: %v", category, key, result.Error)
	}
	if result.RowsAffected == 0 {
		return xerrors.Wrapf(ErrNotFound, "%s.%s", category, key)
	}
	return nil
}

func (r *registry) FindByKey(ctx context.Context, category, key string) (*ConfigMeta, error) {
	var m ConfigMeta
	err := r.db.DB(ctx).
		Where("category = ? AND config_key = ?", category, key).
		First(&m).Error
	if err != nil {
		if xerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerrors.Wrapf(ErrNotFound, "%s.%s", category, key)
		}
		return nil, xerrors.Wrapf(ErrUnavailable, "find %s.%s: %v", category, key, err)
	}
	return &m, nil
}

func (r *registry) FindByCategory(ctx context.Context, category string) ([]ConfigMeta, error) {
	var list []ConfigMeta
	err := r.db.DB(ctx).
		Where("category = ?", category).
		Order("sort_order ASC").
		Find(&list).Error
	if err != nil {
		return nil, xerrors.Wrapf(ErrUnavailable, "find category %s: %v", category, err)
	}
	return list, nil
}

func (r *registry) FindByCategoryGrouped(ctx context.Context, category string) (map[string][]ConfigMeta, error) {
	list, err := r.FindByCategory(ctx, category)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]ConfigMeta)
	for _, m := range list {
		group := m.GroupName
		if group == "" {
			group = DefaultGroup
		}
		grouped[group] = append(grouped[group], m)
	}
	return grouped, nil
}

func (r *registry) CloneToCategory(ctx context.Context, source, target string, overwrite bool) (int, error) {
	var cloned int
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&ConfigMeta{}).
			Where("category = ?", target).
			Count(&existing).Error; err != nil {
			return xerrors.Wrapf(ErrUnavailable, "%v", err)
		}
		if existing > 0 {
			if !overwrite {
				return xerrors.Wrapf(ErrTargetNotEmpty, "category %s has %d entries", target, existing)
			}
			if err := tx.Where("category = ?", target).Delete(&ConfigMeta{}).Error; err != nil {
				return xerrors.Wrapf(ErrUnavailable, "clear target %s: %v", target, err)
			}
		}

		var sources []ConfigMeta
		if err := tx.Where("category = ?", source).Find(&sources).Error; err != nil {
			return xerrors.Wrapf(ErrUnavailable, "read source %s: %v", source, err)
		}

		for i := range sources {
			clone := sources[i]
			clone.ID = 0
			clone.Category = target
			if err := tx.Create(&clone).Error; err != nil {
				return xerrors.Wrapf(ErrUnavailable, "clone %s.%s: %v", target, clone.Key, err)
			}
		}
		cloned = len(sources)

		r.logger.Info("metadata cloned",
			clog.String("source", source),
			clog.String("target", target),
			clog.Int("count", cloned),
		)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cloned, nil
}
