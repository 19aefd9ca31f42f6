// Package store 提供配置项的持久化存储。
//
// 每条配置按 (category, key, environment) 唯一寻址。注入元数据
// 注册表后，写入的明文值先按元数据校验规则检查。写操作在持久化
// 成功后依次触发三个旁路副作用：审计账本追加、合并快照缓存失效、
// 变更事件发布。副作用全部通过 Option 注入，任何一个失败都只记录
// 日志，不影响写操作本身的结果。
//
// 基本使用：
//
//	st, _ := store.New(database,
//	    store.WithLogger(logger),
//	    store.WithHistory(ledger),
//	    store.WithCache(cacheClient),
//	    store.WithBus(eventBus))
//
//	entry := &store.ConfigEntry{
//	    Category:    "smtp",
//	    Key:         "host",
//	    Value:       "smtp.example.com",
//	    Environment: store.EnvProduction,
//	    IsActive:    true,
//	}
//	err := st.Create(ctx, entry, store.Audit{Actor: "alice"})
package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/ceyewan/confhub/bus"
	"github.com/ceyewan/confhub/cache"
	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/db"
	"github.com/ceyewan/confhub/event"
	"github.com/ceyewan/confhub/history"
	"github.com/ceyewan/confhub/meta"
	"github.com/ceyewan/confhub/metrics"
	"github.com/ceyewan/confhub/xerrors"
)

// Store 配置存储的核心能力
type Store interface {
	// Create 新建配置项，(category, key, environment) 冲突时返回 ErrDuplicateKey
	Create(ctx context.Context, entry *ConfigEntry, audit Audit) error

	// Update 按 ID 部分更新，nil 字段保持不变。返回更新后的配置项。
	Update(ctx context.Context, id uint, upd Updates, audit Audit) (*ConfigEntry, error)

	// BulkUpdate 在单个事务中更新多个配置项。
	// 任何一项不存在都回滚整个事务并返回 ErrNotFound。
	BulkUpdate(ctx context.Context, items []BulkItem, audit Audit) error

	// Delete 按 ID 删除配置项
	Delete(ctx context.Context, id uint, audit Audit) error

	// FindByID 按 ID 查询，包含未启用的配置项
	FindByID(ctx context.Context, id uint) (*ConfigEntry, error)

	// FindByKey 按 (category, key, environment) 查询启用中的配置项
	FindByKey(ctx context.Context, category, key, environment string) (*ConfigEntry, error)

	// FindByCategory 查询分类环境下的配置项，按键名排序。
	// includeInactive 为 true 时包含已停用的配置项。
	FindByCategory(ctx context.Context, category, environment string, includeInactive bool) ([]ConfigEntry, error)

	// Search 按过滤条件分页检索，返回当页数据和总数
	Search(ctx context.Context, q SearchQuery) ([]ConfigEntry, int64, error)

	// GetValues 返回分类环境下启用配置的类型化键值映射。
	// number 转为 float64，boolean 转为 bool，json 解析为结构化值，
	// 加密值解密后返回，转换失败时保留原始字符串。
	GetValues(ctx context.Context, category, environment string) (map[string]any, error)

	// ListCategories 返回所有出现过的分类名
	ListCategories(ctx context.Context) ([]string, error)

	// ListEnvironments 返回分类下出现过的环境名，category 为空时不限分类
	ListEnvironments(ctx context.Context, category string) ([]string, error)

	// GetFeatureToggles 返回环境下全部功能开关
	GetFeatureToggles(ctx context.Context, environment string) (map[string]bool, error)

	// SetFeatureToggle 设置单个功能开关，不存在时创建
	SetFeatureToggle(ctx context.Context, name string, enabled bool, environment string, audit Audit) error

	// BulkUpdateFeatureToggles 批量设置功能开关
	BulkUpdateFeatureToggles(ctx context.Context, toggles map[string]bool, environment string, audit Audit) error
}

type configStore struct {
	db     db.DB
	logger clog.Logger
	ledger history.Ledger
	meta   meta.Registry
	cache  cache.Cache
	bus    bus.Bus
	cipher Cipher

	opCounter metrics.Counter
}

// New 创建配置存储实例
func New(database db.DB, opts ...Option) (Store, error) {
	if database == nil {
		return nil, xerrors.Wrap(ErrInvalidInput, "db is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.applyDefaults()

	opCounter, err := o.meter.Counter("confhub_store_operations_total",
		"Total store operations by operation and status")
	if err != nil {
		return nil, xerrors.Wrap(err, "create operations counter")
	}

	return &configStore{
		db:        database,
		logger:    o.logger,
		ledger:    o.ledger,
		meta:      o.meta,
		cache:     o.cache,
		bus:       o.bus,
		cipher:    o.cipher,
		opCounter: opCounter,
	}, nil
}

// checkRules 按元数据校验规则检查明文值。
// 未注入注册表或该键没有元数据时直接放行。
func (s *configStore) checkRules(ctx context.Context, category, key, value string) error {
	if s.meta == nil {
		return nil
	}
	m, err := s.meta.FindByKey(ctx, category, key)
	if err != nil {
		if xerrors.Is(err, meta.ErrNotFound) {
			return nil
		}
		return xerrors.Wrap(ErrUnavailable, err.Error())
	}
	return m.ValidateValue(value)
}

func (s *configStore) count(ctx context.Context, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.opCounter.Inc(ctx, metrics.L("op", op), metrics.L("status", status))
}

func (s *configStore) Create(ctx context.Context, entry *ConfigEntry, audit Audit) (err error) {
	defer func() { s.count(ctx, "create", err) }()

	if entry == nil {
		return xerrors.Wrap(ErrInvalidInput, "entry is required")
	}
	if entry.Category == "" || entry.Key == "" {
		return xerrors.Wrap(ErrInvalidInput, "category and key are required")
	}
	if entry.Environment == "" {
		entry.Environment = EnvDevelopment
	}
	if !validEnvironment(entry.Environment) {
		return xerrors.Wrapf(ErrInvalidInput, "unknown environment %q", entry.Environment)
	}
	if entry.ValueType == "" {
		entry.ValueType = ValueTypeString
	}
	if !validValueType(entry.ValueType) {
		return xerrors.Wrapf(ErrInvalidInput, "unknown value type %q", entry.ValueType)
	}
	if verr := s.checkRules(ctx, entry.Category, entry.Key, entry.Value); verr != nil {
		return verr
	}

	if entry.IsEncrypted {
		encrypted, cerr := s.cipher.Encrypt(entry.Value)
		if cerr != nil {
			return xerrors.Wrap(cerr, "encrypt value")
		}
		entry.Value = encrypted
	}
	entry.UpdatedBy = audit.Actor

	err = s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var existing int64
		if cerr := tx.Model(&ConfigEntry{}).
			Where("category = ? AND config_key = ? AND environment = ?",
				entry.Category, entry.Key, entry.Environment).
			Count(&existing).Error; cerr != nil {
			return xerrors.Wrap(ErrUnavailable, cerr.Error())
		}
		if existing > 0 {
			return xerrors.Wrapf(ErrDuplicateKey, "%s/%s in %s",
				entry.Category, entry.Key, entry.Environment)
		}
		if cerr := tx.Create(entry).Error; cerr != nil {
			return xerrors.Wrap(ErrUnavailable, cerr.Error())
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "config created",
		clog.String("category", entry.Category),
		clog.String("key", entry.Key),
		clog.String("environment", entry.Environment))

	evt := event.NewCreated(entry.Category, entry.Key, entry.Environment, entry.Value, audit.Actor)
	evt.Reason = audit.Reason
	s.afterMutation(ctx, entry, "", entry.Value, audit, evt)
	return nil
}

func (s *configStore) Update(ctx context.Context, id uint, upd Updates, audit Audit) (entry *ConfigEntry, err error) {
	defer func() { s.count(ctx, "update", err) }()

	if upd.Value == nil && upd.ValueType == nil && upd.IsActive == nil && upd.IsEncrypted == nil {
		return nil, xerrors.Wrap(ErrInvalidInput, "no fields to update")
	}
	if upd.ValueType != nil && !validValueType(*upd.ValueType) {
		return nil, xerrors.Wrapf(ErrInvalidInput, "unknown value type %q", *upd.ValueType)
	}

	var oldValue string
	err = s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var current ConfigEntry
		if cerr := tx.First(&current, id).Error; cerr != nil {
			if xerrors.Is(cerr, gorm.ErrRecordNotFound) {
				return xerrors.Wrapf(ErrNotFound, "id %d", id)
			}
			return xerrors.Wrap(ErrUnavailable, cerr.Error())
		}
		oldValue = current.Value

		if upd.ValueType != nil {
			current.ValueType = *upd.ValueType
		}
		if upd.IsEncrypted != nil {
			current.IsEncrypted = *upd.IsEncrypted
		}
		if upd.Value != nil {
			value := *upd.Value
			if verr := s.checkRules(ctx, current.Category, current.Key, value); verr != nil {
				return verr
			}
			if current.IsEncrypted {
				encrypted, cerr := s.cipher.Encrypt(value)
				if cerr != nil {
					return xerrors.Wrap(cerr, "encrypt value")
				}
				value = encrypted
			}
			current.Value = value
		}
		if upd.IsActive != nil {
			current.IsActive = *upd.IsActive
		}
		current.UpdatedBy = audit.Actor

		if cerr := tx.Save(&current).Error; cerr != nil {
			return xerrors.Wrap(ErrUnavailable, cerr.Error())
		}
		entry = &current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "config updated",
		clog.String("category", entry.Category),
		clog.String("key", entry.Key),
		clog.String("environment", entry.Environment))

	evt := event.NewUpdated(entry.Category, entry.Key, entry.Environment, oldValue, entry.Value, audit.Actor)
	evt.Reason = audit.Reason
	s.afterMutation(ctx, entry, oldValue, entry.Value, audit, evt)
	return entry, nil
}

func (s *configStore) BulkUpdate(ctx context.Context, items []BulkItem, audit Audit) (err error) {
	defer func() { s.count(ctx, "bulk_update", err) }()

	if len(items) == 0 {
		return xerrors.Wrap(ErrInvalidInput, "no items to update")
	}

	type applied struct {
		entry    ConfigEntry
		oldValue string
	}
	results := make([]applied, 0, len(items))

	err = s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		// 先整体加载和校验，再统一写入
		for _, item := range items {
			var current ConfigEntry
			if cerr := tx.First(&current, item.ID).Error; cerr != nil {
				if xerrors.Is(cerr, gorm.ErrRecordNotFound) {
					return xerrors.Wrapf(ErrNotFound, "id %d", item.ID)
				}
				return xerrors.Wrap(ErrUnavailable, cerr.Error())
			}
			oldValue := current.Value

			if item.Value != nil {
				value := *item.Value
				if verr := s.checkRules(ctx, current.Category, current.Key, value); verr != nil {
					return verr
				}
				if current.IsEncrypted {
					encrypted, cerr := s.cipher.Encrypt(value)
					if cerr != nil {
						return xerrors.Wrap(cerr, "encrypt value")
					}
					value = encrypted
				}
				current.Value = value
			}
			if item.IsActive != nil {
				current.IsActive = *item.IsActive
			}
			current.UpdatedBy = audit.Actor
			results = append(results, applied{entry: current, oldValue: oldValue})
		}

		for i := range results {
			if cerr := tx.Save(&results[i].entry).Error; cerr != nil {
				return xerrors.Wrap(ErrUnavailable, cerr.Error())
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "configs bulk updated", clog.Int("count", len(results)))

	for i := range results {
		r := &results[i]
		evt := event.NewUpdated(r.entry.Category, r.entry.Key, r.entry.Environment,
			r.oldValue, r.entry.Value, audit.Actor)
		evt.Reason = audit.Reason
		s.afterMutation(ctx, &r.entry, r.oldValue, r.entry.Value, audit, evt)
	}
	return nil
}

func (s *configStore) Delete(ctx context.Context, id uint, audit Audit) (err error) {
	defer func() { s.count(ctx, "delete", err) }()

	var deleted ConfigEntry
	err = s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if cerr := tx.First(&deleted, id).Error; cerr != nil {
			if xerrors.Is(cerr, gorm.ErrRecordNotFound) {
				return xerrors.Wrapf(ErrNotFound, "id %d", id)
			}
			return xerrors.Wrap(ErrUnavailable, cerr.Error())
		}
		if cerr := tx.Delete(&ConfigEntry{}, id).Error; cerr != nil {
			return xerrors.Wrap(ErrUnavailable, cerr.Error())
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "config deleted",
		clog.String("category", deleted.Category),
		clog.String("key", deleted.Key),
		clog.String("environment", deleted.Environment))

	evt := event.NewDeleted(deleted.Category, deleted.Key, deleted.Environment, deleted.Value, audit.Actor)
	evt.Reason = audit.Reason
	s.afterMutation(ctx, &deleted, deleted.Value, "", audit, evt)
	return nil
}

func (s *configStore) FindByID(ctx context.Context, id uint) (*ConfigEntry, error) {
	var entry ConfigEntry
	if err := s.db.DB(ctx).First(&entry, id).Error; err != nil {
		if xerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerrors.Wrapf(ErrNotFound, "id %d", id)
		}
		return nil, xerrors.Wrap(ErrUnavailable, err.Error())
	}
	return &entry, nil
}

func (s *configStore) FindByKey(ctx context.Context, category, key, environment string) (*ConfigEntry, error) {
	var entry ConfigEntry
	err := s.db.DB(ctx).
		Where("category = ? AND config_key = ? AND environment = ? AND is_active = ?",
			category, key, environment, true).
		First(&entry).Error
	if err != nil {
		if xerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, xerrors.Wrapf(ErrNotFound, "%s/%s in %s", category, key, environment)
		}
		return nil, xerrors.Wrap(ErrUnavailable, err.Error())
	}
	return &entry, nil
}

func (s *configStore) FindByCategory(ctx context.Context, category, environment string, includeInactive bool) ([]ConfigEntry, error) {
	query := s.db.DB(ctx).
		Where("category = ? AND environment = ?", category, environment)
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}

	var entries []ConfigEntry
	err := query.Order("config_key ASC").Find(&entries).Error
	if err != nil {
		return nil, xerrors.Wrap(ErrUnavailable, err.Error())
	}
	return entries, nil
}

func (s *configStore) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := s.db.DB(ctx).Model(&ConfigEntry{}).
		Distinct("category").
		Order("category ASC").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, xerrors.Wrap(ErrUnavailable, err.Error())
	}
	return categories, nil
}

func (s *configStore) ListEnvironments(ctx context.Context, category string) ([]string, error) {
	query := s.db.DB(ctx).Model(&ConfigEntry{})
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var environments []string
	err := query.Distinct("environment").
		Order("environment ASC").
		Pluck("environment", &environments).Error
	if err != nil {
		return nil, xerrors.Wrap(ErrUnavailable, err.Error())
	}
	return environments, nil
}

// afterMutation 执行写操作的旁路副作用，顺序固定：
// 审计账本、缓存失效、事件发布。失败只记日志。
func (s *configStore) afterMutation(ctx context.Context, entry *ConfigEntry, oldValue, newValue string, audit Audit, evt event.ChangeEvent) {
	if s.ledger != nil {
		record := &history.ConfigHistory{
			ConfigID:     entry.ID,
			OldValue:     oldValue,
			NewValue:     newValue,
			ChangedBy:    audit.Actor,
			ChangeReason: audit.Reason,
			IPAddress:    audit.IPAddress,
			UserAgent:    audit.UserAgent,
		}
		if err := s.ledger.Append(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "history append failed",
				clog.String("category", entry.Category),
				clog.String("key", entry.Key),
				clog.Error(err))
		}
	}

	if s.cache != nil {
		key := SnapshotKey(entry.Category, entry.Environment)
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "cache invalidate failed",
				clog.String("cache_key", key), clog.Error(err))
		}
	}

	if s.bus != nil {
		data, err := evt.Marshal()
		if err != nil {
			s.logger.WarnContext(ctx, "event marshal failed", clog.Error(err))
			return
		}
		for _, topic := range []string{event.TopicChanges, event.CategoryTopic(entry.Category)} {
			if err := s.bus.Publish(ctx, topic, data); err != nil {
				s.logger.WarnContext(ctx, "event publish failed",
					clog.String("topic", topic), clog.Error(err))
			}
		}
	}
}

func validValueType(t ValueType) bool {
	switch t {
	case ValueTypeString, ValueTypeNumber, ValueTypeBoolean, ValueTypePassword, ValueTypeJSON:
		return true
	}
	return false
}
