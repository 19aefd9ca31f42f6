// Package history 提供配置变更的审计账本。
//
// 每次配置项的值变更写入一行 ConfigHistory，记录变更前后的值、
// 操作者和来源信息。账本只追加，仅保留期清理和孤儿清理会删除行。
// 查询支持按配置项、分类、操作者三个维度分页检索，以及聚合统计。
//
// 基本使用：
//
//	ledger, _ := history.New(database, history.WithLogger(logger))
//
//	_ = ledger.Append(ctx, &history.ConfigHistory{
//	    ConfigID:  entry.ID,
//	    OldValue:  "smtp.example.com",
//	    NewValue:  "smtp2.example.com",
//	    ChangedBy: "alice",
//	})
//
//	rows, total, _ := ledger.ByConfig(ctx, entry.ID, history.Page{Page: 1, PageSize: 20})
package history

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/db"
	"github.com/ceyewan/confhub/xerrors"
)

// entriesTable 父配置项表名，用于分类/环境过滤和孤儿判定
const entriesTable = "config_entries"

// Ledger 审计账本的核心能力
type Ledger interface {
	// Append 追加一条变更记录
	Append(ctx context.Context, h *ConfigHistory) error

	// ByConfig 按配置项 ID 分页查询
	ByConfig(ctx context.Context, configID uint, page Page) ([]ConfigHistory, int64, error)

	// ByCategory 按父配置项分类分页查询，filter 可限定环境和时间范围
	ByCategory(ctx context.Context, category string, filter Filter, page Page) ([]ConfigHistory, int64, error)

	// ByActor 按操作者分页查询，filter 可限定分类、环境和时间范围
	ByActor(ctx context.Context, actor string, filter Filter, page Page) ([]ConfigHistory, int64, error)

	// Statistics 聚合统计：总数、按分类、按操作者、最近 30 天逐日
	Statistics(ctx context.Context, filter Filter) (*Statistics, error)

	// PurgeOlderThan 删除 days 天前的记录，category 非空时只清理该分类。
	// 返回删除的行数。
	PurgeOlderThan(ctx context.Context, days int, category string) (int64, error)

	// PurgeOrphaned 删除父配置项已不存在的记录，返回删除的行数
	PurgeOrphaned(ctx context.Context) (int64, error)
}

type ledger struct {
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
			o.logger = logger.WithNamespace("history")
		}
	}
}

// New 创建审计账本
func New(database db.DB, opts ...Option) (Ledger, error) {
	if database == nil {
		return nil, xerrors.New("history: db is nil")
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Discard()
	}

	return &ledger{
		db:     database,
		logger: opt.logger,
	}, nil
}

func (l *ledger) Append(ctx context.Context, h *ConfigHistory) error {
	if h == nil || h.ConfigID == 0 {
		return xerrors.Wrap(ErrInvalidRecord, "config id is required")
	}
	if err := l.db.DB(ctx).Create(h).Error; err != nil {
		return xerrors.Wrapf(ErrUnavailable, "append for config %d: %v", h.ConfigID, err)
	}
	return nil
}

func (l *ledger) ByConfig(ctx context.Context, configID uint, page Page) ([]ConfigHistory, int64, error) {
	query := l.db.DB(ctx).Model(&ConfigHistory{}).Where("config_id = ?", configID)
	return l.paginate(query, page)
}

func (l *ledger) ByCategory(ctx context.Context, category string, filter Filter, page Page) ([]ConfigHistory, int64, error) {
	filter.Category = category
	query := l.filtered(ctx, filter)
	return l.paginate(query, page)
}

func (l *ledger) ByActor(ctx context.Context, actor string, filter Filter, page Page) ([]ConfigHistory, int64, error) {
	query := l.filtered(ctx, filter).Where("changed_by = ?", actor)
	return l.paginate(query, page)
}

// filtered 组装带过滤条件的基础查询。
// 分类和环境属于父配置项，需要联表过滤。
func (l *ledger) filtered(ctx context.Context, filter Filter) *gorm.DB {
	return l.filterQuery(ctx, filter, false)
}

// filterQuery 应用过滤条件，joinEntries 为 true 时强制联表父配置项
func (l *ledger) filterQuery(ctx context.Context, filter Filter, joinEntries bool) *gorm.DB {
	query := l.db.DB(ctx).Model(&ConfigHistory{})

	if joinEntries || filter.Category != "" || filter.Environment != "" {
		query = query.Joins("JOIN " + entriesTable + " ON " + entriesTable + ".id = config_history.config_id")
		if filter.Category != "" {
			query = query.Where(entriesTable+".category = ?", filter.Category)
		}
		if filter.Environment != "" {
			query = query.Where(entriesTable+".environment = ?", filter.Environment)
		}
	}
	if !filter.From.IsZero() {
		query = query.Where("config_history.created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("config_history.created_at <= ?", filter.To)
	}
	return query
}

func (l *ledger) paginate(query *gorm.DB, page Page) ([]ConfigHistory, int64, error) {
	page.normalize()

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, xerrors.Wrapf(ErrUnavailable, "count: %v", err)
	}

	order := "config_history.created_at DESC, config_history.id DESC"
	if page.Ascending {
		order = "config_history.created_at ASC, config_history.id ASC"
	}

	var rows []ConfigHistory
	err := query.Order(order).
		Offset((page.Page - 1) * page.PageSize).
		Limit(page.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, xerrors.Wrapf(ErrUnavailable, "list: %v", err)
	}
	return rows, total, nil
}

func (l *ledger) Statistics(ctx context.Context, filter Filter) (*Statistics, error) {
	stats := &Statistics{
		ByCategory: make(map[string]int64),
		ByActor:    make(map[string]int64),
	}

	if err := l.filtered(ctx, filter).Count(&stats.Total).Error; err != nil {
		return nil, xerrors.Wrapf(ErrUnavailable, "total: %v", err)
	}

	type bucket struct {
		Label string
		Count int64
	}

	// 按分类聚合需要联表取父配置项的分类
	var byCategory []bucket
	err := l.filterQuery(ctx, filter, true).
		Select(entriesTable + ".category AS label, COUNT(*) AS count").
		Group(entriesTable + ".category").
		Scan(&byCategory).Error
	if err != nil {
		return nil, xerrors.Wrapf(ErrUnavailable, "by category: %v", err)
	}
	for _, b := range byCategory {
		stats.ByCategory[b.Label] = b.Count
	}

	var byActor []bucket
	err = l.filtered(ctx, filter).
		Select("config_history.changed_by AS label, COUNT(*) AS count").
		Group("config_history.changed_by").
		Scan(&byActor).Error
	if err != nil {
		return nil, xerrors.Wrapf(ErrUnavailable, "by actor: %v", err)
	}
	for _, b := range byActor {
		stats.ByActor[b.Label] = b.Count
	}

	type dayBucket struct {
		Day   string
		Count int64
	}
	var byDay []dayBucket
	since := time.Now().AddDate(0, 0, -30)
	err = l.filtered(ctx, filter).
		Select("DATE(config_history.created_at) AS day, COUNT(*) AS count").
		Where("config_history.created_at >= ?", since).
		Group("DATE(config_history.created_at)").
		Order("day ASC").
		Scan(&byDay).Error
	if err != nil {
		return nil, xerrors.Wrapf(ErrUnavailable, "by day: %v", err)
	}
	for _, b := range byDay {
		stats.ByDay = append(stats.ByDay, DayCount{Date: b.Day, Count: b.Count})
	}

	return stats, nil
}

func (l *ledger) PurgeOlderThan(ctx context.Context, days int, category string) (int64, error) {
	if days < 0 {
		return 0, xerrors.Wrapf(ErrInvalidRecord, "days must not be negative: %d", days)
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	query := l.db.DB(ctx).Where("created_at < ?", cutoff)
	if category != "" {
		query = query.Where(
			"config_id IN (SELECT id FROM "+entriesTable+" WHERE category = ?)", category)
	}

	result := query.Delete(&ConfigHistory{})
	if result.Error != nil {
		return 0, xerrors.Wrapf(ErrUnavailable, "purge older than %d days: %v", days, result.Error)
	}

	l.logger.Info("history purged",
		clog.Int("days", days),
		clog.String("category", category),
		clog.Int64("rows", result.RowsAffected),
	)
	return result.RowsAffected, nil
}

func (l *ledger) PurgeOrphaned(ctx context.Context) (int64, error) {
	result := l.db.DB(ctx).
		Where("config_id NOT IN (SELECT id FROM " + entriesTable + ")").
		Delete(&ConfigHistory{})
	if result.Error != nil {
		return 0, xerrors.Wrapf(ErrUnavailable, "purge orphaned: %v", result.Error)
	}

	l.logger.Info("orphaned history purged", clog.Int64("rows", result.RowsAffected))
	return result.RowsAffected, nil
}
