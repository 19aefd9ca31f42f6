package store

import (
	"context"
	"strings"

	"github.com/ceyewan/confhub/xerrors"
)

// metadataTable 元数据表名，搜索时按 (category, config_key) 左连接，
// 让自由文本匹配覆盖显示名和描述
const metadataTable = "config_metadata"

func (s *configStore) Search(ctx context.Context, q SearchQuery) ([]ConfigEntry, int64, error) {
	q.normalize()

	query := s.db.DB(ctx).Model(&ConfigEntry{})

	if q.Category != "" {
		query = query.Where("config_entries.category = ?", q.Category)
	}
	if q.Environment != "" {
		query = query.Where("config_entries.environment = ?", q.Environment)
	}
	if q.KeySubstring != "" {
		query = query.Where("config_entries.config_key LIKE ?", "%"+q.KeySubstring+"%")
	}
	if q.IsActive != nil {
		query = query.Where("config_entries.is_active = ?", *q.IsActive)
	}

	if q.GroupName != "" || q.FreeText != "" {
		query = query.Joins("LEFT JOIN " + metadataTable +
			" ON " + metadataTable + ".category = config_entries.category" +
			" AND " + metadataTable + ".config_key = config_entries.config_key")
	}
	if q.GroupName != "" {
		query = query.Where(metadataTable+".group_name = ?", q.GroupName)
	}
	if q.FreeText != "" {
		// LOWER 两侧，LIKE 在 PostgreSQL 上默认区分大小写
		pattern := "%" + strings.ToLower(q.FreeText) + "%"
		query = query.Where(
			"LOWER(config_entries.config_key) LIKE ? OR LOWER("+metadataTable+".display_name) LIKE ? OR LOWER("+metadataTable+".description) LIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, xerrors.Wrap(ErrUnavailable, err.Error())
	}

	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}

	var entries []ConfigEntry
	err := query.
		Order("config_entries." + q.SortField + " " + direction + ", config_entries.id ASC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, xerrors.Wrap(ErrUnavailable, err.Error())
	}
	return entries, total, nil
}
