package history

import "time"

// ConfigHistory 一次配置变更的审计记录，只追加不修改。
// OldValue 为空表示新建，NewValue 为空表示删除。
type ConfigHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ConfigID     uint      `gorm:"index;not null" json:"config_id"`
	OldValue     string    `gorm:"size:4096" json:"old_value"`
	NewValue     string    `gorm:"size:4096" json:"new_value"`
	ChangedBy    string    `gorm:"size:128;index" json:"changed_by"`
	ChangeReason string    `gorm:"size:512" json:"change_reason"`
	IPAddress    string    `gorm:"size:64" json:"ip_address"`
	UserAgent    string    `gorm:"size:256" json:"user_agent"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (ConfigHistory) TableName() string {
	return "config_history"
}

// Page 分页参数
type Page struct {
	// Page 页码，从 1 开始
	Page int

	// PageSize 每页行数，默认 20
	PageSize int

	// Ascending 为 true 时按时间升序，默认最新在前
	Ascending bool
}

func (p *Page) normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
}

// Filter 历史查询的可选过滤条件
type Filter struct {
	// Category 限定父配置项的分类
	Category string

	// Environment 限定父配置项的环境
	Environment string

	// From / To 创建时间范围，零值表示不限
	From time.Time
	To   time.Time
}

// Statistics 变更统计结果
type Statistics struct {
	// Total 满足过滤条件的总变更数
	Total int64 `json:"total"`

	// ByCategory 按分类聚合的变更数
	ByCategory map[string]int64 `json:"by_category"`

	// ByActor 按操作者聚合的变更数
	ByActor map[string]int64 `json:"by_actor"`

	// ByDay 最近 30 天逐日变更数
	ByDay []DayCount `json:"by_day"`
}

// DayCount 单日变更数
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}
