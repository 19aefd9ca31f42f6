package store

import "time"

// ValueType 配置值的类型标注，决定 GetValues 的类型转换方式
type ValueType string

const (
	ValueTypeString   ValueType = "string"
	ValueTypeNumber   ValueType = "number"
	ValueTypeBoolean  ValueType = "boolean"
	ValueTypePassword ValueType = "password"
	ValueTypeJSON     ValueType = "json"
)

// 支持的部署环境
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// KnownEnvironments 返回全部合法环境名
func KnownEnvironments() []string {
	return []string{EnvDevelopment, EnvStaging, EnvProduction, EnvTest}
}

func validEnvironment(env string) bool {
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
		return true
	}
	return false
}

// ConfigEntry 一条配置值，按 (category, key, environment) 唯一。
// IsActive 为 false 的行被默认读取排除，但仍可按 ID 寻址。
type ConfigEntry struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Category string `gorm:"size:64;not null;uniqueIndex:idx_entry_coord,priority:1;index" json:"category"`
	Key      string `gorm:"column:config_key;size:128;not null;uniqueIndex:idx_entry_coord,priority:2" json:"key"`

	// Value 原始序列化形式，类型语义由 ValueType 表达
	Value       string    `gorm:"size:4096" json:"value"`
	ValueType   ValueType `gorm:"size:16;not null;default:string" json:"value_type"`
	IsEncrypted bool      `json:"is_encrypted"`
	IsActive    bool      `json:"is_active"`

	Environment string `gorm:"size:32;not null;uniqueIndex:idx_entry_coord,priority:3;index" json:"environment"`
	UpdatedBy   string `gorm:"size:128" json:"updated_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ConfigEntry) TableName() string {
	return "config_entries"
}

// Audit 一次写操作的审计来源信息
type Audit struct {
	Actor     string
	Reason    string
	IPAddress string
	UserAgent string
}

// Updates 部分更新的字段集合，nil 字段保持不变
type Updates struct {
	Value       *string
	ValueType   *ValueType
	IsActive    *bool
	IsEncrypted *bool
}

// BulkItem 批量更新中的一项
type BulkItem struct {
	ID       uint
	Value    *string
	IsActive *bool
}

// SearchQuery 搜索过滤条件与分页参数
type SearchQuery struct {
	Category     string
	KeySubstring string
	Environment  string
	IsActive     *bool

	// GroupName 按元数据分组过滤，需要元数据表
	GroupName string

	// FreeText 对键、显示名、描述做大小写不敏感的子串匹配
	FreeText string

	// Page 从 1 开始，PageSize 默认 20
	Page     int
	PageSize int

	// SortField 排序字段: key|category|environment|updated_at (默认 key)
	SortField string
	SortDesc  bool
}

func (q *SearchQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	switch q.SortField {
	case "key":
		q.SortField = "config_key"
	case "category", "environment", "updated_at", "config_key":
	default:
		q.SortField = "config_key"
	}
}

// SnapshotKey 返回 (category, environment) 合并快照的缓存键。
// 存储在写路径上按这个键失效缓存，合并解析器按它读写快照。
func SnapshotKey(category, environment string) string {
	return "merged:" + category + ":" + environment
}
