package meta

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/ceyewan/confhub/xerrors"
)

// ConfigMeta 配置项元数据，按 (category, key) 唯一，与环境无关。
// 描述一个配置键如何展示和校验，配置项可以没有元数据。
type ConfigMeta struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Category    string `gorm:"size:64;not null;uniqueIndex:idx_meta_category_key,priority:1" json:"category"`
	Key         string `gorm:"column:config_key;size:128;not null;uniqueIndex:idx_meta_category_key,priority:2" json:"key"`
	DisplayName string `gorm:"size:128" json:"display_name"`
	Description string `gorm:"size:512" json:"description"`

	// InputType 展示控件类型: text|number|checkbox|select|password|textarea
	InputType string `gorm:"size:32" json:"input_type"`

	// ValidationRules 校验规则，序列化为 JSON 存储
	ValidationRules *ValidationRules `gorm:"type:text" json:"validation_rules,omitempty"`

	DefaultValue string `gorm:"size:1024" json:"default_value"`
	IsRequired   bool   `json:"is_required"`
	SortOrder    int    `json:"sort_order"`
	GroupName    string `gorm:"size:64" json:"group_name"`
	HelpText     string `gorm:"size:512" json:"help_text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (ConfigMeta) TableName() string {
	return "config_metadata"
}

// ValidationRules 配置值的校验规则集合，所有字段可选
type ValidationRules struct {
	// Pattern 正则表达式，值必须完整匹配
	Pattern string `json:"pattern,omitempty"`

	// MinLength / MaxLength 字符串长度范围
	MinLength *int `json:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty"`

	// Min / Max 数值范围，仅对可解析为数字的值生效
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// Options 枚举选项，值必须是其中之一
	Options []string `json:"options,omitempty"`
}

// Value 实现 driver.Valuer，规则以 JSON 文本入库
func (r *ValidationRules) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现 sql.Scanner
func (r *ValidationRules) Scan(src any) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return xerrors.Newf("meta: cannot scan %T into ValidationRules", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, r)
}
