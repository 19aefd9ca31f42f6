package db

import "github.com/ceyewan/confhub/xerrors"

// Config DB 组件配置
type Config struct {
	// SilentSQL 关闭 SQL 语句日志
	SilentSQL bool `json:"silent_sql" yaml:"silent_sql" mapstructure:"silent_sql"`

	// EnableSharding 是否开启分片特性
	EnableSharding bool `json:"enable_sharding" yaml:"enable_sharding" mapstructure:"enable_sharding"`

	// ShardingRules 分片规则配置列表
	// 允许为不同的表组配置不同的分片规则
	ShardingRules []ShardingRule `json:"sharding_rules" yaml:"sharding_rules" mapstructure:"sharding_rules"`
}

// ShardingRule 分片规则
type ShardingRule struct {
	// 分片键（例如 "category"）
	ShardingKey string `json:"sharding_key" yaml:"sharding_key" mapstructure:"sharding_key"`

	// 分片数量（例如 16）
	NumberOfShards uint `json:"number_of_shards" yaml:"number_of_shards" mapstructure:"number_of_shards"`

	// 应用此规则的逻辑表名列表
	Tables []string `json:"tables" yaml:"tables" mapstructure:"tables"`
}

func (c *Config) setDefaults() {}

func (c *Config) validate() error {
	if c.EnableSharding && len(c.ShardingRules) == 0 {
		return xerrors.Wrap(ErrConfig, "sharding enabled but no rules provided")
	}
	for _, rule := range c.ShardingRules {
		if rule.ShardingKey == "" {
			return xerrors.Wrap(ErrConfig, "sharding key cannot be empty")
		}
		if rule.NumberOfShards == 0 {
			return xerrors.Wrap(ErrConfig, "number of shards must be greater than 0")
		}
		if len(rule.Tables) == 0 {
			return xerrors.Wrap(ErrConfig, "sharding tables cannot be empty")
		}
	}
	return nil
}
