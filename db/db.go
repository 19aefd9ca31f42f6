// Package db 提供基于 GORM 的数据库组件，支持分库分表。
//
// db 组件在 SQL 连接器的基础上提供：
// - GORM ORM 功能封装
// - 事务管理支持
// - 自动迁移入口
// - 分库分表能力（基于 gorm.io/sharding）
//
// ## 基本使用
//
//	conn, _ := connector.NewMySQL(&cfg.MySQL, connector.WithLogger(logger))
//	defer conn.Close()
//	conn.Connect(ctx)
//
//	database, _ := db.New(conn, &db.Config{}, db.WithLogger(logger))
//
//	gormDB := database.DB(ctx)
//	var entries []ConfigEntry
//	gormDB.Where("category = ?", "database").Find(&entries)
//
//	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
//		return tx.Create(&entry).Error
//	})
//
// ## 设计原则
//
// - 借用模型：db 组件借用连接器的连接，不负责连接的生命周期
// - 显式依赖：通过构造函数显式注入连接器和选项
package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/sharding"

	"github.com/ceyewan/confhub/connector"
	"github.com/ceyewan/confhub/xerrors"
)

// DB 定义数据库组件的核心能力
type DB interface {
	// DB 获取底层的 *gorm.DB 实例
	// 绝大多数业务查询直接使用此方法返回的对象
	DB(ctx context.Context) *gorm.DB

	// Transaction 执行事务操作
	// fn 中的 tx 对象仅在当前事务范围内有效
	Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error

	// AutoMigrate 迁移给定模型的表结构
	AutoMigrate(ctx context.Context, models ...any) error

	// Close 关闭组件
	Close() error
}

type database struct {
	client *gorm.DB
}

// New 创建数据库组件实例。
//
// conn 可以是任意 SQL 连接器（MySQL/PostgreSQL/SQLite），
// 必须已经 Connect 成功。
func New(conn connector.SQLConnector, cfg *Config, opts ...Option) (DB, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	gormDB := conn.GetClient()
	if gormDB == nil {
		return nil, xerrors.Wrap(ErrNotConnected, "connector has no client, call Connect first")
	}

	// SQL 日志走统一的 clog 适配器
	gormDB = gormDB.Session(&gorm.Session{
		Logger: newGormLogger(opt.logger, cfg.SilentSQL),
	})

	if cfg.EnableSharding {
		for _, rule := range cfg.ShardingRules {
			tables := make([]any, len(rule.Tables))
			for i, v := range rule.Tables {
				tables[i] = v
			}

			middleware := sharding.Register(sharding.Config{
				ShardingKey:         rule.ShardingKey,
				NumberOfShards:      rule.NumberOfShards,
				PrimaryKeyGenerator: sharding.PKSnowflake,
			}, tables...)

			if err := gormDB.Use(middleware); err != nil {
				return nil, xerrors.Wrapf(ErrSharding, "tables %v: %v", rule.Tables, err)
			}
		}
	}

	return &database{client: gormDB}, nil
}

// DB 获取底层的 *gorm.DB 实例
func (d *database) DB(ctx context.Context) *gorm.DB {
	return d.client.WithContext(ctx)
}

// Transaction 执行事务操作
func (d *database) Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return d.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

// AutoMigrate 迁移给定模型的表结构
func (d *database) AutoMigrate(ctx context.Context, models ...any) error {
	if err := d.client.WithContext(ctx).AutoMigrate(models...); err != nil {
		return xerrors.Wrapf(ErrMigration, "%v", err)
	}
	return nil
}

// Close 关闭组件。连接由连接器管理，这里不需要额外关闭。
func (d *database) Close() error {
	return nil
}
