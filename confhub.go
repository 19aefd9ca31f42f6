// Package confhub 是配置中心的装配入口。
//
// Center 把存储、元数据、审计、缓存、事件总线、合并解析器和热重载
// 协调器按依赖顺序装配成一个句柄，对上层暴露完整的查询与管理面。
// 各组件也可以单独构造，Center 只是最常见的组合方式。
//
// 基本使用：
//
//	center, err := confhub.New(ctx, &confhub.Config{
//	    Storage: &confhub.StorageConfig{
//	        Driver: "sqlite",
//	        SQLite: &connector.SQLiteConfig{Name: "confhub", Path: "confhub.db"},
//	    },
//	    AutoMigrate: true,
//	}, confhub.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer center.Close()
//
//	err = center.CreateEntry(ctx, &store.ConfigEntry{
//	    Category:    "smtp",
//	    Key:         "host",
//	    Value:       "smtp.example.com",
//	    Environment: store.EnvProduction,
//	    IsActive:    true,
//	}, store.Audit{Actor: "alice"})
package confhub

import (
	"context"

	"github.com/ceyewan/confhub/bus"
	"github.com/ceyewan/confhub/cache"
	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/config"
	"github.com/ceyewan/confhub/connector"
	"github.com/ceyewan/confhub/db"
	"github.com/ceyewan/confhub/event"
	"github.com/ceyewan/confhub/history"
	"github.com/ceyewan/confhub/merge"
	"github.com/ceyewan/confhub/meta"
	"github.com/ceyewan/confhub/metrics"
	"github.com/ceyewan/confhub/reload"
	"github.com/ceyewan/confhub/store"
	"github.com/ceyewan/confhub/xerrors"
)

// ErrConfig 装配配置不合法
var ErrConfig = xerrors.New("confhub: invalid config")

// StorageConfig 关系存储配置，按 Driver 选择一种连接器
type StorageConfig struct {
	// Driver 存储驱动: "sqlite" | "mysql" | "postgres"
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	SQLite     *connector.SQLiteConfig     `json:"sqlite" yaml:"sqlite" mapstructure:"sqlite"`
	MySQL      *connector.MySQLConfig      `json:"mysql" yaml:"mysql" mapstructure:"mysql"`
	PostgreSQL *connector.PostgreSQLConfig `json:"postgresql" yaml:"postgresql" mapstructure:"postgresql"`

	// DB 数据库访问层配置
	DB *db.Config `json:"db" yaml:"db" mapstructure:"db"`
}

// Config 配置中心装配配置
type Config struct {
	// Storage 关系存储，必填
	Storage *StorageConfig `json:"storage" yaml:"storage" mapstructure:"storage"`

	// Cache 缓存配置，nil 表示不启用缓存
	Cache *cache.Config `json:"cache" yaml:"cache" mapstructure:"cache"`

	// Bus 事件总线配置，默认进程内总线
	Bus *bus.Config `json:"bus" yaml:"bus" mapstructure:"bus"`

	// Reload 热重载协调器配置
	Reload *reload.Config `json:"reload" yaml:"reload" mapstructure:"reload"`

	// AutoMigrate 启动时自动建表
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

func (c *Config) validate() error {
	if c.Storage == nil {
		return xerrors.Wrap(ErrConfig, "storage config is required")
	}
	switch c.Storage.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return xerrors.Wrapf(ErrConfig, "unsupported storage driver %q", c.Storage.Driver)
	}
	return nil
}

// Option 装配可选依赖
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	redisConn connector.RedisConnector
	natsConn  connector.NATSConnector
	cipher    store.Cipher
}

// WithLogger 注入日志器，各组件按自己的命名空间派生
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter 注入指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithRedisConnector 注入分布式缓存用的 Redis 连接器。
// 连接器由调用方创建并负责关闭。
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.redisConn = conn
	}
}

// WithNATSConnector 注入 NATS 总线用的连接器。
// 连接器由调用方创建并负责关闭。
func WithNATSConnector(conn connector.NATSConnector) Option {
	return func(o *options) {
		o.natsConn = conn
	}
}

// WithCipher 注入机密值的加解密实现
func WithCipher(c store.Cipher) Option {
	return func(o *options) {
		o.cipher = c
	}
}

// LoadConfig 从配置加载器读取装配配置。
// 期望配置文件中的 confhub 段，如：
//
//	confhub:
//	  storage:
//	    driver: sqlite
//	    sqlite:
//	      path: confhub.db
//	  auto_migrate: true
func LoadConfig(ctx context.Context, loader config.Loader) (*Config, error) {
	if loader == nil {
		return nil, xerrors.Wrap(ErrConfig, "loader is required")
	}
	if err := loader.Load(ctx); err != nil {
		return nil, xerrors.Wrap(err, "load config")
	}

	var cfg Config
	if err := loader.UnmarshalKey("confhub", &cfg); err != nil {
		return nil, xerrors.Wrap(err, "unmarshal confhub section")
	}
	return &cfg, cfg.validate()
}

// Center 配置中心句柄
type Center struct {
	logger clog.Logger

	sqlConn     connector.SQLConnector
	database    db.DB
	cacheClient cache.Cache
	eventBus    bus.Bus
	registry    meta.Registry
	ledger      history.Ledger
	store       store.Store
	resolver    merge.Resolver
	coordinator *reload.Coordinator
}

// New 按依赖顺序装配配置中心。
// 任一步失败时回滚已建立的资源。
func New(ctx context.Context, cfg *Config, opts ...Option) (*Center, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}

	c := &Center{logger: o.logger.WithNamespace("confhub")}
	if err := c.assemble(ctx, cfg, o); err != nil {
		_ = c.Close()
		return nil, err
	}

	c.logger.Info("config center started",
		clog.String("storage", cfg.Storage.Driver))
	return c, nil
}

func (c *Center) assemble(ctx context.Context, cfg *Config, o *options) error {
	sqlConn, err := newSQLConnector(cfg.Storage, o.logger)
	if err != nil {
		return err
	}
	if err := sqlConn.Connect(ctx); err != nil {
		return xerrors.Wrap(err, "connect storage")
	}
	c.sqlConn = sqlConn

	database, err := db.New(sqlConn, cfg.Storage.DB, db.WithLogger(o.logger))
	if err != nil {
		return xerrors.Wrap(err, "create db layer")
	}
	c.database = database

	if cfg.AutoMigrate {
		err = database.AutoMigrate(ctx,
			&store.ConfigEntry{}, &meta.ConfigMeta{}, &history.ConfigHistory{})
		if err != nil {
			return xerrors.Wrap(err, "auto migrate")
		}
	}

	if cfg.Cache != nil {
		c.cacheClient, err = cache.New(cfg.Cache,
			cache.WithLogger(o.logger), cache.WithRedisConnector(o.redisConn))
		if err != nil {
			return xerrors.Wrap(err, "create cache")
		}
	}

	c.eventBus, err = bus.New(cfg.Bus,
		bus.WithLogger(o.logger), bus.WithNATSConnector(o.natsConn))
	if err != nil {
		return xerrors.Wrap(err, "create bus")
	}

	c.registry, err = meta.New(database, meta.WithLogger(o.logger))
	if err != nil {
		return xerrors.Wrap(err, "create metadata registry")
	}

	c.ledger, err = history.New(database, history.WithLogger(o.logger))
	if err != nil {
		return xerrors.Wrap(err, "create history ledger")
	}

	storeOpts := []store.Option{
		store.WithLogger(o.logger),
		store.WithMeter(o.meter),
		store.WithHistory(c.ledger),
		store.WithMeta(c.registry),
		store.WithBus(c.eventBus),
	}
	if c.cacheClient != nil {
		storeOpts = append(storeOpts, store.WithCache(c.cacheClient))
	}
	if o.cipher != nil {
		storeOpts = append(storeOpts, store.WithCipher(o.cipher))
	}
	c.store, err = store.New(database, storeOpts...)
	if err != nil {
		return xerrors.Wrap(err, "create store")
	}

	mergeOpts := []merge.Option{
		merge.WithLogger(o.logger), merge.WithMeta(c.registry),
	}
	if c.cacheClient != nil {
		mergeOpts = append(mergeOpts, merge.WithCache(c.cacheClient))
	}
	c.resolver, err = merge.New(c.store, mergeOpts...)
	if err != nil {
		return xerrors.Wrap(err, "create merge resolver")
	}

	c.coordinator, err = reload.New(cfg.Reload, c.store, c.eventBus,
		reload.WithLogger(o.logger),
		reload.WithMeter(o.meter),
		reload.WithResolver(c.resolver))
	if err != nil {
		return xerrors.Wrap(err, "create reload coordinator")
	}
	return nil
}

func newSQLConnector(cfg *StorageConfig, logger clog.Logger) (connector.SQLConnector, error) {
	switch cfg.Driver {
	case "sqlite":
		return connector.NewSQLite(cfg.SQLite, connector.WithLogger(logger))
	case "mysql":
		return connector.NewMySQL(cfg.MySQL, connector.WithLogger(logger))
	case "postgres":
		return connector.NewPostgreSQL(cfg.PostgreSQL, connector.WithLogger(logger))
	default:
		return nil, xerrors.Wrapf(ErrConfig, "unsupported storage driver %q", cfg.Driver)
	}
}

// Store 返回配置存储
func (c *Center) Store() store.Store { return c.store }

// Meta 返回元数据注册表
func (c *Center) Meta() meta.Registry { return c.registry }

// History 返回审计账本
func (c *Center) History() history.Ledger { return c.ledger }

// Resolver 返回合并解析器
func (c *Center) Resolver() merge.Resolver { return c.resolver }

// Coordinator 返回热重载协调器
func (c *Center) Coordinator() *reload.Coordinator { return c.coordinator }

// Bus 返回事件总线，外部订阅方直接用它消费变更与重载事件
func (c *Center) Bus() bus.Bus { return c.eventBus }

// CreateEntry 新建配置项
func (c *Center) CreateEntry(ctx context.Context, entry *store.ConfigEntry, audit store.Audit) error {
	return c.store.Create(ctx, entry, audit)
}

// UpdateEntry 部分更新配置项
func (c *Center) UpdateEntry(ctx context.Context, id uint, upd store.Updates, audit store.Audit) (*store.ConfigEntry, error) {
	return c.store.Update(ctx, id, upd, audit)
}

// BulkUpdateEntries 单事务批量更新，任何一项失败整体回滚
func (c *Center) BulkUpdateEntries(ctx context.Context, items []store.BulkItem, audit store.Audit) error {
	return c.store.BulkUpdate(ctx, items, audit)
}

// DeleteEntry 删除配置项
func (c *Center) DeleteEntry(ctx context.Context, id uint, audit store.Audit) error {
	return c.store.Delete(ctx, id, audit)
}

// GetEntry 按 (category, key, environment) 查询启用中的配置项
func (c *Center) GetEntry(ctx context.Context, category, key, environment string) (*store.ConfigEntry, error) {
	return c.store.FindByKey(ctx, category, key, environment)
}

// SearchEntries 按条件分页检索
func (c *Center) SearchEntries(ctx context.Context, q store.SearchQuery) ([]store.ConfigEntry, int64, error) {
	return c.store.Search(ctx, q)
}

// GetValues 返回分类环境下的类型化键值映射，只含存储中的当前值
func (c *Center) GetValues(ctx context.Context, category, environment string) (map[string]any, error) {
	return c.store.GetValues(ctx, category, environment)
}

// GetEffectiveValues 返回四层合并后的生效配置快照
func (c *Center) GetEffectiveValues(ctx context.Context, category, environment string) (*merge.Snapshot, error) {
	return c.resolver.Resolve(ctx, category, environment)
}

// GetHistory 按配置项查询变更历史
func (c *Center) GetHistory(ctx context.Context, configID uint, page history.Page) ([]history.ConfigHistory, int64, error) {
	return c.ledger.ByConfig(ctx, configID, page)
}

// ListCategories 返回全部分类名
func (c *Center) ListCategories(ctx context.Context) ([]string, error) {
	return c.store.ListCategories(ctx)
}

// ListEnvironments 返回分类下出现过的环境名
func (c *Center) ListEnvironments(ctx context.Context, category string) ([]string, error) {
	return c.store.ListEnvironments(ctx, category)
}

// RegisterHandler 注册热重载回调
func (c *Center) RegisterHandler(reg reload.Registration) error {
	return c.coordinator.RegisterHandler(reg)
}

// UnregisterHandler 注销热重载回调
func (c *Center) UnregisterHandler(serviceName string) {
	c.coordinator.UnregisterHandler(serviceName)
}

// ForceReload 立即同步触发一次重载
func (c *Center) ForceReload(ctx context.Context, category, environment, actor string) error {
	return c.coordinator.ForceReload(ctx, category, environment, actor)
}

// ReloadStats 返回各服务的重载统计
func (c *Center) ReloadStats() map[string]reload.HandlerStats {
	return c.coordinator.Stats()
}

// ResetReloadStats 清零重载统计
func (c *Center) ResetReloadStats() {
	c.coordinator.ResetStats()
}

// ReloadHealth 返回热重载健康报告
func (c *Center) ReloadHealth() reload.HealthReport {
	return c.coordinator.Health()
}

// SubscribeChanges 订阅全部配置变更事件
func (c *Center) SubscribeChanges(ctx context.Context, handler func(event.ChangeEvent) error) (bus.Subscription, error) {
	return c.eventBus.Subscribe(ctx, event.TopicChanges, func(msg bus.Message) error {
		change, err := event.UnmarshalChange(msg.Data())
		if err != nil {
			return err
		}
		return handler(change)
	})
}

// Close 按装配的逆序释放资源。
// 注入的 Redis / NATS 连接器由其创建方关闭。
func (c *Center) Close() error {
	var errs []error
	if c.coordinator != nil {
		if err := c.coordinator.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.eventBus != nil {
		if err := c.eventBus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.cacheClient != nil {
		if err := c.cacheClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.database != nil {
		if err := c.database.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.sqlConn != nil {
		if err := c.sqlConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	err := xerrors.Combine(errs...)
	if err == nil {
		c.logger.Info("config center closed")
	}
	return err
}
