package connector

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/xerrors"
)

// NewMySQL 创建 MySQL 连接器。
// 实际连接在调用 Connect() 时建立。
func NewMySQL(cfg *MySQLConfig, opts ...Option) (MySQLConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "mysql config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "invalid mysql config: %v", err)
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	dsn := cfg.dsn()
	return &gormConnector{
		name:   cfg.Name,
		driver: "mysql",
		open:   func() gorm.Dialector { return mysql.Open(dsn) },
		poolCfg: &poolConfig{
			maxIdleConns:    cfg.MaxIdleConns,
			maxOpenConns:    cfg.MaxOpenConns,
			connMaxLifetime: cfg.ConnMaxLifetime,
		},
		logger: opt.logger.With(clog.String("connector", "mysql"), clog.String("name", cfg.Name)),
	}, nil
}
