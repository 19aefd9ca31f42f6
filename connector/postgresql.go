package connector

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/xerrors"
)

// NewPostgreSQL 创建 PostgreSQL 连接器。
// 实际连接在调用 Connect() 时建立。
func NewPostgreSQL(cfg *PostgreSQLConfig, opts ...Option) (PostgreSQLConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "postgresql config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "invalid postgresql config: %v", err)
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	dsn := cfg.dsn()
	return &gormConnector{
		name:   cfg.Name,
		driver: "postgresql",
		open:   func() gorm.Dialector { return postgres.Open(dsn) },
		poolCfg: &poolConfig{
			maxIdleConns:    cfg.MaxIdleConns,
			maxOpenConns:    cfg.MaxOpenConns,
			connMaxLifetime: cfg.ConnMaxLifetime,
		},
		logger: opt.logger.With(clog.String("connector", "postgresql"), clog.String("name", cfg.Name)),
	}, nil
}
