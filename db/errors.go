package db

import "github.com/ceyewan/confhub/xerrors"

var (
	// ErrConfig 配置无效
	ErrConfig = xerrors.New("db: invalid config")

	// ErrNotConnected 连接器尚未建立连接
	ErrNotConnected = xerrors.New("db: connector not connected")

	// ErrSharding 分片中间件注册失败
	ErrSharding = xerrors.New("db: failed to register sharding")

	// ErrMigration 自动迁移失败
	ErrMigration = xerrors.New("db: migration failed")
)
