package cache

import "github.com/ceyewan/confhub/xerrors"

var (
	// ErrConfig 配置无效
	ErrConfig = xerrors.New("cache: invalid config")

	// ErrMiss 缓存未命中
	ErrMiss = xerrors.New("cache: miss")
)
