package store

import "github.com/ceyewan/confhub/xerrors"

var (
	// ErrDuplicateKey (category, key, environment) 已存在
	ErrDuplicateKey = xerrors.New("store: duplicate key")

	// ErrNotFound 配置项不存在
	ErrNotFound = xerrors.New("store: not found")

	// ErrInvalidInput 参数不合法
	ErrInvalidInput = xerrors.New("store: invalid input")

	// ErrUnavailable 持久化后端不可用
	ErrUnavailable = xerrors.New("store: storage unavailable")
)
