package meta

import "github.com/ceyewan/confhub/xerrors"

var (
	// ErrNotFound 元数据不存在
	ErrNotFound = xerrors.New("meta: not found")

	// ErrDuplicateKey (category, key) 已存在
	ErrDuplicateKey = xerrors.New("meta: duplicate key")

	// ErrTargetNotEmpty 克隆目标分类已有元数据且未指定覆盖
	ErrTargetNotEmpty = xerrors.New("meta: target category not empty")

	// ErrValidation 配置值违反校验规则
	ErrValidation = xerrors.New("meta: validation failed")

	// ErrUnavailable 底层存储不可用
	ErrUnavailable = xerrors.New("meta: storage unavailable")
)
