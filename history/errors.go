package history

import "github.com/ceyewan/confhub/xerrors"

var (
	// ErrUnavailable 底层存储不可用
	ErrUnavailable = xerrors.New("history: storage unavailable")

	// ErrInvalidRecord 记录缺少必要字段
	ErrInvalidRecord = xerrors.New("history: invalid record")
)
