package merge

import "github.com/ceyewan/confhub/xerrors"

var (
	// ErrInvalidInput 参数不合法
	ErrInvalidInput = xerrors.New("merge: invalid input")

	// ErrResolveFailed 必要来源读取失败，无法产出快照
	ErrResolveFailed = xerrors.New("merge: resolve failed")
)
