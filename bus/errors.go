package bus

import "github.com/ceyewan/confhub/xerrors"

var (
	// ErrConfig 配置无效
	ErrConfig = xerrors.New("bus: invalid config")

	// ErrClosed 总线已关闭
	ErrClosed = xerrors.New("bus: closed")

	// ErrPanicRecovered Handler panic 被恢复
	ErrPanicRecovered = xerrors.New("bus: handler panic recovered")
)
