package reload

import "github.com/ceyewan/confhub/xerrors"

var (
	// ErrInvalidInput 参数或注册信息不合法
	ErrInvalidInput = xerrors.New("reload: invalid input")

	// ErrClosed 协调器已关闭
	ErrClosed = xerrors.New("reload: coordinator closed")

	// ErrHandlerTimeout 单次 Handler 调用超时
	ErrHandlerTimeout = xerrors.New("reload: handler timeout")

	// ErrValuesUnavailable 重载时读取配置值失败
	ErrValuesUnavailable = xerrors.New("reload: values unavailable")
)
