package config

import "github.com/ceyewan/confhub/xerrors"

// ErrValidationFailed 配置验证失败
var ErrValidationFailed = xerrors.New("config: validation failed")

// ErrReadFailed 配置文件读取失败
var ErrReadFailed = xerrors.New("config: read failed")
