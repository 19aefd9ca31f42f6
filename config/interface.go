// Package config 为 confhub 提供统一的配置加载能力。
// 支持多源加载和环境覆盖，基于 Viper 实现。
//
// 特性：
//   - 多源配置加载：YAML/JSON 文件、环境变量
//   - 配置优先级：环境变量 > 环境特定配置 > 基础配置
//   - 接口优先设计：基于接口的 API，隐藏实现细节
//
// 基本使用：
//
//	loader, err := config.New(&config.Config{
//		Name:      "confhub",
//		Paths:     []string{"./config"},
//		EnvPrefix: "CONFHUB",
//	})
//	if err != nil {
//		panic(err)
//	}
//	if err := loader.Load(ctx); err != nil {
//		panic(err)
//	}
//
//	var cfg AppConfig
//	if err := loader.Unmarshal(&cfg); err != nil {
//		panic(err)
//	}
package config

import "context"

// Loader 定义配置加载器的核心行为
// 职责：加载和解析进程自身的启动配置，与业务配置存储无关
type Loader interface {
	// Load 加载配置并初始化内部状态
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Validate 验证当前配置的有效性
	Validate() error
}
