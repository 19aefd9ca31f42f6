package metrics

// Config 指标组件配置
type Config struct {
	// Enabled 是否启用指标收集，关闭时 New 返回 noop 实现
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ServiceName 服务名，作为 resource 属性附加到所有指标
	ServiceName string `json:"service_name" yaml:"service_name"`

	// Version 服务版本
	Version string `json:"version" yaml:"version"`

	// Port Prometheus HTTP 端口，0 表示不启动内置 HTTP 服务
	Port int `json:"port" yaml:"port"`

	// Path 指标暴露路径，如 "/metrics"
	Path string `json:"path" yaml:"path"`
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "confhub"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
