// Package connector 为 confhub 提供统一的连接管理能力。
//
// 核心特性：
//   - 统一抽象：通过 Connector 接口提供一致的连接管理 API
//   - 类型安全：通过 TypedConnector[T] 泛型接口确保编译时类型检查
//   - 多数据源支持：MySQL、PostgreSQL、SQLite、Redis、NATS
//   - 幂等连接：Connect() 可安全重复调用
//   - 延迟连接：NewXXX() 仅创建连接器，Connect() 时才真正建连
//
// 资源所有权：
//
//	Connector 拥有底层连接的生命周期，应在应用层通过 defer 确保 Close()。
//	组件（store、cache、bus 等）仅借用 Connector，不应调用 Close()。
//	释放顺序遵循 LIFO：先关闭依赖连接器的组件，再关闭连接器。
//
// 基本使用：
//
//	conn, err := connector.NewSQLite(&connector.SQLiteConfig{Path: "confhub.db"})
//	if err != nil {
//	    panic(err)
//	}
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//	    panic(err)
//	}
//	gormDB := conn.GetClient()
package connector

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Connector 定义所有连接器的通用行为。
// 接口方法均为并发安全。
type Connector interface {
	// Connect 建立连接。幂等，首次调用建连，后续调用直接返回 nil。
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源。幂等。
	Close() error

	// HealthCheck 主动探测连接可用性，并更新内部健康状态缓存。
	HealthCheck(ctx context.Context) error

	// IsHealthy 无阻塞返回最近一次 HealthCheck 的结果。
	IsHealthy() bool

	// Name 返回连接器实例名，用于日志和指标标识。
	Name() string
}

// TypedConnector 提供类型安全的客户端访问。
// 类型参数 T 是客户端类型，如 *redis.Client、*gorm.DB。
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端。Connect() 之前或 Close() 之后可能返回 nil。
	GetClient() T
}

// MySQLConnector MySQL 连接器接口，基于 GORM。
type MySQLConnector interface {
	TypedConnector[*gorm.DB]
}

// PostgreSQLConnector PostgreSQL 连接器接口，基于 GORM。
type PostgreSQLConnector interface {
	TypedConnector[*gorm.DB]
}

// SQLiteConnector SQLite 连接器接口，基于 GORM。
// 支持内存数据库与文件数据库，适合测试和嵌入式场景。
type SQLiteConnector interface {
	TypedConnector[*gorm.DB]
}

// SQLConnector 任意关系型连接器的公共形态，store/history 等组件按此借用连接。
type SQLConnector interface {
	TypedConnector[*gorm.DB]
}

// RedisConnector Redis 连接器接口。
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// NATSConnector NATS 连接器接口，内置自动重连。
type NATSConnector interface {
	TypedConnector[*nats.Conn]
}
