package testkit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/confhub/connector"
	"github.com/ceyewan/confhub/db"
)

// NewSQLiteConfig 返回 SQLite 内存数据库配置。
// 每次调用生成独立的数据库名，避免共享内存库造成测试间干扰。
func NewSQLiteConfig() *connector.SQLiteConfig {
	return &connector.SQLiteConfig{
		Path: fmt.Sprintf("file:testkit_%s?mode=memory&cache=shared", NewID()),
	}
}

// NewSQLiteConnector 获取 SQLite 连接器（内存数据库）
// 生命周期由 t.Cleanup 管理
func NewSQLiteConnector(t *testing.T) connector.SQLiteConnector {
	conn, err := connector.NewSQLite(NewSQLiteConfig())
	require.NoError(t, err, "failed to create sqlite connector")

	err = conn.Connect(context.Background())
	require.NoError(t, err, "failed to connect to sqlite")

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

// NewSQLiteDB 获取 db 组件实例（内存数据库），并迁移给定模型
func NewSQLiteDB(t *testing.T, models ...any) db.DB {
	conn := NewSQLiteConnector(t)

	database, err := db.New(conn, &db.Config{SilentSQL: true})
	require.NoError(t, err, "failed to create db component")

	if len(models) > 0 {
		require.NoError(t, database.AutoMigrate(context.Background(), models...), "failed to migrate models")
	}

	return database
}
