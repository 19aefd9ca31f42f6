package confhub

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/confhub/cache"
	"github.com/ceyewan/confhub/config"
	"github.com/ceyewan/confhub/event"
	"github.com/ceyewan/confhub/history"
	"github.com/ceyewan/confhub/merge"
	"github.com/ceyewan/confhub/reload"
	"github.com/ceyewan/confhub/store"
	"github.com/ceyewan/confhub/testkit"
)

func newTestCenter(t *testing.T) *Center {
	t.Helper()
	center, err := New(context.Background(), &Config{
		Storage: &StorageConfig{
			Driver: "sqlite",
			SQLite: testkit.NewSQLiteConfig(),
		},
		Cache:       &cache.Config{Mode: "standalone"},
		AutoMigrate: true,
		Reload: &reload.Config{
			DebounceWindow: 80 * time.Millisecond,
			HandlerTimeout: time.Second,
			MaxRetries:     1,
			RetryDelay:     10 * time.Millisecond,
			HealthInterval: time.Hour,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = center.Close() })
	return center
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	content := `confhub:
  storage:
    driver: sqlite
    sqlite:
      name: fromfile
      path: "file:loadcfg?mode=memory&cache=shared"
  auto_migrate: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "confhub.yaml"), []byte(content), 0o644))

	loader, err := config.New(&config.Config{Name: "confhub", Paths: []string{dir}})
	require.NoError(t, err)

	cfg, err := LoadConfig(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "fromfile", cfg.Storage.SQLite.Name)
	assert.True(t, cfg.AutoMigrate)

	_, err = LoadConfig(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNewValidation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New(ctx, &Config{})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = New(ctx, &Config{Storage: &StorageConfig{Driver: "oracle"}})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestCenterEndToEnd(t *testing.T) {
	ctx := context.Background()
	center := newTestCenter(t)

	entry := &store.ConfigEntry{
		Category:    "smtp",
		Key:         "host",
		Value:       "smtp.example.com",
		Environment: store.EnvProduction,
		IsActive:    true,
	}
	require.NoError(t, center.CreateEntry(ctx, entry, store.Audit{Actor: "alice"}))

	found, err := center.GetEntry(ctx, "smtp", "host", store.EnvProduction)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", found.Value)

	values, err := center.GetValues(ctx, "smtp", store.EnvProduction)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", values["host"])

	snapshot, err := center.GetEffectiveValues(ctx, "smtp", store.EnvProduction)
	require.NoError(t, err)
	host, _ := snapshot.Get("host")
	assert.Equal(t, "smtp.example.com", host)
	assert.Equal(t, merge.SourceStore, snapshot.SourceOf("host"))

	newValue := "smtp2.example.com"
	_, err = center.UpdateEntry(ctx, entry.ID, store.Updates{Value: &newValue}, store.Audit{Actor: "bob"})
	require.NoError(t, err)

	rows, total, err := center.GetHistory(ctx, entry.ID, history.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "smtp.example.com", rows[0].OldValue)
	assert.Equal(t, "smtp2.example.com", rows[0].NewValue)

	categories, err := center.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"smtp"}, categories)

	envs, err := center.ListEnvironments(ctx, "smtp")
	require.NoError(t, err)
	assert.Equal(t, []string{store.EnvProduction}, envs)
}

func TestCenterHotReloadScenario(t *testing.T) {
	ctx := context.Background()
	center := newTestCenter(t)

	entry := &store.ConfigEntry{
		Category:    "smtp",
		Key:         "host",
		Value:       "smtp.example.com",
		Environment: store.EnvProduction,
		IsActive:    true,
	}
	require.NoError(t, center.CreateEntry(ctx, entry, store.Audit{Actor: "alice"}))

	var dispatches atomic.Int64
	var lastHost atomic.Value
	require.NoError(t, center.RegisterHandler(reload.Registration{
		ServiceName: "mailer",
		Categories:  []string{"smtp"},
		Handler: func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error {
			dispatches.Add(1)
			if host, ok := values["host"].(string); ok {
				lastHost.Store(host)
			}
			return nil
		},
	}))

	// 防抖窗口内的两次更新只触发一次重载
	for _, v := range []string{"smtp2.example.com", "smtp3.example.com"} {
		value := v
		_, err := center.UpdateEntry(ctx, entry.ID, store.Updates{Value: &value}, store.Audit{Actor: "bob"})
		require.NoError(t, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && dispatches.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, int64(1), dispatches.Load())
	assert.Equal(t, "smtp3.example.com", lastHost.Load())

	require.NoError(t, center.ForceReload(ctx, "smtp", store.EnvProduction, "operator"))
	assert.Equal(t, int64(2), dispatches.Load())

	stats := center.ReloadStats()
	assert.Equal(t, int64(2), stats["mailer"].SuccessCount)
	assert.Equal(t, reload.StatusHealthy, center.ReloadHealth().Overall)

	center.ResetReloadStats()
	assert.Equal(t, int64(0), center.ReloadStats()["mailer"].SuccessCount)

	center.UnregisterHandler("mailer")
	assert.NotContains(t, center.ReloadStats(), "mailer")
}

func TestCenterFeatureToggles(t *testing.T) {
	ctx := context.Background()
	center := newTestCenter(t)

	st := center.Store()
	require.NoError(t, st.SetFeatureToggle(ctx, "dark_mode", true, store.EnvProduction, store.Audit{Actor: "alice"}))
	require.NoError(t, st.BulkUpdateFeatureToggles(ctx, map[string]bool{
		"dark_mode":   false,
		"beta_search": true,
	}, store.EnvProduction, store.Audit{Actor: "alice"}))

	toggles, err := st.GetFeatureToggles(ctx, store.EnvProduction)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"dark_mode": false, "beta_search": true}, toggles)
}

func TestCenterSubscribeChanges(t *testing.T) {
	ctx := context.Background()
	center := newTestCenter(t)

	var changes atomic.Int64
	sub, err := center.SubscribeChanges(ctx, func(evt event.ChangeEvent) error {
		changes.Add(1)
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, center.CreateEntry(ctx, &store.ConfigEntry{
		Category: "app", Key: "name", Value: "confhub",
		Environment: store.EnvDevelopment, IsActive: true,
	}, store.Audit{Actor: "alice"}))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && changes.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, int64(1), changes.Load())
}
