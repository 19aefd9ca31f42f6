package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/confhub/db"
	"github.com/ceyewan/confhub/testkit"
)

// parentEntry 与配置存储的表结构对应，测试中用来制造父配置项
type parentEntry struct {
	ID          uint   `gorm:"primaryKey"`
	Category    string `gorm:"size:64"`
	Environment string `gorm:"size:32"`
}

func (parentEntry) TableName() string { return "config_entries" }

func newTestLedger(t *testing.T) (Ledger, db.DB) {
	t.Helper()
	database := testkit.NewSQLiteDB(t, &parentEntry{}, &ConfigHistory{})
	ledger, err := New(database)
	require.NoError(t, err)
	return ledger, database
}

func createParent(t *testing.T, database db.DB, category, environment string) uint {
	t.Helper()
	entry := parentEntry{Category: category, Environment: environment}
	require.NoError(t, database.DB(context.Background()).Create(&entry).Error)
	return entry.ID
}

func TestAppendAndByConfig(t *testing.T) {
	ctx := context.Background()
	ledger, database := newTestLedger(t)
	configID := createParent(t, database, "smtp", "production")

	require.NoError(t, ledger.Append(ctx, &ConfigHistory{
		ConfigID: configID, OldValue: "", NewValue: "smtp.example.com", ChangedBy: "alice",
	}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{
		ConfigID: configID, OldValue: "smtp.example.com", NewValue: "smtp2.example.com", ChangedBy: "bob",
	}))

	rows, total, err := ledger.ByConfig(ctx, configID, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	// 默认最新在前
	assert.Equal(t, "smtp2.example.com", rows[0].NewValue)
	assert.Equal(t, "smtp.example.com", rows[1].NewValue)
}

func TestAppendRequiresConfigID(t *testing.T) {
	ledger, _ := newTestLedger(t)
	assert.ErrorIs(t, ledger.Append(context.Background(), &ConfigHistory{}), ErrInvalidRecord)
}

func TestByConfigPagination(t *testing.T) {
	ctx := context.Background()
	ledger, database := newTestLedger(t)
	configID := createParent(t, database, "app", "development")

	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: configID, ChangedBy: "alice"}))
	}

	rows, total, err := ledger.ByConfig(ctx, configID, Page{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, rows, 2)

	rows, _, err = ledger.ByConfig(ctx, configID, Page{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestByCategoryAndEnvironment(t *testing.T) {
	ctx := context.Background()
	ledger, database := newTestLedger(t)

	prodID := createParent(t, database, "smtp", "production")
	devID := createParent(t, database, "smtp", "development")
	otherID := createParent(t, database, "database", "production")

	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: prodID}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: devID}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: otherID}))

	rows, total, err := ledger.ByCategory(ctx, "smtp", Filter{}, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, rows, 2)

	rows, total, err = ledger.ByCategory(ctx, "smtp", Filter{Environment: "production"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, prodID, rows[0].ConfigID)
}

func TestByActor(t *testing.T) {
	ctx := context.Background()
	ledger, database := newTestLedger(t)
	configID := createParent(t, database, "smtp", "production")

	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: configID, ChangedBy: "alice"}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: configID, ChangedBy: "alice"}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: configID, ChangedBy: "bob"}))

	_, total, err := ledger.ByActor(ctx, "alice", Filter{}, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	ledger, database := newTestLedger(t)

	smtpID := createParent(t, database, "smtp", "production")
	dbID := createParent(t, database, "database", "production")

	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: smtpID, ChangedBy: "alice"}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: smtpID, ChangedBy: "bob"}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: dbID, ChangedBy: "alice"}))

	stats, err := ledger.Statistics(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByCategory["smtp"])
	assert.Equal(t, int64(1), stats.ByCategory["database"])
	assert.Equal(t, int64(2), stats.ByActor["alice"])
	assert.Equal(t, int64(1), stats.ByActor["bob"])
	require.NotEmpty(t, stats.ByDay)

	var dayTotal int64
	for _, d := range stats.ByDay {
		dayTotal += d.Count
	}
	assert.Equal(t, int64(3), dayTotal)
}

func TestStatisticsFiltered(t *testing.T) {
	ctx := context.Background()
	ledger, database := newTestLedger(t)

	smtpID := createParent(t, database, "smtp", "production")
	dbID := createParent(t, database, "database", "production")

	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: smtpID, ChangedBy: "alice"}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: smtpID, ChangedBy: "bob"}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: dbID, ChangedBy: "alice"}))

	// 过滤条件作用于所有聚合维度
	stats, err := ledger.Statistics(ctx, Filter{Category: "smtp"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.ByCategory["smtp"])
	assert.NotContains(t, stats.ByCategory, "database")
	assert.Equal(t, int64(1), stats.ByActor["alice"])
	assert.Equal(t, int64(1), stats.ByActor["bob"])

	var dayTotal int64
	for _, d := range stats.ByDay {
		dayTotal += d.Count
	}
	assert.Equal(t, int64(2), dayTotal)
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	ledger, database := newTestLedger(t)
	configID := createParent(t, database, "smtp", "production")

	old := ConfigHistory{ConfigID: configID, ChangedBy: "alice"}
	require.NoError(t, database.DB(ctx).Create(&old).Error)
	require.NoError(t, database.DB(ctx).Model(&old).
		Update("created_at", time.Now().AddDate(0, 0, -90)).Error)

	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: configID, ChangedBy: "bob"}))

	n, err := ledger.PurgeOlderThan(ctx, 30, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, total, err := ledger.ByConfig(ctx, configID, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestPurgeOlderThanByCategory(t *testing.T) {
	ctx := context.Background()
	ledger, database := newTestLedger(t)

	smtpID := createParent(t, database, "smtp", "production")
	dbID := createParent(t, database, "database", "production")

	for _, id := range []uint{smtpID, dbID} {
		h := ConfigHistory{ConfigID: id}
		require.NoError(t, database.DB(ctx).Create(&h).Error)
		require.NoError(t, database.DB(ctx).Model(&h).
			Update("created_at", time.Now().AddDate(0, 0, -90)).Error)
	}

	n, err := ledger.PurgeOlderThan(ctx, 30, "smtp")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, total, err := ledger.ByConfig(ctx, dbID, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestPurgeOrphaned(t *testing.T) {
	ctx := context.Background()
	ledger, database := newTestLedger(t)

	liveID := createParent(t, database, "smtp", "production")
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: liveID}))
	require.NoError(t, ledger.Append(ctx, &ConfigHistory{ConfigID: 9999}))

	n, err := ledger.PurgeOrphaned(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, total, err := ledger.ByConfig(ctx, liveID, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
