package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeEventRoundTrip(t *testing.T) {
	e := NewUpdated("database", "host", "production", "10.0.0.1", "10.0.0.2", "alice")
	require.NotEmpty(t, e.ID)

	data, err := e.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalChange(data)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, TypeUpdated, got.Type)
	assert.Equal(t, "10.0.0.1", got.OldValue)
	assert.Equal(t, "10.0.0.2", got.NewValue)
}

func TestChangeEventVariants(t *testing.T) {
	created := NewCreated("app", "name", "development", "confhub", "bob")
	assert.Empty(t, created.OldValue)
	assert.Equal(t, "confhub", created.NewValue)

	deleted := NewDeleted("app", "name", "development", "confhub", "bob")
	assert.Equal(t, "confhub", deleted.OldValue)
	assert.Empty(t, deleted.NewValue)
}

func TestChangeEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   ChangeEvent
		wantErr bool
	}{
		{"合法事件", ChangeEvent{Type: TypeCreated, Category: "app", Key: "name"}, false},
		{"未知类型", ChangeEvent{Type: "renamed", Category: "app", Key: "name"}, true},
		{"缺少分类", ChangeEvent{Type: TypeUpdated, Key: "name"}, true},
		{"缺少键", ChangeEvent{Type: TypeDeleted, Category: "app"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnmarshalChangeRejectsGarbage(t *testing.T) {
	_, err := UnmarshalChange([]byte("{not json"))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestCategoryTopic(t *testing.T) {
	assert.Equal(t, "config.changes.database", CategoryTopic("database"))
}

func TestReloadEventRoundTrip(t *testing.T) {
	e := NewReload(ReloadCompleted, "database", "host")
	e.SuccessCount = 3

	data, err := e.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalReload(data)
	require.NoError(t, err)
	assert.Equal(t, ReloadCompleted, got.Phase)
	assert.Equal(t, 3, got.SuccessCount)
}
