package store

import (
	"context"
	"sort"
	"strconv"

	"github.com/ceyewan/confhub/xerrors"
)

// ToggleCategory 功能开关专用分类
const ToggleCategory = "feature_toggles"

func (s *configStore) GetFeatureToggles(ctx context.Context, environment string) (map[string]bool, error) {
	entries, err := s.FindByCategory(ctx, ToggleCategory, environment, false)
	if err != nil {
		return nil, err
	}

	toggles := make(map[string]bool, len(entries))
	for i := range entries {
		toggles[entries[i].Key] = entries[i].Value == "true" || entries[i].Value == "1"
	}
	return toggles, nil
}

func (s *configStore) SetFeatureToggle(ctx context.Context, name string, enabled bool, environment string, audit Audit) error {
	if name == "" {
		return xerrors.Wrap(ErrInvalidInput, "toggle name is required")
	}

	value := strconv.FormatBool(enabled)
	existing, err := s.FindByKey(ctx, ToggleCategory, name, environment)
	if err == nil {
		_, uerr := s.Update(ctx, existing.ID, Updates{Value: &value}, audit)
		return uerr
	}
	if !xerrors.Is(err, ErrNotFound) {
		return err
	}

	return s.Create(ctx, &ConfigEntry{
		Category:    ToggleCategory,
		Key:         name,
		Value:       value,
		ValueType:   ValueTypeBoolean,
		IsActive:    true,
		Environment: environment,
	}, audit)
}

func (s *configStore) BulkUpdateFeatureToggles(ctx context.Context, toggles map[string]bool, environment string, audit Audit) error {
	if len(toggles) == 0 {
		return xerrors.Wrap(ErrInvalidInput, "no toggles to update")
	}

	// 固定顺序，让审计记录和事件的顺序可复现
	names := make([]string, 0, len(toggles))
	for name := range toggles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.SetFeatureToggle(ctx, name, toggles[name], environment, audit); err != nil {
			return xerrors.Wrapf(err, "toggle %q", name)
		}
	}
	return nil
}
