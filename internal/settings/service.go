// Package settings administers the small set of admin-configurable global
// key/value settings (e.g. default provider weights, feature toggles).
package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"scoutline.dev/orchestrator/internal/model"
	"scoutline.dev/orchestrator/internal/store"
)

// Service administers global settings.
type Service struct {
	settings store.SettingStore
}

// NewService builds a settings Service.
func NewService(settingStore store.SettingStore) *Service {
	return &Service{settings: settingStore}
}

// Get returns a single setting by key.
func (s *Service) Get(ctx context.Context, key string) (*model.Setting, error) {
	return s.settings.Get(ctx, key)
}

// List returns every stored setting.
func (s *Service) List(ctx context.Context) ([]model.Setting, error) {
	return s.settings.List(ctx)
}

// Set validates value as JSON and upserts it under key.
func (s *Service) Set(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("settings: value for %q is not valid JSON", key)
	}
	return s.settings.Set(ctx, key, value)
}

// Delete removes a setting permanently.
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.settings.Delete(ctx, key)
}
