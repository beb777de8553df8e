package config

import (
	"context"
	"sync/atomic"

	"pontos/internal/models"
)

// SettingsLister reads SystemSetting rows.
type SettingsLister interface {
	ListSettings(ctx context.Context, category string) ([]models.SystemSetting, error)
}

// SettingsStore holds the engine settings currently in force: the configured
// defaults overlaid with the SystemSetting rows of the last Reload.
type SettingsStore struct {
	base    EngineSettings
	current atomic.Pointer[EngineSettings]
}

func NewSettingsStore(base EngineSettings) *SettingsStore {
	s := &SettingsStore{base: base}
	s.current.Store(&base)
	return s
}

// Current returns a snapshot of the settings in force.
func (s *SettingsStore) Current() EngineSettings {
	return *s.current.Load()
}

// Reload re-reads the wallet settings rows. On error the previous settings
// stay in force.
func (s *SettingsStore) Reload(ctx context.Context, lister SettingsLister) error {
	rows, err := lister.ListSettings(ctx, SettingsCategory)
	if err != nil {
		return err
	}
	next, err := s.base.Apply(rows)
	if err != nil {
		return err
	}
	s.current.Store(&next)
	return nil
}
