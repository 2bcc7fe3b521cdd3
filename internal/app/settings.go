package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/internal/domain"
)

const settingsCacheTTL = 30 * time.Second

// SettingsManager caches sys_config rows with a short TTL so hot paths do
// not hit the database per lookup.
type SettingsManager struct {
	app      *Application
	mu       sync.RWMutex
	cache    map[string]string
	loadedAt time.Time
}

func NewSettingsManager(app *Application) *SettingsManager {
	return &SettingsManager{app: app, cache: make(map[string]string)}
}

func settingsKey(category, name string) string {
	return fmt.Sprintf("%s.%s", category, name)
}

func (m *SettingsManager) reloadIfStale() {
	m.mu.RLock()
	fresh := time.Since(m.loadedAt) < settingsCacheTTL
	m.mu.RUnlock()
	if fresh {
		return
	}

	var rows []domain.SysConfig
	if err := m.app.DB().Find(&rows).Error; err != nil {
		zap.L().Error("failed to load settings", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.cache = make(map[string]string, len(rows))
	for _, row := range rows {
		m.cache[settingsKey(row.Type, row.Name)] = row.Value
	}
	m.loadedAt = time.Now()
	m.mu.Unlock()
}

func (m *SettingsManager) GetString(category, name string) string {
	m.reloadIfStale()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache[settingsKey(category, name)]
}

func (m *SettingsManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(m.GetString(category, name))
}

func (m *SettingsManager) GetBool(category, name string) bool {
	v := m.GetString(category, name)
	return v == "true" || v == "1" || v == "on" || v == "enabled"
}

// SetValue writes a setting row and invalidates the cache.
func (m *SettingsManager) SetValue(category, name, value string) error {
	var count int64
	m.app.DB().Model(&domain.SysConfig{}).
		Where("type = ? and name = ?", category, name).
		Count(&count)

	var err error
	if count == 0 {
		err = m.app.DB().Create(&domain.SysConfig{
			Type:  category,
			Name:  name,
			Value: value,
		}).Error
	} else {
		err = m.app.DB().Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, name).
			Update("value", value).Error
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.loadedAt = time.Time{}
	m.mu.Unlock()
	return nil
}
