package app

import (
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/internal/domain"
)

type settingSchema struct {
	Category    string
	Name        string
	Default     string
	Description string
}

var defaultSettings = []settingSchema{
	{"chat", "PageSize", "50", "Conversation list page size"},
	{"chat", "HistoryLimit", "500", "Maximum messages pulled per history fetch"},
	{"session", "QRValiditySeconds", "60", "Pairing QR validity window in seconds"},
	{"session", "AutoReconnect", "enabled", "Reattach socket rooms after reconnect"},
}

// checkSettings initializes missing sys_config rows with defaults.
func (a *Application) checkSettings() {
	for sortid, schema := range defaultSettings {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", schema.Category, schema.Name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				Sort:   sortid,
				Type:   schema.Category,
				Name:   schema.Name,
				Value:  schema.Default,
				Remark: schema.Description,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Category+"."+schema.Name),
				zap.String("default", schema.Default))
		}
	}
}
