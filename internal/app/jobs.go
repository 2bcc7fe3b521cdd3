package app

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/coolnoor19/wadesk/internal/domain"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSyncDeviceStatus()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		go a.SchedClearStaleDevices()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedSyncDeviceStatus persists the live session table into chat_device
// rows so device status survives restarts.
func (a *Application) SchedSyncDeviceStatus() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	if a.sessionSource == nil {
		return
	}

	for _, s := range a.sessionSource() {
		var count int64
		a.gormDB.Model(&domain.ChatDevice{}).Where("phone = ?", s.ID).Count(&count)
		if count == 0 {
			a.gormDB.Create(&domain.ChatDevice{
				Phone:     s.ID,
				Status:    s.Status,
				LastError: s.LastError,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			})
			continue
		}
		a.gormDB.Model(&domain.ChatDevice{}).Where("phone = ?", s.ID).Updates(map[string]interface{}{
			"status":     s.Status,
			"last_error": s.LastError,
			"updated_at": time.Now(),
		})
	}
}

// SchedClearStaleDevices removes device rows that have been disconnected
// for more than 90 days.
func (a *Application) SchedClearStaleDevices() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	a.gormDB.
		Where("status = ? and updated_at < ?", domain.SessionDisconnected,
			time.Now().Add(-time.Hour*24*90)).
		Delete(&domain.ChatDevice{})
}
