package domain

import "time"

// ChatDevice is the persisted registry row for a WhatsApp-linked device
// managed through the dashboard. Jid is populated once pairing completes.
type ChatDevice struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	Phone     string    `json:"phone" gorm:"index"`
	Name      string    `json:"name"`
	Jid       string    `json:"jid"`
	Status    string    `json:"status"` // e.g., created, pending, connected, disconnected
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChatDevice) TableName() string {
	return "chat_device"
}

// SysConfig holds a single settings entry.
type SysConfig struct {
	ID     int64  `json:"id,string" gorm:"primaryKey"`
	Sort   int    `json:"sort"`
	Type   string `json:"type" gorm:"index"`
	Name   string `json:"name" gorm:"index"`
	Value  string `json:"value"`
	Remark string `json:"remark"`
}

func (SysConfig) TableName() string {
	return "sys_config"
}
