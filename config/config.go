package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// SysConfig system level configuration
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// WebConfig admin web server configuration
type WebConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Secret string `yaml:"secret" json:"secret"`
}

// BackendConfig upstream messaging API configuration. The backend exposes
// the history/send REST endpoints and the socket event stream.
type BackendConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Token   string `yaml:"token" json:"token"`
	// QRValiditySeconds is the pairing QR validity window
	QRValiditySeconds int `yaml:"qr_validity_seconds" json:"qr_validity_seconds"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system" json:"system"`
	Web      WebConfig     `yaml:"web" json:"web"`
	Backend  BackendConfig `yaml:"backend" json:"backend"`
	Database DBConfig      `yaml:"database" json:"database"`
	Logger   LogConfig     `yaml:"logger" json:"logger"`
}

func (c *AppConfig) GetLogDir() string {
	return filepath.Join(c.System.Workdir, "logs")
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "wadesk",
		Location: "Asia/Jakarta",
		Workdir:  "/var/wadesk",
		Debug:    true,
	},
	Web: WebConfig{
		Host:   "0.0.0.0",
		Port:   1816,
		Secret: "9b6de5cc-0001-1203-xxtt-0f568ac9da37",
	},
	Backend: BackendConfig{
		BaseURL:           "http://127.0.0.1:3100",
		QRValiditySeconds: 60,
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "wadesk_v1",
		User:     "postgres",
		MaxConn:  100,
		IdleConn: 10,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/wadesk/wadesk.log",
	},
}

func setEnvValue(name string, f func(v string)) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		f(evalue)
	}
}

func setEnvIntValue(name string, f func(v int)) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		f(cast.ToInt(evalue))
	}
}

func setEnvBoolValue(name string, f func(v bool)) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		f(evalue == "true" || evalue == "1" || evalue == "on")
	}
}

// LoadConfig reads the YAML config at cfile, falling back to defaults and
// applying WADESK_* environment overrides last.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultAppConfig
	if cfile != "" {
		if _, err := os.Stat(cfile); err == nil {
			data, err := os.ReadFile(cfile)
			if err == nil {
				var ycfg AppConfig
				if err := yaml.Unmarshal(data, &ycfg); err == nil {
					cfg = &ycfg
				}
			}
		}
	}

	setEnvValue("WADESK_SYSTEM_WORKDIR", func(v string) { cfg.System.Workdir = v })
	setEnvBoolValue("WADESK_SYSTEM_DEBUG", func(v bool) { cfg.System.Debug = v })
	setEnvValue("WADESK_WEB_HOST", func(v string) { cfg.Web.Host = v })
	setEnvIntValue("WADESK_WEB_PORT", func(v int) { cfg.Web.Port = v })
	setEnvValue("WADESK_WEB_SECRET", func(v string) { cfg.Web.Secret = v })
	setEnvValue("WADESK_BACKEND_BASEURL", func(v string) { cfg.Backend.BaseURL = v })
	setEnvValue("WADESK_BACKEND_TOKEN", func(v string) { cfg.Backend.Token = v })
	setEnvIntValue("WADESK_BACKEND_QR_VALIDITY", func(v int) { cfg.Backend.QRValiditySeconds = v })
	setEnvValue("WADESK_DB_HOST", func(v string) { cfg.Database.Host = v })
	setEnvIntValue("WADESK_DB_PORT", func(v int) { cfg.Database.Port = v })
	setEnvValue("WADESK_DB_NAME", func(v string) { cfg.Database.Name = v })
	setEnvValue("WADESK_DB_USER", func(v string) { cfg.Database.User = v })
	setEnvValue("WADESK_DB_PWD", func(v string) { cfg.Database.Passwd = v })
	setEnvValue("WADESK_LOGGER_MODE", func(v string) { cfg.Logger.Mode = v })

	return cfg
}
