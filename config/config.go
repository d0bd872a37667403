package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system-level settings
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// WebConfig admin/tenant API settings
type WebConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	JwtSecret string `yaml:"jwt_secret" json:"jwt_secret"`
}

// DBConfig database settings
type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// LogConfig logger settings
type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

// WhatsAppConfig messaging session policy
type WhatsAppConfig struct {
	// QRFreshSeconds is how long an emitted QR code is served as current.
	QRFreshSeconds int `yaml:"qr_fresh_seconds" json:"qr_fresh_seconds"`
	// ReconnectMax is the retry budget after an unexpected disconnect.
	ReconnectMax int `yaml:"reconnect_max" json:"reconnect_max"`
	// ReconnectDelaySeconds is multiplied by the attempt count per retry.
	ReconnectDelaySeconds int `yaml:"reconnect_delay_seconds" json:"reconnect_delay_seconds"`
	// AcquireWaitSeconds is the ceiling a caller waits on a concurrent
	// initialization before assuming it stalled.
	AcquireWaitSeconds int `yaml:"acquire_wait_seconds" json:"acquire_wait_seconds"`
	// InitTimeoutSeconds bounds a single transport initialize attempt.
	InitTimeoutSeconds int `yaml:"init_timeout_seconds" json:"init_timeout_seconds"`
	// DispatchWorkers bounds concurrent inbound message processing.
	DispatchWorkers int `yaml:"dispatch_workers" json:"dispatch_workers"`
}

// OpenAIConfig completion backend settings
type OpenAIConfig struct {
	ApiKey       string `yaml:"api_key" json:"api_key"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	DefaultModel string `yaml:"default_model" json:"default_model"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system" json:"system"`
	Web      WebConfig      `yaml:"web" json:"web"`
	Database DBConfig       `yaml:"database" json:"database"`
	Logger   LogConfig      `yaml:"logger" json:"logger"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp" json:"whatsapp"`
	OpenAI   OpenAIConfig   `yaml:"openai" json:"openai"`
}

// SessionDir returns the credential storage partition for one tenant.
// Every tenant gets its own directory so whatsmeow stores never collide.
func (c *AppConfig) SessionDir(tenantKey string) string {
	return filepath.Join(c.System.Workdir, "sessions", tenantKey)
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "WaBotHub",
			Location: "Asia/Jakarta",
			Workdir:  "/var/wabothub",
			Debug:    true,
		},
		Web: WebConfig{
			Host:      "0.0.0.0",
			Port:      1989,
			JwtSecret: "9b6bb556-a778-4c02-a4e9-cbff4ca66e5a",
		},
		Database: DBConfig{
			Type:     "postgres",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "wabothub",
			User:     "postgres",
			Passwd:   "",
			MaxConn:  100,
			IdleConn: 10,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: true,
			Filename:   "/var/wabothub/wabothub.log",
		},
		WhatsApp: WhatsAppConfig{
			QRFreshSeconds:        45,
			ReconnectMax:          5,
			ReconnectDelaySeconds: 5,
			AcquireWaitSeconds:    30,
			InitTimeoutSeconds:    60,
			DispatchWorkers:       32,
		},
		OpenAI: OpenAIConfig{
			DefaultModel: "gpt-4o-mini",
		},
	}
}

// LoadConfig reads the YAML config file and applies environment overrides.
// A missing file yields the defaults so the service can boot in dev mode.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultConfig()
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}
	setEnvValues(cfg)
	return cfg
}

func setEnvValues(cfg *AppConfig) {
	setEnvString(&cfg.System.Workdir, "WABOTHUB_SYSTEM_WORKDIR")
	setEnvBool(&cfg.System.Debug, "WABOTHUB_SYSTEM_DEBUG")
	setEnvString(&cfg.Web.Host, "WABOTHUB_WEB_HOST")
	setEnvInt(&cfg.Web.Port, "WABOTHUB_WEB_PORT")
	setEnvString(&cfg.Web.JwtSecret, "WABOTHUB_WEB_JWT_SECRET")
	setEnvString(&cfg.Database.Type, "WABOTHUB_DB_TYPE")
	setEnvString(&cfg.Database.Host, "WABOTHUB_DB_HOST")
	setEnvInt(&cfg.Database.Port, "WABOTHUB_DB_PORT")
	setEnvString(&cfg.Database.Name, "WABOTHUB_DB_NAME")
	setEnvString(&cfg.Database.User, "WABOTHUB_DB_USER")
	setEnvString(&cfg.Database.Passwd, "WABOTHUB_DB_PWD")
	setEnvString(&cfg.Logger.Mode, "WABOTHUB_LOGGER_MODE")
	setEnvString(&cfg.OpenAI.ApiKey, "WABOTHUB_OPENAI_API_KEY")
	setEnvString(&cfg.OpenAI.BaseURL, "WABOTHUB_OPENAI_BASE_URL")
	setEnvString(&cfg.OpenAI.DefaultModel, "WABOTHUB_OPENAI_MODEL")
}

func setEnvString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setEnvInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = cast.ToInt(v)
	}
}

func setEnvBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = cast.ToBool(v)
	}
}
