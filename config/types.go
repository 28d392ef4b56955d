package config

import "time"

type AppConfig struct {
	DBPath     string          `yaml:"db_path" env:"KESTREL_DB_PATH" env-default:"data/kestrel.db"`
	ListenAddr string          `yaml:"listen_addr" env:"KESTREL_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	LogLevel   string          `yaml:"log_level" env:"KESTREL_LOG_LEVEL" env-default:"info"`
	Incidents  IncidentsConfig `yaml:"incidents"`
	Notify     NotifyConfig    `yaml:"notify"`
	Sweeper    SweeperConfig   `yaml:"sweeper"`
}

type IncidentsConfig struct {
	RegNoFormat      string `yaml:"reg_no_format" env:"KESTREL_INCIDENTS_REG_NO_FORMAT" env-default:"IR-{year}-{seq:04}"`
	AppealWindowDays int    `yaml:"appeal_window_days" env:"KESTREL_INCIDENTS_APPEAL_WINDOW_DAYS" env-default:"7"`
}

const defaultAppealWindow = 7 * 24 * time.Hour

// AppealWindow returns the time a reported individual has to appeal after a
// verdict is recorded. Zero or negative config falls back to seven days.
func (c IncidentsConfig) AppealWindow() time.Duration {
	if c.AppealWindowDays <= 0 {
		return defaultAppealWindow
	}
	return time.Duration(c.AppealWindowDays) * 24 * time.Hour
}

type NotifyConfig struct {
	Enabled    bool   `yaml:"enabled" env:"KESTREL_NOTIFY_ENABLED" env-default:"false"`
	GatewayURL string `yaml:"gateway_url" env:"KESTREL_NOTIFY_GATEWAY_URL"`
	From       string `yaml:"from" env:"KESTREL_NOTIFY_FROM" env-default:"no-reply@kestrel.local"`
	TimeoutSec int    `yaml:"timeout_sec" env:"KESTREL_NOTIFY_TIMEOUT" env-default:"10"`
}

type SweeperConfig struct {
	Enabled  bool   `yaml:"enabled" env:"KESTREL_SWEEPER_ENABLED" env-default:"true"`
	Schedule string `yaml:"schedule" env:"KESTREL_SWEEPER_SCHEDULE" env-default:"30 3 * * *"`
}
