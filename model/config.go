package model

// Config 对应于 config.yaml 的顶级结构
type Config struct {
	Token   string        `mapstructure:"TOKEN"`
	Channel string        `mapstructure:"channel_id"`
	Owners  []string      `mapstructure:"owners"`
	DBPath  string        `mapstructure:"db_path"`
	Quota   QuotaConfig   `mapstructure:"quota"`
	Session SessionConfig `mapstructure:"session"`
	Paste   PasteConfig   `mapstructure:"paste"`
	Banner  BannerConfig  `mapstructure:"banner"`
	Log     LogConfig     `mapstructure:"log"`
}

// QuotaConfig 对应 "quota" 部分
type QuotaConfig struct {
	DailyLimit int    `mapstructure:"daily_limit"`
	Timezone   string `mapstructure:"timezone"`
}

// SessionConfig 对应 "session" 部分
type SessionConfig struct {
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
	MaxRetries     int `mapstructure:"max_retries"`
	WorkerLimit    int `mapstructure:"worker_limit"`
}

// PasteConfig 对应 "paste" 部分
type PasteConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	APIKey      string `mapstructure:"api_key"`
	InlineLimit int    `mapstructure:"inline_limit"`
}

// BannerConfig 对应 "banner" 部分
type BannerConfig struct {
	AssetDir string `mapstructure:"asset_dir"`
}

// LogConfig 对应 "log" 部分
type LogConfig struct {
	Path       string `mapstructure:"path"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}
