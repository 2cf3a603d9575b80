package config

import (
	"postmaker/model"

	"github.com/spf13/viper"
)

var Cfg model.Config

func LoadConfig() (err error) {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	viper.SetDefault("db_path", "./data/postmaker.db")
	viper.SetDefault("quota.daily_limit", 2)
	viper.SetDefault("quota.timezone", "UTC")
	viper.SetDefault("session.timeout_minutes", 10)
	viper.SetDefault("session.max_retries", 3)
	viper.SetDefault("session.worker_limit", 8)
	viper.SetDefault("paste.endpoint", "https://pastebin.com/api/api_post.php")
	viper.SetDefault("paste.inline_limit", 700)
	viper.SetDefault("banner.asset_dir", "./src")
	viper.SetDefault("log.level", "info")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&Cfg)
	return
}
