package main

import (
	"trendwatch-backend/lib/configutil"
	"trendwatch-backend/lib/util/serviceutil"
)

type Config struct {
	Port  int  `json:"port"`
	Debug bool `json:"debug"`
	// DatabasePath is where the sqlite product store lives.
	DatabasePath string `json:"database_path"`
	// Headful disables headless mode for local debugging.
	Headful bool   `json:"headful"`
	BaseUrl string `json:"base_url"`
	// SessionMaxAgeMinutes caps how old the scraping session may get
	// before it is re-established. Zero means 60.
	SessionMaxAgeMinutes int `json:"session_max_age_minutes"`
}

func MustLoadConfig(path string) Config {
	config, err := configutil.ReadConfig[Config](path)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.Port == 0 {
		config.Port = 8000
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "data/trendwatch.db"
	}
	return config
}
