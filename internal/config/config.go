package config

import "os"

type Config struct {
	Addr   string
	DBPath string
}

func Default() Config {
	return Config{
		Addr:   envOr("PODFETCH_OFFLINE_ADDR", "127.0.0.1:8912"),
		DBPath: envOr("PODFETCH_OFFLINE_DB_PATH", "podfetch-offline.db"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
