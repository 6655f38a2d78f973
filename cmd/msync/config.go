package main

import (
	"github.com/spf13/viper"

	"github.com/franz/musicsync/internal/oplog"
)

func setDefaults() {
	viper.SetDefault("redis.channel", oplog.DefaultChannel)
	viper.SetDefault("listen", ":7420")
	viper.SetDefault("scan.batch_size", 500)
	viper.SetDefault("scan.concurrency", 4)
	viper.SetDefault("scan.max_outstanding", 4)
	viper.SetDefault("events.dir", "artifacts")
}

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (MSYNC_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigStringSlice retrieves a string slice config value
func GetConfigStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}
