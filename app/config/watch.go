package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchLogLevel 监听配置文件变化，将新的 log.level 交给 apply
// 未使用配置文件时不做任何事，返回 false
func WatchLogLevel(apply func(level string, event fsnotify.Event)) bool {
	if viper.ConfigFileUsed() == "" {
		return false
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		apply(viper.GetString("log.level"), e)
	})
	viper.WatchConfig()
	return true
}
