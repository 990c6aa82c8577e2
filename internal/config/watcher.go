package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigWatcher 配置文件监听器，文件变更时重新加载并通知回调
type ConfigWatcher struct {
	config    *Config
	viper     *viper.Viper
	log       *logrus.Logger
	callbacks []func(*Config)
	mu        sync.RWMutex
	stopped   bool
	stopMu    sync.RWMutex
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(cfg *Config, configPath string, log *logrus.Logger) *ConfigWatcher {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if log == nil {
		log = logrus.StandardLogger()
	}

	return &ConfigWatcher{
		config: cfg,
		viper:  v,
		log:    log,
	}
}

// OnConfigChange 注册配置变更回调
func (w *ConfigWatcher) OnConfigChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动配置监听
func (w *ConfigWatcher) Start() error {
	if err := w.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	w.viper.OnConfigChange(w.handleChange)
	w.viper.WatchConfig()
	return nil
}

func (w *ConfigWatcher) handleChange(e fsnotify.Event) {
	w.stopMu.RLock()
	stopped := w.stopped
	w.stopMu.RUnlock()
	if stopped {
		return
	}

	var newCfg Config
	if err := w.viper.Unmarshal(&newCfg); err != nil {
		w.log.WithError(err).WithField("file", e.Name).Error("Failed to reload config")
		return
	}
	w.log.WithField("file", e.Name).Info("Config reloaded")

	// 回调在锁外执行
	w.mu.RLock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, callback := range callbacks {
		callback(&newCfg)
	}

	w.mu.Lock()
	w.config = &newCfg
	w.mu.Unlock()
}

// Stop 停止配置监听
func (w *ConfigWatcher) Stop() {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	w.stopped = true
}

// GetConfig 获取当前配置
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}
