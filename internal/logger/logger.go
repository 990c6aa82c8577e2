package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	defaultLogger *logrus.Logger
	defaultOnce   sync.Once
)

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: timestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	}
}

// New 根据配置创建日志记录器
func New(cfg config.LogConfig) (*logrus.Logger, error) {
	log := logrus.New()

	if cfg.Format == "json" {
		log.SetFormatter(jsonFormatter())
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	var writers []io.Writer
	if cfg.Output == "stdout" || cfg.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		path := cfg.File
		if path == "" {
			path = filepath.Join("logs", "shipchange.log")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}
	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}
	log.SetOutput(io.MultiWriter(writers...))

	// 添加默认字段（用于日志聚合）
	log.AddHook(&defaultFieldsHook{
		fields: logrus.Fields{"service": "shipchange"},
	})

	return log, nil
}

// defaultFieldsHook 添加默认字段的 Hook
type defaultFieldsHook struct {
	fields logrus.Fields
}

func (h *defaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *defaultFieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// Default 获取默认日志记录器
func Default() *logrus.Logger {
	defaultOnce.Do(func() {
		defaultLogger = logrus.New()
		defaultLogger.SetFormatter(jsonFormatter())
		defaultLogger.SetLevel(logrus.InfoLevel)
		defaultLogger.SetOutput(os.Stdout)
	})
	return defaultLogger
}

// OrDefault 返回 l，为 nil 时返回默认日志记录器
func OrDefault(l *logrus.Logger) *logrus.Logger {
	if l == nil {
		return Default()
	}
	return l
}

// ApplyLevel 热更新日志级别，非法级别保持不变
func ApplyLevel(l *logrus.Logger, level string) bool {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return false
	}
	l.SetLevel(parsed)
	return true
}
