package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_JSONFormat 测试 JSON 格式日志包含默认字段
func TestNew_JSONFormat(t *testing.T) {
	log, err := logger.New(config.LogConfig{Level: "info", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithField("request_id", "r-1").Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "shipchange", entry["service"])
	assert.Equal(t, "r-1", entry["request_id"])
}

// TestNew_InvalidLevel 测试非法级别回退到 info
func TestNew_InvalidLevel(t *testing.T) {
	log, err := logger.New(config.LogConfig{Level: "loud", Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

// TestNew_FileOutput 测试文件输出
func TestNew_FileOutput(t *testing.T) {
	path := t.TempDir() + "/nested/app.log"
	log, err := logger.New(config.LogConfig{Level: "debug", Format: "json", Output: "file", File: path})
	require.NoError(t, err)
	log.Debug("written")
	assert.FileExists(t, path)
}

// TestApplyLevel 测试热更新日志级别
func TestApplyLevel(t *testing.T) {
	log := logrus.New()
	assert.True(t, logger.ApplyLevel(log, "warn"))
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.False(t, logger.ApplyLevel(log, "nope"))
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
}

// TestOrDefault 测试 nil 回退
func TestOrDefault(t *testing.T) {
	assert.Same(t, logger.Default(), logger.OrDefault(nil))
	l := logrus.New()
	assert.Same(t, l, logger.OrDefault(l))
}
