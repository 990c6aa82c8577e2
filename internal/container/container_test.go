package container_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/api"
	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/mautops/shipchange-gin/internal/container"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = t.TempDir() + "/shipchange.db"
	cfg.Auth.TokenSecret = "container-test"
	cfg.Auth.AdminPassword = "admin-pass-1"
	return cfg
}

// TestContainer_NewContainer 测试容器完成迁移、初始化管理员并提供路由依赖
func TestContainer_NewContainer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctr, err := container.NewContainer(sqliteConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, ctr.Close()) })

	require.NoError(t, ctr.Start(context.Background()))

	var admins int64
	require.NoError(t, ctr.DB().Model(&model.UserModel{}).Where("username = ?", "admin").Count(&admins).Error)
	assert.Equal(t, int64(1), admins)
	assert.NotNil(t, ctr.ChangeRequests())
	assert.Equal(t, "ChangeRequest", ctr.ChangeRequests().Kind())

	router := api.SetupRoutes(ctr.RouterDeps())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestContainer_InvalidDeletePolicy 测试未知删除策略被拒绝
func TestContainer_InvalidDeletePolicy(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Lifecycle.DeletePolicy = "whenever"

	_, err := container.NewContainer(cfg, nil)
	assert.Error(t, err)
}

// TestContainer_CloseWithoutStart 测试未启动时也能关闭
func TestContainer_CloseWithoutStart(t *testing.T) {
	ctr, err := container.NewContainer(sqliteConfig(t), nil)
	require.NoError(t, err)
	assert.NoError(t, ctr.Close())
}
