package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/api"
	"github.com/mautops/shipchange-gin/internal/audit"
	"github.com/mautops/shipchange-gin/internal/auth"
	"github.com/mautops/shipchange-gin/internal/config"
	"github.com/mautops/shipchange-gin/internal/database"
	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/mautops/shipchange-gin/internal/repository"
	"github.com/mautops/shipchange-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type envelope struct {
	Code       int                 `json:"code"`
	Message    string              `json:"message"`
	Detail     string              `json:"detail"`
	Data       json.RawMessage     `json:"data"`
	Fields     []map[string]string `json:"fields"`
	Pagination api.PaginationInfo  `json:"pagination"`
}

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	issuer   *auth.TokenIssuer
	admin    string
	operator string
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	cfg := config.Default()
	cfg.RateLimit.LoginRPS = 100
	cfg.RateLimit.LoginBurst = 100
	if mutate != nil {
		mutate(cfg)
	}

	writer := audit.NewWriter(repository.NewAuditLogRepository(db), nil, nil, time.Second)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	issuer := auth.NewTokenIssuer("api-test-secret", time.Hour)
	boot := service.NewAdminBootstrapper(db, hasher, writer, "admin", "admin-pass-1", nil)
	require.NoError(t, boot.EnsureDefaults(context.Background()))

	logins := service.NewLoginLogService(repository.NewLoginLogRepository(db), nil)
	shipRepo := repository.NewShipRepository(db)
	opts := service.LifecycleOptions{}

	router := api.SetupRoutes(api.RouterDeps{
		Config:           cfg,
		DB:               db,
		Verifier:         issuer,
		ChangeRequests:   service.NewChangeRequestService(db, writer, opts),
		HardwareRequests: service.NewHardwareChangeRequestService(db, writer, opts),
		SoftwareRequests: service.NewSoftwareChangeRequestService(db, writer, opts),
		AuditReader:      audit.NewReader(repository.NewAuditLogRepository(db), repository.NewLoginLogRepository(db)),
		Auth: service.NewAuthService(repository.NewUserRepository(db), hasher, logins, writer, issuer,
			service.AuthOptions{}),
		Logins:     logins,
		Ships:      service.NewShipService(shipRepo, writer),
		Components: service.NewComponentService(shipRepo, writer),
		Bootstrap:  boot,
	})

	operator, _, err := issuer.Issue(99, "deckhand", []string{"operator"})
	require.NoError(t, err)

	s := &testServer{router: router, db: db, issuer: issuer, operator: operator}
	s.admin = s.login(t, "admin", "admin-pass-1")
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.NotEmpty(t, result.Token)
	return result.Token
}

func decodeRequest(t *testing.T, env envelope) model.RequestBase {
	t.Helper()
	var base model.RequestBase
	require.NoError(t, json.Unmarshal(env.Data, &base))
	return base
}

func TestRequestIDMiddleware(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-abc")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "trace-abc", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/change-requests", nil)
	req.Header.Set("Origin", "https://bridge.example")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(t, http.MethodGet, "/api/v1/auth/me", s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me model.UserModel
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "admin", me.Username)
	assert.NotContains(t, string(env.Data), "password")

	w, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", s.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.LoginRPS = 0.001
		cfg.RateLimit.LoginBurst = 2
	})

	// newTestServer 已消耗一次额度
	w, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "admin-pass-1"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "too many requests", env.Message)
}

// TestChangeRequestLifecycle 测试通过接口走完整个审批流程
func TestChangeRequestLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	w, env := s.do(t, http.MethodPost, "/api/v1/change-requests", s.operator, map[string]interface{}{
		"title":          "Replace gyro compass",
		"requester_name": "Chief Officer",
		"request_number": "CR-199001-999",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeRequest(t, env)
	assert.Regexp(t, `^CR-\d{6}-001$`, created.RequestNumber)
	assert.Equal(t, model.StatusDraft, created.Status)
	require.NotNil(t, created.RequesterID)
	assert.Equal(t, uint(99), *created.RequesterID)

	base := "/api/v1/change-requests/" + itoa(created.ID)

	w, env = s.do(t, http.MethodPost, base+"/submit", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.StatusSubmitted, decodeRequest(t, env).Status)

	// 草稿之外不允许修改
	w, _ = s.do(t, http.MethodPut, base, s.operator, map[string]string{"title": "late edit"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = s.do(t, http.MethodPost, base+"/approve", s.admin, map[string]string{"comment": "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.StatusApproved, decodeRequest(t, env).Status)

	w, env = s.do(t, http.MethodPost, base+"/approve", s.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, env.Detail, "Approved")

	w, env = s.do(t, http.MethodPost, base+"/implement", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusImplemented, decodeRequest(t, env).Status)

	w, env = s.do(t, http.MethodGet, base+"/approvals", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var approvals []model.ApprovalModel
	require.NoError(t, json.Unmarshal(env.Data, &approvals))
	require.Len(t, approvals, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{approvals[0].Stage, approvals[1].Stage, approvals[2].Stage})
	assert.Equal(t, model.ApprovalActionApproved, approvals[1].Action)

	w, _ = s.do(t, http.MethodPost, "/api/v1/change-requests/4242/submit", s.operator, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/change-requests/abc", s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectRequiresReason(t *testing.T) {
	s := newTestServer(t, nil)

	_, env := s.do(t, http.MethodPost, "/api/v1/software-change-requests", s.operator, map[string]string{
		"requester_name": "ETO",
		"after_name":     "ECDIS 5.2",
	})
	created := decodeRequest(t, env)
	assert.Regexp(t, `^SW-\d{6}-001$`, created.RequestNumber)
	base := "/api/v1/software-change-requests/" + itoa(created.ID)

	s.do(t, http.MethodPost, base+"/submit", s.operator, nil)
	w, env := s.do(t, http.MethodPost, base+"/review", s.admin, map[string]string{"comment": "checking vendor notes"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusUnderReview, decodeRequest(t, env).Status)

	w, env = s.do(t, http.MethodPost, base+"/reject", s.admin, map[string]string{"reason": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation failed", env.Message)

	w, env = s.do(t, http.MethodPost, base+"/reject", s.admin, map[string]string{"reason": "vendor not certified"})
	require.Equal(t, http.StatusOK, w.Code)
	rejected := decodeRequest(t, env)
	assert.Equal(t, model.StatusRejected, rejected.Status)
	assert.Equal(t, "vendor not certified", rejected.RejectionReason)
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w, env := s.do(t, http.MethodPost, "/api/v1/hardware-change-requests", s.operator, map[string]string{
		"requester_name": "Chief Engineer",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, env.Fields)

	w, _ = s.do(t, http.MethodPost, "/api/v1/change-requests", s.operator, map[string]string{
		"title":          "wrong type",
		"requester_name": "Chief Engineer",
		"type":           "HW",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/change-requests", s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestUpdateKeepsOmittedFields 测试修改只覆盖请求体中的字段
func TestUpdateKeepsOmittedFields(t *testing.T) {
	s := newTestServer(t, nil)

	_, env := s.do(t, http.MethodPost, "/api/v1/hardware-change-requests", s.operator, map[string]string{
		"requester_name": "Chief Engineer",
		"equipment_name": "Radar",
		"purpose":        "Obsolete magnetron",
	})
	created := decodeRequest(t, env)

	w, env := s.do(t, http.MethodPut, "/api/v1/hardware-change-requests/"+itoa(created.ID), s.operator, map[string]interface{}{
		"equipment_name": "X-band radar",
		"status":         4,
		"request_number": "HW-000000-000",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var updated model.HardwareChangeRequestModel
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "X-band radar", updated.EquipmentName)
	assert.Equal(t, "Obsolete magnetron", updated.Purpose)
	assert.Equal(t, model.StatusDraft, updated.Status)
	assert.Equal(t, created.RequestNumber, updated.RequestNumber)
}

func TestDeleteRequiresAdmin(t *testing.T) {
	s := newTestServer(t, nil)

	_, env := s.do(t, http.MethodPost, "/api/v1/change-requests", s.operator, map[string]string{
		"title":          "Swap fuel pump",
		"requester_name": "2nd Engineer",
	})
	path := "/api/v1/change-requests/" + itoa(decodeRequest(t, env).ID)

	w, _ := s.do(t, http.MethodDelete, path, s.operator, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodDelete, path, s.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, path, s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAndBatchApprove(t *testing.T) {
	s := newTestServer(t, nil)

	var ids []uint
	for _, title := range []string{"Alpha", "Bravo", "Charlie"} {
		_, env := s.do(t, http.MethodPost, "/api/v1/change-requests", s.operator, map[string]string{
			"title":          title,
			"requester_name": "Master",
		})
		ids = append(ids, decodeRequest(t, env).ID)
	}
	s.do(t, http.MethodPost, "/api/v1/change-requests/"+itoa(ids[0])+"/submit", s.operator, nil)
	s.do(t, http.MethodPost, "/api/v1/change-requests/"+itoa(ids[1])+"/submit", s.operator, nil)

	w, env := s.do(t, http.MethodGet, "/api/v1/change-requests?page=1&page_size=2", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(3), env.Pagination.Total)
	assert.Equal(t, 2, env.Pagination.TotalPage)

	w, env = s.do(t, http.MethodGet, "/api/v1/change-requests?status=submitted", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), env.Pagination.Total)

	w, _ = s.do(t, http.MethodGet, "/api/v1/change-requests?status=sailing", s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/change-requests/batch/approve", s.admin, map[string]interface{}{
		"ids":     ids,
		"comment": "bulk",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var results []service.BatchOperationResult
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.False(t, results[2].Success)
	assert.NotEmpty(t, results[2].Error)
}

// TestAuditLogsIncludeSecurity 测试审计查询合并登录日志
func TestAuditLogsIncludeSecurity(t *testing.T) {
	s := newTestServer(t, nil)

	s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "nope"})
	_, env := s.do(t, http.MethodPost, "/api/v1/change-requests", s.operator, map[string]string{
		"title":          "Audit me",
		"requester_name": "Master",
	})
	created := decodeRequest(t, env)

	w, env := s.do(t, http.MethodGet, "/api/v1/audit-logs?entity_type=Security", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000000", w.Header().Get("X-Security-ID-Offset"))
	var logs []model.AuditLogModel
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	require.NotEmpty(t, logs)
	for _, l := range logs {
		assert.Equal(t, audit.SecurityEntityType, l.EntityType)
		assert.GreaterOrEqual(t, l.ID, audit.SecurityIDOffset)
	}

	w, env = s.do(t, http.MethodGet, "/api/v1/audit-logs/entities/ChangeRequest/"+itoa(created.ID), s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionCreate, logs[0].Action)

	w, env = s.do(t, http.MethodGet, "/api/v1/audit-logs/entity-types", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var types []string
	require.NoError(t, json.Unmarshal(env.Data, &types))
	assert.Contains(t, types, "ChangeRequest")
	assert.Contains(t, types, audit.SecurityEntityType)

	w, _ = s.do(t, http.MethodGet, "/api/v1/audit-logs?from=yesterday", s.operator, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShipEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodPost, "/api/v1/ships", s.operator, map[string]string{"name": "MV Aurora", "hull_number": "H-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := s.do(t, http.MethodPost, "/api/v1/ships", s.admin, map[string]string{"name": "MV Aurora", "hull_number": "H-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ship model.ShipModel
	require.NoError(t, json.Unmarshal(env.Data, &ship))

	w, _ = s.do(t, http.MethodPost, "/api/v1/ships", s.admin, map[string]string{"name": "Twin", "hull_number": "H-1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	shipPath := "/api/v1/ships/" + itoa(ship.ID)
	w, _ = s.do(t, http.MethodPost, shipPath+"/components", s.admin, map[string]string{"name": "Radar", "serial_number": "SN-9"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.do(t, http.MethodGet, shipPath+"/components", s.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var components []model.ComponentModel
	require.NoError(t, json.Unmarshal(env.Data, &components))
	require.Len(t, components, 1)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/components/"+itoa(components[0].ID), s.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodDelete, shipPath, s.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodDelete, shipPath, s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClientRateLimiter(t *testing.T) {
	limiter := api.NewClientRateLimiter(0.001, 1)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))

	unlimited := api.NewClientRateLimiter(0, 0)
	for i := 0; i < 10; i++ {
		assert.True(t, unlimited.Allow("10.0.0.1"))
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
