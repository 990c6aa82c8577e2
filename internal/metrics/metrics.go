package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 变更申请创建数
	changeRequestsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_requests_created_total",
			Help: "Total number of change requests created",
		},
		[]string{"kind"},
	)

	// 申请编号冲突重试次数
	requestNumberRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_number_retries_total",
			Help: "Total number of request number regenerations after a uniqueness conflict",
		},
		[]string{"kind"},
	)

	// 生命周期状态迁移
	lifecycleTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Total number of change request lifecycle transitions",
		},
		[]string{"kind", "action", "result"}, // result: ok, rejected, error
	)

	// 审计写入结果
	auditWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Total number of audit writes by outcome",
		},
		[]string{"result"}, // primary, fallback, failed
	)

	// 登录尝试
	loginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// 保留策略清理条数
	retentionDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_deleted_total",
			Help: "Total number of rows removed by the retention sweep",
		},
		[]string{"table"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 申请状态分布
	changeRequestsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "change_requests_by_status",
			Help: "Number of change requests by kind and status",
		},
		[]string{"kind", "status"},
	)
)

var once sync.Once

func init() {
	prometheus.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		changeRequestsCreatedTotal,
		requestNumberRetriesTotal,
		lifecycleTransitionsTotal,
		auditWritesTotal,
		loginAttemptsTotal,
		retentionDeletedTotal,
		databaseConnectionsActive,
		databaseConnectionsIdle,
		databaseConnectionsMax,
		changeRequestsByStatus,
	)

	// Go 运行时指标只注册一次，已注册时忽略错误
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordRequestCreated 记录申请创建
func RecordRequestCreated(kind string) {
	changeRequestsCreatedTotal.WithLabelValues(kind).Inc()
}

// RecordNumberRetry 记录编号冲突重试
func RecordNumberRetry(kind string) {
	requestNumberRetriesTotal.WithLabelValues(kind).Inc()
}

// RecordTransition 记录生命周期迁移结果
func RecordTransition(kind, action, result string) {
	lifecycleTransitionsTotal.WithLabelValues(kind, action, result).Inc()
}

// RecordAuditWrite 记录审计写入结果
func RecordAuditWrite(result string) {
	auditWritesTotal.WithLabelValues(result).Inc()
}

// RecordLoginAttempt 记录登录尝试
func RecordLoginAttempt(result string) {
	loginAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordRetentionDeleted 记录保留策略清理条数
func RecordRetentionDeleted(table string, rows int64) {
	retentionDeletedTotal.WithLabelValues(table).Add(float64(rows))
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateRequestsByStatus 更新申请状态分布指标
func UpdateRequestsByStatus(kind, status string, count float64) {
	changeRequestsByStatus.WithLabelValues(kind, status).Set(count)
}
