package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mautops/shipchange-gin/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// requestKinds 需要统计状态分布的申请类型
var requestKinds = []model.Request{
	&model.ChangeRequestModel{},
	&model.HardwareChangeRequestModel{},
	&model.SoftwareChangeRequestModel{},
}

// Collector 指标收集器
type Collector struct {
	db       *gorm.DB
	log      *logrus.Logger
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  atomic.Bool
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, interval time.Duration, log *logrus.Logger) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Collector{
		db:       db,
		log:      log,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	if c.started.CompareAndSwap(false, true) {
		go c.collect()
	}
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	if c.started.Load() {
		<-c.done
	}
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce(c.ctx)
		}
	}
}

// CollectOnce 立即采集一次
func (c *Collector) CollectOnce(ctx context.Context) {
	if err := UpdateDatabaseConnections(c.db); err != nil {
		c.log.WithError(err).Warn("Failed to collect database connection metrics")
	}

	for _, kind := range requestKinds {
		table := kind.TableName()
		var rows []struct {
			Status model.RequestStatus
			Count  int64
		}
		err := c.db.WithContext(ctx).Table(table).
			Select("status, COUNT(*) AS count").
			Group("status").
			Scan(&rows).Error
		if err != nil {
			c.log.WithError(err).WithField("table", table).Warn("Failed to collect request status metrics")
			continue
		}

		counts := make(map[model.RequestStatus]int64, len(rows))
		for _, row := range rows {
			counts[row.Status] = row.Count
		}
		for status := model.StatusDraft; status <= model.StatusImplemented; status++ {
			UpdateRequestsByStatus(kind.AuditKind(), status.String(), float64(counts[status]))
		}
	}
}
