package service

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

const defaultBatchWorkers = 8

// BatchOperationResult 批量操作中单个申请的结果
type BatchOperationResult struct {
	RequestID uint   `json:"request_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BatchApprove 并发批准多个申请，结果顺序与 ids 一致
func (s *RequestService[T, PT]) BatchApprove(ctx context.Context, ids []uint, actorID uint, comment string) ([]BatchOperationResult, error) {
	results := make([]BatchOperationResult, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	pool, err := ants.NewPool(s.batchWorkers,
		ants.WithPanicHandler(func(p interface{}) {
			s.log.WithFields(logrus.Fields{
				"entity_type": s.kind,
				"panic":       p,
			}).Error("Batch worker panic recovered")
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, id := range ids {
		i, id := i, id
		results[i].RequestID = id

		select {
		case <-ctx.Done():
			results[i].Error = ctx.Err().Error()
			continue
		default:
		}

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			ok, err := s.Approve(ctx, id, actorID, comment)
			results[i].Success = ok
			switch {
			case err != nil:
				results[i].Error = err.Error()
			case !ok:
				results[i].Error = "request not found or not awaiting approval"
			}
		})
		if err != nil {
			wg.Done()
			results[i].Error = err.Error()
		}
	}
	wg.Wait()

	return results, nil
}
