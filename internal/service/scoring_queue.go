package service

import (
	"errors"
	"sync"

	"lms_backend/pkg/logger"

	"go.uber.org/zap"
)

// ScoringJob 一次待评分的提交尝试
type ScoringJob struct {
	EvaluationID string
}

var errScoringQueueFull = errors.New("scoring queue is full")

// ScoringQueue 评分任务的后台派发器：提交请求把任务放进通道立即返回，
// 固定数量的 worker 在请求生命周期之外消费任务。完成回调只通过
// 记录存储（数据库）回写结果，队列自身不持有共享可变状态。
type ScoringQueue struct {
	jobs    chan ScoringJob
	done    chan struct{}
	wg      sync.WaitGroup
	workers int
	handler func(ScoringJob)

	stopOnce sync.Once
}

func NewScoringQueue(workers, size int, handler func(ScoringJob)) *ScoringQueue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 16
	}
	return &ScoringQueue{
		jobs:    make(chan ScoringJob, size),
		done:    make(chan struct{}),
		workers: workers,
		handler: handler,
	}
}

func (q *ScoringQueue) Run() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			for {
				select {
				case job := <-q.jobs:
					q.handler(job)
				case <-q.done:
					// 排空剩余任务再退出
					for {
						select {
						case job := <-q.jobs:
							q.handler(job)
						default:
							return
						}
					}
				}
			}
		}(i)
	}
	logger.Log.Info("scoring queue started", zap.Int("workers", q.workers))
}

// Enqueue 非阻塞入队；队列满时返回错误，由调用方将该次尝试标记为失败
func (q *ScoringQueue) Enqueue(job ScoringJob) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return errScoringQueueFull
	}
}

func (q *ScoringQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}
