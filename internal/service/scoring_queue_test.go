package service

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"lms_backend/pkg/logger"
)

func init() {
	// 测试环境没有初始化全局日志
	logger.Log = zap.NewNop()
}

func TestScoringQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	q := NewScoringQueue(2, 8, func(job ScoringJob) {
		mu.Lock()
		seen[job.EvaluationID] = true
		mu.Unlock()
	})
	q.Run()

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		if err := q.Enqueue(ScoringJob{EvaluationID: id}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("job %s was not processed", id)
		}
	}
}

func TestScoringQueueFullReturnsError(t *testing.T) {
	block := make(chan struct{})
	q := NewScoringQueue(1, 1, func(ScoringJob) {
		<-block
	})
	q.Run()
	defer func() {
		close(block)
		q.Stop()
	}()

	// 第一条可能被 worker 取走，再填满缓冲后必然拒绝
	deadline := time.After(2 * time.Second)
	for {
		if err := q.Enqueue(ScoringJob{EvaluationID: "x"}); err != nil {
			return // 队列满被拒，符合预期
		}
		select {
		case <-deadline:
			t.Fatal("queue never reported full")
		default:
		}
	}
}

func TestScoringQueueStopDrainsBacklog(t *testing.T) {
	var mu sync.Mutex
	processed := 0

	q := NewScoringQueue(1, 16, func(ScoringJob) {
		mu.Lock()
		processed++
		mu.Unlock()
	})

	// 先入队再启动，Stop 应把积压全部处理完
	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ScoringJob{EvaluationID: "job"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	q.Run()
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	if processed != 10 {
		t.Errorf("processed = %d, want 10", processed)
	}
}
