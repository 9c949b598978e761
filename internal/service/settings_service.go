package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lms_backend/internal/config"
	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SettingsService 评审流水线运行参数的唯一入口。
// 数据库单行记录为准，配置文件提供默认值；内存快照加读写锁，
// 每日自动审批计数放在 Redis（按日期分键），保证并发下的原子自增。
type SettingsService struct {
	Repo *repository.SettingsRepository
	rdb  *redis.Client

	mu      sync.RWMutex
	current *model.PlatformSettings
}

func NewSettingsService(repo *repository.SettingsRepository, rdb *redis.Client, cfg *config.Config) (*SettingsService, error) {
	s := &SettingsService{Repo: repo, rdb: rdb}

	settings, err := repo.Get(defaultsFromConfig(&cfg.Evaluation))
	if err != nil {
		return nil, err
	}
	s.current = settings
	return s, nil
}

func defaultsFromConfig(ec *config.EvaluationConfig) *model.PlatformSettings {
	return &model.PlatformSettings{
		AutoApprovalEnabled:  ec.AutoApprovalEnabled,
		ScoreThreshold:       ec.ScoreThreshold,
		MinDescriptionLength: ec.MinDescriptionLength,
		MinSections:          ec.MinSections,
		MinLessons:           ec.MinLessons,
		DailyAutoApprovalCap: ec.DailyAutoApprovalCap,
		RoleCapacity:         ec.RoleCapacity,
		SLATargetHours:       ec.SLATargetHours,
	}
}

// Snapshot 返回当前设置的副本，调用方持有的值不会被热更新改写
func (s *SettingsService) Snapshot() model.PlatformSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.current
}

func (s *SettingsService) Update(settings *model.PlatformSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.ID = s.current.ID
	if err := s.Repo.Update(settings); err != nil {
		return err
	}
	s.current = settings
	logger.Log.Info("platform settings updated",
		zap.Bool("autoApprovalEnabled", settings.AutoApprovalEnabled),
		zap.Int("scoreThreshold", settings.ScoreThreshold))
	return nil
}

// ReloadFromConfig 配置文件热更新回调：数据库无记录时采用新默认值
func (s *SettingsService) ReloadFromConfig(cfg *config.Config) {
	settings, err := s.Repo.Get(defaultsFromConfig(&cfg.Evaluation))
	if err != nil {
		logger.Log.Error("failed to reload platform settings", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()
	logger.Log.Info("platform settings reloaded from config")
}

// RoleCapacity 角色容量上限，未配置的角色取保守默认值
func (s *SettingsService) RoleCapacity(role model.ReviewerRole) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.current.RoleCapacity[string(role)]; ok && c > 0 {
		return c
	}
	return 5
}

// SLATargetHours 按优先级的目标审核时长
func (s *SettingsService) SLATargetHours(priority model.ApprovalPriority) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.current.SLATargetHours[string(priority)]; ok && h > 0 {
		return h
	}
	return 72
}

// StageRequirements 阶段必需角色；设置为空时回落到内置默认
func (s *SettingsService) StageRequirements() model.StageRequirements {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.current.StageRequirements) == 0 {
		return model.DefaultStageRequirements()
	}
	reqs := make(model.StageRequirements, len(s.current.StageRequirements))
	for stage, roles := range s.current.StageRequirements {
		rs := make([]model.ReviewerRole, 0, len(roles))
		for _, r := range roles {
			rs = append(rs, model.ReviewerRole(r))
		}
		reqs[model.ApprovalStage(stage)] = rs
	}
	return reqs
}

func dailyCounterKey(t time.Time) string {
	return fmt.Sprintf("autoapproval:daily:%s", t.Format("2006-01-02"))
}

// IncrDailyAutoApprovals 原子自增当日自动审批计数并返回新值。
// 按日期分键实现跨日清零，48 小时 TTL 让旧键自然过期。
func (s *SettingsService) IncrDailyAutoApprovals(ctx context.Context) (int64, error) {
	key := dailyCounterKey(time.Now())
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		s.rdb.Expire(ctx, key, 48*time.Hour)
	}
	return n, nil
}

// DecrDailyAutoApprovals 超出当日上限时回退一次计数
func (s *SettingsService) DecrDailyAutoApprovals(ctx context.Context) {
	if err := s.rdb.Decr(ctx, dailyCounterKey(time.Now())).Err(); err != nil {
		logger.Log.Warn("failed to roll back daily auto-approval counter", zap.Error(err))
	}
}

// DailyAutoApprovalCount 当日已自动审批数量
func (s *SettingsService) DailyAutoApprovalCount(ctx context.Context) int64 {
	n, err := s.rdb.Get(ctx, dailyCounterKey(time.Now())).Int64()
	if err != nil && err != redis.Nil {
		logger.Log.Warn("failed to read daily auto-approval counter", zap.Error(err))
	}
	return n
}

// NextApprovalSequence 年度审批号序列，Redis INCR 保证并发唯一
func (s *SettingsService) NextApprovalSequence(ctx context.Context, year int) (int64, error) {
	return s.rdb.Incr(ctx, fmt.Sprintf("approval:seq:%d", year)).Result()
}
