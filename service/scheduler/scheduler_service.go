/*
 * @module service/scheduler/scheduler_service
 * @description 流水线调度器，按配置的cron表达式定时触发预处理运行，多实例部署时通过分布式锁防重
 * @architecture 基于Go协程和定时器的调度器模式
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 调度时刻到达 -> 活跃运行检查 -> 获取分布式锁 -> 同步执行运行 -> 释放锁
 * @rules 上一次运行未结束时跳过本次调度，错过的调度不补跑
 * @dependencies github.com/robfig/cron/v3, gorm.io/gorm
 * @refs service/pipeline/orchestrator.go, service/distributed_lock/redis_lock.go
 */

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"dataprep-service/service/config"
	"dataprep-service/service/distributed_lock"
	"dataprep-service/service/models"
	"dataprep-service/service/pipeline"
)

const (
	// scheduleLockKey 调度运行的分布式锁键
	scheduleLockKey = "pipeline_run"
	// scheduleLockTTL 锁过期时间，实例崩溃后自动释放
	scheduleLockTTL = 10 * time.Minute
	// scheduleLockRefresh 锁续期间隔，长运行期间保持持有
	scheduleLockRefresh = 3 * time.Minute
)

// SchedulerService 流水线调度器
type SchedulerService struct {
	db              *gorm.DB
	pipelineService *pipeline.PipelineService
	configService   *config.ConfigService
	lockExecutor    *distributed_lock.LockExecutor
	cron            *cron.Cron
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewSchedulerService 创建流水线调度器
// lockExecutor 为 nil 时不加分布式锁，适用于单实例部署
func NewSchedulerService(db *gorm.DB, pipelineService *pipeline.PipelineService, configService *config.ConfigService, lockExecutor *distributed_lock.LockExecutor) *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())

	return &SchedulerService{
		db:              db,
		pipelineService: pipelineService,
		configService:   configService,
		lockExecutor:    lockExecutor,
		cron:            cron.New(cron.WithSeconds()),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start 启动调度器
func (s *SchedulerService) Start() error {
	spec := s.configService.GetScheduleSpec()
	if _, err := s.cron.AddFunc(spec, s.runScheduled); err != nil {
		return fmt.Errorf("注册调度表达式失败: %w", err)
	}

	s.cron.Start()
	slog.Info("流水线调度器已启动", "schedule", spec)
	return nil
}

// Stop 停止调度器
func (s *SchedulerService) Stop() {
	s.cancel()
	if s.cron != nil {
		s.cron.Stop()
	}
	slog.Info("流水线调度器已停止")
}

// runScheduled 一次调度触发
// 已有活跃运行时直接跳过，保证任意时刻至多一个运行
func (s *SchedulerService) runScheduled() {
	active, err := s.pipelineService.HasActiveRun()
	if err != nil {
		slog.Error("调度器查询活跃运行失败", "error", err)
		return
	}
	if active {
		slog.Warn("上一次运行尚未结束，跳过本次调度")
		return
	}

	if s.lockExecutor == nil {
		s.executeScheduledRun()
		return
	}

	err = s.lockExecutor.ExecuteWithLockAndRefresh(s.ctx, scheduleLockKey, scheduleLockTTL, scheduleLockRefresh, func() error {
		s.executeScheduledRun()
		return nil
	})
	if err != nil {
		slog.Error("调度器获取分布式锁失败", "error", err)
	}
}

// executeScheduledRun 同步执行一次调度运行
func (s *SchedulerService) executeScheduledRun() {
	run, err := s.pipelineService.RunOnce(s.ctx, models.RunTriggerSchedule, "scheduler")
	if err != nil {
		if errors.Is(err, pipeline.ErrRunActive) {
			slog.Warn("触发时发现活跃运行，跳过本次调度")
			return
		}
		runID := ""
		if run != nil {
			runID = run.ID
		}
		slog.Error("调度运行执行失败", "run_id", runID, "error", err)
		return
	}
	slog.Info("调度运行执行完成", "run_id", run.ID, "status", run.Status)
}
