/*
 * @module service/cleanup/run_cleanup_service
 * @description 运行记录清理服务，定期删除超过保留期的运行记录、残留产物和崩溃遗留的孤儿工作目录
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 定时触发 -> 读取保留配置 -> 删除过期运行与产物 -> 回收孤儿工作目录
 * @rules 只清理已结束的运行；活跃运行占用的工作目录和新建目录不回收
 * @dependencies dataprep-service/service/config, gorm.io/gorm, github.com/robfig/cron/v3
 * @refs service/config, service/pipeline/workdir.go
 */

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dataprep-service/service/config"
	"dataprep-service/service/models"
	"dataprep-service/service/monitoring"
	"dataprep-service/service/pipeline"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// orphanGracePeriod 孤儿目录宽限期
// 创建不久的目录可能属于刚启动、状态尚未落库的运行，跳过不回收
const orphanGracePeriod = time.Hour

// RunCleanupService 运行记录清理服务
type RunCleanupService struct {
	db            *gorm.DB
	configService *config.ConfigService
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
}

// NewRunCleanupService 创建运行记录清理服务实例
func NewRunCleanupService(db *gorm.DB, configService *config.ConfigService) *RunCleanupService {
	ctx, cancel := context.WithCancel(context.Background())

	return &RunCleanupService{
		db:            db,
		configService: configService,
		cron:          cron.New(cron.WithSeconds()),
		ctx:           ctx,
		cancel:        cancel,
		started:       false,
	}
}

// RunCleanup 执行一轮完整清理
func (s *RunCleanupService) RunCleanup(ctx context.Context) error {
	slog.Info("开始清理过期运行")
	startTime := time.Now()

	retentionDays := s.configService.GetRetentionDays()

	runsDeleted, artifactsDeleted, err := s.CleanupExpiredRuns(ctx, retentionDays)
	if err != nil {
		slog.Error("清理过期运行失败", "error", err)
	} else {
		slog.Info("清理过期运行完成",
			"runs_deleted", runsDeleted,
			"artifacts_deleted", artifactsDeleted,
			"retention_days", retentionDays)
	}

	workdirsRemoved, err := s.CleanupOrphanWorkdirs(ctx)
	if err != nil {
		slog.Error("回收孤儿工作目录失败", "error", err)
	} else {
		slog.Info("回收孤儿工作目录完成", "removed", workdirsRemoved)
	}

	monitoring.RecordCleanupRemoved("run", int(runsDeleted))
	monitoring.RecordCleanupRemoved("artifact", int(artifactsDeleted))
	monitoring.RecordCleanupRemoved("workdir", workdirsRemoved)

	slog.Info("清理任务完成", "duration_ms", time.Since(startTime).Milliseconds())
	return nil
}

// CleanupExpiredRuns 删除超过保留期的已结束运行及其残留产物
// 失败运行的产物清除阶段可能未执行，这里一并兜底删除
func (s *RunCleanupService) CleanupExpiredRuns(ctx context.Context, retentionDays int) (int64, int64, error) {
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	slog.Debug("清理过期运行", "cutoff_date", cutoffDate.Format("2006-01-02 15:04:05"), "retention_days", retentionDays)

	var runIDs []string
	err := s.db.Model(&models.PipelineRun{}).
		Where("status IN ? AND created_at < ?",
			[]string{models.RunStatusSuccess, models.RunStatusFailed}, cutoffDate).
		Pluck("id", &runIDs).Error
	if err != nil {
		return 0, 0, fmt.Errorf("查询过期运行失败: %w", err)
	}
	if len(runIDs) == 0 {
		return 0, 0, nil
	}

	artifactResult := s.db.Where("run_id IN ?", runIDs).Delete(&models.StageArtifact{})
	if artifactResult.Error != nil {
		return 0, 0, fmt.Errorf("删除过期运行产物失败: %w", artifactResult.Error)
	}

	runResult := s.db.Where("id IN ?", runIDs).Delete(&models.PipelineRun{})
	if runResult.Error != nil {
		return 0, artifactResult.RowsAffected, fmt.Errorf("删除过期运行记录失败: %w", runResult.Error)
	}

	return runResult.RowsAffected, artifactResult.RowsAffected, nil
}

// CleanupOrphanWorkdirs 回收崩溃遗留的孤儿工作目录
// 活跃运行占用的目录和宽限期内的新目录不处理
func (s *RunCleanupService) CleanupOrphanWorkdirs(ctx context.Context) (int, error) {
	manager := pipeline.NewWorkdirManager(s.configService.GetWorkdirRoot())
	orphans, err := manager.ListOrphans()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, dir := range orphans {
		var count int64
		err := s.db.Model(&models.PipelineRun{}).
			Where("work_dir = ? AND status IN ?", dir,
				[]string{models.RunStatusPending, models.RunStatusRunning}).
			Count(&count).Error
		if err != nil {
			slog.Error("查询工作目录占用失败", "workdir", dir, "error", err)
			continue
		}
		if count > 0 {
			continue
		}

		info, err := os.Stat(dir)
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < orphanGracePeriod {
			continue
		}

		if err := os.RemoveAll(dir); err != nil {
			slog.Error("删除孤儿工作目录失败", "workdir", dir, "error", err)
			continue
		}
		slog.Info("已删除孤儿工作目录", "workdir", dir)
		removed++
	}
	return removed, nil
}

// StartScheduledCleanup 启动定时清理任务
func (s *RunCleanupService) StartScheduledCleanup() error {
	if s.started {
		return fmt.Errorf("清理调度器已经启动")
	}

	spec := s.configService.GetCleanupScheduleSpec()
	slog.Info("启动运行清理调度器", "schedule", spec)

	_, err := s.cron.AddFunc(spec, func() {
		slog.Info("开始执行定时清理任务")

		if err := s.RunCleanup(s.ctx); err != nil {
			slog.Error("定时清理任务失败", "error", err)
		}
	})

	if err != nil {
		return fmt.Errorf("添加定时任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true

	// 启动时立即执行一次，尽快回收上次进程异常退出的遗留
	go func() {
		slog.Info("执行首次运行清理")
		if err := s.RunCleanup(s.ctx); err != nil {
			slog.Error("首次运行清理失败", "error", err)
		}
	}()

	return nil
}

// StopScheduledCleanup 停止定时清理任务
func (s *RunCleanupService) StopScheduledCleanup() {
	if !s.started {
		return
	}

	slog.Info("停止运行清理调度器")

	s.cancel()

	if s.cron != nil {
		s.cron.Stop()
	}

	s.started = false

	slog.Info("运行清理调度器已停止")
}
