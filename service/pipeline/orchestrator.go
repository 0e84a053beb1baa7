/*
 * @module service/pipeline/orchestrator
 * @description 流水线编排服务，管理运行生命周期：并发闸口、运行记录、阶段调度、兜底清理与完成通知
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 触发 -> 活跃运行检查 -> 创建运行记录 -> 执行阶段图 -> 终态落库 -> 指标与通知
 * @rules 任意时刻至多一个活跃运行；工作目录随运行作用域释放，不依赖阶段图自身的清理阶段
 * @dependencies gorm.io/gorm, dataprep-service/service/config, dataprep-service/service/monitoring
 * @refs service/pipeline/executor.go, service/scheduler/scheduler_service.go
 */

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dataprep-service/service/config"
	"dataprep-service/service/models"
	"dataprep-service/service/monitoring"

	"gorm.io/gorm"
)

// CompletionNotifier 运行完成通知接口
type CompletionNotifier interface {
	NotifyRunCompleted(ctx context.Context, run *models.PipelineRun) error
}

// NoopNotifier 空通知器，未配置消息系统时使用
type NoopNotifier struct{}

// NotifyRunCompleted 空实现
func (NoopNotifier) NotifyRunCompleted(ctx context.Context, run *models.PipelineRun) error {
	return nil
}

// PipelineService 流水线编排服务
type PipelineService struct {
	db       *gorm.DB
	store    *ArtifactStore
	configs  *config.ConfigService
	notifier CompletionNotifier
}

// NewPipelineService 创建流水线编排服务实例
func NewPipelineService(db *gorm.DB, configs *config.ConfigService, notifier CompletionNotifier) *PipelineService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &PipelineService{
		db:       db,
		store:    NewArtifactStore(db),
		configs:  configs,
		notifier: notifier,
	}
}

// Artifacts 返回产物存储
func (s *PipelineService) Artifacts() *ArtifactStore {
	return s.store
}

// TriggerRun 触发一次运行并立即返回运行记录，执行在后台进行
// 已有活跃运行时返回 ErrRunActive
func (s *PipelineService) TriggerRun(triggerType, createdBy string) (*models.PipelineRun, error) {
	run, cfg, err := s.createRun(triggerType, createdBy)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := s.executeRun(context.Background(), run, cfg); err != nil {
			slog.Error("流水线运行失败", "run_id", run.ID, "error", err)
		}
	}()
	return run, nil
}

// RunOnce 同步执行一次完整运行，调度器在持有分布式锁时调用
func (s *PipelineService) RunOnce(ctx context.Context, triggerType, createdBy string) (*models.PipelineRun, error) {
	run, cfg, err := s.createRun(triggerType, createdBy)
	if err != nil {
		return nil, err
	}
	if err := s.executeRun(ctx, run, cfg); err != nil {
		return run, err
	}
	return run, nil
}

// HasActiveRun 是否存在 pending 或 running 状态的运行
func (s *PipelineService) HasActiveRun() (bool, error) {
	var count int64
	err := s.db.Model(&models.PipelineRun{}).
		Where("status IN ?", []string{models.RunStatusPending, models.RunStatusRunning}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询活跃运行失败: %w", err)
	}
	return count > 0, nil
}

// GetRunList 分页查询运行记录，status 为空时不过滤
func (s *PipelineService) GetRunList(page, size int, status string) ([]models.PipelineRun, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}

	query := s.db.Model(&models.PipelineRun{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计运行记录失败: %w", err)
	}

	var runs []models.PipelineRun
	offset := (page - 1) * size
	if err := query.Order("created_at DESC").Offset(offset).Limit(size).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("查询运行记录失败: %w", err)
	}
	return runs, total, nil
}

// GetRun 按 ID 查询运行记录
func (s *PipelineService) GetRun(id string) (*models.PipelineRun, error) {
	var run models.PipelineRun
	if err := s.db.Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("运行不存在: %s", id)
		}
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	return &run, nil
}

// GetRunArtifacts 查询一次运行当前存量的阶段产物
// 运行终态后产物已被清理阶段清除，正常返回空列表
func (s *PipelineService) GetRunArtifacts(id string) ([]models.StageArtifact, error) {
	if _, err := s.GetRun(id); err != nil {
		return nil, err
	}
	return s.store.ListForRun(id)
}

// createRun 并发闸口检查后创建运行记录，同时解析本次运行的配置快照
func (s *PipelineService) createRun(triggerType, createdBy string) (*models.PipelineRun, *RunConfig, error) {
	cfg := s.loadRunConfig()

	var run *models.PipelineRun
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.PipelineRun{}).
			Where("status IN ?", []string{models.RunStatusPending, models.RunStatusRunning}).
			Count(&active).Error; err != nil {
			return fmt.Errorf("查询活跃运行失败: %w", err)
		}
		if active > 0 {
			return ErrRunActive
		}

		run = &models.PipelineRun{
			TriggerType: triggerType,
			DataDir:     cfg.DataDir,
			OutputDir:   cfg.OutputDir,
			CreatedBy:   createdBy,
		}
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("创建运行记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return run, cfg, nil
}

// executeRun 执行阶段图并负责运行终态落库
func (s *PipelineService) executeRun(ctx context.Context, run *models.PipelineRun, cfg *RunConfig) (err error) {
	started := time.Now()
	run.Status = models.RunStatusRunning
	run.StartTime = &started
	if saveErr := s.db.Save(run).Error; saveErr != nil {
		return fmt.Errorf("更新运行状态失败: %w", saveErr)
	}
	monitoring.RecordRunStarted()
	slog.Info("流水线运行开始", "run_id", run.ID, "trigger", run.TriggerType,
		"data_dir", cfg.DataDir, "output_dir", cfg.OutputDir)

	rc := NewRunContext(run, cfg, s.store, NewWorkdirManager(cfg.WorkdirRoot))

	// 终态处理挂在运行作用域上，执行器内部 panic 时工作目录同样被释放
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("流水线运行 panic: %v", r)
		}
		s.finalizeRun(rc, started, err)
	}()

	executor := NewExecutor(cfg.MaxParallelStages)
	executor.OnStageDone(func(stageID string, result *StageResult) {
		s.recordStageState(rc, stageID, result)
	})

	_, execErr := executor.Execute(ctx, BuildStages(), rc)
	if execErr != nil {
		err = execErr
	}
	return err
}

// finalizeRun 兜底清理工作目录并写入运行终态
func (s *PipelineService) finalizeRun(rc *RunContext, started time.Time, runErr error) {
	run := rc.Run

	keep := rc.HasFailure() && rc.Config.KeepWorkdirOnFailure
	if run.WorkDir != "" && !keep {
		if err := rc.Workdir.DestroyQuiet(run.WorkDir); err != nil {
			slog.Error("兜底删除工作目录失败", "run_id", run.ID, "workdir", run.WorkDir, "error", err)
		}
	}

	ended := time.Now()
	run.EndTime = &ended
	if runErr != nil || rc.HasFailure() {
		run.Status = models.RunStatusFailed
		if runErr != nil {
			run.ErrorMessage = runErr.Error()
		}
	} else {
		run.Status = models.RunStatusSuccess
	}
	if err := s.db.Save(run).Error; err != nil {
		slog.Error("保存运行终态失败", "run_id", run.ID, "error", err)
	}

	duration := ended.Sub(started)
	monitoring.RecordRunCompleted(run.TriggerType, run.Status, duration)
	slog.Info("流水线运行结束", "run_id", run.ID, "status", run.Status,
		"duration_ms", duration.Milliseconds())

	notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.notifier.NotifyRunCompleted(notifyCtx, run); err != nil {
		slog.Warn("发送运行完成通知失败", "run_id", run.ID, "error", err)
	}
}

// recordStageState 持久化阶段终态并记录指标
func (s *PipelineService) recordStageState(rc *RunContext, stageID string, result *StageResult) {
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	rc.Run.SetStageState(stageID, result.Status, result.Duration.Milliseconds(), errMsg)
	if err := s.db.Save(rc.Run).Error; err != nil {
		slog.Error("保存阶段状态失败", "run_id", rc.Run.ID, "stage", stageID, "error", err)
	}
	monitoring.RecordStageCompleted(stageID, result.Status, result.Duration)
}

// loadRunConfig 解析本次运行的配置快照
func (s *PipelineService) loadRunConfig() *RunConfig {
	return &RunConfig{
		DataDir:               s.configs.GetDataDir(),
		OutputDir:             s.configs.GetOutputDir(),
		WorkdirRoot:           s.configs.GetWorkdirRoot(),
		IndexColumn:           s.configs.GetIndexColumn(),
		TargetColumn:          s.configs.GetTargetColumn(),
		CollinearColumns:      s.configs.GetCollinearColumns(),
		AllowMissingCollinear: s.configs.GetAllowMissingCollinear(),
		SelectionAlpha:        s.configs.GetSelectionAlpha(),
		InputEncoding:         s.configs.GetInputEncoding(),
		MaxParallelStages:     s.configs.GetMaxParallelStages(),
		KeepWorkdirOnFailure:  s.configs.GetKeepWorkdirOnFailure(),
	}
}
