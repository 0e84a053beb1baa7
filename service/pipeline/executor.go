/*
 * @module service/pipeline/executor
 * @description 阶段图执行器，按依赖关系并行调度阶段，上游失败时跳过下游，清理阶段保证执行
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 校验阶段图 -> 就绪阶段并行启动 -> 等待完成 -> 级联跳过失败下游 -> 全部终态后返回
 * @rules 并行度受限于配置，AlwaysRun 阶段在前置全部终态后执行且不受取消影响
 * @dependencies dataprep-service/service/models
 * @refs service/pipeline/stage.go, service/pipeline/orchestrator.go
 */

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dataprep-service/service/models"
)

// StageResult 阶段执行结果
type StageResult struct {
	Status   string
	Duration time.Duration
	Err      error
}

// stageOutcome 阶段协程回传的执行结果
type stageOutcome struct {
	id       string
	err      error
	duration time.Duration
}

// Executor 阶段图执行器
type Executor struct {
	maxParallel int
	onStageDone func(stageID string, result *StageResult)
}

// NewExecutor 创建执行器，maxParallel 为同时运行的阶段数上限
func NewExecutor(maxParallel int) *Executor {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Executor{maxParallel: maxParallel}
}

// OnStageDone 注册阶段终态回调，编排器用它持久化阶段状态
func (e *Executor) OnStageDone(fn func(stageID string, result *StageResult)) {
	e.onStageDone = fn
}

// Execute 执行阶段图直到全部阶段进入终态
// 返回各阶段结果；任一阶段失败时返回首个失败阶段的错误
func (e *Executor) Execute(ctx context.Context, stages []*Stage, rc *RunContext) (map[string]*StageResult, error) {
	if err := validateStages(stages); err != nil {
		return nil, err
	}

	statuses := make(map[string]string, len(stages))
	results := make(map[string]*StageResult, len(stages))
	for _, stage := range stages {
		statuses[stage.ID] = models.StageStatusPending
	}

	outcomes := make(chan stageOutcome, len(stages))
	running := 0
	terminal := 0
	var firstErr error

	finish := func(id, status string, duration time.Duration, err error) {
		statuses[id] = status
		result := &StageResult{Status: status, Duration: duration, Err: err}
		results[id] = result
		terminal++
		if status == models.StageStatusFailed {
			rc.MarkFailed()
			if firstErr == nil {
				firstErr = err
			}
		}
		if e.onStageDone != nil {
			e.onStageDone(id, result)
		}
	}

	for terminal < len(stages) {
		progressed := false

		for _, stage := range stages {
			if statuses[stage.ID] != models.StageStatusPending {
				continue
			}

			// 上游失败或被跳过时，普通阶段级联跳过
			if !stage.AlwaysRun && e.hasBlockedDependency(stage, statuses) {
				slog.Info("阶段被跳过", "run_id", rc.Run.ID, "stage", stage.ID)
				finish(stage.ID, models.StageStatusSkipped, 0, nil)
				progressed = true
				continue
			}

			if running >= e.maxParallel || !e.isReady(stage, statuses) {
				continue
			}

			// 运行被取消时不再启动普通阶段，清理阶段仍然放行
			if ctx.Err() != nil && !stage.AlwaysRun {
				err := fmt.Errorf("运行被取消: %w", ctx.Err())
				slog.Warn("阶段未执行", "run_id", rc.Run.ID, "stage", stage.ID, "error", err)
				finish(stage.ID, models.StageStatusFailed, 0, err)
				progressed = true
				continue
			}

			statuses[stage.ID] = models.StageStatusRunning
			running++
			progressed = true

			stageCtx := ctx
			if stage.AlwaysRun {
				// 清理阶段必须完整执行，脱离外层取消信号
				stageCtx = context.WithoutCancel(ctx)
			}
			slog.Info("阶段开始", "run_id", rc.Run.ID, "stage", stage.ID)
			go e.runStage(stageCtx, stage, rc, outcomes)
		}

		if terminal >= len(stages) {
			break
		}

		if running > 0 {
			outcome := <-outcomes
			running--
			if outcome.err != nil {
				slog.Error("阶段失败", "run_id", rc.Run.ID, "stage", outcome.id,
					"duration_ms", outcome.duration.Milliseconds(), "error", outcome.err)
				finish(outcome.id, models.StageStatusFailed, outcome.duration, outcome.err)
			} else {
				slog.Info("阶段完成", "run_id", rc.Run.ID, "stage", outcome.id,
					"duration_ms", outcome.duration.Milliseconds())
				finish(outcome.id, models.StageStatusSuccess, outcome.duration, nil)
			}
			continue
		}

		if !progressed {
			// 校验已排除环依赖，正常不会到达
			return results, fmt.Errorf("阶段图调度停滞，剩余 %d 个阶段无法就绪", len(stages)-terminal)
		}
	}

	return results, firstErr
}

// runStage 在独立协程中执行阶段，panic 转为失败结果
func (e *Executor) runStage(ctx context.Context, stage *Stage, rc *RunContext, outcomes chan<- stageOutcome) {
	start := time.Now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("阶段 %s 发生 panic: %v", stage.ID, r)
			}
		}()
		err = stage.Run(ctx, rc)
	}()
	outcomes <- stageOutcome{id: stage.ID, err: err, duration: time.Since(start)}
}

// isReady 阶段是否就绪
// 普通阶段要求全部前置成功，AlwaysRun 阶段要求全部前置进入终态
func (e *Executor) isReady(stage *Stage, statuses map[string]string) bool {
	for _, dep := range stage.DependsOn {
		status := statuses[dep]
		if stage.AlwaysRun {
			if !isTerminalStatus(status) {
				return false
			}
			continue
		}
		if status != models.StageStatusSuccess {
			return false
		}
	}
	return true
}

// hasBlockedDependency 是否存在失败或被跳过的前置阶段
func (e *Executor) hasBlockedDependency(stage *Stage, statuses map[string]string) bool {
	for _, dep := range stage.DependsOn {
		status := statuses[dep]
		if status == models.StageStatusFailed || status == models.StageStatusSkipped {
			return true
		}
	}
	return false
}

func isTerminalStatus(status string) bool {
	switch status {
	case models.StageStatusSuccess, models.StageStatusFailed, models.StageStatusSkipped:
		return true
	}
	return false
}

// validateStages 校验阶段图：ID 唯一、依赖存在、无环
func validateStages(stages []*Stage) error {
	byID := make(map[string]*Stage, len(stages))
	for _, stage := range stages {
		if stage.ID == "" {
			return fmt.Errorf("阶段 ID 不能为空")
		}
		if stage.Run == nil {
			return fmt.Errorf("阶段 %s 缺少执行函数", stage.ID)
		}
		if _, exists := byID[stage.ID]; exists {
			return fmt.Errorf("阶段 ID 重复: %s", stage.ID)
		}
		byID[stage.ID] = stage
	}

	indegree := make(map[string]int, len(stages))
	dependents := make(map[string][]string, len(stages))
	for _, stage := range stages {
		indegree[stage.ID] += 0
		for _, dep := range stage.DependsOn {
			if _, exists := byID[dep]; !exists {
				return fmt.Errorf("阶段 %s 依赖不存在的阶段 %s", stage.ID, dep)
			}
			indegree[stage.ID]++
			dependents[dep] = append(dependents[dep], stage.ID)
		}
	}

	queue := make([]string, 0, len(stages))
	for _, stage := range stages {
		if indegree[stage.ID] == 0 {
			queue = append(queue, stage.ID)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(stages) {
		return fmt.Errorf("阶段图存在环依赖")
	}
	return nil
}
