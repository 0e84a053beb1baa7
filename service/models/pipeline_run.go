/*
 * @module service/models/pipeline_run
 * @description 预处理流水线运行记录模型，记录每次运行的状态、目录与各阶段执行情况
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 运行创建 -> 待执行 -> 执行中 -> 成功/失败
 * @rules 同一时间只允许一个运行处于未完成状态，运行拥有其工作目录和全部阶段产物
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/pipeline, service/scheduler
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 运行状态
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// 触发方式
const (
	RunTriggerSchedule = "schedule"
	RunTriggerManual   = "manual"
)

// 阶段状态
const (
	StageStatusPending = "pending"
	StageStatusRunning = "running"
	StageStatusSuccess = "success"
	StageStatusFailed  = "failed"
	StageStatusSkipped = "skipped"
)

// PipelineRun 预处理流水线运行记录
type PipelineRun struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status       string     `json:"status" gorm:"not null;size:20;default:'pending';index" example:"pending"` // pending, running, success, failed
	TriggerType  string     `json:"trigger_type" gorm:"not null;size:20" example:"schedule"`                  // schedule, manual
	DataDir      string     `json:"data_dir" gorm:"not null;type:text"`
	OutputDir    string     `json:"output_dir" gorm:"not null;type:text"`
	WorkDir      string     `json:"work_dir,omitempty" gorm:"type:text"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	StageStates  JSONB      `json:"stage_states,omitempty" gorm:"type:jsonb"` // 阶段ID -> {status, duration_ms, error}
	CreatedAt    time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CreatedBy    string     `json:"created_by" gorm:"not null;default:'system';size:100" example:"system"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName 指定表名
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (pr *PipelineRun) BeforeCreate(tx *gorm.DB) error {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	if pr.CreatedBy == "" {
		pr.CreatedBy = "system"
	}
	if pr.Status == "" {
		pr.Status = RunStatusPending
	}
	return nil
}

// IsCompleted 判断运行是否已结束
func (pr *PipelineRun) IsCompleted() bool {
	completedStatuses := map[string]bool{
		RunStatusSuccess: true,
		RunStatusFailed:  true,
	}
	return completedStatuses[pr.Status]
}

// IsActive 判断运行是否仍在占用流水线（未结束）
func (pr *PipelineRun) IsActive() bool {
	return pr.Status == RunStatusPending || pr.Status == RunStatusRunning
}

// GetDuration 获取运行时长
func (pr *PipelineRun) GetDuration() *time.Duration {
	if pr.StartTime != nil && pr.EndTime != nil {
		duration := pr.EndTime.Sub(*pr.StartTime)
		return &duration
	}
	return nil
}

// SetStageState 写入一个阶段的执行状态
func (pr *PipelineRun) SetStageState(stageID, status string, durationMs int64, errMsg string) {
	if pr.StageStates == nil {
		pr.StageStates = JSONB{}
	}
	state := map[string]interface{}{
		"status":      status,
		"duration_ms": durationMs,
	}
	if errMsg != "" {
		state["error"] = errMsg
	}
	pr.StageStates[stageID] = state
}
