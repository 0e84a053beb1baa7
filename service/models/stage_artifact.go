/*
 * @module service/models/stage_artifact
 * @description 阶段产物模型，按（运行ID，阶段ID）存储阶段输出，供下游阶段读取
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 阶段成功 -> 写入产物 -> 下游读取 -> 运行结束统一清除
 * @rules 同一运行内每个阶段至多写入一次，运行结束后除落盘的预处理器外不保留任何产物
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/pipeline/artifact_store.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 产物类型
const (
	ArtifactKindPath    = "path"    // 单个路径
	ArtifactKindPaths   = "paths"   // 分片名 -> 路径映射
	ArtifactKindColumns = "columns" // 有序列名列表
	ArtifactKindClasses = "classes" // 有序类别标签列表
)

// StageArtifact 阶段产物记录
type StageArtifact struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" example:"550e8400-e29b-41d4-a716-446655440000"`
	RunID     string    `json:"run_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_artifact_run_stage;index" example:"550e8400-e29b-41d4-a716-446655440000"`
	StageID   string    `json:"stage_id" gorm:"not null;size:100;uniqueIndex:idx_artifact_run_stage" example:"read_data"`
	Kind      string    `json:"kind" gorm:"not null;size:20" example:"paths"` // path, paths, columns, classes
	Payload   JSONB     `json:"payload" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName 指定表名
func (StageArtifact) TableName() string {
	return "stage_artifacts"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (sa *StageArtifact) BeforeCreate(tx *gorm.DB) error {
	if sa.ID == "" {
		sa.ID = uuid.New().String()
	}
	return nil
}
