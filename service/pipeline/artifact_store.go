/*
 * @module service/pipeline/artifact_store
 * @description 阶段产物存储，阶段间通过数据库传递路径、列名、类别表等小型产物
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 上游阶段发布产物 -> 数据库持久化 -> 下游阶段按 运行+阶段 读取 -> 运行终态后统一清除
 * @rules 产物一次写入不可覆盖，读取缺失返回 ErrUpstreamArtifactMissing，读取类型不符视为错误
 * @dependencies gorm.io/gorm, github.com/spf13/cast
 * @refs service/models/stage_artifact.go
 */

package pipeline

import (
	"errors"
	"fmt"

	"dataprep-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// ArtifactStore 阶段产物存储
type ArtifactStore struct {
	db *gorm.DB
}

// NewArtifactStore 创建阶段产物存储实例
func NewArtifactStore(db *gorm.DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// Publish 发布一条阶段产物，同一 运行+阶段 重复发布返回错误
func (s *ArtifactStore) Publish(runID, stageID, kind string, payload models.JSONB) error {
	var count int64
	if err := s.db.Model(&models.StageArtifact{}).
		Where("run_id = ? AND stage_id = ?", runID, stageID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("查询产物失败: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("产物已存在，不允许覆盖: run=%s stage=%s", runID, stageID)
	}

	artifact := models.StageArtifact{
		RunID:   runID,
		StageID: stageID,
		Kind:    kind,
		Payload: payload,
	}
	if err := s.db.Create(&artifact).Error; err != nil {
		return fmt.Errorf("发布产物失败: %w", err)
	}
	return nil
}

// PublishPath 发布单个路径产物
func (s *ArtifactStore) PublishPath(runID, stageID, path string) error {
	return s.Publish(runID, stageID, models.ArtifactKindPath, models.JSONB{"value": path})
}

// PublishPaths 发布分片到文件路径的映射产物
func (s *ArtifactStore) PublishPaths(runID, stageID string, paths map[string]string) error {
	value := make(map[string]interface{}, len(paths))
	for split, path := range paths {
		value[split] = path
	}
	return s.Publish(runID, stageID, models.ArtifactKindPaths, models.JSONB{"value": value})
}

// PublishColumns 发布列名列表产物
func (s *ArtifactStore) PublishColumns(runID, stageID string, columns []string) error {
	return s.Publish(runID, stageID, models.ArtifactKindColumns, models.JSONB{"value": columns})
}

// PublishClasses 发布目标类别表产物
func (s *ArtifactStore) PublishClasses(runID, stageID string, classes []string) error {
	return s.Publish(runID, stageID, models.ArtifactKindClasses, models.JSONB{"value": classes})
}

// PathFor 读取单个路径产物
func (s *ArtifactStore) PathFor(runID, stageID string) (string, error) {
	artifact, err := s.get(runID, stageID, models.ArtifactKindPath)
	if err != nil {
		return "", err
	}
	path, err := cast.ToStringE(artifact.Payload["value"])
	if err != nil {
		return "", fmt.Errorf("产物内容不是路径: run=%s stage=%s: %w", runID, stageID, err)
	}
	return path, nil
}

// PathsFor 读取分片到文件路径的映射产物
func (s *ArtifactStore) PathsFor(runID, stageID string) (map[string]string, error) {
	artifact, err := s.get(runID, stageID, models.ArtifactKindPaths)
	if err != nil {
		return nil, err
	}
	paths, err := cast.ToStringMapStringE(artifact.Payload["value"])
	if err != nil {
		return nil, fmt.Errorf("产物内容不是路径映射: run=%s stage=%s: %w", runID, stageID, err)
	}
	return paths, nil
}

// ColumnsFor 读取列名列表产物
func (s *ArtifactStore) ColumnsFor(runID, stageID string) ([]string, error) {
	artifact, err := s.get(runID, stageID, models.ArtifactKindColumns)
	if err != nil {
		return nil, err
	}
	columns, err := cast.ToStringSliceE(artifact.Payload["value"])
	if err != nil {
		return nil, fmt.Errorf("产物内容不是列名列表: run=%s stage=%s: %w", runID, stageID, err)
	}
	return columns, nil
}

// ClassesFor 读取目标类别表产物
func (s *ArtifactStore) ClassesFor(runID, stageID string) ([]string, error) {
	artifact, err := s.get(runID, stageID, models.ArtifactKindClasses)
	if err != nil {
		return nil, err
	}
	classes, err := cast.ToStringSliceE(artifact.Payload["value"])
	if err != nil {
		return nil, fmt.Errorf("产物内容不是类别表: run=%s stage=%s: %w", runID, stageID, err)
	}
	return classes, nil
}

// ListForRun 列出一次运行的全部产物
func (s *ArtifactStore) ListForRun(runID string) ([]models.StageArtifact, error) {
	var artifacts []models.StageArtifact
	if err := s.db.Where("run_id = ?", runID).
		Order("created_at ASC").Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("查询运行产物失败: %w", err)
	}
	return artifacts, nil
}

// PurgeRun 删除一次运行的全部产物，返回删除条数
func (s *ArtifactStore) PurgeRun(runID string) (int64, error) {
	result := s.db.Where("run_id = ?", runID).Delete(&models.StageArtifact{})
	if result.Error != nil {
		return 0, fmt.Errorf("%w: 删除运行 %s 的产物: %v", ErrCleanup, runID, result.Error)
	}
	return result.RowsAffected, nil
}

func (s *ArtifactStore) get(runID, stageID, kind string) (*models.StageArtifact, error) {
	var artifact models.StageArtifact
	err := s.db.Where("run_id = ? AND stage_id = ?", runID, stageID).First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: run=%s stage=%s", ErrUpstreamArtifactMissing, runID, stageID)
		}
		return nil, fmt.Errorf("查询产物失败: %w", err)
	}
	if artifact.Kind != kind {
		return nil, fmt.Errorf("产物类型不匹配: run=%s stage=%s 期望 %s 实际 %s", runID, stageID, kind, artifact.Kind)
	}
	return &artifact, nil
}
