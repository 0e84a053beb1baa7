/*
 * @module service/models/test_utils
 * @description 模型测试辅助工具
 * @architecture 测试基础设施 - 专门为模型测试提供工具
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 避免循环导入，专门为模型层测试提供工具
 * @dependencies gorm, sqlite, time
 */

package models

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ModelTestDB 模型测试数据库配置
type ModelTestDB struct {
	DB *gorm.DB
}

// NewModelTestDB 创建模型测试数据库
func NewModelTestDB() *ModelTestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&PipelineRun{},
		&StageArtifact{},
		&SystemConfig{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &ModelTestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *ModelTestDB) CleanDB() {
	// 清空所有表的数据
	tables := []string{
		"stage_artifacts",
		"pipeline_runs",
		"system_configs",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *ModelTestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// ModelTestDataFactory 模型测试数据工厂
type ModelTestDataFactory struct {
	db *gorm.DB
}

// NewModelTestDataFactory 创建模型测试数据工厂
func NewModelTestDataFactory(db *gorm.DB) *ModelTestDataFactory {
	return &ModelTestDataFactory{db: db}
}

// CreatePipelineRun 创建测试运行记录
func (f *ModelTestDataFactory) CreatePipelineRun() *PipelineRun {
	run := &PipelineRun{
		TriggerType: RunTriggerManual,
		DataDir:     "./data",
		OutputDir:   "./output",
		CreatedBy:   "test",
	}
	if err := f.db.Create(run).Error; err != nil {
		panic(fmt.Sprintf("failed to create test pipeline run: %v", err))
	}
	return run
}

// CreateStageArtifact 创建测试阶段产物
func (f *ModelTestDataFactory) CreateStageArtifact(runID, stageID string) *StageArtifact {
	artifact := &StageArtifact{
		RunID:   runID,
		StageID: stageID,
		Kind:    ArtifactKindPath,
		Payload: JSONB{"value": "/tmp/test_path"},
	}
	if err := f.db.Create(artifact).Error; err != nil {
		panic(fmt.Sprintf("failed to create test stage artifact: %v", err))
	}
	return artifact
}

// CreateSystemConfig 创建测试系统配置
func (f *ModelTestDataFactory) CreateSystemConfig(key, value string) *SystemConfig {
	cfg := &SystemConfig{
		Key:         key,
		Value:       value,
		Environment: "default",
		Description: "测试配置",
	}
	if err := f.db.Create(cfg).Error; err != nil {
		panic(fmt.Sprintf("failed to create test system config: %v", err))
	}
	return cfg
}

// TimePtr 返回时间指针，便于构造运行起止时间
func TimePtr(t time.Time) *time.Time {
	return &t
}
