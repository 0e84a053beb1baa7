/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, time
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"dataprep-service/service/models"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.PipelineRun{},
		&models.StageArtifact{},
		&models.SystemConfig{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
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
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// PipelineRunOption 流水线运行选项函数类型
type PipelineRunOption func(*models.PipelineRun)

// CreatePipelineRun 创建测试流水线运行
func (f *TestDataFactory) CreatePipelineRun(opts ...PipelineRunOption) *models.PipelineRun {
	run := &models.PipelineRun{
		ID:          generateID("run"),
		Status:      models.RunStatusPending,
		TriggerType: models.RunTriggerManual,
		DataDir:     "./data",
		OutputDir:   "./output",
		CreatedBy:   "test",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(run)
	}

	err := f.DB.Create(run).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test pipeline run: %v", err))
	}

	return run
}

// WithRunStatus 设置运行状态
func WithRunStatus(status string) PipelineRunOption {
	return func(run *models.PipelineRun) {
		run.Status = status
	}
}

// WithRunWorkDir 设置运行工作目录
func WithRunWorkDir(dir string) PipelineRunOption {
	return func(run *models.PipelineRun) {
		run.WorkDir = dir
	}
}

// WithRunTimes 设置运行起止时间
func WithRunTimes(start, end *time.Time) PipelineRunOption {
	return func(run *models.PipelineRun) {
		run.StartTime = start
		run.EndTime = end
	}
}

// StageArtifactOption 阶段产物选项函数类型
type StageArtifactOption func(*models.StageArtifact)

// CreateStageArtifact 创建测试阶段产物
func (f *TestDataFactory) CreateStageArtifact(runID, stageID string, opts ...StageArtifactOption) *models.StageArtifact {
	artifact := &models.StageArtifact{
		ID:      generateID("art"),
		RunID:   runID,
		StageID: stageID,
		Kind:    models.ArtifactKindPath,
		Payload: models.JSONB{"value": "/tmp/test_path"},
	}

	// 应用选项
	for _, opt := range opts {
		opt(artifact)
	}

	err := f.DB.Create(artifact).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test stage artifact: %v", err))
	}

	return artifact
}

// WithArtifactPayload 设置产物类型与内容
func WithArtifactPayload(kind string, payload models.JSONB) StageArtifactOption {
	return func(artifact *models.StageArtifact) {
		artifact.Kind = kind
		artifact.Payload = payload
	}
}

// SystemConfigOption 系统配置选项函数类型
type SystemConfigOption func(*models.SystemConfig)

// CreateSystemConfig 创建测试系统配置
func (f *TestDataFactory) CreateSystemConfig(key, value string, opts ...SystemConfigOption) *models.SystemConfig {
	config := &models.SystemConfig{
		ID:          generateID("cfg"),
		Key:         key,
		Value:       value,
		Environment: "default",
		Description: "测试配置项",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(config)
	}

	err := f.DB.Create(config).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test system config: %v", err))
	}

	return config
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), generateSuffix())
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
}

// WriteCSVFile 在目录下写入CSV测试文件，返回完整路径
func WriteCSVFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteSplitFiles 按分片名写入一组CSV测试文件，返回目录
func WriteSplitFiles(t *testing.T, dir string, splits map[string]string) string {
	t.Helper()
	for split, content := range splits {
		WriteCSVFile(t, dir, split+".csv", content)
	}
	return dir
}

// TestConfig 测试配置
type TestConfig struct {
	Database struct {
		Driver string
		DSN    string
	}
	Timeout time.Duration
	Cleanup bool
}

// DefaultTestConfig 默认测试配置
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		Database: struct {
			Driver string
			DSN    string
		}{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
		Timeout: 30 * time.Second,
		Cleanup: true,
	}
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// AssertJSONResponse 断言JSON响应
func (h *HTTPTestHelper) AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedBody interface{}) {
	assert.Equal(t, expectedStatus, w.Code)

	if expectedBody != nil {
		var actualBody interface{}
		err := json.Unmarshal(w.Body.Bytes(), &actualBody)
		assert.NoError(t, err)

		expectedJSON, _ := json.Marshal(expectedBody)
		actualJSON, _ := json.Marshal(actualBody)

		assert.JSONEq(t, string(expectedJSON), string(actualJSON))
	}
}
