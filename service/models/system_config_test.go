/*
 * @module service/models/system_config_test
 * @description 系统配置模型验证测试
 * @architecture 测试层 - 数据模型验证，确保数据完整性和约束
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 模型创建 -> 字段验证 -> 约束检查 -> 结果断言
 * @rules 确保配置键在同一环境下唯一，创建钩子补全默认环境
 * @dependencies testing, testify, gorm
 * @refs system_config.go
 */

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// SystemConfigModelTestSuite 系统配置模型测试套件
type SystemConfigModelTestSuite struct {
	suite.Suite
	testDB  *ModelTestDB
	factory *ModelTestDataFactory
}

// SetupSuite 设置测试套件
func (suite *SystemConfigModelTestSuite) SetupSuite() {
	suite.testDB = NewModelTestDB()
	suite.factory = NewModelTestDataFactory(suite.testDB.DB)
}

// TearDownSuite 清理测试套件
func (suite *SystemConfigModelTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *SystemConfigModelTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

func (suite *SystemConfigModelTestSuite) TestSystemConfigCreation() {
	cfg := &SystemConfig{
		Key:   "pipeline.data_dir",
		Value: "/srv/data",
	}

	err := suite.testDB.DB.Create(cfg).Error
	suite.NoError(err)
	suite.Len(cfg.ID, 36)
	// 创建钩子补全默认环境
	suite.Equal("default", cfg.Environment)

	var stored SystemConfig
	err = suite.testDB.DB.Where("key = ? AND environment = ?", "pipeline.data_dir", "default").First(&stored).Error
	suite.NoError(err)
	suite.Equal("/srv/data", stored.Value)
}

func (suite *SystemConfigModelTestSuite) TestUniqueKeyPerEnvironment() {
	suite.factory.CreateSystemConfig("pipeline.target_column", "target")

	duplicate := &SystemConfig{
		Key:         "pipeline.target_column",
		Value:       "label",
		Environment: "default",
	}
	err := suite.testDB.DB.Create(duplicate).Error
	suite.Error(err, "同一环境下的配置键应违反唯一约束")

	// 不同环境允许同键
	other := &SystemConfig{
		Key:         "pipeline.target_column",
		Value:       "label",
		Environment: "staging",
	}
	suite.NoError(suite.testDB.DB.Create(other).Error)
}

// TestSystemConfigModelTestSuite 运行系统配置模型测试套件
func TestSystemConfigModelTestSuite(t *testing.T) {
	suite.Run(t, new(SystemConfigModelTestSuite))
}

func TestSystemConfigTableName(t *testing.T) {
	assert.Equal(t, "system_configs", SystemConfig{}.TableName())
}
