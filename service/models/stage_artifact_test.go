/*
 * @module service/models/stage_artifact_test
 * @description 阶段产物模型验证测试
 * @architecture 测试层 - 数据模型验证，确保数据完整性和约束
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 模型创建 -> 字段验证 -> 约束检查 -> 结果断言
 * @rules 确保产物载荷序列化与（运行，阶段）唯一约束生效
 * @dependencies testing, testify, gorm
 * @refs stage_artifact.go
 */

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// StageArtifactModelTestSuite 阶段产物模型测试套件
type StageArtifactModelTestSuite struct {
	suite.Suite
	testDB  *ModelTestDB
	factory *ModelTestDataFactory
}

// SetupSuite 设置测试套件
func (suite *StageArtifactModelTestSuite) SetupSuite() {
	suite.testDB = NewModelTestDB()
	suite.factory = NewModelTestDataFactory(suite.testDB.DB)
}

// TearDownSuite 清理测试套件
func (suite *StageArtifactModelTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *StageArtifactModelTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

func (suite *StageArtifactModelTestSuite) TestStageArtifactCreation() {
	run := suite.factory.CreatePipelineRun()

	artifact := &StageArtifact{
		RunID:   run.ID,
		StageID: "read_data",
		Kind:    ArtifactKindPaths,
		Payload: JSONB{"value": map[string]interface{}{
			"train": "/work/train.csv",
			"test":  "/work/test.csv",
		}},
	}

	err := suite.testDB.DB.Create(artifact).Error
	suite.NoError(err)
	suite.Len(artifact.ID, 36)

	var stored StageArtifact
	err = suite.testDB.DB.Where("id = ?", artifact.ID).First(&stored).Error
	suite.NoError(err)
	suite.Equal(run.ID, stored.RunID)
	suite.Equal("read_data", stored.StageID)
	suite.Equal(ArtifactKindPaths, stored.Kind)

	value, ok := stored.Payload["value"].(map[string]interface{})
	suite.True(ok)
	suite.Equal("/work/train.csv", value["train"])
}

func (suite *StageArtifactModelTestSuite) TestUniqueRunStageConstraint() {
	run := suite.factory.CreatePipelineRun()
	suite.factory.CreateStageArtifact(run.ID, "create_workdir")

	duplicate := &StageArtifact{
		RunID:   run.ID,
		StageID: "create_workdir",
		Kind:    ArtifactKindPath,
		Payload: JSONB{"value": "/other"},
	}
	err := suite.testDB.DB.Create(duplicate).Error
	suite.Error(err, "同一运行同一阶段的产物应违反唯一约束")

	// 不同运行同一阶段不受影响
	other := suite.factory.CreatePipelineRun()
	suite.NotNil(suite.factory.CreateStageArtifact(other.ID, "create_workdir"))
}

func (suite *StageArtifactModelTestSuite) TestColumnsPayloadRoundTrip() {
	run := suite.factory.CreatePipelineRun()

	artifact := &StageArtifact{
		RunID:   run.ID,
		StageID: "select_features",
		Kind:    ArtifactKindColumns,
		Payload: JSONB{"value": []string{"job", "marital", "education"}},
	}
	suite.NoError(suite.testDB.DB.Create(artifact).Error)

	var stored StageArtifact
	suite.NoError(suite.testDB.DB.Where("id = ?", artifact.ID).First(&stored).Error)

	// JSON 往返后字符串切片还原为 []interface{}
	value, ok := stored.Payload["value"].([]interface{})
	suite.True(ok)
	suite.Len(value, 3)
	suite.Equal("job", value[0])
}

// TestStageArtifactModelTestSuite 运行阶段产物模型测试套件
func TestStageArtifactModelTestSuite(t *testing.T) {
	suite.Run(t, new(StageArtifactModelTestSuite))
}

func TestStageArtifactTableName(t *testing.T) {
	assert.Equal(t, "stage_artifacts", StageArtifact{}.TableName())
}
