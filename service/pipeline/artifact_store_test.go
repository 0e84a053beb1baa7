/*
 * @module service/pipeline/artifact_store_test
 * @description 阶段产物存储测试，验证发布、读取、类型校验与清除
 * @architecture 测试层 - 数据访问测试
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 内存数据库建表 -> 发布产物 -> 读取断言 -> 清除断言
 * @rules 读取走真实数据库往返，覆盖 JSONB 序列化后的类型还原
 * @dependencies testing, testify, dataprep-service/testutil
 * @refs artifact_store.go
 */

package pipeline

import (
	"testing"

	"dataprep-service/service/models"
	"dataprep-service/testutil"

	"github.com/stretchr/testify/suite"
)

// ArtifactStoreTestSuite 产物存储测试套件
type ArtifactStoreTestSuite struct {
	suite.Suite
	testDB *testutil.TestDB
	store  *ArtifactStore
}

// SetupSuite 设置测试套件
func (suite *ArtifactStoreTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.store = NewArtifactStore(suite.testDB.DB)
}

// TearDownSuite 清理测试套件
func (suite *ArtifactStoreTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *ArtifactStoreTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

func (suite *ArtifactStoreTestSuite) TestPublishAndReadPath() {
	err := suite.store.PublishPath("run-1", "create_workdir", "/data/temp_20240101000000")
	suite.NoError(err)

	path, err := suite.store.PathFor("run-1", "create_workdir")
	suite.NoError(err)
	suite.Equal("/data/temp_20240101000000", path)
}

func (suite *ArtifactStoreTestSuite) TestPublishAndReadPaths() {
	want := map[string]string{
		"train":      "/work/train.csv",
		"validation": "/work/validation.csv",
		"test":       "/work/test.csv",
	}
	err := suite.store.PublishPaths("run-1", "read_data", want)
	suite.NoError(err)

	paths, err := suite.store.PathsFor("run-1", "read_data")
	suite.NoError(err)
	suite.Equal(want, paths)
}

func (suite *ArtifactStoreTestSuite) TestPublishAndReadColumns() {
	want := []string{"city", "grade", "age"}
	err := suite.store.PublishColumns("run-1", "select_features", want)
	suite.NoError(err)

	// 经过数据库序列化往返后仍还原为字符串切片
	columns, err := suite.store.ColumnsFor("run-1", "select_features")
	suite.NoError(err)
	suite.Equal(want, columns)
}

func (suite *ArtifactStoreTestSuite) TestPublishAndReadClasses() {
	want := []string{"no", "yes"}
	err := suite.store.PublishClasses("run-1", "select_features", want)
	suite.NoError(err)

	classes, err := suite.store.ClassesFor("run-1", "select_features")
	suite.NoError(err)
	suite.Equal(want, classes)
}

func (suite *ArtifactStoreTestSuite) TestPublishRejectsOverwrite() {
	err := suite.store.PublishPath("run-1", "create_workdir", "/data/a")
	suite.NoError(err)

	err = suite.store.PublishPath("run-1", "create_workdir", "/data/b")
	suite.Error(err)
	suite.Contains(err.Error(), "不允许覆盖")

	// 原值不受影响
	path, err := suite.store.PathFor("run-1", "create_workdir")
	suite.NoError(err)
	suite.Equal("/data/a", path)
}

func (suite *ArtifactStoreTestSuite) TestPublishSameStageDifferentRuns() {
	suite.NoError(suite.store.PublishPath("run-1", "create_workdir", "/data/a"))
	suite.NoError(suite.store.PublishPath("run-2", "create_workdir", "/data/b"))

	path, err := suite.store.PathFor("run-2", "create_workdir")
	suite.NoError(err)
	suite.Equal("/data/b", path)
}

func (suite *ArtifactStoreTestSuite) TestReadMissingArtifact() {
	_, err := suite.store.PathFor("run-1", "create_workdir")
	suite.ErrorIs(err, ErrUpstreamArtifactMissing)

	_, err = suite.store.ColumnsFor("run-1", "select_features")
	suite.ErrorIs(err, ErrUpstreamArtifactMissing)
}

func (suite *ArtifactStoreTestSuite) TestReadKindMismatch() {
	err := suite.store.PublishPath("run-1", "create_workdir", "/data/a")
	suite.NoError(err)

	_, err = suite.store.ColumnsFor("run-1", "create_workdir")
	suite.Error(err)
	suite.Contains(err.Error(), "产物类型不匹配")
}

func (suite *ArtifactStoreTestSuite) TestListForRun() {
	suite.NoError(suite.store.PublishPath("run-1", "create_workdir", "/data/temp"))
	suite.NoError(suite.store.PublishColumns("run-1", "select_features", []string{"city"}))
	suite.NoError(suite.store.PublishPath("run-2", "create_workdir", "/data/other"))

	artifacts, err := suite.store.ListForRun("run-1")
	suite.NoError(err)
	suite.Len(artifacts, 2)
	for _, artifact := range artifacts {
		suite.Equal("run-1", artifact.RunID)
	}
}

func (suite *ArtifactStoreTestSuite) TestListForRunEmpty() {
	artifacts, err := suite.store.ListForRun("run-absent")
	suite.NoError(err)
	suite.Empty(artifacts)
}

func (suite *ArtifactStoreTestSuite) TestPurgeRun() {
	suite.NoError(suite.store.PublishPath("run-1", "create_workdir", "/data/temp"))
	suite.NoError(suite.store.PublishColumns("run-1", "select_features", []string{"city"}))
	suite.NoError(suite.store.PublishPath("run-2", "create_workdir", "/data/other"))

	count, err := suite.store.PurgeRun("run-1")
	suite.NoError(err)
	suite.Equal(int64(2), count)

	_, err = suite.store.PathFor("run-1", "create_workdir")
	suite.ErrorIs(err, ErrUpstreamArtifactMissing)

	// 其他运行的产物不受影响
	path, err := suite.store.PathFor("run-2", "create_workdir")
	suite.NoError(err)
	suite.Equal("/data/other", path)

	// 重复清除返回零
	count, err = suite.store.PurgeRun("run-1")
	suite.NoError(err)
	suite.Equal(int64(0), count)
}

func (suite *ArtifactStoreTestSuite) TestPublishCustomKind() {
	err := suite.store.Publish("run-1", "custom", models.ArtifactKindPath, models.JSONB{"value": "/data/x"})
	suite.NoError(err)

	path, err := suite.store.PathFor("run-1", "custom")
	suite.NoError(err)
	suite.Equal("/data/x", path)
}

// TestArtifactStoreTestSuite 运行产物存储测试套件
func TestArtifactStoreTestSuite(t *testing.T) {
	suite.Run(t, new(ArtifactStoreTestSuite))
}
