/*
 * @module service/scheduler/scheduler_service_test
 * @description 流水线调度器测试，验证调度触发与防重跳过
 * @architecture 测试层 - 业务服务测试
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 写入调度配置 -> 模拟调度触发 -> 校验运行记录
 * @rules 单实例模式下不加分布式锁，活跃运行存在时跳过调度
 * @dependencies testing, testify, dataprep-service/testutil
 * @refs scheduler_service.go
 */

package scheduler

import (
	"testing"

	"dataprep-service/service/config"
	"dataprep-service/service/models"
	"dataprep-service/service/pipeline"
	"dataprep-service/testutil"

	"github.com/stretchr/testify/suite"
)

const schedulerTrainCSV = `ID,city,age,subscribed
1,北京,20,yes
2,上海,30,no
3,北京,40,yes
4,上海,50,no
`

const schedulerHoldoutCSV = `ID,city,age,subscribed
5,北京,25,yes
6,上海,45,no
`

// SchedulerServiceTestSuite 流水线调度器测试套件
type SchedulerServiceTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	factory *testutil.TestDataFactory
	configs *config.ConfigService
	svc     *SchedulerService
}

// SetupSuite 设置测试套件
func (suite *SchedulerServiceTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
}

// TearDownSuite 清理测试套件
func (suite *SchedulerServiceTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *SchedulerServiceTestSuite) SetupTest() {
	suite.testDB.CleanDB()

	t := suite.T()
	dataDir := testutil.WriteSplitFiles(t, t.TempDir(), map[string]string{
		"train":      schedulerTrainCSV,
		"validation": schedulerHoldoutCSV,
		"test":       schedulerHoldoutCSV,
	})

	suite.configs = config.NewConfigService(suite.testDB.DB)
	settings := map[string]string{
		config.ConfigKeyDataDir:      dataDir,
		config.ConfigKeyOutputDir:    t.TempDir(),
		config.ConfigKeyWorkdirRoot:  t.TempDir(),
		config.ConfigKeyIndexColumn:  "ID",
		config.ConfigKeyTargetColumn: "subscribed",
	}
	for key, value := range settings {
		suite.Require().NoError(suite.configs.SetSystemConfig(key, value, ""))
	}

	pipelineService := pipeline.NewPipelineService(suite.testDB.DB, suite.configs, nil)
	suite.svc = NewSchedulerService(suite.testDB.DB, pipelineService, suite.configs, nil)
}

func (suite *SchedulerServiceTestSuite) TestScheduledRunExecutes() {
	suite.svc.runScheduled()

	var runs []models.PipelineRun
	suite.Require().NoError(suite.testDB.DB.Find(&runs).Error)
	suite.Require().Len(runs, 1)
	suite.Equal(models.RunTriggerSchedule, runs[0].TriggerType)
	suite.Equal("scheduler", runs[0].CreatedBy)
	suite.Equal(models.RunStatusSuccess, runs[0].Status)
}

func (suite *SchedulerServiceTestSuite) TestScheduledRunSkipsWhenActive() {
	suite.factory.CreatePipelineRun(testutil.WithRunStatus(models.RunStatusRunning))

	suite.svc.runScheduled()

	// 活跃运行存在时不创建新运行
	var count int64
	suite.Require().NoError(suite.testDB.DB.Model(&models.PipelineRun{}).Count(&count).Error)
	suite.Equal(int64(1), count)
}

func (suite *SchedulerServiceTestSuite) TestStartRejectsInvalidSpec() {
	suite.Require().NoError(suite.configs.SetSystemConfig(config.ConfigKeySchedule, "not-a-cron", ""))

	err := suite.svc.Start()
	suite.Require().Error(err)
	suite.Contains(err.Error(), "注册调度表达式失败")
}

func (suite *SchedulerServiceTestSuite) TestStartStopLifecycle() {
	suite.Require().NoError(suite.svc.Start())
	suite.svc.Stop()
}

// TestSchedulerServiceTestSuite 运行流水线调度器测试套件
func TestSchedulerServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerServiceTestSuite))
}
