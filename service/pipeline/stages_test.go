/*
 * @module service/pipeline/stages_test
 * @description 流水线阶段集成测试，用真实文件和内存数据库走完整阶段图
 * @architecture 测试层 - 端到端集成测试
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 准备分片CSV -> 执行完整阶段图 -> 校验输出数据集与清理结果
 * @rules 覆盖正常出数、未知标签中断、共线列校验失败和失败保留工作目录
 * @dependencies testing, testify, dataprep-service/testutil
 * @refs stages.go, executor.go
 */

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dataprep-service/service/dataset"
	"dataprep-service/service/models"
	"dataprep-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trainCSV 训练集：city 与目标完全相关，noise 与目标独立，dup 为待剔除的共线列
const trainCSV = `ID,city,noise,age,dup,subscribed
1,北京,a,20,x,yes
2,北京,b,30,x,yes
3,北京,a,40,x,yes
4,北京,b,50,x,yes
5,上海,a,60,x,no
6,上海,b,70,x,no
7,上海,a,80,x,no
8,上海,b,90,x,no
`

const validationCSV = `ID,city,noise,age,dup,subscribed
9,北京,a,25,x,yes
10,上海,b,85,x,no
`

const testCSV = `ID,city,noise,age,dup,subscribed
11,北京,b,35,x,yes
12,上海,a,65,x,no
`

type pipelineFixture struct {
	rc      *RunContext
	store   *ArtifactStore
	workdir *WorkdirManager
	dataDir string
	outDir  string
	root    string
}

func newPipelineFixture(t *testing.T, tdb *testutil.TestDB, runID string, splits map[string]string) *pipelineFixture {
	t.Helper()

	dataDir := testutil.WriteSplitFiles(t, t.TempDir(), splits)
	outDir := t.TempDir()
	root := t.TempDir()

	cfg := &RunConfig{
		DataDir:           dataDir,
		OutputDir:         outDir,
		WorkdirRoot:       root,
		IndexColumn:       "ID",
		TargetColumn:      "subscribed",
		CollinearColumns:  []string{"dup"},
		SelectionAlpha:    0.05,
		MaxParallelStages: 4,
	}

	store := NewArtifactStore(tdb.DB)
	workdir := NewWorkdirManager(root)
	rc := NewRunContext(&models.PipelineRun{ID: runID}, cfg, store, workdir)

	return &pipelineFixture{
		rc:      rc,
		store:   store,
		workdir: workdir,
		dataDir: dataDir,
		outDir:  outDir,
		root:    root,
	}
}

func defaultSplits() map[string]string {
	return map[string]string{
		"train":      trainCSV,
		"validation": validationCSV,
		"test":       testCSV,
	}
}

func (f *pipelineFixture) execute(t *testing.T) (map[string]*StageResult, error) {
	t.Helper()
	return NewExecutor(f.rc.Config.MaxParallelStages).Execute(context.Background(), BuildStages(), f.rc)
}

func readOutput(t *testing.T, outDir string, v Variant, split string) *dataset.Table {
	t.Helper()
	table, err := dataset.ReadCSV(filepath.Join(outDir, string(v), split+".csv"), dataset.ReadOptions{})
	require.NoError(t, err)
	return table
}

func TestBuildStagesGraph(t *testing.T) {
	stages := BuildStages()
	require.Len(t, stages, 11)

	byID := make(map[string]*Stage, len(stages))
	for _, stage := range stages {
		byID[stage.ID] = stage
	}

	for _, id := range []string{
		StageCreateWorkdir, StageReadData, StageSelectFeatures,
		"prepare_dir:standardized", "fit_preprocessor:standardized", "transform_splits:standardized",
		"prepare_dir:minmax", "fit_preprocessor:minmax", "transform_splits:minmax",
		StageRemoveWorkdir, StagePurgeArtifacts,
	} {
		require.Contains(t, byID, id)
	}

	// 拟合依赖特征选择与目录准备，两路变体互不依赖
	fit := byID[StageFitPreprocessor(VariantStandardized)]
	assert.ElementsMatch(t, []string{StageSelectFeatures, StagePrepareDir(VariantStandardized)}, fit.DependsOn)

	// 清理阶段等待两路转换并保证执行
	remove := byID[StageRemoveWorkdir]
	assert.True(t, remove.AlwaysRun)
	assert.ElementsMatch(t, []string{
		StageTransformSplits(VariantStandardized),
		StageTransformSplits(VariantMinMax),
	}, remove.DependsOn)

	purge := byID[StagePurgeArtifacts]
	assert.True(t, purge.AlwaysRun)
	assert.Equal(t, []string{StageRemoveWorkdir}, purge.DependsOn)
}

func TestPipelineEndToEnd(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	fixture := newPipelineFixture(t, tdb, "run-e2e", defaultSplits())
	results, err := fixture.execute(t)
	require.NoError(t, err)

	for id, result := range results {
		assert.Equal(t, models.StageStatusSuccess, result.Status, "阶段 %s 应执行成功", id)
	}

	for _, v := range Variants {
		variantDir := filepath.Join(fixture.outDir, string(v))
		_, err := os.Stat(filepath.Join(variantDir, PreprocessorFilename))
		assert.NoError(t, err, "变体 %s 缺少预处理器文件", v)
		for _, split := range SplitNames {
			_, err := os.Stat(filepath.Join(variantDir, split+".csv"))
			assert.NoError(t, err, "变体 %s 缺少分片 %s", v, split)
		}
	}

	train := readOutput(t, fixture.outDir, VariantStandardized, SplitTrain)

	// 列布局：小写索引列、目标列、选中类别列展开、数值列
	// noise 列与目标独立被剔除，dup 列作为共线列被剔除
	assert.Equal(t, []string{"id", "subscribed", "city_北京", "city_上海", "age"}, train.Columns)
	require.Equal(t, 8, train.NumRows())

	ids, err := train.Column("id")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, ids)

	// 类别表按字典序排序：no=0 yes=1
	labels, err := train.Column("subscribed")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "1", "1", "1", "0", "0", "0", "0"}, labels)

	beijing, err := train.FloatColumn("city_北京")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1, 0, 0, 0, 0}, beijing)

	age, err := train.FloatColumn("age")
	require.NoError(t, err)
	var sum float64
	for _, value := range age {
		sum += value
	}
	assert.InDelta(t, 0, sum/float64(len(age)), 1e-9, "标准化后训练集均值应为0")

	minmaxTrain := readOutput(t, fixture.outDir, VariantMinMax, SplitTrain)
	minmaxAge, err := minmaxTrain.FloatColumn("age")
	require.NoError(t, err)
	assert.InDelta(t, 0, minmaxAge[0], 1e-9)
	assert.InDelta(t, 1, minmaxAge[len(minmaxAge)-1], 1e-9)
	for _, value := range minmaxAge {
		assert.GreaterOrEqual(t, value, 0.0)
		assert.LessOrEqual(t, value, 1.0)
	}

	// 两路变体使用同一类别表，标签编码一致
	minmaxLabels, err := minmaxTrain.Column("subscribed")
	require.NoError(t, err)
	assert.Equal(t, labels, minmaxLabels)

	// 验证集用训练集拟合的参数转换
	validation := readOutput(t, fixture.outDir, VariantMinMax, SplitValidation)
	require.Equal(t, 2, validation.NumRows())
	validationAge, err := validation.FloatColumn("age")
	require.NoError(t, err)
	assert.InDelta(t, 5.0/70.0, validationAge[0], 1e-9)
	assert.InDelta(t, 65.0/70.0, validationAge[1], 1e-9)

	// 工作目录已删除，产物已清除
	orphans, err := fixture.workdir.ListOrphans()
	require.NoError(t, err)
	assert.Empty(t, orphans)

	artifacts, err := fixture.store.ListForRun("run-e2e")
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	assert.NotEmpty(t, fixture.rc.Run.WorkDir)
	_, statErr := os.Stat(fixture.rc.Run.WorkDir)
	assert.True(t, os.IsNotExist(statErr))
	assert.False(t, fixture.rc.HasFailure())
}

func TestPipelineUnknownLabelStopsSplit(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	splits := defaultSplits()
	splits["validation"] = `ID,city,noise,age,dup,subscribed
9,北京,a,25,x,maybe
10,上海,b,85,x,no
`

	fixture := newPipelineFixture(t, tdb, "run-badlabel", splits)
	results, err := fixture.execute(t)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")

	for _, v := range Variants {
		assert.Equal(t, models.StageStatusFailed, results[StageTransformSplits(v)].Status)

		variantDir := filepath.Join(fixture.outDir, string(v))
		// 表外标签的分片不产生输出文件，之前的分片已写出
		_, statErr := os.Stat(filepath.Join(variantDir, "validation.csv"))
		assert.True(t, os.IsNotExist(statErr))
		_, statErr = os.Stat(filepath.Join(variantDir, "train.csv"))
		assert.NoError(t, statErr)
	}

	// 失败后仍然完成清理
	orphans, err := fixture.workdir.ListOrphans()
	require.NoError(t, err)
	assert.Empty(t, orphans)

	artifacts, err := fixture.store.ListForRun("run-badlabel")
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestPipelineMissingCollinearColumnFails(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	fixture := newPipelineFixture(t, tdb, "run-collinear", defaultSplits())
	fixture.rc.Config.CollinearColumns = []string{"dup", "ghost"}
	fixture.rc.Config.AllowMissingCollinear = false

	results, err := fixture.execute(t)

	assert.ErrorIs(t, err, dataset.ErrSchemaMismatch)
	assert.Equal(t, models.StageStatusFailed, results[StageReadData].Status)
	assert.Equal(t, models.StageStatusSkipped, results[StageSelectFeatures].Status)
	for _, v := range Variants {
		assert.Equal(t, models.StageStatusSkipped, results[StageFitPreprocessor(v)].Status)
		assert.Equal(t, models.StageStatusSkipped, results[StageTransformSplits(v)].Status)
	}

	// 读数失败也要回收已创建的工作目录
	orphans, listErr := fixture.workdir.ListOrphans()
	require.NoError(t, listErr)
	assert.Empty(t, orphans)
}

func TestPipelineAllowMissingCollinear(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	fixture := newPipelineFixture(t, tdb, "run-allow-missing", defaultSplits())
	fixture.rc.Config.CollinearColumns = []string{"dup", "ghost"}
	fixture.rc.Config.AllowMissingCollinear = true

	_, err := fixture.execute(t)
	require.NoError(t, err)
}

func TestPipelineKeepWorkdirOnFailure(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	splits := defaultSplits()
	splits["test"] = `ID,city,noise,age,dup,subscribed
11,北京,b,35,x,unknown_label
`

	fixture := newPipelineFixture(t, tdb, "run-keep", splits)
	fixture.rc.Config.KeepWorkdirOnFailure = true

	_, err := fixture.execute(t)
	require.Error(t, err)

	// 失败时按配置保留工作目录供排查
	orphans, listErr := fixture.workdir.ListOrphans()
	require.NoError(t, listErr)
	assert.Len(t, orphans, 1)

	// 产物仍然清除，目录留给清理任务按时限回收
	artifacts, listErr := fixture.store.ListForRun("run-keep")
	require.NoError(t, listErr)
	assert.Empty(t, artifacts)
}

func TestPipelineRerunWithSameOutputDir(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	first := newPipelineFixture(t, tdb, "run-first", defaultSplits())
	_, err := first.execute(t)
	require.NoError(t, err)

	// 复用输出目录再跑一次，目录准备幂等且输出覆盖
	second := newPipelineFixture(t, tdb, "run-second", defaultSplits())
	second.rc.Config.OutputDir = first.outDir

	results, err := second.execute(t)
	require.NoError(t, err)
	for id, result := range results {
		assert.Equal(t, models.StageStatusSuccess, result.Status, "阶段 %s 应执行成功", id)
	}

	train := readOutput(t, first.outDir, VariantStandardized, SplitTrain)
	assert.Equal(t, 8, train.NumRows())
}

func TestPipelineMissingSplitFile(t *testing.T) {
	tdb := testutil.NewTestDB()
	defer tdb.Close()

	splits := defaultSplits()
	delete(splits, "test")

	fixture := newPipelineFixture(t, tdb, "run-missing-split", splits)
	results, err := fixture.execute(t)

	require.Error(t, err)
	assert.Equal(t, models.StageStatusFailed, results[StageReadData].Status)

	orphans, listErr := fixture.workdir.ListOrphans()
	require.NoError(t, listErr)
	assert.Empty(t, orphans)
}
