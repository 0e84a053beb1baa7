/*
 * @module service/pipeline/stage
 * @description 流水线阶段模型定义，包含阶段结构、运行配置快照和运行上下文
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 编排器构建阶段图 -> 执行器按依赖调度 -> 阶段通过运行上下文读写产物
 * @rules 阶段间只通过产物存储传递数据，阶段函数必须可重入且不共享内存状态
 * @dependencies dataprep-service/service/models
 * @refs service/pipeline/executor.go, service/pipeline/stages.go
 */

package pipeline

import (
	"context"
	"sync"

	"dataprep-service/service/models"
)

// Variant 预处理变体，决定数值列使用的缩放器
type Variant string

const (
	// VariantStandardized 标准化变体，数值列按均值方差缩放
	VariantStandardized Variant = "standardized"
	// VariantMinMax 归一化变体，数值列按最小最大值缩放
	VariantMinMax Variant = "minmax"
)

// Variants 一次运行并行产出的全部变体
var Variants = []Variant{VariantStandardized, VariantMinMax}

// Standardize 该变体是否使用标准化缩放
func (v Variant) Standardize() bool {
	return v == VariantStandardized
}

// 数据集分片名
const (
	SplitTrain      = "train"
	SplitValidation = "validation"
	SplitTest       = "test"
)

// SplitNames 固定的三个分片，train 分片用于拟合
var SplitNames = []string{SplitTrain, SplitValidation, SplitTest}

// PreprocessorFilename 预处理器在变体输出目录下的持久化文件名
const PreprocessorFilename = "preprocessor.bin"

// 阶段 ID 定义，变体相关阶段通过后缀区分
const (
	StageCreateWorkdir  = "create_workdir"
	StageReadData       = "read_data"
	StageSelectFeatures = "select_features"
	StageRemoveWorkdir  = "remove_workdir"
	StagePurgeArtifacts = "purge_artifacts"
)

// StagePrepareDir 变体输出目录准备阶段的 ID
func StagePrepareDir(v Variant) string {
	return "prepare_dir:" + string(v)
}

// StageFitPreprocessor 变体预处理器拟合阶段的 ID
func StageFitPreprocessor(v Variant) string {
	return "fit_preprocessor:" + string(v)
}

// StageTransformSplits 变体分片转换阶段的 ID
func StageTransformSplits(v Variant) string {
	return "transform_splits:" + string(v)
}

// StageFunc 阶段执行函数
type StageFunc func(ctx context.Context, rc *RunContext) error

// Stage 流水线阶段
type Stage struct {
	ID        string
	DependsOn []string
	// AlwaysRun 标记清理类阶段：全部前置进入终态后必定执行，不随上游失败被跳过
	AlwaysRun bool
	Run       StageFunc
}

// RunConfig 一次运行的配置快照
// 运行开始时解析一次，整个运行期间各阶段看到一致的配置
type RunConfig struct {
	DataDir               string
	OutputDir             string
	WorkdirRoot           string
	IndexColumn           string
	TargetColumn          string
	CollinearColumns      []string
	AllowMissingCollinear bool
	SelectionAlpha        float64
	InputEncoding         string
	MaxParallelStages     int
	KeepWorkdirOnFailure  bool
}

// RunContext 一次运行的共享上下文，显式传入各阶段
type RunContext struct {
	Run       *models.PipelineRun
	Config    *RunConfig
	Artifacts *ArtifactStore
	Workdir   *WorkdirManager

	mu     sync.Mutex
	failed bool
}

// NewRunContext 创建运行上下文
func NewRunContext(run *models.PipelineRun, cfg *RunConfig, store *ArtifactStore, workdir *WorkdirManager) *RunContext {
	return &RunContext{
		Run:       run,
		Config:    cfg,
		Artifacts: store,
		Workdir:   workdir,
	}
}

// MarkFailed 记录本次运行出现过失败阶段
func (rc *RunContext) MarkFailed() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.failed = true
}

// HasFailure 本次运行是否有阶段失败过，清理阶段据此决定是否保留工作目录
func (rc *RunContext) HasFailure() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.failed
}
