/*
 * @module service/pipeline/errors
 * @description 流水线错误分类定义，统一暴露各子包的哨兵错误供调用方判定
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 阶段执行失败 -> 错误包装 -> errors.Is 分类 -> 运行记录与日志
 * @rules 阶段返回的错误必须包装到下列哨兵之一，保证失败原因可机器判定
 * @dependencies dataprep-service/service/dataset, dataprep-service/service/preprocess
 * @refs service/pipeline/stages.go
 */

package pipeline

import (
	"errors"

	"dataprep-service/service/dataset"
	"dataprep-service/service/preprocess"
)

var (
	// ErrDirectoryCreation 工作目录或输出目录创建失败
	ErrDirectoryCreation = errors.New("目录创建失败")

	// ErrCleanup 工作目录删除或运行产物清理失败
	ErrCleanup = errors.New("清理失败")

	// ErrUpstreamArtifactMissing 依赖的上游阶段产物不存在
	ErrUpstreamArtifactMissing = errors.New("上游产物缺失")

	// ErrRunActive 已有未完成的运行，拒绝并发触发
	ErrRunActive = errors.New("已有运行中的流水线")
)

// 子包哨兵错误的统一出口，便于调用方只依赖本包做 errors.Is 判定
var (
	ErrSchemaMismatch = dataset.ErrSchemaMismatch
	ErrUnknownLabel   = preprocess.ErrUnknownLabel
	ErrSerialization  = preprocess.ErrSerialization
)
