/*
 * @module service/pipeline/stages
 * @description 预处理流水线的阶段实现：建目录、读数清洗、特征选择、两种变体的拟合与转换、收尾清理
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 创建工作目录 -> 清洗三分片 -> 特征选择/变体目录准备 -> 拟合落盘 -> 分片转换 -> 删除工作目录 -> 清除产物
 * @rules 拟合只用训练集；预处理器经磁盘传递；未知目标标签在写出前报错；清理阶段必定执行
 * @dependencies dataprep-service/service/dataset, dataprep-service/service/preprocess, dataprep-service/service/feature_selection
 * @refs service/pipeline/orchestrator.go
 */

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"dataprep-service/service/dataset"
	"dataprep-service/service/feature_selection"
	"dataprep-service/service/preprocess"
)

// BuildStages 构建一次运行的完整阶段图
// 两个变体共用清洗结果和特征选择结果，各自拟合、转换，最后统一清理
func BuildStages() []*Stage {
	stages := []*Stage{
		{ID: StageCreateWorkdir, Run: stageCreateWorkdir},
		{ID: StageReadData, DependsOn: []string{StageCreateWorkdir}, Run: stageReadData},
		{ID: StageSelectFeatures, DependsOn: []string{StageReadData}, Run: stageSelectFeatures},
	}

	cleanupDeps := make([]string, 0, len(Variants))
	for _, variant := range Variants {
		v := variant
		prepareID := StagePrepareDir(v)
		fitID := StageFitPreprocessor(v)
		transformID := StageTransformSplits(v)
		stages = append(stages,
			&Stage{
				ID:        prepareID,
				DependsOn: []string{StageReadData},
				Run: func(ctx context.Context, rc *RunContext) error {
					return stagePrepareDir(ctx, rc, v)
				},
			},
			&Stage{
				ID:        fitID,
				DependsOn: []string{StageSelectFeatures, prepareID},
				Run: func(ctx context.Context, rc *RunContext) error {
					return stageFitPreprocessor(ctx, rc, v)
				},
			},
			&Stage{
				ID:        transformID,
				DependsOn: []string{fitID},
				Run: func(ctx context.Context, rc *RunContext) error {
					return stageTransformSplits(ctx, rc, v)
				},
			},
		)
		cleanupDeps = append(cleanupDeps, transformID)
	}

	stages = append(stages,
		&Stage{ID: StageRemoveWorkdir, DependsOn: cleanupDeps, AlwaysRun: true, Run: stageRemoveWorkdir},
		&Stage{ID: StagePurgeArtifacts, DependsOn: []string{StageRemoveWorkdir}, AlwaysRun: true, Run: stagePurgeArtifacts},
	)
	return stages
}

// stageCreateWorkdir 创建本次运行的临时工作目录
func stageCreateWorkdir(ctx context.Context, rc *RunContext) error {
	path, err := rc.Workdir.Create()
	if err != nil {
		return err
	}
	rc.Run.WorkDir = path
	slog.Info("工作目录已创建", "run_id", rc.Run.ID, "workdir", path)
	return rc.Artifacts.PublishPath(rc.Run.ID, StageCreateWorkdir, path)
}

// stageReadData 读取三个分片的原始数据，剔除共线列后写入工作目录
func stageReadData(ctx context.Context, rc *RunContext) error {
	workdir, err := rc.Artifacts.PathFor(rc.Run.ID, StageCreateWorkdir)
	if err != nil {
		return err
	}

	paths := make(map[string]string, len(SplitNames))
	for _, split := range SplitNames {
		if err := ctx.Err(); err != nil {
			return err
		}

		rawPath := filepath.Join(rc.Config.DataDir, split+".csv")
		table, err := dataset.ReadCSV(rawPath, dataset.ReadOptions{Encoding: rc.Config.InputEncoding})
		if err != nil {
			return fmt.Errorf("读取分片 %s 失败: %w", split, err)
		}

		cleaned, err := table.DropColumns(rc.Config.CollinearColumns, rc.Config.AllowMissingCollinear)
		if err != nil {
			return fmt.Errorf("分片 %s 清洗失败: %w", split, err)
		}

		outPath := filepath.Join(workdir, split+".csv")
		if err := dataset.WriteCSV(outPath, cleaned); err != nil {
			return fmt.Errorf("写出分片 %s 失败: %w", split, err)
		}
		paths[split] = outPath
		slog.Debug("分片清洗完成", "run_id", rc.Run.ID, "split", split, "rows", cleaned.NumRows())
	}

	return rc.Artifacts.PublishPaths(rc.Run.ID, StageReadData, paths)
}

// stageSelectFeatures 在训练集上做卡方检验，筛选与目标显著相关的类别列
func stageSelectFeatures(ctx context.Context, rc *RunContext) error {
	train, err := readCleanedSplit(rc, SplitTrain)
	if err != nil {
		return err
	}

	target, err := train.Column(rc.Config.TargetColumn)
	if err != nil {
		return fmt.Errorf("读取目标列失败: %w", err)
	}
	candidates, err := train.TextualFeatureColumns(rc.Config.TargetColumn)
	if err != nil {
		return fmt.Errorf("识别类别候选列失败: %w", err)
	}

	selector := feature_selection.NewSelector(rc.Config.SelectionAlpha)
	selected, err := selector.SelectCategorical(train, target, candidates)
	if err != nil {
		return err
	}
	slog.Info("类别特征选择完成", "run_id", rc.Run.ID,
		"candidates", len(candidates), "selected", len(selected))

	return rc.Artifacts.PublishColumns(rc.Run.ID, StageSelectFeatures, selected)
}

// stagePrepareDir 幂等创建变体输出目录
func stagePrepareDir(ctx context.Context, rc *RunContext, v Variant) error {
	dir := filepath.Join(rc.Config.OutputDir, string(v))
	if err := EnsureDir(dir); err != nil {
		return err
	}
	return rc.Artifacts.PublishPath(rc.Run.ID, StagePrepareDir(v), dir)
}

// stageFitPreprocessor 在训练集上拟合变体预处理器并落盘
func stageFitPreprocessor(ctx context.Context, rc *RunContext, v Variant) error {
	train, err := readCleanedSplit(rc, SplitTrain)
	if err != nil {
		return err
	}

	categorical, err := rc.Artifacts.ColumnsFor(rc.Run.ID, StageSelectFeatures)
	if err != nil {
		return err
	}
	numeric, err := train.NumericFeatureColumns(rc.Config.TargetColumn)
	if err != nil {
		return fmt.Errorf("识别数值特征列失败: %w", err)
	}

	transformer := preprocess.NewColumnTransformer(categorical, numeric, v.Standardize())
	columns, err := transformer.Fit(train)
	if err != nil {
		return fmt.Errorf("拟合预处理器失败: %w", err)
	}

	outDir, err := rc.Artifacts.PathFor(rc.Run.ID, StagePrepareDir(v))
	if err != nil {
		return err
	}
	if err := transformer.Save(filepath.Join(outDir, PreprocessorFilename)); err != nil {
		return err
	}
	slog.Info("预处理器已落盘", "run_id", rc.Run.ID, "variant", string(v),
		"categorical", len(categorical), "numeric", len(numeric))

	return rc.Artifacts.PublishColumns(rc.Run.ID, StageFitPreprocessor(v), columns)
}

// stageTransformSplits 从磁盘加载预处理器，转换三个分片并写出最终数据集
func stageTransformSplits(ctx context.Context, rc *RunContext, v Variant) error {
	outDir, err := rc.Artifacts.PathFor(rc.Run.ID, StagePrepareDir(v))
	if err != nil {
		return err
	}
	// 不复用拟合阶段的内存对象，从磁盘加载验证落盘产物可用
	transformer, err := preprocess.Load(filepath.Join(outDir, PreprocessorFilename))
	if err != nil {
		return err
	}
	columns, err := rc.Artifacts.ColumnsFor(rc.Run.ID, StageFitPreprocessor(v))
	if err != nil {
		return err
	}

	train, err := readCleanedSplit(rc, SplitTrain)
	if err != nil {
		return err
	}
	trainTarget, err := train.Column(rc.Config.TargetColumn)
	if err != nil {
		return fmt.Errorf("读取训练集目标列失败: %w", err)
	}
	classes := preprocess.Classes(trainTarget)

	header := make([]string, 0, len(columns)+2)
	header = append(header, strings.ToLower(rc.Config.IndexColumn), rc.Config.TargetColumn)
	header = append(header, columns...)

	for _, split := range SplitNames {
		if err := ctx.Err(); err != nil {
			return err
		}

		part, err := readCleanedSplit(rc, split)
		if err != nil {
			return err
		}
		targetValues, err := part.Column(rc.Config.TargetColumn)
		if err != nil {
			return fmt.Errorf("读取分片 %s 目标列失败: %w", split, err)
		}
		// 标签编码先于任何写出，表外标签时该分片不产生输出文件
		labels, err := preprocess.LabelEncode(targetValues, classes, split)
		if err != nil {
			return err
		}
		matrix, err := transformer.Transform(part)
		if err != nil {
			return fmt.Errorf("转换分片 %s 失败: %w", split, err)
		}

		indexValues := part.IndexValues()
		rows := make([][]string, len(matrix))
		for i, values := range matrix {
			row := make([]string, 0, len(values)+2)
			row = append(row, indexValues[i], strconv.Itoa(labels[i]))
			for _, value := range values {
				row = append(row, strconv.FormatFloat(value, 'g', -1, 64))
			}
			rows[i] = row
		}

		out, err := dataset.NewTable(header, rows)
		if err != nil {
			return fmt.Errorf("构建分片 %s 输出表失败: %w", split, err)
		}
		if err := dataset.WriteCSV(filepath.Join(outDir, split+".csv"), out); err != nil {
			return fmt.Errorf("写出分片 %s 失败: %w", split, err)
		}
		slog.Debug("分片转换完成", "run_id", rc.Run.ID, "variant", string(v),
			"split", split, "rows", len(rows))
	}

	return rc.Artifacts.PublishClasses(rc.Run.ID, StageTransformSplits(v), classes)
}

// stageRemoveWorkdir 删除本次运行的工作目录，上游失败也会执行
func stageRemoveWorkdir(ctx context.Context, rc *RunContext) error {
	path, err := rc.Artifacts.PathFor(rc.Run.ID, StageCreateWorkdir)
	if err != nil {
		if errors.Is(err, ErrUpstreamArtifactMissing) {
			// 工作目录从未创建成功，无需清理
			return nil
		}
		return err
	}

	if rc.HasFailure() && rc.Config.KeepWorkdirOnFailure {
		slog.Warn("运行失败，按配置保留工作目录待排查", "run_id", rc.Run.ID, "workdir", path)
		return nil
	}

	if err := rc.Workdir.Destroy(path); err != nil {
		return err
	}
	slog.Info("工作目录已删除", "run_id", rc.Run.ID, "workdir", path)
	return nil
}

// stagePurgeArtifacts 清除本次运行的全部阶段产物
func stagePurgeArtifacts(ctx context.Context, rc *RunContext) error {
	count, err := rc.Artifacts.PurgeRun(rc.Run.ID)
	if err != nil {
		return err
	}
	slog.Info("运行产物已清除", "run_id", rc.Run.ID, "count", count)
	return nil
}

// readCleanedSplit 按清洗阶段发布的路径读取分片，并设置行标识列
func readCleanedSplit(rc *RunContext, split string) (*dataset.Table, error) {
	paths, err := rc.Artifacts.PathsFor(rc.Run.ID, StageReadData)
	if err != nil {
		return nil, err
	}
	path, ok := paths[split]
	if !ok {
		return nil, fmt.Errorf("%w: 分片 %s 的清洗结果路径", ErrUpstreamArtifactMissing, split)
	}
	table, err := dataset.ReadCSV(path, dataset.ReadOptions{IndexColumn: rc.Config.IndexColumn})
	if err != nil {
		return nil, fmt.Errorf("读取分片 %s 清洗结果失败: %w", split, err)
	}
	return table, nil
}
