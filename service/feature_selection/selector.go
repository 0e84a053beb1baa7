/*
 * @module service/feature_selection/selector
 * @description 类别特征选择器，用卡方独立性检验筛选与目标显著相关的类别列
 * @architecture 业务服务层 - 特征选择
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 构建列联表 -> 计算卡方统计量 -> 计算p值 -> 按显著性水平筛选
 * @rules 候选列仅限文本类型的特征列，数值列不参与筛选；筛选结果保持候选列原有顺序
 * @dependencies math
 * @refs service/pipeline/stages.go
 */

package feature_selection

import (
	"fmt"
	"math"

	"dataprep-service/service/dataset"
)

// DefaultAlpha 默认显著性水平
const DefaultAlpha = 0.05

// Selector 类别特征选择器
type Selector struct {
	Alpha float64
}

// NewSelector 创建特征选择器
func NewSelector(alpha float64) *Selector {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	return &Selector{Alpha: alpha}
}

// SelectCategorical 对候选类别列逐列做与目标的卡方独立性检验
// p值小于显著性水平的列被保留，返回结果保持候选列顺序
func (s *Selector) SelectCategorical(features *dataset.Table, target []string, candidates []string) ([]string, error) {
	selected := []string{}
	for _, col := range candidates {
		values, err := features.Column(col)
		if err != nil {
			return nil, err
		}
		_, _, p, err := ChiSquare(values, target)
		if err != nil {
			return nil, fmt.Errorf("列 %s 卡方检验失败: %w", col, err)
		}
		if p < s.Alpha {
			selected = append(selected, col)
		}
	}
	return selected, nil
}

// ChiSquare 计算类别列与目标列的卡方统计量、自由度和p值
func ChiSquare(values, target []string) (stat float64, dof int, p float64, err error) {
	if len(values) != len(target) {
		return 0, 0, 0, fmt.Errorf("特征长度 %d 与目标长度 %d 不一致", len(values), len(target))
	}
	if len(values) == 0 {
		return 0, 0, 1, nil
	}

	// 列联表
	rowKeys := orderedKeys(values)
	colKeys := orderedKeys(target)
	rowIndex := indexOf(rowKeys)
	colIndex := indexOf(colKeys)

	observed := make([][]float64, len(rowKeys))
	for i := range observed {
		observed[i] = make([]float64, len(colKeys))
	}
	for i := range values {
		observed[rowIndex[values[i]]][colIndex[target[i]]]++
	}

	dof = (len(rowKeys) - 1) * (len(colKeys) - 1)
	if dof <= 0 {
		// 单一取值或单一类别，不存在关联可检验
		return 0, 0, 1, nil
	}

	total := float64(len(values))
	rowSums := make([]float64, len(rowKeys))
	colSums := make([]float64, len(colKeys))
	for i := range observed {
		for j := range observed[i] {
			rowSums[i] += observed[i][j]
			colSums[j] += observed[i][j]
		}
	}

	for i := range observed {
		for j := range observed[i] {
			expected := rowSums[i] * colSums[j] / total
			if expected == 0 {
				continue
			}
			d := observed[i][j] - expected
			stat += d * d / expected
		}
	}

	return stat, dof, chiSquarePValue(stat, dof), nil
}

// chiSquarePValue 卡方分布右尾概率 P(X >= stat)
func chiSquarePValue(stat float64, dof int) float64 {
	if stat <= 0 {
		return 1
	}
	return gammaQ(float64(dof)/2, stat/2)
}

// gammaQ 正则化上不完全伽马函数 Q(a, x)
// x < a+1 用级数展开求 P 再取补，否则用连分式直接求 Q
func gammaQ(a, x float64) float64 {
	if x < 0 || a <= 0 {
		return 1
	}
	if x == 0 {
		return 1
	}
	if x < a+1 {
		return 1 - gammaSeriesP(a, x)
	}
	return gammaContinuedQ(a, x)
}

func gammaSeriesP(a, x float64) float64 {
	const maxIterations = 200
	const epsilon = 3e-14

	lg, _ := math.Lgamma(a)
	ap := a
	sum := 1 / a
	del := sum
	for i := 0; i < maxIterations; i++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*epsilon {
			break
		}
	}
	return sum * math.Exp(-x+a*math.Log(x)-lg)
}

func gammaContinuedQ(a, x float64) float64 {
	const maxIterations = 200
	const epsilon = 3e-14
	const tiny = 1e-30

	lg, _ := math.Lgamma(a)
	b := x + 1 - a
	c := 1 / tiny
	d := 1 / b
	h := d
	for i := 1; i <= maxIterations; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = b + an/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < epsilon {
			break
		}
	}
	return math.Exp(-x+a*math.Log(x)-lg) * h
}

func orderedKeys(values []string) []string {
	seen := make(map[string]bool)
	keys := []string{}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			keys = append(keys, v)
		}
	}
	return keys
}

func indexOf(keys []string) map[string]int {
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}
	return index
}
