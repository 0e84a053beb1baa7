/*
 * @module service/preprocess/encoder
 * @description 类别特征独热编码与目标列标签编码
 * @architecture 业务服务层 - 特征变换
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 在训练集上学习类别表 -> 对任意分片做编码
 * @rules 目标类别表来自训练集且全局唯一；验证/测试集出现表外目标标签即报错，不写哨兵值
 * @dependencies sort
 * @refs service/preprocess/preprocessor.go
 */

package preprocess

import (
	"errors"
	"fmt"
	"sort"

	"dataprep-service/service/dataset"
)

// ErrUnknownLabel 目标标签不在训练集类别表中
var ErrUnknownLabel = errors.New("未知的目标标签")

// OneHotEncoder 独热编码器
// 每个类别列展开为 列名_类别值 的0/1列，类别顺序取训练集中的首次出现顺序
type OneHotEncoder struct {
	Columns    []string            `json:"columns"`
	Categories map[string][]string `json:"categories"`
}

// NewOneHotEncoder 创建独热编码器
func NewOneHotEncoder(columns []string) *OneHotEncoder {
	return &OneHotEncoder{
		Columns:    append([]string{}, columns...),
		Categories: make(map[string][]string),
	}
}

// Fit 在训练集上学习每个类别列的取值表
func (e *OneHotEncoder) Fit(train *dataset.Table) error {
	for _, col := range e.Columns {
		values, err := train.Column(col)
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		categories := []string{}
		for _, v := range values {
			if !seen[v] {
				seen[v] = true
				categories = append(categories, v)
			}
		}
		e.Categories[col] = categories
	}
	return nil
}

// FeatureNames 展开后的输出列名，按列序和类别序排列
func (e *OneHotEncoder) FeatureNames() []string {
	names := []string{}
	for _, col := range e.Columns {
		for _, category := range e.Categories[col] {
			names = append(names, fmt.Sprintf("%s_%s", col, category))
		}
	}
	return names
}

// Transform 编码一个分片，训练集未见过的类别编码为全零
func (e *OneHotEncoder) Transform(t *dataset.Table) ([][]float64, error) {
	columnValues := make(map[string][]string, len(e.Columns))
	for _, col := range e.Columns {
		values, err := t.Column(col)
		if err != nil {
			return nil, err
		}
		columnValues[col] = values
	}

	width := 0
	for _, col := range e.Columns {
		width += len(e.Categories[col])
	}

	out := make([][]float64, t.NumRows())
	for i := range out {
		row := make([]float64, 0, width)
		for _, col := range e.Columns {
			vec := make([]float64, len(e.Categories[col]))
			for k, category := range e.Categories[col] {
				if columnValues[col][i] == category {
					vec[k] = 1
					break
				}
			}
			row = append(row, vec...)
		}
		out[i] = row
	}
	return out, nil
}

// Classes 从训练集目标列导出有序去重的类别表（按字典序）
// 该类别表在三个分片和两个变体之间共享
func Classes(trainTarget []string) []string {
	seen := make(map[string]bool)
	classes := []string{}
	for _, v := range trainTarget {
		if !seen[v] {
			seen[v] = true
			classes = append(classes, v)
		}
	}
	sort.Strings(classes)
	return classes
}

// LabelEncode 将目标标签映射为其在类别表中的下标
// split 仅用于错误信息，指明出问题的分片
func LabelEncode(values []string, classes []string, split string) ([]int, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	out := make([]int, len(values))
	for i, v := range values {
		idx, ok := index[v]
		if !ok {
			return nil, fmt.Errorf("%w: 分片 %s 第 %d 行的标签 %q 不在训练集类别表中", ErrUnknownLabel, split, i+1, v)
		}
		out[i] = idx
	}
	return out, nil
}
