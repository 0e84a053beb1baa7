/*
 * @module service/preprocess/preprocessor
 * @description 组合预处理器，将类别独热编码与数值缩放组合为一个可落盘复用的变换器
 * @architecture 业务服务层 - 特征变换
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 在训练集上拟合 -> 序列化落盘 -> 变换阶段从磁盘加载 -> 对各分片做变换
 * @rules 预处理器只在训练集上拟合一次，对全部分片原样应用；落盘后加载的变换结果与拟合后直接变换一致
 * @dependencies encoding/json, os
 * @refs service/pipeline/stages.go
 */

package preprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"dataprep-service/service/dataset"
)

// ErrSerialization 预处理器落盘或加载失败
var ErrSerialization = errors.New("预处理器序列化失败")

// ErrNotFitted 预处理器尚未拟合
var ErrNotFitted = errors.New("预处理器尚未拟合")

// ColumnTransformer 组合预处理器
// 输出列顺序固定为：展开后的类别列在前，数值列在后
type ColumnTransformer struct {
	Standardize        bool            `json:"standardize"`
	CategoricalColumns []string        `json:"categorical_columns"`
	NumericColumns     []string        `json:"numeric_columns"`
	Encoder            *OneHotEncoder  `json:"encoder"`
	Standard           *StandardScaler `json:"standard_scaler,omitempty"`
	MinMax             *MinMaxScaler   `json:"minmax_scaler,omitempty"`
	Fitted             bool            `json:"fitted"`
}

// NewColumnTransformer 创建组合预处理器
// standardize 为 true 时数值列做标准化，否则做最小最大缩放
func NewColumnTransformer(categoricalColumns, numericColumns []string, standardize bool) *ColumnTransformer {
	p := &ColumnTransformer{
		Standardize:        standardize,
		CategoricalColumns: append([]string{}, categoricalColumns...),
		NumericColumns:     append([]string{}, numericColumns...),
		Encoder:            NewOneHotEncoder(categoricalColumns),
	}
	if standardize {
		p.Standard = NewStandardScaler()
	} else {
		p.MinMax = NewMinMaxScaler()
	}
	return p
}

// Fit 在训练集上拟合，返回变换输出的有序列名
func (p *ColumnTransformer) Fit(train *dataset.Table) ([]string, error) {
	if err := p.Encoder.Fit(train); err != nil {
		return nil, fmt.Errorf("拟合独热编码器失败: %w", err)
	}

	numeric, err := p.numericMatrix(train)
	if err != nil {
		return nil, fmt.Errorf("读取数值特征失败: %w", err)
	}
	if p.Standardize {
		p.Standard.Fit(numeric)
	} else {
		p.MinMax.Fit(numeric)
	}

	p.Fitted = true
	return p.OutputColumns(), nil
}

// OutputColumns 变换输出的有序列名：展开的类别列 + 数值列
func (p *ColumnTransformer) OutputColumns() []string {
	names := p.Encoder.FeatureNames()
	return append(names, p.NumericColumns...)
}

// Transform 变换一个分片，输出矩阵的列与 OutputColumns 对应
func (p *ColumnTransformer) Transform(t *dataset.Table) ([][]float64, error) {
	if !p.Fitted {
		return nil, ErrNotFitted
	}

	encoded, err := p.Encoder.Transform(t)
	if err != nil {
		return nil, fmt.Errorf("独热编码失败: %w", err)
	}

	numeric, err := p.numericMatrix(t)
	if err != nil {
		return nil, fmt.Errorf("读取数值特征失败: %w", err)
	}
	var scaled [][]float64
	if p.Standardize {
		scaled, err = p.Standard.Transform(numeric)
	} else {
		scaled, err = p.MinMax.Transform(numeric)
	}
	if err != nil {
		return nil, fmt.Errorf("数值缩放失败: %w", err)
	}

	out := make([][]float64, t.NumRows())
	for i := range out {
		row := make([]float64, 0, len(encoded[i])+len(scaled[i]))
		row = append(row, encoded[i]...)
		row = append(row, scaled[i]...)
		out[i] = row
	}
	return out, nil
}

// numericMatrix 按数值列顺序抽取矩阵
func (p *ColumnTransformer) numericMatrix(t *dataset.Table) ([][]float64, error) {
	columns := make([][]float64, len(p.NumericColumns))
	for j, col := range p.NumericColumns {
		values, err := t.FloatColumn(col)
		if err != nil {
			return nil, err
		}
		columns[j] = values
	}

	out := make([][]float64, t.NumRows())
	for i := range out {
		row := make([]float64, len(columns))
		for j := range columns {
			row[j] = columns[j][i]
		}
		out[i] = row
	}
	return out, nil
}

// Save 将拟合好的预处理器序列化到文件
func (p *ColumnTransformer) Save(path string) error {
	if !p.Fitted {
		return ErrNotFitted
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: 写入 %s: %v", ErrSerialization, path, err)
	}
	return nil
}

// Load 从文件加载预处理器
func Load(path string) (*ColumnTransformer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取 %s: %v", ErrSerialization, path, err)
	}
	p := &ColumnTransformer{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: 解析 %s: %v", ErrSerialization, path, err)
	}
	if !p.Fitted {
		return nil, fmt.Errorf("%w: %s 中的预处理器未拟合", ErrSerialization, path)
	}
	return p, nil
}
