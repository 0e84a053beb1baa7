/*
 * @module service/preprocess/scaler
 * @description 数值特征缩放器，提供标准化（零均值单位方差）和最小最大缩放两种策略
 * @architecture 业务服务层 - 特征变换
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 在训练集上拟合统计量 -> 对任意分片做变换
 * @rules 统计量只在训练集上拟合一次；标准差为零的列除数取1，取值范围退化的列输出0
 * @dependencies math
 * @refs service/preprocess/preprocessor.go
 */

package preprocess

import (
	"fmt"
	"math"
)

// StandardScaler 标准化缩放器，逐列减均值除标准差
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// NewStandardScaler 创建标准化缩放器
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit 在训练矩阵上拟合每列的均值和标准差
func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		return
	}
	rows, cols := len(X), len(X[0])
	s.Mean = make([]float64, cols)
	s.Std = make([]float64, cols)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			s.Mean[j] += X[i][j]
		}
		s.Mean[j] /= float64(rows)

		variance := 0.0
		for i := 0; i < rows; i++ {
			d := X[i][j] - s.Mean[j]
			variance += d * d
		}
		variance /= float64(rows)
		s.Std[j] = math.Sqrt(variance)
		// 常数列不缩放，避免除零
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
}

// Transform 按训练统计量变换矩阵
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("第 %d 行特征数 %d 与拟合时的 %d 不一致", i+1, len(row), len(s.Mean))
		}
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = (v - s.Mean[j]) / s.Std[j]
		}
	}
	return out, nil
}

// MinMaxScaler 最小最大缩放器，逐列缩放到[0,1]
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// NewMinMaxScaler 创建最小最大缩放器
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{}
}

// Fit 在训练矩阵上拟合每列的最小值和最大值
func (s *MinMaxScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		return
	}
	rows, cols := len(X), len(X[0])
	s.Min = make([]float64, cols)
	s.Max = make([]float64, cols)
	for j := 0; j < cols; j++ {
		s.Min[j] = X[0][j]
		s.Max[j] = X[0][j]
		for i := 1; i < rows; i++ {
			if X[i][j] < s.Min[j] {
				s.Min[j] = X[i][j]
			}
			if X[i][j] > s.Max[j] {
				s.Max[j] = X[i][j]
			}
		}
	}
}

// Transform 按训练统计量变换矩阵
func (s *MinMaxScaler) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Min) {
			return nil, fmt.Errorf("第 %d 行特征数 %d 与拟合时的 %d 不一致", i+1, len(row), len(s.Min))
		}
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if s.Max[j] == s.Min[j] {
				// 取值范围退化的列输出0
				out[i][j] = 0
				continue
			}
			out[i][j] = (v - s.Min[j]) / (s.Max[j] - s.Min[j])
		}
	}
	return out, nil
}
