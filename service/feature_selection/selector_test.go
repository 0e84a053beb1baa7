/*
 * @module service/feature_selection/selector_test
 * @description 卡方特征选择单元测试
 * @architecture 测试层 - 纯函数测试，无外部依赖
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 构造列联数据 -> 卡方检验 -> p值与筛选结果断言
 * @rules 用已知分布值校验p值计算，确保筛选顺序与显著性判断正确
 * @dependencies testing, testify
 * @refs selector.go
 */

package feature_selection

import (
	"math"
	"testing"

	"dataprep-service/service/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChiSquarePerfectAssociation(t *testing.T) {
	values := []string{"a", "a", "b", "b"}
	target := []string{"x", "x", "y", "y"}

	stat, dof, p, err := ChiSquare(values, target)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, stat, 1e-9)
	assert.Equal(t, 1, dof)
	// 自由度1、统计量4的右尾概率约0.0455
	assert.InDelta(t, 0.0455, p, 1e-3)
}

func TestChiSquareIndependence(t *testing.T) {
	values := []string{"a", "a", "b", "b"}
	target := []string{"x", "y", "x", "y"}

	stat, dof, p, err := ChiSquare(values, target)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stat)
	assert.Equal(t, 1, dof)
	assert.Equal(t, 1.0, p)
}

func TestChiSquareDegenerateCases(t *testing.T) {
	testCases := []struct {
		name   string
		values []string
		target []string
	}{
		{
			name:   "特征只有单一取值",
			values: []string{"a", "a", "a"},
			target: []string{"x", "y", "x"},
		},
		{
			name:   "目标只有单一类别",
			values: []string{"a", "b", "a"},
			target: []string{"x", "x", "x"},
		},
		{
			name:   "空输入",
			values: nil,
			target: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stat, dof, p, err := ChiSquare(tc.values, tc.target)
			require.NoError(t, err)
			// 不存在可检验的关联，p值取1
			assert.Equal(t, 0.0, stat)
			assert.Equal(t, 0, dof)
			assert.Equal(t, 1.0, p)
		})
	}
}

func TestChiSquareLengthMismatch(t *testing.T) {
	_, _, _, err := ChiSquare([]string{"a"}, []string{"x", "y"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "不一致")
}

func TestChiSquarePValueKnownQuantiles(t *testing.T) {
	testCases := []struct {
		name string
		stat float64
		dof  int
		want float64
	}{
		// 自由度1在0.05分位点的临界值为3.841
		{"自由度1临界值", 3.841, 1, 0.05},
		// 自由度2的右尾概率是 exp(-x/2)
		{"自由度2解析值", 2.0, 2, math.Exp(-1)},
		{"自由度5较大统计量", 15.086, 5, 0.01},
		{"统计量为零", 0, 3, 1.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, chiSquarePValue(tc.stat, tc.dof), 1e-3)
		})
	}
}

func selectorTable(t *testing.T) (*dataset.Table, []string) {
	t.Helper()
	// signal 与目标完全对应，noise 与目标独立
	table, err := dataset.NewTable(
		[]string{"signal", "noise"},
		[][]string{
			{"a", "a"}, {"a", "b"}, {"a", "a"}, {"a", "b"},
			{"b", "a"}, {"b", "b"}, {"b", "a"}, {"b", "b"},
		},
	)
	require.NoError(t, err)
	target := []string{"x", "x", "x", "x", "y", "y", "y", "y"}
	return table, target
}

func TestSelectCategorical(t *testing.T) {
	table, target := selectorTable(t)
	selector := NewSelector(0.05)

	selected, err := selector.SelectCategorical(table, target, []string{"noise", "signal"})
	require.NoError(t, err)
	// 只保留显著相关的列，顺序跟随候选列
	assert.Equal(t, []string{"signal"}, selected)

	selected, err = selector.SelectCategorical(table, target, []string{"signal", "noise"})
	require.NoError(t, err)
	assert.Equal(t, []string{"signal"}, selected)
}

func TestSelectCategoricalNoCandidates(t *testing.T) {
	table, target := selectorTable(t)
	selector := NewSelector(0.05)

	selected, err := selector.SelectCategorical(table, target, nil)
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestSelectCategoricalMissingColumn(t *testing.T) {
	table, target := selectorTable(t)
	selector := NewSelector(0.05)

	_, err := selector.SelectCategorical(table, target, []string{"missing"})
	assert.ErrorIs(t, err, dataset.ErrSchemaMismatch)
}

func TestNewSelectorAlphaFallback(t *testing.T) {
	assert.Equal(t, DefaultAlpha, NewSelector(0).Alpha)
	assert.Equal(t, DefaultAlpha, NewSelector(-0.1).Alpha)
	assert.Equal(t, DefaultAlpha, NewSelector(1).Alpha)
	assert.Equal(t, 0.01, NewSelector(0.01).Alpha)
}
