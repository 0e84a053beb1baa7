/*
 * @module service/dataset/table
 * @description 内存数据表模型，提供列访问、列类型推断、列删除与选择等分片数据操作
 * @architecture 数据访问层 - 表模型
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow CSV读取 -> 表操作（删列/选列/类型推断） -> CSV写出
 * @rules 表操作不做原地修改，每次返回新表；索引列只作行标识，不参与特征计算
 * @dependencies strconv
 * @refs service/dataset/csv.go, service/preprocess
 */

package dataset

import (
	"errors"
	"fmt"
	"strconv"
)

// 列类型
const (
	ColumnKindNumeric = "numeric"
	ColumnKindTextual = "textual"
)

// ErrSchemaMismatch 期望的列在表中不存在
var ErrSchemaMismatch = errors.New("列不存在")

// Table 内存中的分片数据表
// Index 为行标识列名，为空表示该表没有指定索引列
type Table struct {
	Columns []string
	Rows    [][]string
	Index   string
}

// NewTable 创建数据表，校验行宽与列数一致
func NewTable(columns []string, rows [][]string) (*Table, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("第 %d 行字段数 %d 与列数 %d 不一致", i+1, len(row), len(columns))
		}
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

// WithIndex 指定索引列，返回新表；索引列必须存在
func (t *Table) WithIndex(name string) (*Table, error) {
	if _, ok := t.ColumnIndex(name); !ok {
		return nil, fmt.Errorf("%w: 索引列 %s", ErrSchemaMismatch, name)
	}
	clone := *t
	clone.Index = name
	return &clone, nil
}

// ColumnIndex 查找列位置
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, col := range t.Columns {
		if col == name {
			return i, true
		}
	}
	return 0, false
}

// Column 读取一列的全部值
func (t *Table) Column(name string) ([]string, error) {
	idx, ok := t.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, name)
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// NumRows 行数
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// DropColumns 删除指定列，返回新表
// allowMissing 为 false 时，任一列不存在即报错，与删除不存在列视为错误的约定一致
func (t *Table) DropColumns(names []string, allowMissing bool) (*Table, error) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := t.ColumnIndex(name); !ok {
			if !allowMissing {
				return nil, fmt.Errorf("%w: 待删除列 %s", ErrSchemaMismatch, name)
			}
			continue
		}
		drop[name] = true
	}

	keep := make([]int, 0, len(t.Columns))
	columns := make([]string, 0, len(t.Columns))
	for i, col := range t.Columns {
		if !drop[col] {
			keep = append(keep, i)
			columns = append(columns, col)
		}
	}

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		newRow := make([]string, len(keep))
		for j, idx := range keep {
			newRow[j] = row[idx]
		}
		rows[i] = newRow
	}

	result := &Table{Columns: columns, Rows: rows, Index: t.Index}
	if drop[t.Index] {
		result.Index = ""
	}
	return result, nil
}

// Select 按给定顺序选取列，返回新表
func (t *Table) Select(names []string) (*Table, error) {
	indices := make([]int, len(names))
	for i, name := range names {
		idx, ok := t.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, name)
		}
		indices[i] = idx
	}

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		newRow := make([]string, len(indices))
		for j, idx := range indices {
			newRow[j] = row[idx]
		}
		rows[i] = newRow
	}

	return &Table{Columns: append([]string{}, names...), Rows: rows}, nil
}

// ColumnKind 推断列类型：所有非空值都能解析为浮点数的列为数值列，否则为文本列
func (t *Table) ColumnKind(name string) (string, error) {
	idx, ok := t.ColumnIndex(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSchemaMismatch, name)
	}
	for _, row := range t.Rows {
		cell := row[idx]
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return ColumnKindTextual, nil
		}
	}
	return ColumnKindNumeric, nil
}

// FeatureColumns 特征列：除索引列和目标列之外的全部列，保持原列序
func (t *Table) FeatureColumns(target string) []string {
	features := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		if col == t.Index || col == target {
			continue
		}
		features = append(features, col)
	}
	return features
}

// TextualFeatureColumns 文本类型的特征列，是类别特征的候选集
func (t *Table) TextualFeatureColumns(target string) ([]string, error) {
	return t.featureColumnsOfKind(target, ColumnKindTextual)
}

// NumericFeatureColumns 数值类型的特征列
// 数值列不经过显著性筛选，全部保留
func (t *Table) NumericFeatureColumns(target string) ([]string, error) {
	return t.featureColumnsOfKind(target, ColumnKindNumeric)
}

func (t *Table) featureColumnsOfKind(target, kind string) ([]string, error) {
	result := []string{}
	for _, col := range t.FeatureColumns(target) {
		k, err := t.ColumnKind(col)
		if err != nil {
			return nil, err
		}
		if k == kind {
			result = append(result, col)
		}
	}
	return result, nil
}

// FloatColumn 读取一列并解析为浮点数
func (t *Table) FloatColumn(name string) ([]float64, error) {
	values, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	result := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("列 %s 第 %d 行的值 %q 不是数值: %w", name, i+1, v, err)
		}
		result[i] = f
	}
	return result, nil
}

// IndexValues 索引列的全部值；未指定索引列时返回从 0 开始的行号
func (t *Table) IndexValues() []string {
	if t.Index != "" {
		if values, err := t.Column(t.Index); err == nil {
			return values
		}
	}
	values := make([]string, len(t.Rows))
	for i := range t.Rows {
		values[i] = strconv.Itoa(i)
	}
	return values
}
