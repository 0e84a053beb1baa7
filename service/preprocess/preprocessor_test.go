/*
 * @module service/preprocess/preprocessor_test
 * @description 组合预处理器单元测试，覆盖拟合、变换与落盘加载往返
 * @architecture 测试层 - 纯函数与文件读写测试
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 训练集拟合 -> 序列化落盘 -> 加载 -> 变换一致性断言
 * @rules 落盘后加载的变换结果必须与拟合后的内存对象完全一致
 * @dependencies testing, testify
 * @refs preprocessor.go
 */

package preprocess

import (
	"os"
	"path/filepath"
	"testing"

	"dataprep-service/service/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transformerTrainTable(t *testing.T) *dataset.Table {
	t.Helper()
	table, err := dataset.NewTable(
		[]string{"id", "city", "age", "score", "target"},
		[][]string{
			{"1", "北京", "20", "60", "yes"},
			{"2", "上海", "30", "80", "no"},
			{"3", "北京", "40", "100", "yes"},
		},
	)
	require.NoError(t, err)
	return table
}

func TestColumnTransformerFitStandardized(t *testing.T) {
	p := NewColumnTransformer([]string{"city"}, []string{"age", "score"}, true)

	columns, err := p.Fit(transformerTrainTable(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"city_北京", "city_上海", "age", "score"}, columns)
	assert.True(t, p.Fitted)
	assert.NotNil(t, p.Standard)
	assert.Nil(t, p.MinMax)

	out, err := p.Transform(transformerTrainTable(t))
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Len(t, out[0], 4)

	// 独热列在前
	assert.Equal(t, 1.0, out[0][0])
	assert.Equal(t, 0.0, out[0][1])
	assert.Equal(t, 0.0, out[1][0])
	assert.Equal(t, 1.0, out[1][1])

	// 标准化后的数值列均值为0
	for j := 2; j < 4; j++ {
		sum := 0.0
		for i := range out {
			sum += out[i][j]
		}
		assert.InDelta(t, 0.0, sum/3.0, 1e-9)
	}
}

func TestColumnTransformerFitMinMax(t *testing.T) {
	p := NewColumnTransformer([]string{"city"}, []string{"age"}, false)

	_, err := p.Fit(transformerTrainTable(t))
	require.NoError(t, err)
	assert.Nil(t, p.Standard)
	assert.NotNil(t, p.MinMax)

	out, err := p.Transform(transformerTrainTable(t))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out[0][2], 1e-9)
	assert.InDelta(t, 0.5, out[1][2], 1e-9)
	assert.InDelta(t, 1.0, out[2][2], 1e-9)
}

func TestColumnTransformerTransformBeforeFit(t *testing.T) {
	p := NewColumnTransformer([]string{"city"}, []string{"age"}, true)

	_, err := p.Transform(transformerTrainTable(t))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestColumnTransformerTransformMissingColumn(t *testing.T) {
	p := NewColumnTransformer([]string{"city"}, []string{"age"}, true)
	_, err := p.Fit(transformerTrainTable(t))
	require.NoError(t, err)

	bad, err := dataset.NewTable([]string{"city"}, [][]string{{"北京"}})
	require.NoError(t, err)

	_, err = p.Transform(bad)
	assert.Error(t, err)
}

func TestColumnTransformerSaveBeforeFit(t *testing.T) {
	p := NewColumnTransformer([]string{"city"}, []string{"age"}, true)
	err := p.Save(filepath.Join(t.TempDir(), "preprocessor.bin"))
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestColumnTransformerSaveLoadRoundTrip(t *testing.T) {
	train := transformerTrainTable(t)
	path := filepath.Join(t.TempDir(), "preprocessor.bin")

	p := NewColumnTransformer([]string{"city"}, []string{"age", "score"}, true)
	fitColumns, err := p.Fit(train)
	require.NoError(t, err)
	require.NoError(t, p.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Fitted)
	assert.Equal(t, fitColumns, loaded.OutputColumns())

	// 落盘加载后的变换结果与内存对象一致
	want, err := p.Transform(train)
	require.NoError(t, err)
	got, err := loaded.Transform(train)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("文件不存在", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.bin"))
		assert.ErrorIs(t, err, ErrSerialization)
	})

	t.Run("内容不是合法JSON", func(t *testing.T) {
		path := filepath.Join(dir, "broken.bin")
		require.NoError(t, os.WriteFile(path, []byte("not-json"), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrSerialization)
	})

	t.Run("未拟合的预处理器", func(t *testing.T) {
		path := filepath.Join(dir, "unfitted.bin")
		require.NoError(t, os.WriteFile(path, []byte(`{"fitted":false}`), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrSerialization)
	})
}
