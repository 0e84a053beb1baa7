package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBScan(t *testing.T) {
	testCases := []struct {
		name  string
		input interface{}
		want  JSONB
	}{
		{
			name:  "字节切片",
			input: []byte(`{"value":"/tmp/a"}`),
			want:  JSONB{"value": "/tmp/a"},
		},
		{
			name:  "字符串",
			input: `{"value":["a","b"]}`,
			want:  JSONB{"value": []interface{}{"a", "b"}},
		},
		{
			name:  "空值",
			input: nil,
			want:  nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var j JSONB
			require.NoError(t, j.Scan(tc.input))
			assert.Equal(t, tc.want, j)
		})
	}
}

func TestJSONBScanInvalidType(t *testing.T) {
	var j JSONB
	err := j.Scan(123)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "类型断言失败")
}

func TestJSONBValue(t *testing.T) {
	j := JSONB{"value": "/tmp/a"}
	value, err := j.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"/tmp/a"}`, string(value.([]byte)))

	var empty JSONB
	value, err = empty.Value()
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestJSONBStringArrayRoundTrip(t *testing.T) {
	arr := JSONBStringArray{"train", "validation", "test"}
	value, err := arr.Value()
	require.NoError(t, err)

	var scanned JSONBStringArray
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, arr, scanned)

	var empty JSONBStringArray
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}
