/*
 * @module service/dataset/csv
 * @description CSV读写，所有阶段共用同一方言；支持GBK/GB18030编码的原始输入转码为UTF-8
 * @architecture 数据访问层 - 文件读写
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 打开文件 -> 可选转码 -> 解析/写出 -> 关闭
 * @rules 逗号分隔，首行为表头；写出不附加额外索引列
 * @dependencies encoding/csv, golang.org/x/text
 * @refs service/dataset/table.go, service/pipeline/stages.go
 */

package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// ReadOptions CSV读取选项
type ReadOptions struct {
	// Encoding 输入编码，空值或 utf-8 表示不转码；支持 gbk、gb2312、gb18030
	Encoding string
	// IndexColumn 行标识列名，读取后设置到表上；为空表示不指定
	IndexColumn string
}

// ReadCSV 读取CSV文件为数据表
func ReadCSV(path string, opts ReadOptions) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开CSV文件失败: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	switch strings.ToLower(opts.Encoding) {
	case "", "utf-8", "utf8":
		// 不转码
	case "gbk", "gb2312":
		reader = transform.NewReader(file, simplifiedchinese.GBK.NewDecoder())
	case "gb18030":
		reader = transform.NewReader(file, simplifiedchinese.GB18030.NewDecoder())
	default:
		return nil, fmt.Errorf("不支持的输入编码: %s", opts.Encoding)
	}

	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析CSV失败: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV文件为空: %s", path)
	}

	table, err := NewTable(records[0], records[1:])
	if err != nil {
		return nil, fmt.Errorf("构建数据表失败: %w", err)
	}

	if opts.IndexColumn != "" {
		table, err = table.WithIndex(opts.IndexColumn)
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

// WriteCSV 将数据表写出为CSV文件
func WriteCSV(path string, table *Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建CSV文件失败: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	for _, row := range table.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("写入数据行失败: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("写出CSV失败: %w", err)
	}
	return nil
}
