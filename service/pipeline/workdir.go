/*
 * @module service/pipeline/workdir
 * @description 运行级临时工作目录管理，负责唯一命名目录的创建、递归删除和孤儿目录发现
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 运行开始 -> 创建 temp_时间戳 目录 -> 阶段读写中间文件 -> 运行结束递归删除
 * @rules 目录名含创建时间戳保证同一时刻唯一，同名目录已存在视为冲突直接失败
 * @dependencies 标准库 os/filepath
 * @refs service/pipeline/stages.go, service/cleanup/run_cleanup_service.go
 */

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WorkdirPrefix 工作目录名前缀，清理任务按此前缀识别孤儿目录
const WorkdirPrefix = "temp_"

// WorkdirManager 工作目录管理器
type WorkdirManager struct {
	root string
}

// NewWorkdirManager 创建工作目录管理器，root 为工作目录的父目录
func NewWorkdirManager(root string) *WorkdirManager {
	if root == "" {
		root = "."
	}
	return &WorkdirManager{root: root}
}

// Create 创建本次运行的工作目录并返回绝对路径
// 目录名为 temp_ 加秒级时间戳，已存在同名目录或创建失败返回 ErrDirectoryCreation
func (m *WorkdirManager) Create() (string, error) {
	name := WorkdirPrefix + time.Now().Format("20060102150405")
	path, err := filepath.Abs(filepath.Join(m.root, name))
	if err != nil {
		return "", fmt.Errorf("%w: 解析路径 %s: %v", ErrDirectoryCreation, name, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: 创建父目录: %v", ErrDirectoryCreation, err)
	}
	// os.Mkdir 对已存在目录返回 EEXIST，同一秒内的重复创建在此失败
	if err := os.Mkdir(path, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDirectoryCreation, err)
	}
	return path, nil
}

// Destroy 递归删除工作目录及其全部内容
// 目录不存在或删除失败返回 ErrCleanup
func (m *WorkdirManager) Destroy(path string) error {
	if path == "" {
		return fmt.Errorf("%w: 工作目录路径为空", ErrCleanup)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: 访问 %s: %v", ErrCleanup, path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: 删除 %s: %v", ErrCleanup, path, err)
	}
	return nil
}

// DestroyQuiet 删除工作目录，目录不存在视为已清理成功
func (m *WorkdirManager) DestroyQuiet(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("%w: 删除 %s: %v", ErrCleanup, path, err)
	}
	return nil
}

// ListOrphans 列出父目录下全部 temp_ 前缀的子目录绝对路径
// 清理任务据此回收进程崩溃遗留的工作目录
func (m *WorkdirManager) ListOrphans() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取目录 %s 失败: %w", m.root, err)
	}

	var orphans []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), WorkdirPrefix) {
			continue
		}
		path, err := filepath.Abs(filepath.Join(m.root, entry.Name()))
		if err != nil {
			continue
		}
		orphans = append(orphans, path)
	}
	return orphans, nil
}

// EnsureDir 幂等创建目录，目录已存在直接返回
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryCreation, err)
	}
	return nil
}
