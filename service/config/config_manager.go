/*
 * @module service/config/config_manager
 * @description 配置管理器，按 数据库 -> 环境变量 -> 默认值 的优先级读取配置，带TTL缓存
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 配置读取 -> 缓存命中/数据库查询/环境变量回退 -> 返回值
 * @rules 配置键统一使用点分小写命名，环境变量名为前缀加大写下划线形式
 * @dependencies gorm.io/gorm
 * @refs service/config/config_service.go
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"dataprep-service/service/models"

	"gorm.io/gorm"
)

// ErrConfigNotFound 配置在数据库和环境变量中都不存在
var ErrConfigNotFound = errors.New("配置不存在")

// ConfigManager 配置管理器
type ConfigManager struct {
	db         *gorm.DB
	cache      map[string]*cacheEntry
	cacheMutex sync.RWMutex
	cacheTTL   time.Duration
	envPrefix  string
}

// cacheEntry 缓存条目
type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewConfigManager 创建配置管理器实例
func NewConfigManager(db *gorm.DB) *ConfigManager {
	return &ConfigManager{
		db:        db,
		cache:     make(map[string]*cacheEntry),
		cacheTTL:  5 * time.Minute,
		envPrefix: "DATAPREP_",
	}
}

// GetConfig 读取配置值
// 优先级：缓存 -> 数据库 -> 环境变量；都不存在返回 ErrConfigNotFound
func (c *ConfigManager) GetConfig(key string) (string, error) {
	if value, ok := c.getFromCache(key); ok {
		return value, nil
	}

	var record models.SystemConfig
	err := c.db.Where("key = ? AND environment = ?", key, "default").First(&record).Error
	if err == nil {
		c.saveToCache(key, record.Value)
		return record.Value, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("查询配置失败: %w", err)
	}

	// 环境变量回退：pipeline.data_dir -> DATAPREP_PIPELINE_DATA_DIR
	envKey := c.envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if value := os.Getenv(envKey); value != "" {
		c.saveToCache(key, value)
		return value, nil
	}

	return "", fmt.Errorf("%w: %s", ErrConfigNotFound, key)
}

// SetConfig 写入配置值并使缓存失效
func (c *ConfigManager) SetConfig(key, value, description string) error {
	var record models.SystemConfig
	err := c.db.Where("key = ? AND environment = ?", key, "default").First(&record).Error
	switch {
	case err == nil:
		record.Value = value
		if description != "" {
			record.Description = description
		}
		if err := c.db.Save(&record).Error; err != nil {
			return fmt.Errorf("更新配置失败: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		record = models.SystemConfig{
			Key:         key,
			Value:       value,
			Environment: "default",
			Description: description,
		}
		if err := c.db.Create(&record).Error; err != nil {
			return fmt.Errorf("创建配置失败: %w", err)
		}
	default:
		return fmt.Errorf("查询配置失败: %w", err)
	}

	c.invalidate(key)
	return nil
}

// ClearCache 清空配置缓存
func (c *ConfigManager) ClearCache() {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	c.cache = make(map[string]*cacheEntry)
}

func (c *ConfigManager) getFromCache(key string) (string, bool) {
	c.cacheMutex.RLock()
	defer c.cacheMutex.RUnlock()

	entry, exists := c.cache[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (c *ConfigManager) saveToCache(key, value string) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	c.cache[key] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.cacheTTL),
	}
}

func (c *ConfigManager) invalidate(key string) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	delete(c.cache, key)
}
