/*
 * @module service/models/system_config
 * @description 系统配置模型，用于存储应用程序配置信息
 * @architecture 数据模型层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 配置存储 -> 配置读取 -> 配置更新
 * @rules 配置按 key + environment 唯一，读取时数据库优先于环境变量和默认值
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/config
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemConfig 系统配置模型
type SystemConfig struct {
	ID          string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	Key         string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_config_key_env" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Environment string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_config_key_env" json:"environment"`
	Version     string    `gorm:"type:varchar(20)" json:"version"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (SystemConfig) TableName() string {
	return "system_configs"
}

// BeforeCreate GORM钩子，创建前生成UUID
func (sc *SystemConfig) BeforeCreate(tx *gorm.DB) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.Environment == "" {
		sc.Environment = "default"
	}
	return nil
}

// SystemConfigItem 配置项视图，带值类型提示
type SystemConfigItem struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	ValueType   string `json:"value_type"` // string, int, float, bool, json
}
