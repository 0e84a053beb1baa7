/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新数据库表结构，并写入默认系统配置
 * @architecture 数据访问层 - 迁移管理
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 确保数据库结构与模型定义保持一致；默认配置只在缺失时写入，不覆盖已有值
 * @dependencies dataprep-service/service/models, gorm.io/gorm
 * @refs service/models/pipeline_run.go, service/config/config_service.go
 */

package database

import (
	"errors"
	"log"

	"dataprep-service/service/config"
	"dataprep-service/service/models"

	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 流水线运行相关表
	err := db.AutoMigrate(
		&models.PipelineRun{},
		&models.StageArtifact{},
	)
	if err != nil {
		return err
	}

	// 系统配置表
	err = db.AutoMigrate(
		&models.SystemConfig{},
	)
	if err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}

// InitializeData 初始化基础数据
// 为缺失的配置键写入默认值，已有配置保持不变
func InitializeData(db *gorm.DB) error {
	log.Println("开始初始化基础数据...")

	created := 0
	for _, item := range config.DefaultItems() {
		var existing models.SystemConfig
		err := db.Where("key = ? AND environment = ?", item.Key, item.Environment).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Create(&item).Error; err != nil {
			log.Printf("初始化配置 %s 失败: %v", item.Key, err)
			return err
		}
		created++
	}

	log.Printf("基础数据初始化完成，新增 %d 项默认配置", created)
	return nil
}
