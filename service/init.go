/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移、全局服务装配与后台调度启动
 * @architecture 分层架构 - 服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 应用启动时执行初始化流程
 * @rules 确保所有依赖服务正常启动后才提供API服务
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres, gorm.io/driver/sqlite
 * @refs service/pipeline/orchestrator.go, service/scheduler/scheduler_service.go
 */

package service

import (
	"fmt"
	"log"
	"os"
	"time"

	"dataprep-service/logger"
	"dataprep-service/service/cleanup"
	"dataprep-service/service/config"
	"dataprep-service/service/database"
	"dataprep-service/service/distributed_lock"
	"dataprep-service/service/models"
	"dataprep-service/service/notify"
	"dataprep-service/service/pipeline"
	"dataprep-service/service/scheduler"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// staleRunThreshold 活跃运行多久没有状态更新视为失联
const staleRunThreshold = time.Hour

var (
	DB                     *gorm.DB
	GlobalConfigService    *config.ConfigService
	GlobalPipelineService  *pipeline.PipelineService
	GlobalSchedulerService *scheduler.SchedulerService
	GlobalCleanupService   *cleanup.RunCleanupService
	GlobalLockExecutor     *distributed_lock.LockExecutor
	GlobalNotifier         pipeline.CompletionNotifier
)

func init() {
	logger.InitLogger()
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
// 默认使用本地sqlite，DB_DRIVER=postgres 时连接PostgreSQL
func initDatabase() {
	var err error

	switch getEnvWithDefault("DB_DRIVER", "sqlite") {
	case "postgres":
		var dsn string
		// 优先使用DATABASE_URL环境变量
		if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
			dsn = databaseURL
		} else {
			// 使用分离的环境变量构建连接字符串
			host := getEnvWithDefault("DB_HOST", "localhost")
			port := getEnvWithDefault("DB_PORT", "5432")
			user := getEnvWithDefault("DB_USER", "postgres")
			password := getEnvWithDefault("DB_PASSWORD", "things2024")
			dbname := getEnvWithDefault("DB_NAME", "postgres")
			sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
			schema := getEnvWithDefault("DB_SCHEMA", "public")

			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Asia/Shanghai",
				host, port, user, password, dbname, sslmode, schema)
		}
		DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		path := getEnvWithDefault("DB_NAME", "dataprep.db")
		DB, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	}

	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	log.Println("开始运行数据库迁移...")

	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	log.Println("数据库表结构迁移完成")

	if err := database.InitializeData(DB); err != nil {
		log.Fatalf("基础数据初始化失败: %v", err)
	}
	log.Println("基础数据初始化完成")

	log.Println("所有数据库迁移任务完成")
}

// initServices 初始化服务
func initServices() {
	GlobalConfigService = config.NewConfigService(DB)

	// 未配置Kafka时使用空通知器
	if notifier := notify.NewKafkaNotifierFromEnv(); notifier != nil {
		GlobalNotifier = notifier
	} else {
		GlobalNotifier = pipeline.NoopNotifier{}
	}

	GlobalPipelineService = pipeline.NewPipelineService(DB, GlobalConfigService, GlobalNotifier)

	// 多实例部署时通过Redis锁防止调度重复，未配置Redis则以单实例模式运行
	if os.Getenv("REDIS_HOST") != "" {
		lock, err := distributed_lock.NewRedisLock()
		if err != nil {
			log.Printf("Redis分布式锁初始化失败，降级为单实例调度: %v", err)
		} else {
			GlobalLockExecutor = distributed_lock.NewLockExecutor(lock)
		}
	}

	GlobalSchedulerService = scheduler.NewSchedulerService(DB, GlobalPipelineService, GlobalConfigService, GlobalLockExecutor)
	GlobalCleanupService = cleanup.NewRunCleanupService(DB, GlobalConfigService)

	recoverStaleRuns()

	// 启动调度器
	if err := GlobalSchedulerService.Start(); err != nil {
		log.Printf("启动调度器服务失败: %v", err)
	}
	if err := GlobalCleanupService.StartScheduledCleanup(); err != nil {
		log.Printf("启动清理调度器失败: %v", err)
	}
	log.Println("服务初始化完成")
}

// recoverStaleRuns 恢复失联的活跃运行
// 进程崩溃残留的 pending/running 记录会永久占用并发闸口，超过阈值未更新的直接标记为失败
func recoverStaleRuns() {
	cutoff := time.Now().Add(-staleRunThreshold)
	result := DB.Model(&models.PipelineRun{}).
		Where("status IN ? AND updated_at < ?",
			[]string{models.RunStatusPending, models.RunStatusRunning}, cutoff).
		Updates(map[string]interface{}{
			"status":        models.RunStatusFailed,
			"error_message": "进程重启，运行状态失联",
		})
	if result.Error != nil {
		log.Printf("恢复失联运行失败: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		log.Printf("已将 %d 个失联运行标记为失败", result.RowsAffected)
	}
}
