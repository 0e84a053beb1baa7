/*
 * @module service/config/config_service
 * @description 系统配置服务，定义流水线与清理任务的配置键和默认值，提供类型化读取接口
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 类型化读取 -> 配置管理器查询 -> 解析失败或缺失时回退默认值
 * @rules 所有读取接口保证返回可用值，配置缺失或格式非法时回退默认值并记录告警日志
 * @dependencies gorm.io/gorm, github.com/spf13/cast
 * @refs service/config/config_manager.go
 */

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"dataprep-service/service/models"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// 配置键定义
const (
	ConfigKeyDataDir               = "pipeline.data_dir"
	ConfigKeyOutputDir             = "pipeline.output_dir"
	ConfigKeyWorkdirRoot           = "pipeline.workdir_root"
	ConfigKeyIndexColumn           = "pipeline.index_column"
	ConfigKeyTargetColumn          = "pipeline.target_column"
	ConfigKeyCollinearColumns      = "pipeline.collinear_columns"
	ConfigKeyAllowMissingCollinear = "pipeline.allow_missing_collinear"
	ConfigKeySelectionAlpha        = "pipeline.selection_alpha"
	ConfigKeySchedule              = "pipeline.schedule"
	ConfigKeyMaxParallelStages     = "pipeline.max_parallel_stages"
	ConfigKeyInputEncoding         = "pipeline.input_encoding"
	ConfigKeyKeepWorkdirOnFailure  = "cleanup.keep_workdir_on_failure"
	ConfigKeyRetentionDays         = "cleanup.retention_days"
	ConfigKeyCleanupSchedule       = "cleanup.schedule"
)

// 配置默认值定义
const (
	DefaultDataDir               = "./data"
	DefaultOutputDir             = "./output"
	DefaultWorkdirRoot           = "."
	DefaultIndexColumn           = "id"
	DefaultTargetColumn          = "target"
	DefaultCollinearColumns      = "[]"
	DefaultAllowMissingCollinear = false
	DefaultSelectionAlpha        = 0.05
	DefaultSchedule              = "0 0 2 * * *"
	DefaultMaxParallelStages     = 4
	DefaultInputEncoding         = "utf-8"
	DefaultKeepWorkdirOnFailure  = false
	DefaultRetentionDays         = 30
	DefaultCleanupSchedule       = "0 30 3 * * *"
)

// ConfigService 系统配置服务
type ConfigService struct {
	db      *gorm.DB
	manager *ConfigManager
}

// NewConfigService 创建系统配置服务实例
func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{
		db:      db,
		manager: NewConfigManager(db),
	}
}

// Manager 返回底层配置管理器
func (s *ConfigService) Manager() *ConfigManager {
	return s.manager
}

// GetDataDir 原始数据目录
func (s *ConfigService) GetDataDir() string {
	return s.getString(ConfigKeyDataDir, DefaultDataDir)
}

// GetOutputDir 预处理结果输出目录
func (s *ConfigService) GetOutputDir() string {
	return s.getString(ConfigKeyOutputDir, DefaultOutputDir)
}

// GetWorkdirRoot 临时工作目录的父目录
func (s *ConfigService) GetWorkdirRoot() string {
	return s.getString(ConfigKeyWorkdirRoot, DefaultWorkdirRoot)
}

// GetIndexColumn 样本标识列名
func (s *ConfigService) GetIndexColumn() string {
	return s.getString(ConfigKeyIndexColumn, DefaultIndexColumn)
}

// GetTargetColumn 目标列名
func (s *ConfigService) GetTargetColumn() string {
	return s.getString(ConfigKeyTargetColumn, DefaultTargetColumn)
}

// GetCollinearColumns 清洗阶段要剔除的共线列，JSON 数组格式存储
func (s *ConfigService) GetCollinearColumns() []string {
	raw, err := s.manager.GetConfig(ConfigKeyCollinearColumns)
	if err != nil {
		raw = DefaultCollinearColumns
	}

	var columns []string
	if err := json.Unmarshal([]byte(raw), &columns); err != nil {
		slog.Warn("共线列配置格式非法，回退为空列表", "key", ConfigKeyCollinearColumns, "value", raw, "error", err)
		return []string{}
	}
	return columns
}

// GetAllowMissingCollinear 共线列缺失时是否容忍（默认严格失败）
func (s *ConfigService) GetAllowMissingCollinear() bool {
	return s.getBool(ConfigKeyAllowMissingCollinear, DefaultAllowMissingCollinear)
}

// GetSelectionAlpha 卡方特征选择的显著性水平
func (s *ConfigService) GetSelectionAlpha() float64 {
	raw, err := s.manager.GetConfig(ConfigKeySelectionAlpha)
	if err != nil {
		return DefaultSelectionAlpha
	}
	alpha, err := cast.ToFloat64E(raw)
	if err != nil || alpha <= 0 || alpha >= 1 {
		slog.Warn("显著性水平配置非法，使用默认值", "key", ConfigKeySelectionAlpha, "value", raw)
		return DefaultSelectionAlpha
	}
	return alpha
}

// GetScheduleSpec 流水线调度表达式（秒级 cron）
func (s *ConfigService) GetScheduleSpec() string {
	return s.getString(ConfigKeySchedule, DefaultSchedule)
}

// GetMaxParallelStages 阶段执行的最大并行度
func (s *ConfigService) GetMaxParallelStages() int {
	value := s.getInt(ConfigKeyMaxParallelStages, DefaultMaxParallelStages)
	if value < 1 {
		return DefaultMaxParallelStages
	}
	return value
}

// GetInputEncoding 原始 CSV 文件编码
func (s *ConfigService) GetInputEncoding() string {
	return s.getString(ConfigKeyInputEncoding, DefaultInputEncoding)
}

// GetKeepWorkdirOnFailure 运行失败时是否保留工作目录用于排查
func (s *ConfigService) GetKeepWorkdirOnFailure() bool {
	return s.getBool(ConfigKeyKeepWorkdirOnFailure, DefaultKeepWorkdirOnFailure)
}

// GetRetentionDays 运行记录保留天数
func (s *ConfigService) GetRetentionDays() int {
	value := s.getInt(ConfigKeyRetentionDays, DefaultRetentionDays)
	if value < 1 {
		return DefaultRetentionDays
	}
	return value
}

// GetCleanupScheduleSpec 清理任务调度表达式（秒级 cron）
func (s *ConfigService) GetCleanupScheduleSpec() string {
	return s.getString(ConfigKeyCleanupSchedule, DefaultCleanupSchedule)
}

// GetSystemConfig 按键读取配置原始值
func (s *ConfigService) GetSystemConfig(key string) (string, error) {
	return s.manager.GetConfig(key)
}

// SetSystemConfig 更新系统配置
func (s *ConfigService) SetSystemConfig(key, value, description string) error {
	if _, ok := defaultValues()[key]; !ok {
		return fmt.Errorf("不支持的配置键: %s", key)
	}
	return s.manager.SetConfig(key, value, description)
}

// GetAllSystemConfigs 获取全部系统配置，数据库中没有的键返回默认值
func (s *ConfigService) GetAllSystemConfigs() ([]models.SystemConfigItem, error) {
	var records []models.SystemConfig
	if err := s.db.Where("environment = ?", "default").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询系统配置失败: %w", err)
	}

	stored := make(map[string]models.SystemConfig)
	for _, record := range records {
		stored[record.Key] = record
	}

	items := make([]models.SystemConfigItem, 0, len(configKeys))
	for _, key := range configKeys {
		item := models.SystemConfigItem{
			Key:       key,
			Value:     defaultValues()[key],
			ValueType: valueTypes[key],
		}
		if record, ok := stored[key]; ok {
			item.Value = record.Value
			item.Description = record.Description
		} else {
			item.Description = defaultDescriptions[key]
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *ConfigService) getString(key, defaultValue string) string {
	value, err := s.manager.GetConfig(key)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s *ConfigService) getInt(key string, defaultValue int) int {
	raw, err := s.manager.GetConfig(key)
	if err != nil {
		return defaultValue
	}
	value, err := cast.ToIntE(raw)
	if err != nil {
		slog.Warn("整数配置格式非法，使用默认值", "key", key, "value", raw)
		return defaultValue
	}
	return value
}

func (s *ConfigService) getBool(key string, defaultValue bool) bool {
	raw, err := s.manager.GetConfig(key)
	if err != nil {
		return defaultValue
	}
	value, err := cast.ToBoolE(raw)
	if err != nil {
		slog.Warn("布尔配置格式非法，使用默认值", "key", key, "value", raw)
		return defaultValue
	}
	return value
}

// configKeys 全部配置键，GetAllSystemConfigs 按此顺序返回
var configKeys = []string{
	ConfigKeyDataDir,
	ConfigKeyOutputDir,
	ConfigKeyWorkdirRoot,
	ConfigKeyIndexColumn,
	ConfigKeyTargetColumn,
	ConfigKeyCollinearColumns,
	ConfigKeyAllowMissingCollinear,
	ConfigKeySelectionAlpha,
	ConfigKeySchedule,
	ConfigKeyMaxParallelStages,
	ConfigKeyInputEncoding,
	ConfigKeyKeepWorkdirOnFailure,
	ConfigKeyRetentionDays,
	ConfigKeyCleanupSchedule,
}

var valueTypes = map[string]string{
	ConfigKeyDataDir:               "string",
	ConfigKeyOutputDir:             "string",
	ConfigKeyWorkdirRoot:           "string",
	ConfigKeyIndexColumn:           "string",
	ConfigKeyTargetColumn:          "string",
	ConfigKeyCollinearColumns:      "json",
	ConfigKeyAllowMissingCollinear: "bool",
	ConfigKeySelectionAlpha:        "float",
	ConfigKeySchedule:              "string",
	ConfigKeyMaxParallelStages:     "int",
	ConfigKeyInputEncoding:         "string",
	ConfigKeyKeepWorkdirOnFailure:  "bool",
	ConfigKeyRetentionDays:         "int",
	ConfigKeyCleanupSchedule:       "string",
}

var defaultDescriptions = map[string]string{
	ConfigKeyDataDir:               "原始数据集所在目录",
	ConfigKeyOutputDir:             "预处理结果输出目录",
	ConfigKeyWorkdirRoot:           "临时工作目录的父目录",
	ConfigKeyIndexColumn:           "样本标识列名",
	ConfigKeyTargetColumn:          "目标列名",
	ConfigKeyCollinearColumns:      "清洗阶段剔除的共线列，JSON 数组",
	ConfigKeyAllowMissingCollinear: "共线列缺失时是否容忍",
	ConfigKeySelectionAlpha:        "卡方特征选择显著性水平",
	ConfigKeySchedule:              "流水线调度表达式",
	ConfigKeyMaxParallelStages:     "阶段执行最大并行度",
	ConfigKeyInputEncoding:         "原始 CSV 文件编码",
	ConfigKeyKeepWorkdirOnFailure:  "运行失败时保留工作目录",
	ConfigKeyRetentionDays:         "运行记录保留天数",
	ConfigKeyCleanupSchedule:       "清理任务调度表达式",
}

func defaultValues() map[string]string {
	return map[string]string{
		ConfigKeyDataDir:               DefaultDataDir,
		ConfigKeyOutputDir:             DefaultOutputDir,
		ConfigKeyWorkdirRoot:           DefaultWorkdirRoot,
		ConfigKeyIndexColumn:           DefaultIndexColumn,
		ConfigKeyTargetColumn:          DefaultTargetColumn,
		ConfigKeyCollinearColumns:      DefaultCollinearColumns,
		ConfigKeyAllowMissingCollinear: cast.ToString(DefaultAllowMissingCollinear),
		ConfigKeySelectionAlpha:        cast.ToString(DefaultSelectionAlpha),
		ConfigKeySchedule:              DefaultSchedule,
		ConfigKeyMaxParallelStages:     cast.ToString(DefaultMaxParallelStages),
		ConfigKeyInputEncoding:         DefaultInputEncoding,
		ConfigKeyKeepWorkdirOnFailure:  cast.ToString(DefaultKeepWorkdirOnFailure),
		ConfigKeyRetentionDays:         cast.ToString(DefaultRetentionDays),
		ConfigKeyCleanupSchedule:       DefaultCleanupSchedule,
	}
}

// DefaultItems 返回用于初始化数据库的默认配置列表
func DefaultItems() []models.SystemConfig {
	values := defaultValues()
	items := make([]models.SystemConfig, 0, len(configKeys))
	for _, key := range configKeys {
		items = append(items, models.SystemConfig{
			Key:         key,
			Value:       values[key],
			Environment: "default",
			Description: defaultDescriptions[key],
		})
	}
	return items
}
