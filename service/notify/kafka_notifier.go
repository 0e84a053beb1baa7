/*
 * @module service/notify/kafka_notifier
 * @description 运行完成事件通知器，把流水线运行终态发布到Kafka供下游训练任务消费
 * @architecture 适配器模式 - 封装第三方Kafka客户端
 * @documentReference ai_docs/preprocessing_pipeline.md
 * @stateFlow 运行进入终态 -> 序列化事件 -> 写入完成主题
 * @rules 通知失败只记录日志，不影响运行本身的终态；未配置broker时使用空通知器
 * @dependencies github.com/segmentio/kafka-go
 * @refs service/pipeline/orchestrator.go
 */

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"dataprep-service/service/models"

	"github.com/segmentio/kafka-go"
)

// DefaultCompletionTopic 运行完成事件的默认主题
const DefaultCompletionTopic = "dataprep.run.completed"

// RunCompletedEvent 运行完成事件载荷
type RunCompletedEvent struct {
	RunID        string     `json:"run_id"`
	Status       string     `json:"status"`
	TriggerType  string     `json:"trigger_type"`
	OutputDir    string     `json:"output_dir"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// KafkaNotifier 基于Kafka的运行完成通知器
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaNotifier 创建Kafka通知器
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultCompletionTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaNotifier{writer: writer, topic: topic}
}

// NewKafkaNotifierFromEnv 从环境变量创建Kafka通知器
// KAFKA_BROKERS 未设置时返回 nil，调用方应回退到空通知器
func NewKafkaNotifierFromEnv() *KafkaNotifier {
	raw := os.Getenv("KAFKA_BROKERS")
	if raw == "" {
		return nil
	}
	brokers := []string{}
	for _, broker := range strings.Split(raw, ",") {
		if b := strings.TrimSpace(broker); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil
	}

	topic := os.Getenv("KAFKA_COMPLETION_TOPIC")
	notifier := NewKafkaNotifier(brokers, topic)
	slog.Info("Kafka运行完成通知器已启用", "brokers", brokers, "topic", notifier.topic)
	return notifier
}

// NotifyRunCompleted 发布运行完成事件，消息键为运行ID
func (n *KafkaNotifier) NotifyRunCompleted(ctx context.Context, run *models.PipelineRun) error {
	event := RunCompletedEvent{
		RunID:        run.ID,
		Status:       run.Status,
		TriggerType:  run.TriggerType,
		OutputDir:    run.OutputDir,
		ErrorMessage: run.ErrorMessage,
		StartTime:    run.StartTime,
		EndTime:      run.EndTime,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化运行完成事件失败: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = n.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(run.ID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("写入完成事件到主题 %s 失败: %w", n.topic, err)
	}

	slog.Debug("运行完成事件已发布", "run_id", run.ID, "status", run.Status, "topic", n.topic)
	return nil
}

// Close 关闭底层生产者
func (n *KafkaNotifier) Close() error {
	if err := n.writer.Close(); err != nil {
		return fmt.Errorf("关闭Kafka生产者失败: %w", err)
	}
	return nil
}
