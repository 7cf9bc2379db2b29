// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"hbai-chat-go/internal/config"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/tasks"
)

// maxAttempts 是单个任务处理失败后的最大重试次数，达到后提交 offset 放弃该任务。
const maxAttempts = 3

// retryBackoff 是同一任务两次处理之间的等待时间。
var retryBackoff = 2 * time.Second

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ExchangeArchiveTask) error
}

// AttemptTracker 记录任务的失败次数。
type AttemptTracker interface {
	Fail(ctx context.Context, taskID string) (int64, error)
	Clear(ctx context.Context, taskID string)
}

type redisAttemptTracker struct {
	rdb *redis.Client
}

// NewRedisAttemptTracker 创建基于 Redis 计数的 AttemptTracker。
func NewRedisAttemptTracker(rdb *redis.Client) AttemptTracker {
	return &redisAttemptTracker{rdb: rdb}
}

func attemptsKey(taskID string) string {
	return fmt.Sprintf("kafka:attempts:%s", taskID)
}

func (t *redisAttemptTracker) Fail(ctx context.Context, taskID string) (int64, error) {
	key := attemptsKey(taskID)
	attempts, err := t.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = t.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return attempts, nil
}

func (t *redisAttemptTracker) Clear(ctx context.Context, taskID string) {
	_ = t.rdb.Del(ctx, attemptsKey(taskID)).Err()
}

// Producer 向归档主题发送问答任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.ArchiveConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一个归档任务到 Kafka，以会话 ID 作为消息键保证同一会话内有序。
func (p *Producer) Publish(ctx context.Context, task tasks.ExchangeArchiveTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.SessionID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理归档任务，ctx 结束时退出。
func StartConsumer(ctx context.Context, cfg config.ArchiveConfig, tracker AttemptTracker, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		// 未提交的消息在当前消费者内原地重试，直到成功或达到重试上限
		for !handleMessage(ctx, m.Value, tracker, processor) {
			select {
			case <-ctx.Done():
				log.Info("Kafka 消费者已停止")
				return
			case <-time.After(retryBackoff):
			}
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handleMessage 处理一条消息并返回是否应提交 offset。
// 格式错误的消息直接提交；处理失败时未达到重试上限则返回 false，由调用方重试。
func handleMessage(ctx context.Context, value []byte, tracker AttemptTracker, processor TaskProcessor) bool {
	var task tasks.ExchangeArchiveTask
	if err := json.Unmarshal(value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理归档任务失败: TaskID=%s, Error: %v", task.TaskID, err)
		attempts, incErr := tracker.Fail(ctx, task.TaskID)
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，稍后重试
			return false
		}
		if attempts >= maxAttempts {
			log.Errorf("归档任务多次失败(>=%d)，提交 offset 终止重试: TaskID=%s", maxAttempts, task.TaskID)
			return true
		}
		return false
	}

	log.Infof("归档任务处理成功: TaskID=%s, SessionID=%s", task.TaskID, task.SessionID)
	tracker.Clear(ctx, task.TaskID)
	return true
}

func brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
