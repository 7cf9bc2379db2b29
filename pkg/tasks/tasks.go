// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// ExchangeArchiveTask 是一次完成的问答交互，由聊天服务发布，归档消费者写入 MySQL。
type ExchangeArchiveTask struct {
	// TaskID 唯一标识一次交互，用作重试计数的键。
	TaskID    string    `json:"task_id"`
	SessionID string    `json:"session_id"`
	VisitorID string    `json:"visitor_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Language  string    `json:"language"`
	Backend   string    `json:"backend"`
	CreatedAt time.Time `json:"created_at"`
}
