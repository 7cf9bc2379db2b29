// Package pipeline 定义了问答归档的处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"hbai-chat-go/internal/model"
	"hbai-chat-go/internal/repository"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/tasks"
)

// maxTextBytes 是 MySQL TEXT 列能容纳的最大字节数。
const maxTextBytes = 65535

// ErrInvalidTask 表示任务缺少必要字段，重试也无法成功。
var ErrInvalidTask = errors.New("invalid archive task")

// Archiver 将 Kafka 中的问答任务写入 MySQL。
type Archiver struct {
	repo repository.ArchiveRepository
}

// NewArchiver 创建一个新的 Archiver 实例。
func NewArchiver(repo repository.ArchiveRepository) *Archiver {
	return &Archiver{repo: repo}
}

// Process 校验并持久化一个归档任务。无效任务只记录日志并返回 nil，避免无意义的重试。
func (a *Archiver) Process(ctx context.Context, task tasks.ExchangeArchiveTask) error {
	if err := validate(task); err != nil {
		log.Warnw("[Archiver] 丢弃无效的归档任务", "taskId", task.TaskID, "error", err)
		return nil
	}

	exchange := &model.ArchivedExchange{
		TaskID:    task.TaskID,
		SessionID: task.SessionID,
		VisitorID: task.VisitorID,
		Question:  truncateUTF8(task.Question, maxTextBytes),
		Answer:    truncateUTF8(task.Answer, maxTextBytes),
		Language:  task.Language,
		Backend:   task.Backend,
		CreatedAt: task.CreatedAt,
	}
	if err := a.repo.Create(exchange); err != nil {
		return fmt.Errorf("failed to archive exchange: %w", err)
	}
	log.Infof("[Archiver] 问答已归档, TaskID: %s, SessionID: %s", task.TaskID, task.SessionID)
	return nil
}

func validate(task tasks.ExchangeArchiveTask) error {
	switch {
	case task.TaskID == "":
		return fmt.Errorf("%w: missing task id", ErrInvalidTask)
	case task.SessionID == "" || task.VisitorID == "":
		return fmt.Errorf("%w: missing session or visitor", ErrInvalidTask)
	case task.Question == "" || task.Answer == "":
		return fmt.Errorf("%w: empty exchange", ErrInvalidTask)
	}
	return nil
}

// truncateUTF8 按字节截断字符串，不会截断在多字节字符中间。
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
