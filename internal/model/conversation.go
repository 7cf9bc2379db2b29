// Package model 包含了应用的数据模型定义。
package model

import "time"

// Role 表示一条对话消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn 代表会话中的单条消息，创建后不可修改，只会被追加到历史末尾。
type ChatTurn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserTurn 创建一条用户消息。
func NewUserTurn(text string, at time.Time) ChatTurn {
	return ChatTurn{Role: RoleUser, Text: text, Timestamp: at}
}

// NewAssistantTurn 创建一条助手消息。
func NewAssistantTurn(text string, at time.Time) ChatTurn {
	return ChatTurn{Role: RoleAssistant, Text: text, Timestamp: at}
}

// ChatHistory 是按对话顺序排列的消息序列。
type ChatHistory []ChatTurn

// Window 返回最近的 n 条消息（从最旧的开始丢弃），不修改原历史。
// n <= 0 时返回空窗口。
func (h ChatHistory) Window(n int) ChatHistory {
	if n <= 0 {
		return ChatHistory{}
	}
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

// ArchivedExchange 是一次已完成的问答交互，由归档管道写入 MySQL。
type ArchivedExchange struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	SessionID string    `gorm:"type:varchar(64);index;not null" json:"sessionId"`
	VisitorID string    `gorm:"type:varchar(64);index;not null" json:"visitorId"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	Language  string    `gorm:"type:varchar(16)" json:"language"`
	Backend   string    `gorm:"type:varchar(32)" json:"backend"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ArchivedExchange) TableName() string {
	return "archived_exchanges"
}

// ArchivedExchangeDTO 是归档记录对外展示的结构。
type ArchivedExchangeDTO struct {
	ID        uint      `json:"id"`
	SessionID string    `json:"sessionId"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Language  string    `json:"language"`
	Backend   string    `json:"backend"`
	CreatedAt LocalTime `json:"createdAt"`
}

// ToDTO 转换为对外展示结构。
func (e ArchivedExchange) ToDTO() ArchivedExchangeDTO {
	return ArchivedExchangeDTO{
		ID:        e.ID,
		SessionID: e.SessionID,
		Question:  e.Question,
		Answer:    e.Answer,
		Language:  e.Language,
		Backend:   e.Backend,
		CreatedAt: LocalTime(e.CreatedAt),
	}
}
