package model

import "time"

// SessionState 是会话状态机的状态。
type SessionState string

const (
	StateIdle             SessionState = "idle"
	StateAwaitingResponse SessionState = "awaiting_response"
	StateError            SessionState = "error"
)

// DefaultSessionTitle 是新会话在第一次问答完成前的标题。
const DefaultSessionTitle = "새 채팅"

// Session 保存单个聊天会话的元数据，历史消息单独存储。
type Session struct {
	ID          string       `json:"id"`
	VisitorID   string       `json:"visitorId"`
	Title       string       `json:"title"`
	State       SessionState `json:"state"`
	LastError   string       `json:"lastError,omitempty"`
	Language    string       `json:"language"`
	Temporary   bool         `json:"temporary"`
	CreatedAt   time.Time    `json:"createdAt"`
	LastUpdated time.Time    `json:"lastUpdated"`
}

// SessionDetail 是会话元数据与完整历史的组合，用于接口返回。
type SessionDetail struct {
	Session
	Messages ChatHistory `json:"messages"`
}
