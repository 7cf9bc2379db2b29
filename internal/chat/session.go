// Package chat 实现单个聊天会话的状态机：idle -> awaiting_response -> idle | error。
// 会话状态由调用方持有并显式传入，本包不保存任何全局状态。
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hbai-chat-go/internal/generator"
	"hbai-chat-go/internal/model"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/textproc"
)

var (
	// ErrBusy 表示会话仍在等待上一条消息的回复。
	ErrBusy = errors.New("session is awaiting a response")
	// ErrUnacknowledged 表示会话处于 error 状态，需要先确认错误。
	ErrUnacknowledged = errors.New("session error has not been acknowledged")
	// ErrEmptyMessage 表示提交的消息为空。
	ErrEmptyMessage = errors.New("message is empty")
)

// State 是由调用方持有的会话状态。
type State struct {
	Session *model.Session
	History model.ChatHistory
}

// Result 描述一次提交的结果。生成失败不会作为 error 返回，而是记录在 Failure 中。
type Result struct {
	Language textproc.LanguageTag
	// Appended 是本次追加到历史末尾的消息，成功时为用户+助手两条，失败时只有用户消息。
	Appended []model.ChatTurn
	Failure  error
}

// Succeeded 报告本次提交是否得到了助手回复。
func (r Result) Succeeded() bool {
	return r.Failure == nil
}

// Hook 在状态切换到 awaiting_response 后、调用生成之前执行。
type Hook func(ctx context.Context, st *State) error

// Option 配置 ChatSession。
type Option func(*ChatSession)

// WithBeforeGenerate 设置生成前的回调，通常用于持久化 awaiting_response 状态。
func WithBeforeGenerate(h Hook) Option {
	return func(c *ChatSession) { c.beforeGenerate = h }
}

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(c *ChatSession) { c.now = now }
}

// ChatSession 编排一次用户提交：状态检查、历史追加、调用生成后端并把失败转换为用户可见的提示。
type ChatSession struct {
	gen            generator.Generator
	now            func() time.Time
	beforeGenerate Hook
}

// New 创建 ChatSession。
func New(gen generator.Generator, opts ...Option) *ChatSession {
	c := &ChatSession{gen: gen, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit 提交一条用户消息。只有 idle 状态可以提交；生成失败时会话进入 error 状态，
// 只追加用户消息，错误信息写入 Session.LastError，Submit 本身不返回生成错误。
func (c *ChatSession) Submit(ctx context.Context, st *State, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}
	switch st.Session.State {
	case model.StateAwaitingResponse:
		return Result{}, ErrBusy
	case model.StateError:
		return Result{}, ErrUnacknowledged
	}

	tag := textproc.DetectLanguage(text)
	prior := st.History
	userTurn := model.NewUserTurn(text, c.now())

	st.Session.State = model.StateAwaitingResponse
	st.Session.LastError = ""
	st.Session.Language = textproc.LanguageCode(tag)
	st.History = append(prior[:len(prior):len(prior)], userTurn)
	st.Session.LastUpdated = userTurn.Timestamp

	if c.beforeGenerate != nil {
		if err := c.beforeGenerate(ctx, st); err != nil {
			st.Session.State = model.StateIdle
			st.History = prior
			return Result{}, fmt.Errorf("before generate: %w", err)
		}
	}

	reply, err := c.generate(ctx, text, prior)
	if err != nil {
		st.Session.State = model.StateError
		st.Session.LastError = failureMessage(err, tag)
		st.Session.LastUpdated = c.now()
		log.Warnw("[ChatSession] 生成失败，会话进入 error 状态", "sessionId", st.Session.ID, "error", err)
		return Result{Language: tag, Appended: []model.ChatTurn{userTurn}, Failure: err}, nil
	}

	assistantTurn := model.NewAssistantTurn(reply, c.now())
	st.History = append(st.History, assistantTurn)
	st.Session.State = model.StateIdle
	st.Session.LastUpdated = assistantTurn.Timestamp
	if st.Session.Title == "" || st.Session.Title == model.DefaultSessionTitle {
		st.Session.Title = textproc.SessionTitle(firstUserText(st.History))
	}
	return Result{Language: tag, Appended: []model.ChatTurn{userTurn, assistantTurn}}, nil
}

// generate 调用生成后端，并把 panic 转换为错误，保证错误不会越过会话边界。
func (c *ChatSession) generate(ctx context.Context, text string, prior model.ChatHistory) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &generator.GenerationError{Reason: generator.GenerationDevice, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	return c.gen.Generate(ctx, text, prior)
}

// Acknowledge 确认错误，error -> idle。idle 状态下调用无副作用。
func (c *ChatSession) Acknowledge(st *State) error {
	switch st.Session.State {
	case model.StateAwaitingResponse:
		return ErrBusy
	case model.StateError:
		st.Session.State = model.StateIdle
		st.Session.LastError = ""
		st.Session.LastUpdated = c.now()
	}
	return nil
}

// Reset 清空历史并回到 idle，标题恢复为默认值。
func (c *ChatSession) Reset(st *State) error {
	if st.Session.State == model.StateAwaitingResponse {
		return ErrBusy
	}
	st.History = model.ChatHistory{}
	st.Session.State = model.StateIdle
	st.Session.LastError = ""
	st.Session.Title = model.DefaultSessionTitle
	st.Session.LastUpdated = c.now()
	return nil
}

func failureMessage(err error, tag textproc.LanguageTag) string {
	msgs := textproc.Messages(textproc.LanguageCode(tag))
	var genErr *generator.GenerationError
	if errors.As(err, &genErr) && genErr.Reason == generator.GenerationTimeout {
		return msgs.GenerationTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return msgs.GenerationTimeout
	}
	return msgs.GenerationFailed
}

func firstUserText(history model.ChatHistory) string {
	for _, turn := range history {
		if turn.Role == model.RoleUser {
			return turn.Text
		}
	}
	return ""
}
