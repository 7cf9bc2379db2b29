// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hbai-chat-go/internal/chat"
	"hbai-chat-go/internal/model"
	"hbai-chat-go/internal/repository"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/textproc"
)

// SessionService 定义了聊天会话管理的接口。
type SessionService interface {
	Create(ctx context.Context, visitorID string, temporary bool, language string) (*model.Session, error)
	List(ctx context.Context, visitorID string) ([]model.Session, error)
	Get(ctx context.Context, visitorID, sessionID string) (*model.SessionDetail, error)
	Acknowledge(ctx context.Context, visitorID, sessionID string) (*model.Session, error)
	Reset(ctx context.Context, visitorID, sessionID string) (*model.Session, error)
	Delete(ctx context.Context, visitorID, sessionID string) error
}

type sessionService struct {
	repo  repository.SessionRepository
	chat  *chat.ChatSession
	locks *SessionLocks
	// staleAfter 之后仍处于 awaiting_response 的会话被视为生成被中断。
	staleAfter time.Duration
	now        func() time.Time
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(repo repository.SessionRepository, chatSession *chat.ChatSession, locks *SessionLocks, staleAfter time.Duration) SessionService {
	return &sessionService{repo: repo, chat: chatSession, locks: locks, staleAfter: staleAfter, now: time.Now}
}

// Create 创建一个新会话，language 为空时使用韩语。
func (s *sessionService) Create(ctx context.Context, visitorID string, temporary bool, language string) (*model.Session, error) {
	return createSession(ctx, s.repo, visitorID, temporary, language, s.now())
}

func createSession(ctx context.Context, repo repository.SessionRepository, visitorID string, temporary bool, language string, now time.Time) (*model.Session, error) {
	if language != "en" {
		language = "ko"
	}
	session := &model.Session{
		ID:          uuid.NewString(),
		VisitorID:   visitorID,
		Title:       model.DefaultSessionTitle,
		State:       model.StateIdle,
		Language:    language,
		Temporary:   temporary,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	log.Infow("会话已创建", "sessionId", session.ID, "visitorId", visitorID, "temporary", temporary)
	return session, nil
}

// List 返回访客的会话列表，最近更新的在前。
func (s *sessionService) List(ctx context.Context, visitorID string) ([]model.Session, error) {
	return s.repo.ListByVisitor(ctx, visitorID)
}

// Get 返回会话及其完整历史。
func (s *sessionService) Get(ctx context.Context, visitorID, sessionID string) (*model.SessionDetail, error) {
	st, err := loadState(ctx, s.repo, visitorID, sessionID)
	if err != nil {
		return nil, err
	}
	return &model.SessionDetail{Session: *st.Session, Messages: st.History}, nil
}

// Acknowledge 确认会话中的错误，使其可以继续提交。
func (s *sessionService) Acknowledge(ctx context.Context, visitorID, sessionID string) (*model.Session, error) {
	return s.mutate(ctx, visitorID, sessionID, func(st *chat.State) error {
		return s.chat.Acknowledge(st)
	}, false)
}

// Reset 清空会话历史。
func (s *sessionService) Reset(ctx context.Context, visitorID, sessionID string) (*model.Session, error) {
	return s.mutate(ctx, visitorID, sessionID, func(st *chat.State) error {
		return s.chat.Reset(st)
	}, true)
}

func (s *sessionService) mutate(ctx context.Context, visitorID, sessionID string, fn func(st *chat.State) error, clearHistory bool) (*model.Session, error) {
	unlock, ok := s.locks.TryLock(sessionID)
	if !ok {
		return nil, chat.ErrBusy
	}
	defer unlock()

	st, err := loadState(ctx, s.repo, visitorID, sessionID)
	if err != nil {
		return nil, err
	}
	recoverInterrupted(st, s.staleAfter, s.now())
	if err := fn(st); err != nil {
		return nil, err
	}
	if clearHistory {
		if err := s.repo.ClearHistory(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Save(ctx, st.Session); err != nil {
		return nil, err
	}
	return st.Session, nil
}

// Delete 删除会话及其历史。
func (s *sessionService) Delete(ctx context.Context, visitorID, sessionID string) error {
	unlock, ok := s.locks.TryLock(sessionID)
	if !ok {
		return chat.ErrBusy
	}
	defer unlock()

	session, err := loadSession(ctx, s.repo, visitorID, sessionID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, session); err != nil {
		return err
	}
	log.Infow("会话已删除", "sessionId", sessionID, "visitorId", visitorID)
	return nil
}

// loadSession 读取会话并校验归属，不属于该访客的会话按不存在处理。
func loadSession(ctx context.Context, repo repository.SessionRepository, visitorID, sessionID string) (*model.Session, error) {
	session, err := repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.VisitorID != visitorID {
		return nil, repository.ErrSessionNotFound
	}
	return session, nil
}

func loadState(ctx context.Context, repo repository.SessionRepository, visitorID, sessionID string) (*chat.State, error) {
	session, err := loadSession(ctx, repo, visitorID, sessionID)
	if err != nil {
		return nil, err
	}
	history, err := repo.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &chat.State{Session: session, History: history}, nil
}

// recoverInterrupted 把长时间停留在 awaiting_response 的会话转为 error 状态，
// 这种情况只会在进程于生成途中退出后出现。
func recoverInterrupted(st *chat.State, staleAfter time.Duration, now time.Time) {
	if st.Session.State != model.StateAwaitingResponse || staleAfter <= 0 {
		return
	}
	if now.Sub(st.Session.LastUpdated) < staleAfter {
		return
	}
	msgs := textproc.Messages(st.Session.Language)
	st.Session.State = model.StateError
	st.Session.LastError = msgs.GenerationFailed
	st.Session.LastUpdated = now
	log.Warnw("会话生成被中断，已转为 error 状态", "sessionId", st.Session.ID)
}

// IsNotFound 报告 err 是否表示会话不存在。
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrSessionNotFound)
}
