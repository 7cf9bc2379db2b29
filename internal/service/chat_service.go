package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hbai-chat-go/internal/chat"
	"hbai-chat-go/internal/generator"
	"hbai-chat-go/internal/model"
	"hbai-chat-go/internal/repository"
	"hbai-chat-go/pkg/log"
	"hbai-chat-go/pkg/tasks"
	"hbai-chat-go/pkg/textproc"
)

// ArchivePublisher 发布已完成的问答交互。
type ArchivePublisher interface {
	Publish(ctx context.Context, task tasks.ExchangeArchiveTask) error
}

type noopPublisher struct{}

// NewNoopArchivePublisher 返回一个丢弃所有任务的 ArchivePublisher，归档关闭时使用。
func NewNoopArchivePublisher() ArchivePublisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, tasks.ExchangeArchiveTask) error {
	return nil
}

// SubmitResult 是一次提交后的会话快照。
type SubmitResult struct {
	Session  model.Session    `json:"session"`
	Appended []model.ChatTurn `json:"appended"`
	Language string           `json:"language"`
	Failed   bool             `json:"failed"`
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// Submit 向会话提交一条消息；sessionID 为空时自动创建新会话。
	// onAwaiting 在会话进入 awaiting_response 并持久化后调用，可以为 nil。
	Submit(ctx context.Context, visitorID, sessionID, text string, onAwaiting func(model.Session)) (*SubmitResult, error)
	// Generate 对单条输入做一次性文本生成，不关联任何会话。
	Generate(ctx context.Context, text string) (string, error)
	ModelInfo() generator.BackendInfo
}

type chatService struct {
	repo      repository.SessionRepository
	gen       generator.Generator
	publisher ArchivePublisher
	locks     *SessionLocks
	timeout   time.Duration
	now       func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。timeout 为 0 表示生成不设软超时。
func NewChatService(repo repository.SessionRepository, gen generator.Generator, publisher ArchivePublisher, locks *SessionLocks, timeout time.Duration) ChatService {
	if publisher == nil {
		publisher = NewNoopArchivePublisher()
	}
	return &chatService{
		repo:      repo,
		gen:       gen,
		publisher: publisher,
		locks:     locks,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Submit 协调一次提交：加锁、读取会话、持久化 awaiting 状态、生成、保存结果并发布归档任务。
func (s *chatService) Submit(ctx context.Context, visitorID, sessionID, text string, onAwaiting func(model.Session)) (*SubmitResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, chat.ErrEmptyMessage
	}
	if sessionID == "" {
		tag := textproc.DetectLanguage(text)
		session, err := createSession(ctx, s.repo, visitorID, false, textproc.LanguageCode(tag), s.now())
		if err != nil {
			return nil, err
		}
		sessionID = session.ID
	}

	unlock, ok := s.locks.TryLock(sessionID)
	if !ok {
		return nil, chat.ErrBusy
	}
	defer unlock()

	st, err := loadState(ctx, s.repo, visitorID, sessionID)
	if err != nil {
		return nil, err
	}
	recoverInterrupted(st, StaleAfter(s.timeout), s.now())

	// 生成结束后即使请求已取消也要保存结果
	persistCtx := context.WithoutCancel(ctx)

	// awaiting 状态与用户消息在生成前落盘，进程中途退出后历史中仍保留用户消息
	awaitingSaved := false
	session := chat.New(s.gen, chat.WithClock(s.now), chat.WithBeforeGenerate(func(ctx context.Context, st *chat.State) error {
		if err := s.repo.Save(persistCtx, st.Session); err != nil {
			return err
		}
		awaitingSaved = true
		if err := s.repo.AppendTurns(persistCtx, sessionID, st.History[len(st.History)-1]); err != nil {
			return err
		}
		if onAwaiting != nil {
			onAwaiting(*st.Session)
		}
		return nil
	}))

	genCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	res, err := session.Submit(genCtx, st, text)
	if err != nil {
		if awaitingSaved {
			s.markFailed(persistCtx, st)
		}
		return nil, err
	}

	if len(res.Appended) > 1 {
		if err := s.repo.AppendTurns(persistCtx, sessionID, res.Appended[1:]...); err != nil {
			s.markFailed(persistCtx, st)
			return nil, fmt.Errorf("failed to append turns: %w", err)
		}
	}
	if err := s.repo.Save(persistCtx, st.Session); err != nil {
		s.markFailed(persistCtx, st)
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if res.Succeeded() {
		log.Infow("消息处理完成", "sessionId", sessionID, "language", res.Language, "latency", s.now().Sub(start).String())
		s.archive(persistCtx, st.Session, res.Appended)
	}

	return &SubmitResult{
		Session:  *st.Session,
		Appended: res.Appended,
		Language: textproc.LanguageCode(res.Language),
		Failed:   !res.Succeeded(),
	}, nil
}

// markFailed 在生成前后的持久化失败时尽力把会话保存为 error 状态，
// 避免存储中的会话停留在 awaiting_response。
func (s *chatService) markFailed(ctx context.Context, st *chat.State) {
	st.Session.State = model.StateError
	st.Session.LastError = textproc.Messages(st.Session.Language).GenerationFailed
	st.Session.LastUpdated = s.now()
	if err := s.repo.Save(ctx, st.Session); err != nil {
		log.Errorf("保存失败会话状态失败: sessionId=%s, err=%v", st.Session.ID, err)
	}
}

// StaleAfter 返回会话停留在 awaiting_response 多久后视为生成被中断：
// 有软超时时为其两倍，否则为 10 分钟。
func StaleAfter(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return 2 * timeout
	}
	return 10 * time.Minute
}

// archive 发布归档任务，失败只记录日志，不影响本次回复。
func (s *chatService) archive(ctx context.Context, session *model.Session, turns []model.ChatTurn) {
	if session.Temporary || len(turns) != 2 {
		return
	}
	task := tasks.ExchangeArchiveTask{
		TaskID:    uuid.NewString(),
		SessionID: session.ID,
		VisitorID: session.VisitorID,
		Question:  turns[0].Text,
		Answer:    turns[1].Text,
		Language:  session.Language,
		Backend:   string(s.gen.Info().Kind),
		CreatedAt: turns[1].Timestamp,
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		log.Errorf("发布归档任务失败: sessionId=%s, err=%v", session.ID, err)
	}
}

// Generate 执行一次性文本生成。
func (s *chatService) Generate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", chat.ErrEmptyMessage
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.gen.GenerateText(ctx, text)
	if err != nil {
		var genErr *generator.GenerationError
		if !errors.As(err, &genErr) {
			err = &generator.GenerationError{Reason: generator.GenerationDevice, Cause: err}
		}
		return "", err
	}
	return out, nil
}

// ModelInfo 返回当前生成后端的信息。
func (s *chatService) ModelInfo() generator.BackendInfo {
	return s.gen.Info()
}
