package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"hbai-chat-go/internal/model"
)

type memorySession struct {
	session   model.Session
	history   model.ChatHistory
	expiresAt time.Time
}

// memorySessionRepository 是进程内的 SessionRepository 实现，重启后数据丢失。
type memorySessionRepository struct {
	mu           sync.RWMutex
	sessions     map[string]*memorySession
	ttl          time.Duration
	temporaryTTL time.Duration
	now          func() time.Time
}

// NewMemorySessionRepository 创建一个基于内存的 SessionRepository 实例，ttl 为 0 表示不过期。
func NewMemorySessionRepository(ttl, temporaryTTL time.Duration) SessionRepository {
	return &memorySessionRepository{
		sessions:     make(map[string]*memorySession),
		ttl:          ttl,
		temporaryTTL: temporaryTTL,
		now:          time.Now,
	}
}

func (r *memorySessionRepository) expiresAt(session *model.Session) time.Time {
	ttl := r.ttl
	if session.Temporary {
		ttl = r.temporaryTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(ttl)
}

// lookup 返回未过期的条目，调用方需持有锁。
func (r *memorySessionRepository) lookup(sessionID string) (*memorySession, bool) {
	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry, true
}

func (r *memorySessionRepository) Create(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = &memorySession{session: *session, expiresAt: r.expiresAt(session)}
	return nil
}

func (r *memorySessionRepository) Save(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.lookup(session.ID)
	if !ok {
		entry = &memorySession{}
		r.sessions[session.ID] = entry
	}
	entry.session = *session
	entry.expiresAt = r.expiresAt(session)
	return nil
}

func (r *memorySessionRepository) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.lookup(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	session := entry.session
	return &session, nil
}

func (r *memorySessionRepository) ListByVisitor(ctx context.Context, visitorID string) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]model.Session, 0)
	for id, entry := range r.sessions {
		if _, ok := r.lookup(id); !ok {
			delete(r.sessions, id)
			continue
		}
		if entry.session.VisitorID == visitorID && !entry.session.Temporary {
			sessions = append(sessions, entry.session)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastUpdated.After(sessions[j].LastUpdated)
	})
	return sessions, nil
}

func (r *memorySessionRepository) Delete(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, session.ID)
	return nil
}

func (r *memorySessionRepository) History(ctx context.Context, sessionID string) (model.ChatHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.lookup(sessionID)
	if !ok {
		return model.ChatHistory{}, nil
	}
	history := make(model.ChatHistory, len(entry.history))
	copy(history, entry.history)
	return history, nil
}

func (r *memorySessionRepository) AppendTurns(ctx context.Context, sessionID string, turns ...model.ChatTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	entry.history = append(entry.history, turns...)
	return nil
}

func (r *memorySessionRepository) ClearHistory(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.lookup(sessionID); ok {
		entry.history = nil
	}
	return nil
}
