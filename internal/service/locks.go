package service

import "sync"

// SessionLocks 保证同一会话同一时刻只有一个写操作在进行。
type SessionLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewSessionLocks 创建锁表。
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{held: make(map[string]struct{})}
}

// TryLock 尝试占用会话，已被占用时立即返回 false；成功时返回释放函数。
func (l *SessionLocks) TryLock(sessionID string) (unlock func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[sessionID]; busy {
		return nil, false
	}
	l.held[sessionID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sessionID)
			l.mu.Unlock()
		})
	}, true
}
