// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"hbai-chat-go/internal/model"
)

// ErrSessionNotFound 表示会话不存在或已过期。
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository 定义了聊天会话及其历史消息的存储操作。
type SessionRepository interface {
	// Create 保存新会话，临时会话不进入访客的会话列表。
	Create(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	// Save 覆盖会话元数据并刷新过期时间。
	Save(ctx context.Context, session *model.Session) error
	// ListByVisitor 返回访客的非临时会话，按最后更新时间倒序。
	ListByVisitor(ctx context.Context, visitorID string) ([]model.Session, error)
	Delete(ctx context.Context, session *model.Session) error

	History(ctx context.Context, sessionID string) (model.ChatHistory, error)
	AppendTurns(ctx context.Context, sessionID string, turns ...model.ChatTurn) error
	ClearHistory(ctx context.Context, sessionID string) error
}

type redisSessionRepository struct {
	redisClient  *redis.Client
	ttl          time.Duration
	temporaryTTL time.Duration
}

// NewSessionRepository 创建一个基于 Redis 的 SessionRepository 实例。
func NewSessionRepository(redisClient *redis.Client, ttl, temporaryTTL time.Duration) SessionRepository {
	return &redisSessionRepository{redisClient: redisClient, ttl: ttl, temporaryTTL: temporaryTTL}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

func visitorSessionsKey(visitorID string) string {
	return fmt.Sprintf("visitor:%s:sessions", visitorID)
}

func (r *redisSessionRepository) expiry(session *model.Session) time.Duration {
	if session.Temporary {
		return r.temporaryTTL
	}
	return r.ttl
}

// Create 写入会话元数据，并将非临时会话加入访客索引。
func (r *redisSessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.write(ctx, session)
}

// Save 覆盖会话元数据，同时刷新历史与索引的过期时间。
func (r *redisSessionRepository) Save(ctx context.Context, session *model.Session) error {
	return r.write(ctx, session)
}

func (r *redisSessionRepository) write(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := r.expiry(session)

	pipe := r.redisClient.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, ttl)
	pipe.Expire(ctx, historyKey(session.ID), ttl)
	if !session.Temporary {
		indexKey := visitorSessionsKey(session.VisitorID)
		pipe.ZAdd(ctx, indexKey, &redis.Z{
			Score:  float64(session.LastUpdated.UnixNano()),
			Member: session.ID,
		})
		pipe.Expire(ctx, indexKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get 从 Redis 读取会话元数据。
func (r *redisSessionRepository) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	data, err := r.redisClient.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ListByVisitor 按索引倒序读取会话，顺带清理索引中已过期的条目。
func (r *redisSessionRepository) ListByVisitor(ctx context.Context, visitorID string) ([]model.Session, error) {
	indexKey := visitorSessionsKey(visitorID)
	ids, err := r.redisClient.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list visitor sessions: %w", err)
	}
	sessions := make([]model.Session, 0, len(ids))
	for _, id := range ids {
		session, err := r.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			r.redisClient.ZRem(ctx, indexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

// Delete 删除会话元数据、历史以及索引条目。
func (r *redisSessionRepository) Delete(ctx context.Context, session *model.Session) error {
	pipe := r.redisClient.TxPipeline()
	pipe.Del(ctx, sessionKey(session.ID), historyKey(session.ID))
	pipe.ZRem(ctx, visitorSessionsKey(session.VisitorID), session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// History 返回会话的完整历史消息。
func (r *redisSessionRepository) History(ctx context.Context, sessionID string) (model.ChatHistory, error) {
	items, err := r.redisClient.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	history := make(model.ChatHistory, 0, len(items))
	for _, item := range items {
		var turn model.ChatTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat turn: %w", err)
		}
		history = append(history, turn)
	}
	return history, nil
}

// AppendTurns 按顺序把消息追加到历史末尾。
func (r *redisSessionRepository) AppendTurns(ctx context.Context, sessionID string, turns ...model.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to marshal chat turn: %w", err)
		}
		values = append(values, data)
	}
	if err := r.redisClient.RPush(ctx, historyKey(sessionID), values...).Err(); err != nil {
		return fmt.Errorf("failed to append chat turns: %w", err)
	}
	return nil
}

// ClearHistory 清空会话历史。
func (r *redisSessionRepository) ClearHistory(ctx context.Context, sessionID string) error {
	if err := r.redisClient.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session history: %w", err)
	}
	return nil
}
