package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hbai-chat-go/internal/model"
	"hbai-chat-go/internal/repository"
	"hbai-chat-go/pkg/log"
)

// ErrExportDisabled 表示未配置对象存储，导出功能不可用。
var ErrExportDisabled = errors.New("export is disabled")

const markdownContentType = "text/markdown; charset=utf-8"

// TranscriptStore 是保存导出文件的对象存储。
type TranscriptStore interface {
	Put(ctx context.Context, objectName, contentType string, data []byte) error
	PresignedURL(ctx context.Context, objectName, downloadName string) (string, error)
	Remove(ctx context.Context, objectName string) error
}

// ExportResult 是导出结果。
type ExportResult struct {
	ObjectName string    `json:"objectName"`
	URL        string    `json:"url"`
	ExportedAt time.Time `json:"exportedAt"`
}

// ExportService 定义了会话导出的接口。
type ExportService interface {
	Export(ctx context.Context, visitorID, sessionID string) (*ExportResult, error)
	// Remove 删除会话的导出文件，用于会话删除后的清理。
	Remove(ctx context.Context, visitorID, sessionID string) error
}

type exportService struct {
	repo  repository.SessionRepository
	store TranscriptStore
	now   func() time.Time
}

// NewExportService 创建一个新的 ExportService 实例，store 为 nil 时导出不可用。
func NewExportService(repo repository.SessionRepository, store TranscriptStore) ExportService {
	return &exportService{repo: repo, store: store, now: time.Now}
}

func exportObjectName(visitorID, sessionID string) string {
	return fmt.Sprintf("exports/%s/%s.md", visitorID, sessionID)
}

// Export 将会话渲染为 Markdown 上传到对象存储，并返回预签名下载链接。
func (s *exportService) Export(ctx context.Context, visitorID, sessionID string) (*ExportResult, error) {
	if s.store == nil {
		return nil, ErrExportDisabled
	}
	st, err := loadState(ctx, s.repo, visitorID, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	body := RenderMarkdown(model.SessionDetail{Session: *st.Session, Messages: st.History}, now)
	objectName := exportObjectName(visitorID, sessionID)
	if err := s.store.Put(ctx, objectName, markdownContentType, []byte(body)); err != nil {
		return nil, err
	}
	url, err := s.store.PresignedURL(ctx, objectName, fmt.Sprintf("chat-%s.md", now.Format("20060102-150405")))
	if err != nil {
		return nil, fmt.Errorf("failed to presign export url: %w", err)
	}
	log.Infow("会话已导出", "sessionId", sessionID, "object", objectName, "turns", len(st.History))
	return &ExportResult{ObjectName: objectName, URL: url, ExportedAt: now}, nil
}

// Remove 删除导出文件，导出未开启时直接返回。
func (s *exportService) Remove(ctx context.Context, visitorID, sessionID string) error {
	if s.store == nil {
		return nil
	}
	return s.store.Remove(ctx, exportObjectName(visitorID, sessionID))
}

// RenderMarkdown 将会话渲染为 Markdown 文本，标签语言跟随会话语言。
func RenderMarkdown(detail model.SessionDetail, exportedAt time.Time) string {
	userLabel, exportedLabel := "You", "Exported at"
	if detail.Language == "ko" {
		userLabel, exportedLabel = "사용자", "내보낸 시각"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", detail.Title)
	fmt.Fprintf(&b, "_%s: %s_\n", exportedLabel, exportedAt.Format("2006-01-02 15:04:05"))
	for _, turn := range detail.Messages {
		label := "HB AI"
		if turn.Role == model.RoleUser {
			label = userLabel
		}
		fmt.Fprintf(&b, "\n### %s (%s)\n\n%s\n", label, turn.Timestamp.Format("15:04:05"), turn.Text)
	}
	return b.String()
}
