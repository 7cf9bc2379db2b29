package service

import (
	"errors"

	"hbai-chat-go/internal/model"
	"hbai-chat-go/internal/repository"
)

// ErrArchiveDisabled 表示归档管道未开启。
var ErrArchiveDisabled = errors.New("archive is disabled")

const (
	defaultArchivePageSize = 20
	maxArchivePageSize     = 100
)

// ArchiveService 定义了归档问答记录查询的接口。
type ArchiveService interface {
	// List 分页返回访客的归档记录，page 从 1 开始。
	List(visitorID string, page, size int) ([]model.ArchivedExchangeDTO, int64, error)
}

type archiveService struct {
	repo repository.ArchiveRepository
}

// NewArchiveService 创建一个新的 ArchiveService 实例，repo 为 nil 时查询不可用。
func NewArchiveService(repo repository.ArchiveRepository) ArchiveService {
	return &archiveService{repo: repo}
}

func (s *archiveService) List(visitorID string, page, size int) ([]model.ArchivedExchangeDTO, int64, error) {
	if s.repo == nil {
		return nil, 0, ErrArchiveDisabled
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultArchivePageSize
	}
	if size > maxArchivePageSize {
		size = maxArchivePageSize
	}
	exchanges, total, err := s.repo.FindByVisitor(visitorID, (page-1)*size, size)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]model.ArchivedExchangeDTO, 0, len(exchanges))
	for _, e := range exchanges {
		dtos = append(dtos, e.ToDTO())
	}
	return dtos, total, nil
}
