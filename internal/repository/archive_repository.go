package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hbai-chat-go/internal/model"
)

// ArchiveRepository 定义了归档问答记录的持久化操作。
type ArchiveRepository interface {
	Create(exchange *model.ArchivedExchange) error
	FindByVisitor(visitorID string, offset, limit int) ([]model.ArchivedExchange, int64, error)
	DeleteBySession(sessionID string) error
}

// archiveRepository 是 ArchiveRepository 接口的 GORM 实现。
type archiveRepository struct {
	db *gorm.DB
}

// NewArchiveRepository 创建一个新的 ArchiveRepository 实例。
func NewArchiveRepository(db *gorm.DB) ArchiveRepository {
	return &archiveRepository{db: db}
}

// Create 写入一条归档记录，TaskID 重复时忽略，重复投递的消息不会产生重复记录。
func (r *archiveRepository) Create(exchange *model.ArchivedExchange) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(exchange).Error
}

// FindByVisitor 分页查询访客的归档记录，按时间倒序。
// 它返回记录列表、总记录数和可能发生的错误。
func (r *archiveRepository) FindByVisitor(visitorID string, offset, limit int) ([]model.ArchivedExchange, int64, error) {
	var exchanges []model.ArchivedExchange
	var total int64

	db := r.db.Model(&model.ArchivedExchange{}).Where("visitor_id = ?", visitorID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&exchanges).Error
	if err != nil {
		return nil, 0, err
	}
	return exchanges, total, nil
}

// DeleteBySession 删除某个会话的全部归档记录。
func (r *archiveRepository) DeleteBySession(sessionID string) error {
	return r.db.Where("session_id = ?", sessionID).Delete(&model.ArchivedExchange{}).Error
}
