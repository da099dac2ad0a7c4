package sql

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"nmail/backend/internal/domain"
	"nmail/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）。
type Store struct {
	db *gorm.DB
}

// Config 数据库连接配置。
type Config struct {
	Type            string // "mysql" 或 "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore 创建 SQL 数据库存储并自动迁移表结构。
func NewStore(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true, // 让唯一键冲突映射为 gorm.ErrDuplicatedKey
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate 自动迁移数据库表结构。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Mailbox{},
		&domain.Message{},
		&domain.Attachment{},
	)
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// ========== Mailbox Repository ==========

// SaveMailbox 保存邮箱信息，地址重复时返回 ErrAddressTaken。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	err := s.db.Create(mailbox).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrAddressTaken
	}
	return err
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("id = ?", id).First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// GetMailboxByAddress 根据完整地址获取邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("address = ?", address).First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// ListMailboxes 返回全部邮箱。
func (s *Store) ListMailboxes() ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	if err := s.db.Find(&mailboxes).Error; err != nil {
		return nil, err
	}
	return mailboxes, nil
}

// ListExpiredMailboxes 枚举在 now 时刻已过期的邮箱。
func (s *Store) ListExpiredMailboxes(now time.Time) ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	if err := s.db.Where("expires_at < ?", now).Find(&mailboxes).Error; err != nil {
		return nil, err
	}
	return mailboxes, nil
}

// DeleteMailbox 在单个事务里删除邮箱并级联删除其邮件与附件。
func (s *Store) DeleteMailbox(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&domain.Mailbox{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrMailboxNotFound
		}
		if err := tx.Where("message_id IN (?)",
			tx.Model(&domain.Message{}).Select("id").Where("mailbox_id = ?", id),
		).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		return tx.Where("mailbox_id = ?", id).Delete(&domain.Message{}).Error
	})
}

// ========== Message Repository ==========

// AppendMessage 持久化一封邮件，ID 由数据库自增分配。
//
// 邮箱存在性检查通过 SELECT ... FOR UPDATE 对邮箱行加锁，
// 并发的清理事务会被阻塞到本事务提交之后。邮箱已被删除时
// 返回 ErrMailboxNotFound 而不是留下孤儿记录。
func (s *Store) AppendMessage(message *domain.Message) (int64, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var mailbox domain.Mailbox
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", message.MailboxID).
			First(&mailbox).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrMailboxNotFound
			}
			return err
		}

		if err := tx.Create(message).Error; err != nil {
			return err
		}

		for _, att := range message.Attachments {
			att.MessageID = message.ID
			if err := tx.Create(att).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return message.ID, nil
}

// ListMessages 返回邮箱全部邮件，接收时间倒序，同时间按ID倒序。
// 邮箱不存在（包括已被清理）时返回空列表而不是错误。
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := s.db.Where("mailbox_id = ?", mailboxID).
		Order("received_at DESC, id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessage 获取单封邮件及其附件，按邮箱范围限定。
func (s *Store) GetMessage(mailboxID string, messageID int64) (*domain.Message, error) {
	var message domain.Message
	err := s.db.Where("id = ? AND mailbox_id = ?", messageID, mailboxID).First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, err
	}

	var attachments []*domain.Attachment
	if err := s.db.Where("message_id = ?", messageID).Find(&attachments).Error; err != nil {
		return nil, err
	}
	message.Attachments = attachments
	return &message, nil
}

// MarkMessageRead 标记已读。幂等：已读或不存在时均为无操作。
func (s *Store) MarkMessageRead(mailboxID string, messageID int64) error {
	return s.db.Model(&domain.Message{}).
		Where("id = ? AND mailbox_id = ?", messageID, mailboxID).
		Update("is_read", true).Error
}

// DeleteMessagesByMailbox 删除邮箱下全部邮件与附件，返回删除数量。
func (s *Store) DeleteMessagesByMailbox(mailboxID string) (int, error) {
	var count int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id IN (?)",
			tx.Model(&domain.Message{}).Select("id").Where("mailbox_id = ?", mailboxID),
		).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		result := tx.Where("mailbox_id = ?", mailboxID).Delete(&domain.Message{})
		if result.Error != nil {
			return result.Error
		}
		count = int(result.RowsAffected)
		return nil
	})
	return count, err
}
