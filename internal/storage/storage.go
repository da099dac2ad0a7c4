package storage

import (
	"errors"
	"time"

	"nmail/backend/internal/domain"
)

var (
	// ErrMailboxNotFound 邮箱不存在错误
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrMessageNotFound 邮件不存在错误
	ErrMessageNotFound = errors.New("message not found")
	// ErrAttachmentNotFound 附件不存在错误
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrAddressTaken 地址已被占用错误
	ErrAddressTaken = errors.New("address already taken")
)

// MailboxRepository 定义邮箱数据存取操作。
type MailboxRepository interface {
	// SaveMailbox 保存新邮箱；地址重复时返回 ErrAddressTaken。
	SaveMailbox(mailbox *domain.Mailbox) error
	GetMailbox(id string) (*domain.Mailbox, error)
	GetMailboxByAddress(address string) (*domain.Mailbox, error)
	ListMailboxes() ([]domain.Mailbox, error)
	// DeleteMailbox 删除邮箱并级联删除其全部邮件与附件。
	DeleteMailbox(id string) error
	// ListExpiredMailboxes 枚举在 now 时刻已过期的邮箱。
	ListExpiredMailboxes(now time.Time) ([]domain.Mailbox, error)
}

// MessageRepository 定义邮件数据存取操作。
type MessageRepository interface {
	// AppendMessage 持久化一封邮件并返回单调分配的ID。
	// 写入时对所属邮箱做权威存在性检查：邮箱已被删除时
	// 返回 ErrMailboxNotFound，绝不落下孤儿记录。
	AppendMessage(message *domain.Message) (int64, error)
	// ListMessages 按接收时间倒序（同时间按ID倒序）返回邮箱全部邮件。
	ListMessages(mailboxID string) ([]domain.Message, error)
	// GetMessage 按邮箱范围取单封邮件，防止跨邮箱猜测ID。
	GetMessage(mailboxID string, messageID int64) (*domain.Message, error)
	// MarkMessageRead 标记已读。幂等：已读或ID不存在时均为无操作。
	MarkMessageRead(mailboxID string, messageID int64) error
	// DeleteMessagesByMailbox 删除邮箱下全部邮件与附件，返回删除数量。
	DeleteMessagesByMailbox(mailboxID string) (int, error)
}

// Store 聚合存储接口，由内存实现和 SQL 实现分别满足。
type Store interface {
	MailboxRepository
	MessageRepository

	Health() error
	Close() error
}
