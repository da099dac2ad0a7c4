package service

import (
	"time"

	"nmail/backend/internal/domain"
	"nmail/backend/internal/storage"
)

// MessageService 封装邮件存取逻辑。
type MessageService struct {
	repo storage.Store
}

// NewMessageService 创建邮件业务服务。
func NewMessageService(repo storage.Store) *MessageService {
	return &MessageService{repo: repo}
}

// AppendMessageInput 定义写入邮件的输入。
type AppendMessageInput struct {
	MailboxID   string
	From        string
	To          string
	Subject     string
	Text        string
	HTML        string
	Received    time.Time
	Attachments []*domain.Attachment
}

// Append 持久化一封新邮件，返回带已分配ID的记录。
// 所属邮箱已被删除时返回 storage.ErrMailboxNotFound。
func (s *MessageService) Append(input AppendMessageInput) (*domain.Message, error) {
	if input.Received.IsZero() {
		input.Received = time.Now().UTC()
	}

	message := &domain.Message{
		MailboxID:   input.MailboxID,
		From:        input.From,
		To:          input.To,
		Subject:     input.Subject,
		Text:        input.Text,
		HTML:        input.HTML,
		ReceivedAt:  input.Received,
		IsRead:      false,
		Attachments: input.Attachments,
	}

	if _, err := s.repo.AppendMessage(message); err != nil {
		return nil, err
	}
	return message, nil
}

// List 列出指定邮箱下的邮件，接收时间倒序。
func (s *MessageService) List(mailboxID string) ([]domain.Message, error) {
	return s.repo.ListMessages(mailboxID)
}

// Get 获取单封邮件详情，按邮箱范围限定。
func (s *MessageService) Get(mailboxID string, messageID int64) (*domain.Message, error) {
	return s.repo.GetMessage(mailboxID, messageID)
}

// MarkRead 将邮件标记为已读，幂等。
func (s *MessageService) MarkRead(mailboxID string, messageID int64) error {
	return s.repo.MarkMessageRead(mailboxID, messageID)
}

// GetAttachment 获取邮件附件。
func (s *MessageService) GetAttachment(mailboxID string, messageID int64, attachmentID string) (*domain.Attachment, error) {
	message, err := s.repo.GetMessage(mailboxID, messageID)
	if err != nil {
		return nil, err
	}
	for _, att := range message.Attachments {
		if att.ID == attachmentID {
			return att, nil
		}
	}
	return nil, storage.ErrAttachmentNotFound
}

// PurgeByMailbox 删除邮箱下全部邮件，返回删除数量。
// 仅由邮箱删除的级联路径使用。
func (s *MessageService) PurgeByMailbox(mailboxID string) (int, error) {
	return s.repo.DeleteMessagesByMailbox(mailboxID)
}
