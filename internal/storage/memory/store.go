package memory

import (
	"sort"
	"sync"
	"time"

	"nmail/backend/internal/domain"
	"nmail/backend/internal/storage"
)

// Store 使用内存保存邮箱与邮件数据，主要用于开发验证和测试替身。
//
// 所有操作都持有同一把锁，因此邮件写入时的邮箱存在性检查与
// 清理任务的邮箱删除不会交错出不一致状态。
type Store struct {
	mu        sync.RWMutex
	mailboxes map[string]*domain.Mailbox
	byAddress map[string]string                    // address -> mailboxID
	messages  map[string]map[int64]*domain.Message // mailboxID -> messageID -> message
	nextID    int64                                // 单调递增的邮件ID
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes: make(map[string]*domain.Mailbox),
		byAddress: make(map[string]string),
		messages:  make(map[string]map[int64]*domain.Message),
	}
}

// SaveMailbox 保存邮箱信息，地址重复时返回 ErrAddressTaken。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byAddress[mailbox.Address]; ok {
		return storage.ErrAddressTaken
	}

	s.mailboxes[mailbox.ID] = mailbox
	s.byAddress[mailbox.Address] = mailbox.ID
	return nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	cp := *mailbox
	return &cp, nil
}

// GetMailboxByAddress 根据完整地址获取邮箱。地址按原样精确匹配。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[address]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	cp := *s.mailboxes[id]
	return &cp, nil
}

// ListMailboxes 返回全部邮箱的快照。
func (s *Store) ListMailboxes() ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mailbox, 0, len(s.mailboxes))
	for _, mb := range s.mailboxes {
		result = append(result, *mb)
	}
	return result, nil
}

// ListExpiredMailboxes 枚举在 now 时刻已过期的邮箱。
func (s *Store) ListExpiredMailboxes(now time.Time) ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mailbox, 0)
	for _, mb := range s.mailboxes {
		if mb.Expired(now) {
			result = append(result, *mb)
		}
	}
	return result, nil
}

// DeleteMailbox 删除指定邮箱并级联删除其全部邮件。
func (s *Store) DeleteMailbox(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return storage.ErrMailboxNotFound
	}
	delete(s.byAddress, mb.Address)
	delete(s.mailboxes, id)
	delete(s.messages, id)
	return nil
}

// AppendMessage 持久化一封邮件并返回分配的ID。
//
// 在锁内做权威存在性检查：邮箱已被清理任务删除时直接
// 返回 ErrMailboxNotFound，不会留下孤儿邮件。
func (s *Store) AppendMessage(message *domain.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[message.MailboxID]
	if !ok {
		return 0, storage.ErrMailboxNotFound
	}

	s.nextID++
	message.ID = s.nextID
	for _, att := range message.Attachments {
		att.MessageID = message.ID
	}

	if _, ok := s.messages[message.MailboxID]; !ok {
		s.messages[message.MailboxID] = make(map[int64]*domain.Message)
	}
	s.messages[message.MailboxID][message.ID] = message

	mb.TotalCount++
	if !message.IsRead {
		mb.Unread++
	}

	return message.ID, nil
}

// ListMessages 返回某个邮箱下的全部邮件，接收时间倒序，同时间按ID倒序。
// 邮箱不存在（包括已被清理）时返回空列表而不是错误。
func (s *Store) ListMessages(mailboxID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgMap := s.messages[mailboxID]
	result := make([]domain.Message, 0, len(msgMap))
	for _, msg := range msgMap {
		result = append(result, *msg)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReceivedAt.Equal(result[j].ReceivedAt) {
			return result[i].ReceivedAt.After(result[j].ReceivedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// GetMessage 获取单封邮件，按邮箱范围限定。
func (s *Store) GetMessage(mailboxID string, messageID int64) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgMap, ok := s.messages[mailboxID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	msg, ok := msgMap[messageID]
	if !ok {
		return nil, storage.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

// MarkMessageRead 将邮件标记为已读。幂等：已读或不存在时均为无操作。
func (s *Store) MarkMessageRead(mailboxID string, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgMap, ok := s.messages[mailboxID]
	if !ok {
		return nil
	}
	msg, ok := msgMap[messageID]
	if !ok {
		return nil
	}

	if !msg.IsRead {
		msg.IsRead = true
		if mb, ok := s.mailboxes[mailboxID]; ok && mb.Unread > 0 {
			mb.Unread--
		}
	}
	return nil
}

// DeleteMessagesByMailbox 删除邮箱下全部邮件，返回删除数量。
func (s *Store) DeleteMessagesByMailbox(mailboxID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgMap, ok := s.messages[mailboxID]
	if !ok {
		return 0, nil
	}
	count := len(msgMap)
	delete(s.messages, mailboxID)

	if mb, ok := s.mailboxes[mailboxID]; ok {
		mb.TotalCount = 0
		mb.Unread = 0
	}
	return count, nil
}

// Health 内存存储总是健康的。
func (s *Store) Health() error { return nil }

// Close 内存存储无需释放资源。
func (s *Store) Close() error { return nil }
