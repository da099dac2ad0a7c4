package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nmail/backend/internal/domain"
	"nmail/backend/internal/storage"
)

func newTestMailbox(id, address string, expiresAt time.Time) *domain.Mailbox {
	return &domain.Mailbox{
		ID:        id,
		Address:   address,
		LocalPart: "test",
		Domain:    "nmail.local",
		Token:     "test-token",
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
}

func TestMemoryStore_MailboxOperations(t *testing.T) {
	store := NewStore()

	mailbox := newTestMailbox("mb-1", "test@nmail.local", time.Now().Add(time.Hour))

	err := store.SaveMailbox(mailbox)
	require.NoError(t, err)

	// Test GetMailbox
	retrieved, err := store.GetMailbox("mb-1")
	require.NoError(t, err)
	assert.Equal(t, mailbox.Address, retrieved.Address)

	// Test GetMailboxByAddress
	retrieved, err = store.GetMailboxByAddress("test@nmail.local")
	require.NoError(t, err)
	assert.Equal(t, mailbox.ID, retrieved.ID)

	// 地址精确匹配，不做大小写归一化
	_, err = store.GetMailboxByAddress("TEST@nmail.local")
	assert.ErrorIs(t, err, storage.ErrMailboxNotFound)

	// 重复地址被拒绝
	dup := newTestMailbox("mb-2", "test@nmail.local", time.Now().Add(time.Hour))
	err = store.SaveMailbox(dup)
	assert.ErrorIs(t, err, storage.ErrAddressTaken)

	// Test ListMailboxes
	mailboxes, err := store.ListMailboxes()
	require.NoError(t, err)
	assert.Len(t, mailboxes, 1)

	// Test DeleteMailbox
	err = store.DeleteMailbox("mb-1")
	require.NoError(t, err)

	_, err = store.GetMailbox("mb-1")
	assert.ErrorIs(t, err, storage.ErrMailboxNotFound)

	err = store.DeleteMailbox("mb-1")
	assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
}

func TestMemoryStore_AppendMessage(t *testing.T) {
	store := NewStore()

	mailbox := newTestMailbox("mb-1", "test@nmail.local", time.Now().Add(time.Hour))
	require.NoError(t, store.SaveMailbox(mailbox))

	t.Run("写入邮件并分配单调递增ID", func(t *testing.T) {
		first := &domain.Message{MailboxID: "mb-1", From: "a@x.com", Subject: "one", ReceivedAt: time.Now()}
		second := &domain.Message{MailboxID: "mb-1", From: "a@x.com", Subject: "two", ReceivedAt: time.Now()}

		id1, err := store.AppendMessage(first)
		require.NoError(t, err)
		id2, err := store.AppendMessage(second)
		require.NoError(t, err)

		assert.Greater(t, id2, id1)
		assert.Equal(t, id1, first.ID)
	})

	t.Run("邮箱不存在时拒绝写入", func(t *testing.T) {
		msg := &domain.Message{MailboxID: "no-such-mailbox", From: "a@x.com", ReceivedAt: time.Now()}

		_, err := store.AppendMessage(msg)
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
	})

	t.Run("邮箱删除后写入被拒绝", func(t *testing.T) {
		gone := newTestMailbox("mb-gone", "gone@nmail.local", time.Now().Add(time.Hour))
		require.NoError(t, store.SaveMailbox(gone))
		require.NoError(t, store.DeleteMailbox("mb-gone"))

		msg := &domain.Message{MailboxID: "mb-gone", From: "a@x.com", ReceivedAt: time.Now()}
		_, err := store.AppendMessage(msg)
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
	})

	t.Run("附件跟随邮件ID", func(t *testing.T) {
		att := &domain.Attachment{ID: "att-1", Filename: "a.txt", Content: []byte("hi"), Size: 2}
		msg := &domain.Message{
			MailboxID:   "mb-1",
			From:        "a@x.com",
			ReceivedAt:  time.Now(),
			Attachments: []*domain.Attachment{att},
		}

		id, err := store.AppendMessage(msg)
		require.NoError(t, err)
		assert.Equal(t, id, att.MessageID)
	})
}

func TestMemoryStore_ListMessagesOrdering(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveMailbox(newTestMailbox("mb-1", "test@nmail.local", time.Now().Add(time.Hour))))

	base := time.Now()

	// 乱序写入三封邮件
	older := &domain.Message{MailboxID: "mb-1", Subject: "older", ReceivedAt: base.Add(-2 * time.Hour)}
	newer := &domain.Message{MailboxID: "mb-1", Subject: "newer", ReceivedAt: base}
	middle := &domain.Message{MailboxID: "mb-1", Subject: "middle", ReceivedAt: base.Add(-1 * time.Hour)}

	for _, msg := range []*domain.Message{older, newer, middle} {
		_, err := store.AppendMessage(msg)
		require.NoError(t, err)
	}

	messages, err := store.ListMessages("mb-1")
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, "newer", messages[0].Subject)
	assert.Equal(t, "middle", messages[1].Subject)
	assert.Equal(t, "older", messages[2].Subject)

	// 相同接收时间按ID倒序
	same1 := &domain.Message{MailboxID: "mb-1", Subject: "same-first", ReceivedAt: base}
	same2 := &domain.Message{MailboxID: "mb-1", Subject: "same-second", ReceivedAt: base}
	_, err = store.AppendMessage(same1)
	require.NoError(t, err)
	_, err = store.AppendMessage(same2)
	require.NoError(t, err)

	messages, err = store.ListMessages("mb-1")
	require.NoError(t, err)
	assert.Equal(t, "same-second", messages[0].Subject)
	assert.Equal(t, "same-first", messages[1].Subject)

	// 不存在的邮箱返回空列表而不是错误
	messages, err = store.ListMessages("no-such-mailbox")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMemoryStore_MarkMessageRead(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveMailbox(newTestMailbox("mb-1", "test@nmail.local", time.Now().Add(time.Hour))))

	msg := &domain.Message{MailboxID: "mb-1", Subject: "unread", ReceivedAt: time.Now()}
	id, err := store.AppendMessage(msg)
	require.NoError(t, err)

	mb, err := store.GetMailbox("mb-1")
	require.NoError(t, err)
	assert.Equal(t, 1, mb.Unread)

	// 标记已读
	require.NoError(t, store.MarkMessageRead("mb-1", id))

	retrieved, err := store.GetMessage("mb-1", id)
	require.NoError(t, err)
	assert.True(t, retrieved.IsRead)

	mb, err = store.GetMailbox("mb-1")
	require.NoError(t, err)
	assert.Equal(t, 0, mb.Unread)

	// 重复标记是无操作
	require.NoError(t, store.MarkMessageRead("mb-1", id))
	mb, err = store.GetMailbox("mb-1")
	require.NoError(t, err)
	assert.Equal(t, 0, mb.Unread)

	// 不存在的邮件同样是无操作
	assert.NoError(t, store.MarkMessageRead("mb-1", 99999))
	assert.NoError(t, store.MarkMessageRead("no-such-mailbox", id))
}

func TestMemoryStore_DeleteMailboxCascade(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveMailbox(newTestMailbox("mb-1", "test@nmail.local", time.Now().Add(time.Hour))))

	msg := &domain.Message{MailboxID: "mb-1", Subject: "doomed", ReceivedAt: time.Now()}
	id, err := store.AppendMessage(msg)
	require.NoError(t, err)

	require.NoError(t, store.DeleteMailbox("mb-1"))

	// 邮件随邮箱一起消失
	_, err = store.GetMessage("mb-1", id)
	assert.ErrorIs(t, err, storage.ErrMessageNotFound)

	// 已删除邮箱的邮件列表为空
	gone, err := store.ListMessages("mb-1")
	require.NoError(t, err)
	assert.Empty(t, gone)

	// 地址立即可以再次注册
	reused := newTestMailbox("mb-2", "test@nmail.local", time.Now().Add(time.Hour))
	require.NoError(t, store.SaveMailbox(reused))

	// 新邮箱看不到旧邮件
	messages, err := store.ListMessages("mb-2")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMemoryStore_ListExpiredMailboxes(t *testing.T) {
	store := NewStore()
	now := time.Now()

	require.NoError(t, store.SaveMailbox(newTestMailbox("mb-live", "live@nmail.local", now.Add(time.Hour))))
	require.NoError(t, store.SaveMailbox(newTestMailbox("mb-dead", "dead@nmail.local", now.Add(-time.Hour))))

	expired, err := store.ListExpiredMailboxes(now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "mb-dead", expired[0].ID)
}

func TestMemoryStore_DeleteMessagesByMailbox(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.SaveMailbox(newTestMailbox("mb-1", "test@nmail.local", time.Now().Add(time.Hour))))

	for i := 0; i < 3; i++ {
		_, err := store.AppendMessage(&domain.Message{MailboxID: "mb-1", ReceivedAt: time.Now()})
		require.NoError(t, err)
	}

	count, err := store.DeleteMessagesByMailbox("mb-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	messages, err := store.ListMessages("mb-1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	mb, err := store.GetMailbox("mb-1")
	require.NoError(t, err)
	assert.Equal(t, 0, mb.TotalCount)
	assert.Equal(t, 0, mb.Unread)
}
