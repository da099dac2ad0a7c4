package smtp

import (
	"strings"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nmail/backend/internal/config"
	"nmail/backend/internal/domain"
	"nmail/backend/internal/service"
	"nmail/backend/internal/storage/memory"
)

type capturedNotification struct {
	mailboxID string
	message   *domain.Message
}

type fakeNotifier struct {
	notifications []capturedNotification
}

func (f *fakeNotifier) NotifyNewMail(mailboxID string, message *domain.Message) {
	f.notifications = append(f.notifications, capturedNotification{mailboxID, message})
}

type testEnv struct {
	store     *memory.Store
	mailboxes *service.MailboxService
	messages  *service.MessageService
	notifier  *fakeNotifier
	backend   *Backend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			AllowedDomains: []string{"x.com", "y.com"},
			DefaultTTL:     24 * time.Hour,
			MaxTTL:         168 * time.Hour,
		},
	}
	mailboxes := service.NewMailboxService(store, cfg)
	messages := service.NewMessageService(store)
	notifier := &fakeNotifier{}
	backend := NewBackend(mailboxes, messages, notifier, nil, nil, 10<<20, nil)

	return &testEnv{
		store:     store,
		mailboxes: mailboxes,
		messages:  messages,
		notifier:  notifier,
		backend:   backend,
	}
}

func (e *testEnv) newSession(t *testing.T) gosmtp.Session {
	t.Helper()
	sess, err := e.backend.NewSession(nil)
	require.NoError(t, err)
	return sess
}

func assertSMTPCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, code, smtpErr.Code)
}

func TestSession_Rcpt(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "alice", Domain: "x.com"})
	require.NoError(t, err)

	t.Run("已开通的邮箱被接受", func(t *testing.T) {
		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		assert.NoError(t, sess.Rcpt("alice@x.com", nil))
	})

	t.Run("未开通的地址返回550", func(t *testing.T) {
		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		assertSMTPCode(t, sess.Rcpt("nobody@x.com", nil), 550)
	})

	t.Run("格式非法的地址返回501", func(t *testing.T) {
		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		assertSMTPCode(t, sess.Rcpt("not-an-address", nil), 501)
	})

	t.Run("地址匹配区分大小写", func(t *testing.T) {
		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		assertSMTPCode(t, sess.Rcpt("ALICE@x.com", nil), 550)
	})

	t.Run("过期邮箱返回550", func(t *testing.T) {
		expired := &domain.Mailbox{
			ID:        "mb-expired",
			Address:   "expired@x.com",
			Token:     "token",
			CreatedAt: time.Now().Add(-2 * time.Hour),
			ExpiresAt: time.Now().Add(-time.Hour),
			IsActive:  true,
		}
		require.NoError(t, env.store.SaveMailbox(expired))

		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		assertSMTPCode(t, sess.Rcpt("expired@x.com", nil), 550)
	})

	t.Run("单个收件人被拒绝不影响后续收件人", func(t *testing.T) {
		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		assertSMTPCode(t, sess.Rcpt("ghost@x.com", nil), 550)
		assert.NoError(t, sess.Rcpt("alice@x.com", nil))
	})
}

func TestSession_Data(t *testing.T) {
	rawMessage := "From: s@y.com\r\n" +
		"To: a@x.com\r\n" +
		"Subject: Hi\r\n" +
		"\r\n" +
		"hello\r\n"

	t.Run("邮件写入收件人邮箱", func(t *testing.T) {
		env := newTestEnv(t)
		mailbox, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "a1", Domain: "x.com"})
		require.NoError(t, err)

		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		require.NoError(t, sess.Rcpt(mailbox.Address, nil))
		require.NoError(t, sess.Data(strings.NewReader(rawMessage)))

		list, err := env.messages.List(mailbox.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "s@y.com", list[0].From)
		assert.Equal(t, mailbox.Address, list[0].To)
		assert.Equal(t, "Hi", list[0].Subject)
		assert.Equal(t, "hello\r\n", list[0].Text)
		assert.False(t, list[0].IsRead)
	})

	t.Run("多个收件人各得一条独立记录", func(t *testing.T) {
		env := newTestEnv(t)
		first, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "first", Domain: "x.com"})
		require.NoError(t, err)
		second, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "second", Domain: "y.com"})
		require.NoError(t, err)

		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		require.NoError(t, sess.Rcpt(first.Address, nil))
		require.NoError(t, sess.Rcpt(second.Address, nil))
		require.NoError(t, sess.Data(strings.NewReader(rawMessage)))

		firstList, err := env.messages.List(first.ID)
		require.NoError(t, err)
		secondList, err := env.messages.List(second.ID)
		require.NoError(t, err)

		require.Len(t, firstList, 1)
		require.Len(t, secondList, 1)
		assert.Equal(t, first.Address, firstList[0].To)
		assert.Equal(t, second.Address, secondList[0].To)
		assert.NotEqual(t, firstList[0].ID, secondList[0].ID)
	})

	t.Run("重复提交的收件人只存一封", func(t *testing.T) {
		env := newTestEnv(t)
		mailbox, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "dup", Domain: "x.com"})
		require.NoError(t, err)

		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		require.NoError(t, sess.Rcpt(mailbox.Address, nil))
		require.NoError(t, sess.Rcpt(mailbox.Address, nil))
		require.NoError(t, sess.Data(strings.NewReader(rawMessage)))

		list, err := env.messages.List(mailbox.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("会话中途邮箱被删除时跳过写入", func(t *testing.T) {
		env := newTestEnv(t)
		doomed, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "doomed", Domain: "x.com"})
		require.NoError(t, err)
		survivor, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "survivor", Domain: "x.com"})
		require.NoError(t, err)

		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		require.NoError(t, sess.Rcpt(doomed.Address, nil))
		require.NoError(t, sess.Rcpt(survivor.Address, nil))

		// RCPT 之后、DATA 之前清理任务删掉了邮箱
		require.NoError(t, env.mailboxes.Delete(doomed.ID))

		require.NoError(t, sess.Data(strings.NewReader(rawMessage)))

		survivorList, err := env.messages.List(survivor.ID)
		require.NoError(t, err)
		assert.Len(t, survivorList, 1)

		// 被删除的邮箱没有留下孤儿邮件
		assert.Len(t, env.notifier.notifications, 1)
		assert.Equal(t, survivor.ID, env.notifier.notifications[0].mailboxID)
	})

	t.Run("全部收件人失效时返回451", func(t *testing.T) {
		env := newTestEnv(t)
		doomed, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "doomed", Domain: "x.com"})
		require.NoError(t, err)

		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		require.NoError(t, sess.Rcpt(doomed.Address, nil))
		require.NoError(t, env.mailboxes.Delete(doomed.ID))

		assertSMTPCode(t, sess.Data(strings.NewReader(rawMessage)), 451)
	})

	t.Run("无法解析的内容返回451", func(t *testing.T) {
		env := newTestEnv(t)
		mailbox, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "parser", Domain: "x.com"})
		require.NoError(t, err)

		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		require.NoError(t, sess.Rcpt(mailbox.Address, nil))

		assertSMTPCode(t, sess.Data(strings.NewReader("no header separator")), 451)

		list, err := env.messages.List(mailbox.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("新邮件触发推送通知", func(t *testing.T) {
		env := newTestEnv(t)
		mailbox, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "notify", Domain: "x.com"})
		require.NoError(t, err)

		sess := env.newSession(t)
		require.NoError(t, sess.Mail("s@y.com", nil))
		require.NoError(t, sess.Rcpt(mailbox.Address, nil))
		require.NoError(t, sess.Data(strings.NewReader(rawMessage)))

		require.Len(t, env.notifier.notifications, 1)
		assert.Equal(t, mailbox.ID, env.notifier.notifications[0].mailboxID)
		assert.Equal(t, "Hi", env.notifier.notifications[0].message.Subject)
	})
}

func TestSession_Reset(t *testing.T) {
	env := newTestEnv(t)
	mailbox, err := env.mailboxes.Create(service.CreateMailboxInput{Prefix: "reset", Domain: "x.com"})
	require.NoError(t, err)

	sess := env.newSession(t)
	require.NoError(t, sess.Mail("s@y.com", nil))
	require.NoError(t, sess.Rcpt(mailbox.Address, nil))

	sess.Reset()

	// Reset 之后没有收件人，DATA 必然失败
	assertSMTPCode(t, sess.Data(strings.NewReader("From: s@y.com\r\n\r\nbody\r\n")), 451)
}

func TestBackend_SessionLimit(t *testing.T) {
	env := newTestEnv(t)
	env.backend.limiter = NewSessionLimiter(1, 100)

	first, err := env.backend.NewSession(nil)
	require.NoError(t, err)

	// 并发上限为 1，第二个会话被拒绝
	_, err = env.backend.NewSession(nil)
	assertSMTPCode(t, err, 421)

	// 会话结束后配额归还
	require.NoError(t, first.Logout())
	_, err = env.backend.NewSession(nil)
	assert.NoError(t, err)
}
