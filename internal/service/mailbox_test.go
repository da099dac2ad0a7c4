package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nmail/backend/internal/config"
	"nmail/backend/internal/storage"
	"nmail/backend/internal/storage/memory"
)

func newTestConfig() *config.Config {
	return &config.Config{
		Mailbox: config.MailboxConfig{
			AllowedDomains: []string{"nmail.local", "test.com"},
			DefaultTTL:     24 * time.Hour,
			MaxTTL:         168 * time.Hour,
		},
	}
}

func TestMailboxService_Create(t *testing.T) {
	store := memory.NewStore()
	svc := NewMailboxService(store, newTestConfig())

	t.Run("创建随机邮箱成功", func(t *testing.T) {
		mailbox, err := svc.Create(CreateMailboxInput{})

		require.NoError(t, err)
		require.NotNil(t, mailbox)
		assert.NotEmpty(t, mailbox.ID)
		assert.NotEmpty(t, mailbox.Address)
		assert.NotEmpty(t, mailbox.Token)
		assert.Equal(t, "nmail.local", mailbox.Domain)
		assert.True(t, mailbox.IsActive)
		assert.True(t, mailbox.ExpiresAt.After(mailbox.CreatedAt))
	})

	t.Run("创建自定义前缀邮箱成功", func(t *testing.T) {
		mailbox, err := svc.Create(CreateMailboxInput{
			Prefix: "custom",
			Domain: "test.com",
		})

		require.NoError(t, err)
		assert.Equal(t, "custom@test.com", mailbox.Address)
		assert.Equal(t, "custom", mailbox.LocalPart)
		assert.Equal(t, "test.com", mailbox.Domain)
	})

	t.Run("使用不允许的域名创建邮箱失败", func(t *testing.T) {
		mailbox, err := svc.Create(CreateMailboxInput{
			Prefix: "test",
			Domain: "invalid.com",
		})

		assert.Nil(t, mailbox)
		assert.ErrorIs(t, err, ErrDomainNotAllowed)
	})

	t.Run("使用无效前缀创建邮箱失败", func(t *testing.T) {
		mailbox, err := svc.Create(CreateMailboxInput{
			Prefix: "a", // 太短
			Domain: "nmail.local",
		})

		assert.Nil(t, mailbox)
		assert.ErrorIs(t, err, ErrPrefixInvalid)
	})

	t.Run("生存时间超限创建邮箱失败", func(t *testing.T) {
		mailbox, err := svc.Create(CreateMailboxInput{
			TTL: 365 * 24 * time.Hour,
		})

		assert.Nil(t, mailbox)
		assert.ErrorIs(t, err, ErrTTLInvalid)
	})

	t.Run("地址重复创建邮箱失败", func(t *testing.T) {
		_, err := svc.Create(CreateMailboxInput{Prefix: "duplicate"})
		require.NoError(t, err)

		mailbox, err := svc.Create(CreateMailboxInput{Prefix: "duplicate"})
		assert.Nil(t, mailbox)
		assert.ErrorIs(t, err, ErrAddressTaken)
	})

	t.Run("指定生存时间生效", func(t *testing.T) {
		before := time.Now()
		mailbox, err := svc.Create(CreateMailboxInput{TTL: time.Hour})

		require.NoError(t, err)
		assert.WithinDuration(t, before.Add(time.Hour), mailbox.ExpiresAt, 5*time.Second)
	})
}

func TestMailboxService_IsDeliverable(t *testing.T) {
	store := memory.NewStore()
	svc := NewMailboxService(store, newTestConfig())

	mailbox, err := svc.Create(CreateMailboxInput{Prefix: "deliver"})
	require.NoError(t, err)

	t.Run("有效邮箱可投递", func(t *testing.T) {
		assert.True(t, svc.IsDeliverable(mailbox.Address))
	})

	t.Run("地址匹配区分大小写", func(t *testing.T) {
		assert.False(t, svc.IsDeliverable("DELIVER@nmail.local"))
	})

	t.Run("未知地址不可投递", func(t *testing.T) {
		assert.False(t, svc.IsDeliverable("ghost@nmail.local"))
	})

	t.Run("角括号包裹的地址被接受", func(t *testing.T) {
		assert.True(t, svc.IsDeliverable("<deliver@nmail.local>"))
	})

	t.Run("删除后不可投递", func(t *testing.T) {
		gone, err := svc.Create(CreateMailboxInput{Prefix: "going"})
		require.NoError(t, err)
		require.NoError(t, svc.Delete(gone.ID))

		assert.False(t, svc.IsDeliverable(gone.Address))
	})
}

func TestMailboxService_Lookup(t *testing.T) {
	store := memory.NewStore()
	svc := NewMailboxService(store, newTestConfig())

	created, err := svc.Create(CreateMailboxInput{Prefix: "lookup"})
	require.NoError(t, err)

	t.Run("按地址查找成功", func(t *testing.T) {
		mailbox, err := svc.Lookup("lookup@nmail.local")
		require.NoError(t, err)
		assert.Equal(t, created.ID, mailbox.ID)
	})

	t.Run("空地址返回未找到", func(t *testing.T) {
		_, err := svc.Lookup("  ")
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
	})
}

func TestMailboxService_Domains(t *testing.T) {
	store := memory.NewStore()
	svc := NewMailboxService(store, newTestConfig())

	assert.Equal(t, []string{"nmail.local", "test.com"}, svc.Domains())
}
