package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nmail/backend/internal/domain"
	"nmail/backend/internal/storage"
)

// newMockStore 在 sqlmock 连接上构建存储，跳过迁移与版本探测。
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	return &Store{db: gormDB}, mock
}

func TestSQLStore_AppendMessage(t *testing.T) {
	t.Run("邮箱行在事务内加锁后写入", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM `mailboxes` (.+) FOR UPDATE").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("mb-1"))
		mock.ExpectExec("INSERT INTO `messages`").
			WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectCommit()

		id, err := store.AppendMessage(&domain.Message{MailboxID: "mb-1", Subject: "hi"})
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("邮箱已被并发删除时拒绝写入", func(t *testing.T) {
		store, mock := newMockStore(t)

		// 加锁读取发现邮箱行已不存在，事务回滚，不产生 INSERT
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM `mailboxes` (.+) FOR UPDATE").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := store.AppendMessage(&domain.Message{MailboxID: "mb-gone"})
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLStore_ListMessages(t *testing.T) {
	t.Run("已删除邮箱返回空列表", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectQuery("SELECT (.+) FROM `messages` WHERE mailbox_id = (.+)").
			WillReturnRows(sqlmock.NewRows([]string{"id", "mailbox_id"}))

		messages, err := store.ListMessages("mb-gone")
		require.NoError(t, err)
		assert.Empty(t, messages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
