package domain

import "time"

// Message 表示投递到某个一次性邮箱的一封已归一化邮件。
//
// ID 由存储层单调分配，永不复用。MailboxID 是对所属邮箱的
// 非持有引用；邮箱被清理任务删除时邮件会被级联删除。
type Message struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MailboxID  string    `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	From       string    `json:"from" gorm:"type:varchar(255)"`
	To         string    `json:"to" gorm:"type:varchar(255)"`
	Subject    string    `json:"subject" gorm:"type:varchar(500)"`
	Text       string    `json:"text" gorm:"type:text"`
	HTML       string    `json:"html,omitempty" gorm:"type:text"`
	ReceivedAt time.Time `json:"receivedAt" gorm:"index"`
	IsRead     bool      `json:"isRead" gorm:"default:false"`
	// 附件列表（SQL 存储中保存在独立表）
	Attachments []*Attachment `json:"attachments,omitempty" gorm:"-"`
}

// HasAttachments 是否携带附件。
func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}
