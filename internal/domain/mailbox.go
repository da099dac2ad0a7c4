package domain

import (
	"time"
)

// Mailbox 表示一个有生命期限制的一次性邮箱。
//
// 不变式: ExpiresAt 必须晚于 CreatedAt。
// 投递路径（SMTP 接收）对该实体只读，只有清理任务会删除它。
type Mailbox struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address    string    `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	LocalPart  string    `json:"localPart" gorm:"type:varchar(255)"`
	Domain     string    `json:"domain" gorm:"type:varchar(100);index"`
	Token      string    `json:"token" gorm:"type:varchar(255);uniqueIndex"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt" gorm:"index"`
	IsActive   bool      `json:"isActive" gorm:"default:true"`
	TotalCount int       `json:"totalCount" gorm:"-"`
	Unread     int       `json:"unread" gorm:"-"`
}

// Deliverable 判断邮箱在 now 时刻是否可收信。
// 只读判断，不会以任何方式延长有效期。
func (m *Mailbox) Deliverable(now time.Time) bool {
	return m.IsActive && now.Before(m.ExpiresAt)
}

// Expired 判断邮箱在 now 时刻是否已过期。
func (m *Mailbox) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}
