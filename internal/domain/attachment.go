package domain

// Attachment 表示邮件附件，归属且仅归属于一封邮件，随邮件一起删除。
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`      // 附件唯一标识
	MessageID   int64  `json:"messageId" gorm:"index;not null"`            // 所属邮件ID
	Filename    string `json:"filename" gorm:"type:varchar(255)"`          // 文件名
	ContentType string `json:"contentType" gorm:"type:varchar(100)"`       // MIME类型
	Size        int64  `json:"size"`                                       // 大小（字节）
	Content     []byte `json:"-" gorm:"type:blob"`                         // 附件内容
}
