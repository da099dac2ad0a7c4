package httptransport

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nmail/backend/internal/domain"
	"nmail/backend/internal/monitoring"
	"nmail/backend/internal/service"
	"nmail/backend/internal/storage"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	mailboxes *service.MailboxService
	messages  *service.MessageService
	metrics   *monitoring.Metrics
}

// NewHandler 创建 HTTP 处理器
func NewHandler(
	mailboxService *service.MailboxService,
	messageService *service.MessageService,
	metrics *monitoring.Metrics,
) *Handler {
	return &Handler{
		mailboxes: mailboxService,
		messages:  messageService,
		metrics:   metrics,
	}
}

// ========== 请求/响应结构体 ==========

type createMailboxRequest struct {
	Prefix     string `json:"prefix"`     // 邮箱前缀，留空时自动生成
	Method     string `json:"method"`     // 自动生成方式: random / word / timestamped
	Domain     string `json:"domain"`     // 邮箱域名，留空时使用默认域名
	ExpiryTime int64  `json:"expiryTime"` // 生存时间（毫秒），0 表示使用默认值
}

type mailboxResponse struct {
	MailboxID string    `json:"mailboxId"` // 邮箱ID
	Address   string    `json:"address"`   // 完整邮箱地址
	LocalPart string    `json:"localPart"` // 邮箱前缀
	Domain    string    `json:"domain"`    // 域名
	CreatedAt time.Time `json:"createdAt"` // 创建时间
	ExpiresAt time.Time `json:"expiresAt"` // 过期时间
	Token     string    `json:"token,omitempty"`
}

type messageListItem struct {
	MessageID     int64     `json:"messageId"`
	From          string    `json:"from"`
	Subject       string    `json:"subject"`
	ReceivedAt    time.Time `json:"receivedAt"`
	IsRead        bool      `json:"isRead"`
	HasAttachment bool      `json:"hasAttachment"`
}

type messageDetailResponse struct {
	MessageID   int64            `json:"messageId"`
	MailboxID   string           `json:"mailboxId"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Subject     string           `json:"subject"`
	Text        string           `json:"text"`
	HTML        string           `json:"html"`
	ReceivedAt  time.Time        `json:"receivedAt"`
	IsRead      bool             `json:"isRead"`
	Attachments []attachmentItem `json:"attachments,omitempty"`
}

type attachmentItem struct {
	AttachmentID string `json:"attachmentId"`
	Filename     string `json:"filename"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
}

// ========== API 处理器 ==========

// GetConfig 获取系统配置，包括可用的邮箱域名列表
func (h *Handler) GetConfig(c *gin.Context) {
	Success(c, gin.H{
		"domains": h.mailboxes.Domains(),
	})
}

// CreateMailbox 开通一次性邮箱
func (h *Handler) CreateMailbox(c *gin.Context) {
	var req createMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误")
		return
	}

	var ttl time.Duration
	if req.ExpiryTime > 0 {
		ttl = time.Duration(req.ExpiryTime) * time.Millisecond
	}

	mailbox, err := h.mailboxes.Create(service.CreateMailboxInput{
		Prefix: req.Prefix,
		Method: req.Method,
		Domain: req.Domain,
		TTL:    ttl,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDomainNotAllowed):
			BadRequest(c, "域名不在允许列表中")
		case errors.Is(err, service.ErrPrefixInvalid):
			BadRequest(c, "邮箱前缀不合法")
		case errors.Is(err, service.ErrTTLInvalid):
			BadRequest(c, "生存时间超出允许范围")
		case errors.Is(err, service.ErrAddressTaken):
			Conflict(c, "邮箱地址已被占用")
		default:
			InternalError(c, "创建邮箱失败")
		}
		return
	}

	h.metrics.MailboxesCreated.Inc()

	Created(c, mailboxResponse{
		MailboxID: mailbox.ID,
		Address:   mailbox.Address,
		LocalPart: mailbox.LocalPart,
		Domain:    mailbox.Domain,
		CreatedAt: mailbox.CreatedAt,
		ExpiresAt: mailbox.ExpiresAt,
		Token:     mailbox.Token,
	})
}

// GetMailbox 获取邮箱详情（需要邮箱Token）
func (h *Handler) GetMailbox(c *gin.Context) {
	mailbox := mailboxFromContext(c)
	if mailbox == nil {
		InternalError(c, "获取邮箱失败")
		return
	}

	Success(c, mailboxResponse{
		MailboxID: mailbox.ID,
		Address:   mailbox.Address,
		LocalPart: mailbox.LocalPart,
		Domain:    mailbox.Domain,
		CreatedAt: mailbox.CreatedAt,
		ExpiresAt: mailbox.ExpiresAt,
	})
}

// DeleteMailbox 删除邮箱并级联删除全部邮件
func (h *Handler) DeleteMailbox(c *gin.Context) {
	mailboxID := c.Param("id")

	if err := h.mailboxes.Delete(mailboxID); err != nil {
		if errors.Is(err, storage.ErrMailboxNotFound) {
			NotFound(c, "邮箱不存在")
			return
		}
		InternalError(c, "删除邮箱失败")
		return
	}

	h.metrics.MailboxesDeleted.Inc()

	Success(c, gin.H{"deleted": true})
}

// ListMessages 获取邮箱内的邮件列表，按接收时间倒序
func (h *Handler) ListMessages(c *gin.Context) {
	mailboxID := c.Param("id")

	messages, err := h.messages.List(mailboxID)
	if err != nil {
		InternalError(c, "获取邮件列表失败")
		return
	}

	items := make([]messageListItem, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		items = append(items, messageListItem{
			MessageID:     msg.ID,
			From:          msg.From,
			Subject:       msg.Subject,
			ReceivedAt:    msg.ReceivedAt,
			IsRead:        msg.IsRead,
			HasAttachment: msg.HasAttachments(),
		})
	}

	Success(c, gin.H{
		"messages": items,
		"count":    len(items),
	})
}

// GetMessage 获取单封邮件详情，并自动标记为已读
func (h *Handler) GetMessage(c *gin.Context) {
	mailboxID := c.Param("id")

	messageID, err := parseMessageID(c.Param("messageId"))
	if err != nil {
		BadRequest(c, "邮件ID不合法")
		return
	}

	msg, err := h.messages.Get(mailboxID, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrMessageNotFound) {
			NotFound(c, "邮件不存在")
			return
		}
		InternalError(c, "获取邮件失败")
		return
	}

	// 查看即标记已读
	_ = h.messages.MarkRead(mailboxID, messageID)

	attachments := make([]attachmentItem, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, attachmentItem{
			AttachmentID: att.ID,
			Filename:     att.Filename,
			ContentType:  att.ContentType,
			Size:         att.Size,
		})
	}

	Success(c, messageDetailResponse{
		MessageID:   msg.ID,
		MailboxID:   msg.MailboxID,
		From:        msg.From,
		To:          msg.To,
		Subject:     msg.Subject,
		Text:        msg.Text,
		HTML:        msg.HTML,
		ReceivedAt:  msg.ReceivedAt,
		IsRead:      true,
		Attachments: attachments,
	})
}

// MarkMessageRead 将邮件标记为已读。重复标记与不存在的邮件均为无操作。
func (h *Handler) MarkMessageRead(c *gin.Context) {
	mailboxID := c.Param("id")

	messageID, err := parseMessageID(c.Param("messageId"))
	if err != nil {
		BadRequest(c, "邮件ID不合法")
		return
	}

	if err := h.messages.MarkRead(mailboxID, messageID); err != nil {
		InternalError(c, "标记已读失败")
		return
	}

	Success(c, gin.H{"read": true})
}

// DownloadAttachment 下载邮件附件
func (h *Handler) DownloadAttachment(c *gin.Context) {
	mailboxID := c.Param("id")
	attachmentID := c.Param("attachmentId")

	messageID, err := parseMessageID(c.Param("messageId"))
	if err != nil {
		BadRequest(c, "邮件ID不合法")
		return
	}

	att, err := h.messages.GetAttachment(mailboxID, messageID, attachmentID)
	if err != nil {
		if errors.Is(err, storage.ErrAttachmentNotFound) || errors.Is(err, storage.ErrMessageNotFound) {
			NotFound(c, "附件不存在")
			return
		}
		InternalError(c, "获取附件失败")
		return
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
	c.Data(200, contentType, att.Content)
}

// mailboxFromContext 取出认证中间件存入的邮箱
func mailboxFromContext(c *gin.Context) *domain.Mailbox {
	value, exists := c.Get("mailbox")
	if !exists {
		return nil
	}
	mailbox, ok := value.(*domain.Mailbox)
	if !ok {
		return nil
	}
	return mailbox
}

// parseMessageID 解析路径中的邮件ID
func parseMessageID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
