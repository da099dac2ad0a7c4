package smtp

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"nmail/backend/internal/domain"
	"nmail/backend/internal/monitoring"
	"nmail/backend/internal/service"
	"nmail/backend/internal/storage"
)

// Notifier 新邮件到达时的推送回调（由 WebSocket Hub 实现）。
type Notifier interface {
	NotifyNewMail(mailboxID string, message *domain.Message)
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 服务器（Receiving-Only SMTP Server）：
// - 只接收发送到本系统一次性邮箱的邮件
// - RCPT 阶段逐个验证收件人，不存在或已过期一律返回 550
// - 不支持对外发送或中继，不会成为垃圾邮件中继
//
// 投递路径对邮箱目录只读；唯一的写入是向 Message Store 追加记录。
type Backend struct {
	directory *service.MailboxService
	messages  *service.MessageService
	notifier  Notifier
	limiter   *SessionLimiter
	metrics   *monitoring.Metrics
	log       *zap.Logger

	maxMessageBytes int64
}

// NewBackend 创建 SMTP Backend。notifier 与 metrics 可以为 nil。
func NewBackend(
	directory *service.MailboxService,
	messages *service.MessageService,
	notifier Notifier,
	limiter *SessionLimiter,
	metrics *monitoring.Metrics,
	maxMessageBytes int64,
	log *zap.Logger,
) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	if maxMessageBytes <= 0 {
		maxMessageBytes = 10 << 20
	}
	return &Backend{
		directory:       directory,
		messages:        messages,
		notifier:        notifier,
		limiter:         limiter,
		metrics:         metrics,
		maxMessageBytes: maxMessageBytes,
		log:             log,
	}
}

// NewSession 创建新的 SMTP 会话。并发或速率超限时拒绝连接。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	if b.metrics != nil {
		b.metrics.SMTPSessionsTotal.Inc()
	}
	return &session{
		backend: b,
		id:      uuid.NewString()[:8],
	}, nil
}

type session struct {
	backend     *Backend
	id          string // 会话标识，仅用于日志关联
	fromAddress string
	recipients  []recipient
}

type recipient struct {
	address   string
	mailboxID string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = strings.Trim(strings.TrimSpace(from), "<>")
	return nil
}

// Rcpt 处理 RCPT 命令，逐个验证收件人。
//
// 单个收件人被拒绝不会中止会话，同一会话中的其他收件人
// 仍可独立成功。只有存在、激活且未过期的邮箱会被接受。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := strings.Trim(strings.TrimSpace(to), "<>")

	if len(strings.Split(addr, "@")) != 2 {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	// 收件人按地址去重，重复的 RCPT 不会让同一封邮件存两份
	for _, existing := range s.recipients {
		if existing.address == addr {
			return nil
		}
	}

	mb, err := s.backend.directory.Lookup(addr)
	if err != nil || !mb.Deliverable(time.Now()) {
		if s.backend.metrics != nil {
			s.backend.metrics.SMTPRecipientsRejected.Inc()
		}
		s.backend.log.Debug("recipient rejected",
			zap.String("session", s.id),
			zap.String("to", addr),
		)
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "no such user here",
		}
	}

	s.recipients = append(s.recipients, recipient{
		address:   addr,
		mailboxID: mb.ID,
	})
	if s.backend.metrics != nil {
		s.backend.metrics.SMTPRecipientsAccepted.Inc()
	}
	return nil
}

// Data 处理邮件内容：解析一次，再为每个已接受的收件人各写一条记录。
//
// 写入前按收件人重新验证可投递性，防止会话进行中邮箱过期
// 或被清理任务删除。各收件人的写入互相独立，一个失败不会
// 阻塞其他收件人。至少一个收件人持久化成功返回 250；解析
// 失败或全部写入失败返回 451，发送方可按协议约定重试。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, s.backend.maxMessageBytes))
	if err != nil {
		return transientError(fmt.Sprintf("read payload: %v", err))
	}

	parsed, err := ParseEmail(rawBytes)
	if err != nil {
		s.backend.log.Warn("failed to parse message payload",
			zap.String("session", s.id),
			zap.Error(err),
		)
		return transientError("error in processing")
	}

	received := time.Now().UTC()
	stored := 0
	for _, rcpt := range s.recipients {
		// 重新验证：邮箱可能在会话进行中过期
		mb, err := s.backend.directory.Lookup(rcpt.address)
		if err != nil || !mb.Deliverable(received) {
			s.backend.log.Info("recipient no longer deliverable, skipping",
				zap.String("session", s.id),
				zap.String("mailbox_id", rcpt.mailboxID),
			)
			continue
		}

		attachments := cloneAttachments(parsed.Attachments)
		message, err := s.backend.messages.Append(service.AppendMessageInput{
			MailboxID:   rcpt.mailboxID,
			From:        s.fromAddress,
			To:          rcpt.address,
			Subject:     parsed.Subject,
			Text:        parsed.Text,
			HTML:        parsed.HTML,
			Received:    received,
			Attachments: attachments,
		})
		if err != nil {
			if errors.Is(err, storage.ErrMailboxNotFound) {
				// 清理任务刚删掉了邮箱，按不可投递处理
				continue
			}
			s.backend.log.Error("failed to store message",
				zap.String("session", s.id),
				zap.String("mailbox_id", rcpt.mailboxID),
				zap.Error(err),
			)
			continue
		}

		stored++
		if s.backend.metrics != nil {
			s.backend.metrics.MessagesStored.Inc()
		}
		if s.backend.notifier != nil {
			s.backend.notifier.NotifyNewMail(rcpt.mailboxID, message)
		}
	}

	if stored == 0 {
		if s.backend.metrics != nil {
			s.backend.metrics.MessagesRejected.Inc()
		}
		return transientError("message not stored for any recipient")
	}

	s.backend.log.Info("message accepted",
		zap.String("session", s.id),
		zap.String("from", s.fromAddress),
		zap.Int("recipients", stored),
	)
	return nil
}

// Reset 重置会话状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束，归还连接配额。
func (s *session) Logout() error {
	if s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	return nil
}

// transientError 构造 451 临时失败响应。
// 内部错误细节只进日志，不外泄给对端。
func transientError(msg string) error {
	return &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      msg,
	}
}

// cloneAttachments 为每个收件人复制附件记录。
// 附件归属且仅归属于一封邮件，不能在记录之间共享。
func cloneAttachments(attachments []*domain.Attachment) []*domain.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]*domain.Attachment, 0, len(attachments))
	for _, att := range attachments {
		out = append(out, &domain.Attachment{
			ID:          uuid.NewString(),
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
			Content:     att.Content,
		})
	}
	return out
}
