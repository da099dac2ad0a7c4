package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nmail/backend/internal/service"
)

// MailboxAuth 邮箱Token认证中间件
type MailboxAuth struct {
	mailboxService *service.MailboxService
	log            *zap.Logger
}

// NewMailboxAuth 创建邮箱认证中间件
func NewMailboxAuth(mailboxService *service.MailboxService, log *zap.Logger) *MailboxAuth {
	return &MailboxAuth{
		mailboxService: mailboxService,
		log:            log,
	}
}

// RequireMailboxToken 要求邮箱Token验证
func (ma *MailboxAuth) RequireMailboxToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		mailboxID := c.Param("id")
		if mailboxID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "mailbox ID required",
			})
			c.Abort()
			return
		}

		token := ma.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "mailbox token required",
			})
			c.Abort()
			return
		}

		mailbox, err := ma.mailboxService.Get(mailboxID)
		if err != nil {
			ma.log.Warn("mailbox not found",
				zap.String("mailbox_id", mailboxID),
				zap.Error(err),
			)
			c.JSON(http.StatusNotFound, gin.H{
				"error": "mailbox not found",
			})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(mailbox.Token), []byte(token)) != 1 {
			ma.log.Warn("invalid mailbox token",
				zap.String("mailbox_id", mailboxID),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid mailbox token",
			})
			c.Abort()
			return
		}

		// 将邮箱信息存储到上下文中
		c.Set("mailbox", mailbox)
		c.Next()
	}
}

// extractToken 从多个来源提取Token
func (ma *MailboxAuth) extractToken(c *gin.Context) string {
	// 1. Authorization header (Bearer token)
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. X-Mailbox-Token header
	token := c.GetHeader("X-Mailbox-Token")
	if token != "" {
		return token
	}

	// 3. query parameter
	return c.Query("token")
}
