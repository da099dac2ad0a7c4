package smtp

import (
	"sync"

	"golang.org/x/time/rate"
)

// SessionLimiter 限制 SMTP 会话的并发数量与新建速率。
type SessionLimiter struct {
	mu       sync.Mutex
	current  int
	maxConns int
	rate     *rate.Limiter
}

// NewSessionLimiter 创建会话限流器。
//
// 参数:
//   - maxConns: 最大并发会话数
//   - maxRate: 每秒最大新建会话数（也是突发上限）
func NewSessionLimiter(maxConns, maxRate int) *SessionLimiter {
	return &SessionLimiter{
		maxConns: maxConns,
		rate:     rate.NewLimiter(rate.Limit(maxRate), maxRate),
	}
}

// Acquire 获取会话许可，超出并发或速率限制时返回 false。
func (l *SessionLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= l.maxConns {
		return false
	}
	if !l.rate.Allow() {
		return false
	}

	l.current++
	return true
}

// Release 归还会话许可。
func (l *SessionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current 当前会话数。
func (l *SessionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
