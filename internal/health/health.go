package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"nmail/backend/internal/storage"
)

// Checker 健康检查器
type Checker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger
}

// NewChecker 创建健康检查器
func NewChecker(store storage.Store, logger *zap.Logger) *Checker {
	c := &Checker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger,
	}

	c.addChecks()

	return c
}

// addChecks 注册各项检查
func (c *Checker) addChecks() {
	// 存储层连接检查
	c.health.AddLivenessCheck("storage", func() error {
		return c.store.Health()
	})

	// goroutine 数量异常视为未就绪
	c.health.AddReadinessCheck("goroutine-count",
		healthcheck.GoroutineCountCheck(2000))
}

// Handler 返回健康检查处理器
func (c *Checker) Handler() http.Handler {
	return c.health
}
