package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nmail/backend/internal/monitoring"
	"nmail/backend/internal/storage"
)

// Sweeper 周期性删除过期邮箱并级联清除其邮件。
//
// 两个状态：空闲和清理中，按固定周期循环。单次清理失败只记录
// 日志，下个周期独立重试；周期之间不保留任何部分清理状态。
type Sweeper struct {
	store    storage.Store
	interval time.Duration
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// New 创建清理任务。metrics 可以为 nil。
func New(store storage.Store, interval time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		metrics:  metrics,
		log:      log,
	}
}

// Run 按周期执行清理，直到 ctx 取消。可随进程优雅退出，
// 不需要等完整个周期。
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("retention sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(time.Now())
		}
	}
}

// Sweep 执行一次清理：枚举过期邮箱，逐个删除并级联清除邮件。
// 返回删除的邮箱数量。任何失败都不会让进程崩溃。
func (s *Sweeper) Sweep(now time.Time) int {
	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}

	expired, err := s.store.ListExpiredMailboxes(now)
	if err != nil {
		s.log.Error("failed to enumerate expired mailboxes", zap.Error(err))
		if s.metrics != nil {
			s.metrics.SweepFailures.Inc()
		}
		return 0
	}

	deleted := 0
	for _, mb := range expired {
		if err := s.store.DeleteMailbox(mb.ID); err != nil {
			s.log.Error("failed to delete expired mailbox",
				zap.String("mailbox_id", mb.ID),
				zap.Error(err),
			)
			if s.metrics != nil {
				s.metrics.SweepFailures.Inc()
			}
			continue
		}
		deleted++
		if s.metrics != nil {
			s.metrics.MailboxesPurged.Inc()
		}
	}

	if deleted > 0 {
		s.log.Info("expired mailboxes swept", zap.Int("count", deleted))
	}
	return deleted
}
