package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"deploy-console/internal/pkg/config"
	"deploy-console/internal/service"
)

// Scheduler 调度器
type Scheduler struct {
	cron          *cron.Cron
	logger        *zap.Logger
	credSvc       service.CredentialService
	cronSchedules map[string]cron.EntryID // 存储任务ID，便于管理
}

// NewScheduler 创建调度器
func NewScheduler(credSvc service.CredentialService, logger *zap.Logger) *Scheduler {
	// 创建 cron 实例（带秒级支持）
	c := cron.New(cron.WithSeconds())

	return &Scheduler{
		cron:          c,
		logger:        logger,
		credSvc:       credSvc,
		cronSchedules: make(map[string]cron.EntryID),
	}
}

// Start 启动调度器
func (s *Scheduler) Start(cfg *config.Config) error {
	log := s.logger.Sugar()

	log.Info("启动定时任务调度器...")

	// cron 表达式格式: 秒 分 时 日 月 周
	cronExpr := cfg.Trigger.RefreshCron
	if cronExpr == "" {
		cronExpr = "0 */5 * * * *" // 默认: 每5分钟
		log.Warn("未配置trigger.refresh_cron，使用默认值", zap.String("cron", cronExpr))
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		log.Info("执行定时任务: 凭据prime状态刷新")
		if err := s.credSvc.RefreshPrimeStatus(context.Background()); err != nil {
			log.Errorf("凭据prime状态刷新失败: %v", err)
		}
	})

	if err != nil {
		log.Errorf("注册prime状态刷新任务失败: %v", err)
		return err
	}

	s.cronSchedules["prime_refresh"] = entryID
	log.Infof("prime状态刷新任务已注册: %s entry_id=%d", cronExpr, entryID)

	// 启动 cron
	s.cron.Start()
	log.Info("定时任务调度器启动成功")

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.logger.Info("正在停止定时任务调度器...")

	// 停止 cron（等待正在执行的任务完成）
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("定时任务调度器已停止")
}
